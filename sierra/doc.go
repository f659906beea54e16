// Package sierra is a client for the Sierra ILS REST API (v4).
//
// A Client holds an access token obtained with the client-credentials flow,
// refreshes it when it goes stale and issues two kinds of calls:
//
//   - Get: GET {endpoint}{resource}?{params}, returning the decoded JSON value
//   - Query: POST {endpoint}{resource}/query?offset={o}&limit={l} with a JSON
//     query document, returning the decoded JSON object
//
// Some Sierra deployments reject a freshly issued token for a short while. A
// request answered with 401 is therefore repeated with the same token, up to
// DefaultMaxUnauthorizedRetries extra times (see WithMaxUnauthorizedRetries).
//
// Every failure to obtain a 200 response is reported as an error matching
// ErrNoResult:
//
//	bib, err := client.Get(ctx, "bibs/1000001", nil)
//	if errors.Is(err, sierra.ErrNoResult) {
//	    // token unavailable, transport failure or non-200 status
//	}
//
// A 200 response that is not valid JSON is reported as a decode error.
package sierra
