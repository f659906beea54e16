// Package oauth2client manages the access token used to call a Sierra ILS REST API.
//
// A TokenManager obtains tokens with the OAuth2 client-credentials flow (HTTP Basic
// authentication with the client key and secret, grant_type=client_credentials), keeps
// the current token in memory and mirrors it into a host-provided session Cache so other
// client instances can reuse it.
//
// # Features
//
//   - Client-credentials flow via golang.org/x/oauth2/clientcredentials
//   - Staleness check against the absolute expiry (now >= ExpiresAt), optional leeway
//   - Session cache mirroring under CacheKey; last writer wins
//   - Failures are returned as errors and never replace the held token
//   - Optional structured logging (WithLogger, WithLoggingEnabled)
//
// # Quick Start
//
//	tm := oauth2client.NewTokenManager(
//	    ctx,
//	    "https://catalog.example.edu/iii/sierra-api/v4/token",
//	    "client-key",
//	    "client-secret",
//	    oauth2client.WithCache(sessionstore.NewMemory()),
//	    oauth2client.WithLoggingEnabled(),
//	)
//
//	tm.LoadCached(ctx)
//	if err := tm.EnsureValidToken(ctx); err != nil {
//	    log.Printf("no token: %v", err)
//	}
//
// # Notes
//
//   - TokenManager is safe for concurrent use and uses double-checked locking.
//   - Token-type title-casing follows the server value ("bearer" becomes "Bearer").
package oauth2client
