package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmmannChristian/go-sierra/sierra"
)

func newTokenCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the current access token",
		Long:  `Print the access token, fetching a new one when the cached token is missing or stale.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			tm := cc.Client.TokenManager()

			var err error
			if refresh {
				err = tm.FetchToken(cmd.Context())
			} else {
				err = tm.EnsureValidToken(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("no access token: %w", err)
			}

			token := tm.Token()
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"access_token":  token.AccessToken,
				"token_type":    token.TokenType,
				"expires_at":    token.ExpiresAt.UTC().Format(time.RFC3339),
				"authorization": token.AuthorizationHeader(),
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch a new token even if the current one is valid")
	return cmd
}

func newGetCommand() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "get RESOURCE",
		Short: "GET a resource, e.g. bibs/1000001",
		Example: `  sierra get bibs/1000001
  sierra get items --param bibIds=1000001 --param limit=5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseParams(params)
			if err != nil {
				return err
			}

			cc := getCliContext(cmd)
			result, err := cc.Client.Get(cmd.Context(), args[0], values)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Query parameter as key=value (repeatable)")
	return cmd
}

func newQueryCommand() *cobra.Command {
	var (
		body     string
		bodyFile string
		offset   int
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "query RESOURCE",
		Short: "POST a JSON query to RESOURCE/query",
		Example: `  sierra query bibs --body '{"target":{"record":{"type":"bib"},"field":{"tag":"t"}},"expr":{"op":"has","operands":["ulysses"]}}'
  sierra query patrons --file query.json --offset 50 --limit 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readQuery(body, bodyFile)
			if err != nil {
				return err
			}

			cc := getCliContext(cmd)
			result, err := cc.Client.Query(cmd.Context(), args[0], payload, offset, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&body, "body", "b", "", "JSON query document")
	cmd.Flags().StringVarP(&bodyFile, "file", "f", "", "Read the JSON query document from a file")
	cmd.Flags().IntVar(&offset, "offset", 0, "Index of the first result")
	cmd.Flags().IntVar(&limit, "limit", sierra.DefaultQueryLimit, "Maximum number of results")
	cmd.MarkFlagsMutuallyExclusive("body", "file")
	return cmd
}

func parseParams(params []string) (url.Values, error) {
	values := url.Values{}
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", p)
		}
		values.Add(key, value)
	}
	return values, nil
}

func readQuery(body, bodyFile string) (json.RawMessage, error) {
	data := []byte(body)
	if bodyFile != "" {
		var err error
		if data, err = os.ReadFile(bodyFile); err != nil {
			return nil, fmt.Errorf("read query file: %w", err)
		}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("a query document is required (--body or --file)")
	}
	if !json.Valid(data) {
		return nil, errors.New("query document is not valid JSON")
	}
	return json.RawMessage(data), nil
}
