// Package cli implements the sierra command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AmmannChristian/go-sierra/config"
	"github.com/AmmannChristian/go-sierra/internal/logger"
	"github.com/AmmannChristian/go-sierra/sessionstore"
	"github.com/AmmannChristian/go-sierra/sierra"
)

type contextKey string

const cliContextKey contextKey = "cliContext"

// CliContext holds what every subcommand needs.
type CliContext struct {
	Config *config.Config
	Client *sierra.Client
	Logger *slog.Logger

	cache       *sessionstore.SQLite
	cacheClosed bool
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	cachePath  string
	noCache    bool
}

// Execute runs the sierra command with args and releases the token cache
// however the command ends.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cc CliContext
	cmd := newRootCommand(&cc)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return execute(ctx, cmd, &cc)
}

func execute(ctx context.Context, cmd *cobra.Command, cc *CliContext) (err error) {
	defer func() {
		if cerr := cc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return cmd.ExecuteContext(ctx)
}

// Close releases the token cache. It is safe to call more than once.
func (cc *CliContext) Close() error {
	if cc.cache == nil || cc.cacheClosed {
		return nil
	}
	cc.cacheClosed = true
	return cc.cache.Close()
}

// newRootCommand creates the root cobra command. Resources opened for a
// subcommand are recorded in cc.
func newRootCommand(cc *CliContext) *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "sierra",
		Short:         "Query a Sierra ILS REST API",
		Long:          `A command line client for the Sierra ILS REST API (v4) using client credentials.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			cc.Config = cfg
			cc.Logger = logger.WithCommand(logger.New(logger.Config{
				Level:  logger.ParseLevel(cfg.Logging.Level),
				Format: cfg.Logging.Format,
				Output: cmd.ErrOrStderr(),
			}), cmd.Name())

			opts := []sierra.Option{sierra.WithLogger(cc.Logger)}
			if cfg.Cache.Path != "" {
				cache, err := openCache(cfg.Cache.Path, cc.Logger)
				if err != nil {
					return err
				}
				cc.cache = cache
				opts = append(opts, sierra.WithCache(cache))
			}

			client, err := sierra.New(cmd.Context(), cfg.Client(), opts...)
			if err != nil {
				return err
			}
			cc.Client = client

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey, cc))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"Config file (default: ./sierra.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "",
		"Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&flags.cachePath, "cache", "",
		"Token cache database (default from config)")
	rootCmd.PersistentFlags().BoolVar(&flags.noCache, "no-cache", false,
		"Do not read or write the token cache")

	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newQueryCommand())

	return rootCmd
}

// apply lets explicitly set flags win over the loaded configuration.
func (f *globalFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	pf := cmd.Flags()
	if pf.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if pf.Changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	if pf.Changed("cache") {
		cfg.Cache.Path = f.cachePath
	}
	if f.noCache {
		cfg.Cache.Path = ""
	}
}

func openCache(path string, log *slog.Logger) (*sessionstore.SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	return sessionstore.OpenSQLite(path, log)
}

// getCliContext extracts the CLI context from the command context.
func getCliContext(cmd *cobra.Command) *CliContext {
	return cmd.Context().Value(cliContextKey).(*CliContext)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
