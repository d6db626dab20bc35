package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessro/reprise/internal/config"
	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/kv"
	"github.com/tessro/reprise/internal/logging"
	"github.com/tessro/reprise/internal/snapshot"
	"github.com/tessro/reprise/internal/spotify/auth"
)

var (
	cfgFile string
	jsonOut bool
	verbose bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reprise",
	Short: "Keep Spotify playback alive across restarts",
	Long: `Reprise runs a Spotify playback session that remembers what was playing.
When the device comes back, playback resumes from the same track, context and position.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.repriserc)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initConfig() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, rerrors.Format(err))
		os.Exit(1)
	}
}

// Config returns the loaded configuration.
func Config() *config.Config {
	return cfg
}

// JSONOutput returns true if JSON output is requested.
func JSONOutput() bool {
	return jsonOut
}

// Verbose returns true if verbose output is requested.
func Verbose() bool {
	return verbose
}

func newLogger() (*slog.Logger, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	return logger, nil
}

func openStorage() (*kv.SQLite, error) {
	store, err := kv.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage at %s: %w", cfg.Storage.Path, err)
	}
	return store, nil
}

// newRefresher picks the backend proxy when one is configured and the
// Spotify token endpoint otherwise.
func newRefresher() auth.Refresher {
	if cfg.Spotify.RefreshURL != "" {
		return auth.NewProxyRefresher(cfg.Spotify.RefreshURL, nil)
	}
	return &auth.OAuthRefresher{Config: oauthConfig()}
}

func oauthConfig() *auth.Config {
	c := auth.NewConfig(cfg.Spotify.ClientID)
	if cfg.Spotify.RedirectURI != "" {
		c.RedirectURI = cfg.Spotify.RedirectURI
	}
	if cfg.Spotify.TokenURL != "" {
		c.TokenURL = cfg.Spotify.TokenURL
	}
	return c
}

// newTokenStore links the snapshot key so that a rejected refresh also
// discards the playback snapshot.
func newTokenStore(store kv.Store, logger *slog.Logger) *auth.Store {
	return auth.NewStore(store, newRefresher(),
		auth.WithLinkedKeys(snapshot.Key),
		auth.WithLogger(logger),
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
