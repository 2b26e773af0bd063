// Package cli implements the apex command line tools: stream tailing, agent
// run control, billing checks, dev-server management and the preview edge.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"apex-client/internal/api"
	"apex-client/internal/auth"
	"apex-client/internal/config"
	"apex-client/internal/logging"
)

var (
	flagBaseURL string
	flagToken   string
	flagAPIKey  string
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	defer logging.Sync()

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. Exported for tests.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "apex",
		Short:         "APEX.BUILD platform client",
		Long:          "Client tools for the APEX.BUILD platform: tail agent runs, manage dev servers and run the preview edge.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "platform API root (default from APEX_API_URL)")
	root.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token (default from APEX_TOKEN)")
	root.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key exchanged for a session token (default from APEX_API_KEY)")

	root.AddCommand(
		newTailCmd(),
		newStartCmd(),
		newStopCmd(),
		newBillingCmd(),
		newDevServerCmd(),
		newProxyCmd(),
	)
	return root
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}
	return cfg, nil
}

// tokenProvider picks the credential source: an explicit token wins, then an
// API key traded for a session JWT.
func tokenProvider(cfg *config.Config) (auth.TokenProvider, error) {
	switch {
	case cfg.Token != "":
		return auth.Static(cfg.Token), nil
	case cfg.APIKey != "":
		return auth.NewExchanger(cfg.BaseURL, cfg.APIKey), nil
	default:
		return nil, errors.New("no credential: set --token/--api-key or APEX_TOKEN/APEX_API_KEY")
	}
}

// newClient builds the API client from config plus flags.
func newClient() (*api.Client, *config.Config, auth.TokenProvider, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	tokens, err := tokenProvider(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return api.New(cfg.BaseURL+"/api", tokens), cfg, tokens, nil
}
