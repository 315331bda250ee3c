package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultrest/internal/client"
	"github.com/TheMichaelB/vaultrest/internal/config"
	"github.com/TheMichaelB/vaultrest/internal/events"
)

// Commands with this annotation run without loading config or a client.
const annotationStandalone = "standalone"

var (
	cfgFile    string
	profile    string
	serverURL  string
	debug      bool
	jsonOutput bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "vaultrest",
	Short: "Secure transport client for the vault REST API",
	Long: `vaultrest talks to the vault service over its encrypted REST envelope:
device enrollment, pre-login parameter discovery and raw JSON commands.

Session state (server region, negotiated key, device token) is saved per
profile between runs.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: ./vaultrest.yaml or ~/.config/vaultrest/vaultrest.yaml)")
	flags.StringVarP(&profile, "profile", "P", "",
		"Session profile name")
	flags.StringVar(&serverURL, "server", "",
		"Override the API base URL")
	flags.BoolVar(&debug, "debug", false,
		"Enable debug logging")
	flags.BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("%v", err)
		}
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[annotationStandalone] == "true" {
		return nil
	}

	var err error
	cfg, err = loadConfig()
	if err != nil {
		return err
	}

	if !cfg.Log.Color {
		color.NoColor = true
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	apiClient, err = client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	cmd.SetContext(events.WithProfile(events.WithLogger(cmd.Context(), logger), cfg.Session.Profile))
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if apiClient == nil {
		return nil
	}
	return apiClient.Close()
}

// loadConfig reads configuration and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	loaded, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}

	if profile != "" {
		loaded.Session.Profile = profile
	}
	if serverURL != "" {
		loaded.API.BaseURL = serverURL
	}
	if debug {
		loaded.Log.Level = "debug"
	}

	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}
