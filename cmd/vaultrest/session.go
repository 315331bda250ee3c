package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultrest/internal/config"
	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/state"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or reset saved session state",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved session for the profile",
	Args:  cobra.NoArgs,
	RunE:  runSessionShow,
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the device token, negotiated key and region",
	Args:  cobra.NoArgs,
	RunE:  runSessionReset,
}

var sessionMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy all saved sessions to another store type",
	Example: `  vaultrest session migrate --to sqlite
  vaultrest session migrate --to json`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationStandalone: "true"},
	RunE:        runSessionMigrate,
}

var migrateTo string

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd, sessionResetCmd, sessionMigrateCmd)

	sessionMigrateCmd.Flags().StringVar(&migrateTo, "to", "",
		"Target store type: json or sqlite (required)")
	_ = sessionMigrateCmd.MarkFlagRequired("to")
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	snap := apiClient.Session()
	profiles, err := apiClient.Profiles()
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"profile":  cfg.Session.Profile,
			"store":    cfg.Session.Store,
			"session":  snap,
			"profiles": profiles,
		})
		return nil
	}

	printInfo("Profile %s (%s store)", cfg.Session.Profile, cfg.Session.Store)
	printField("Server", snap.ServerBase)
	printField("Locale", snap.Locale)
	printField("Server key", snap.ActiveKeyID)
	printField("Device token", len(snap.DeviceToken) > 0)
	printField("Saved profiles", profiles)
	return nil
}

func runSessionReset(cmd *cobra.Command, args []string) error {
	if err := apiClient.ResetSession(); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"profile": cfg.Session.Profile,
		})
		return nil
	}

	printSuccess("Session for profile %s reset", cfg.Session.Profile)
	return nil
}

func runSessionMigrate(cmd *cobra.Command, args []string) error {
	src, err := loadConfig()
	if err != nil {
		return err
	}
	if migrateTo != config.StoreJSON && migrateTo != config.StoreSQLite {
		return fmt.Errorf("unsupported target store %q", migrateTo)
	}
	if migrateTo == src.Session.Store {
		return fmt.Errorf("sessions already use the %s store", migrateTo)
	}

	log, err := events.NewLogger(&src.Log)
	if err != nil {
		return err
	}

	dst := *src
	dst.Session.Store = migrateTo

	from, err := state.Open(src, log)
	if err != nil {
		return err
	}
	defer from.Close()

	to, err := state.Open(&dst, log)
	if err != nil {
		return err
	}
	defer to.Close()

	start := time.Now()
	n, err := state.Migrate(from, to, log)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  true,
			"migrated": n,
			"target":   dst.StatePath(),
		})
		return nil
	}

	printSuccess("Migrated %d session(s) to %s in %v", n, dst.StatePath(), time.Since(start).Round(time.Millisecond))
	return nil
}
