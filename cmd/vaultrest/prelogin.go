package main

import (
	"encoding/base64"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/services/totp"
)

var preloginCmd = &cobra.Command{
	Use:   "prelogin [username]",
	Short: "Fetch login parameters for an account",
	Long: `Prelogin resolves an account to its login method and key derivation
parameters. Region redirects are followed once and remembered for the
profile.

Without a username argument the account from the configured credentials
(auth.username, auth.credentials_file or auth.secret_id) is used.`,
	Example: `  vaultrest prelogin alice@example.com
  vaultrest prelogin alice@example.com --totp 123456
  vaultrest prelogin --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrelogin,
}

var preloginTOTP string

func init() {
	rootCmd.AddCommand(preloginCmd)

	preloginCmd.Flags().StringVar(&preloginTOTP, "totp", "",
		"Second-factor code, TOTP secret or otpauth:// URI")
}

func runPrelogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		params *models.LoginParameters
		err    error
	)
	if len(args) == 0 {
		params, err = apiClient.PreLoginConfigured(ctx)
	} else {
		var token []byte
		if token, err = secondFactor(preloginTOTP); err != nil {
			return err
		}
		params, err = apiClient.PreLogin(ctx, args[0], token)
	}
	if err != nil {
		return err
	}

	server := apiClient.Session().ServerBase

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":    true,
			"server":     server,
			"parameters": params,
		})
		return nil
	}

	printSuccess("Pre-login complete")
	printField("Server", server)
	printField("Login method", params.LoginMethod)
	printField("Device status", params.DeviceStatus)
	if salt, ok := params.PrimarySalt(); ok {
		printField("Salt name", salt.Name)
		printField("Iterations", salt.Iterations)
		printField("Salt", base64.RawURLEncoding.EncodeToString(salt.Salt))
	}
	if params.SSO != nil {
		printField("SSO company", params.SSO.CompanyName)
		printField("SSO login URL", params.SSO.LoginURL)
	}
	return nil
}

// secondFactor turns the --totp value into a token. Six or eight digit
// values are sent as given; anything else is treated as a TOTP secret.
func secondFactor(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if isDigits(value) && (len(value) == 6 || len(value) == 8) {
		return []byte(value), nil
	}

	svc := totp.NewService()
	token, err := svc.TwoFactorToken(value)
	if err != nil {
		return nil, err
	}

	if !jsonOutput {
		_, remaining := svc.GetTimeWindow()
		printInfo("Generated TOTP code (valid for %ds)", int(remaining.Seconds()))
	}
	return token, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
