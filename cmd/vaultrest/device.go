package main

import (
	"encoding/base64"

	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Enroll this client and print its device token",
	Long: `Device requests a device token from the service, or prints the one
already saved for the profile.`,
	Example: `  vaultrest device
  vaultrest device --name "build agent" --json`,
	Args: cobra.NoArgs,
	RunE: runDevice,
}

var deviceName string

func init() {
	rootCmd.AddCommand(deviceCmd)

	deviceCmd.Flags().StringVar(&deviceName, "name", "",
		"Device name reported on enrollment")
}

func runDevice(cmd *cobra.Command, args []string) error {
	if deviceName != "" {
		apiClient.Device.SetDeviceName(deviceName)
	}

	token, err := apiClient.DeviceToken(cmd.Context())
	if err != nil {
		return err
	}

	encoded := base64.RawURLEncoding.EncodeToString(token)
	server := apiClient.Session().ServerBase

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":      true,
			"device_token": encoded,
			"server":       server,
		})
		return nil
	}

	printSuccess("Device enrolled")
	printField("Server", server)
	printField("Device token", encoded)
	return nil
}
