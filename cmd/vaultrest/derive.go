package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultrest/internal/crypto"
)

var deriveCmd = &cobra.Command{
	Use:   "derive-key",
	Short: "Derive a v2 authentication key",
	Long: `Derive-key computes the legacy v2 authentication key from a domain,
password, salt and iteration count. The password is read from
VAULTREST_PASSWORD or prompted for when --password is not given.`,
	Example: `  vaultrest derive-key --domain example.com --salt AAAAAAAAAAAAAAAAAAAAAA --iterations 100000
  vaultrest derive-key --domain example.com --salt 00000000000000000000000000000000 --iterations 1000 --json`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationStandalone: "true"},
	RunE:        runDerive,
}

var (
	deriveDomain     string
	derivePassword   string
	deriveSalt       string
	deriveIterations int
)

func init() {
	rootCmd.AddCommand(deriveCmd)

	deriveCmd.Flags().StringVar(&deriveDomain, "domain", "",
		"Domain mixed into the key")
	deriveCmd.Flags().StringVarP(&derivePassword, "password", "p", "",
		"Password (will prompt if not provided)")
	deriveCmd.Flags().StringVar(&deriveSalt, "salt", "",
		"Salt, hex or base64 (required)")
	deriveCmd.Flags().IntVar(&deriveIterations, "iterations", 0,
		"PBKDF2 iteration count (required)")

	_ = deriveCmd.MarkFlagRequired("salt")
	_ = deriveCmd.MarkFlagRequired("iterations")
}

func runDerive(cmd *cobra.Command, args []string) error {
	salt, err := decodeSalt(deriveSalt)
	if err != nil {
		return err
	}

	password := derivePassword
	if password == "" {
		password = os.Getenv("VAULTREST_PASSWORD")
	}
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	key, err := crypto.DeriveKeyV2(deriveDomain, password, salt, deriveIterations)
	if err != nil {
		return err
	}

	encoded := base64.RawURLEncoding.EncodeToString(key)
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"key":     encoded,
			"key_hex": hex.EncodeToString(key),
		})
		return nil
	}

	printField("Key", encoded)
	printField("Key (hex)", hex.EncodeToString(key))
	return nil
}

// decodeSalt accepts hex or any base64 alphabet, padded or not.
func decodeSalt(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(s)%2 == 0 {
		return b, nil
	}
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.StdEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("salt is neither hex nor base64")
}
