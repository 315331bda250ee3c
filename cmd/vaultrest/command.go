package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:   "command <json|->",
	Short: "Send a raw JSON command",
	Long: `Command sends a JSON object to the command endpoint and prints the
decoded response. Pass "-" to read the command from stdin, or use --file.`,
	Example: `  vaultrest command '{"command":"ping"}'
  echo '{"command":"sync_down","revision":0}' | vaultrest command -
  vaultrest command --file request.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommand,
}

var commandFile string

func init() {
	rootCmd.AddCommand(commandCmd)

	commandCmd.Flags().StringVarP(&commandFile, "file", "f", "",
		"Read the command from a file")
}

func runCommand(cmd *cobra.Command, args []string) error {
	raw, err := commandInput(cmd, args)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rq map[string]interface{}
	if err := dec.Decode(&rq); err != nil {
		return fmt.Errorf("command must be a JSON object: %w", err)
	}

	rs, err := apiClient.Execute(cmd.Context(), rq)
	if err != nil {
		return err
	}

	printJSON(rs)
	return nil
}

func commandInput(cmd *cobra.Command, args []string) ([]byte, error) {
	switch {
	case commandFile != "":
		if len(args) > 0 {
			return nil, fmt.Errorf("use either --file or an argument, not both")
		}
		return os.ReadFile(commandFile)
	case len(args) == 0:
		return nil, fmt.Errorf("no command given")
	case args[0] == "-":
		return io.ReadAll(cmd.InOrStdin())
	default:
		return []byte(args[0]), nil
	}
}
