package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/eventgate/pkg/cli"
	"mercator-hq/eventgate/pkg/security/sealbox"
	"mercator-hq/eventgate/pkg/security/secrets"
)

var keysFlags struct {
	output string
	value  string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the catalog sealing key",
	Long: `Generate the key that seals upstream endpoint keys in the catalog store,
and seal values with it.

The key is read through the secret providers under the name configured in
store.sealing_key_secret.`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new sealing key",
	Long: `Generate a random 32-byte sealing key, base64 encoded.

Examples:
  # Print to stdout
  eventgate keys generate

  # Write into the file secret provider's directory
  eventgate keys generate --output /etc/eventgate/secrets/catalog-sealing-key`,
	RunE: generateKey,
}

var keysSealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Seal a value with the configured key",
	Long: `Seal a value (typically an upstream endpoint key) for direct insertion
into the catalog store.

Examples:
  eventgate keys seal --value sk-upstream-key
  echo -n sk-upstream-key | eventgate keys seal`,
	RunE: sealValue,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysSealCmd)

	keysGenerateCmd.Flags().StringVarP(&keysFlags.output, "output", "o", "", "write the key to this file (mode 0600)")
	keysSealCmd.Flags().StringVar(&keysFlags.value, "value", "", "value to seal (reads stdin if empty)")
}

func generateKey(cmd *cobra.Command, args []string) error {
	key, err := sealbox.GenerateKey()
	if err != nil {
		return cli.NewCommandError("keys generate", err)
	}

	if keysFlags.output == "" {
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(keysFlags.output), 0700); err != nil {
		return cli.NewCommandError("keys generate", fmt.Errorf("failed to create directory: %w", err))
	}
	if err := os.WriteFile(keysFlags.output, []byte(key), 0600); err != nil {
		return cli.NewCommandError("keys generate", fmt.Errorf("failed to write key: %w", err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Sealing key written to %s\n", keysFlags.output)
	return nil
}

func sealValue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	value := keysFlags.value
	if value == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return cli.NewCommandError("keys seal", fmt.Errorf("failed to read stdin: %w", err))
		}
		value = strings.TrimRight(string(data), "\r\n")
	}
	if value == "" {
		return cli.NewCommandError("keys seal", fmt.Errorf("nothing to seal"))
	}

	mgr, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
	if err != nil {
		return cli.NewConfigError("security.secrets", err.Error())
	}
	defer mgr.Close()

	box, err := openSealBox(cmd.Context(), cfg, mgr)
	if err != nil {
		return err
	}
	sealed, err := box.Seal(value)
	if err != nil {
		return cli.NewCommandError("keys seal", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), sealed)
	return nil
}
