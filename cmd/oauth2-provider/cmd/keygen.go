package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/oauth2-provider/security"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key for the aead codec",
	Long: `Generate a random AES-256 key for the aead codec, base64 encoded.

Examples:
  OAUTH2_PROVIDER_CODEC=aead \
  OAUTH2_PROVIDER_AEAD_KEY=$(oauth2-provider keygen) \
  oauth2-provider serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := security.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), security.KeyToBase64(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
