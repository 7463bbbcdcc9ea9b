package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/oauth2-provider/internal/config"
	"github.com/giantswarm/oauth2-provider/security"
)

var (
	codecSecret string
	codecScheme string
)

var encodeCmd = &cobra.Command{
	Use:   "encode <value>",
	Short: "Encode a value the way the provider encodes credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := cliCodec()
		if err != nil {
			return err
		}
		out, err := codec.Encode(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <credential>",
	Short: "Decode an access token, code or x_user_id carrier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := cliCodec()
		if err != nil {
			return err
		}
		out, err := codec.Decode(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{encodeCmd, decodeCmd} {
		c.Flags().StringVar(&codecSecret, "secret", "", "codec secret (overrides OAUTH2_PROVIDER_SECRET)")
		c.Flags().StringVar(&codecScheme, "scheme", "", "codec scheme, legacy or aead (overrides OAUTH2_PROVIDER_CODEC)")
		rootCmd.AddCommand(c)
	}
}

func cliCodec() (security.Codec, error) {
	cc, err := config.LoadCodec()
	if err != nil {
		return nil, err
	}
	if codecSecret != "" {
		cc.Secret = codecSecret
	}
	if codecScheme != "" {
		cc.Scheme = codecScheme
	}
	return cc.Codec()
}
