package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vhvplatform/go-esign-delivery-service/internal/crypto"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/config"
)

func newEncryptCmd() *cobra.Command {
	var values map[string]string

	cmd := &cobra.Command{
		Use:   "encrypt-credentials",
		Short: "Encrypt provider credentials for a provider_configs document",
		Long: `Seal provider credentials with the configured encryption key and print the
blob to store in provider_configs.credentials.

Example:
  esign-worker encrypt-credentials --set access_key_id=AKIA... --set secret_access_key=...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(values) == 0 {
				return fmt.Errorf("at least one --set key=value is required")
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			cipher, err := crypto.NewAESCipher(cfg.Crypto.EncryptionKey, cfg.Crypto.Salt)
			if err != nil {
				return err
			}

			blob, err := cipher.Encrypt(values)
			if err != nil {
				return fmt.Errorf("failed to encrypt credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), blob)
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&values, "set", nil, "credential key=value (repeatable)")
	return cmd
}
