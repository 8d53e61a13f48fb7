// Package cli implements the esign-worker command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/config"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
)

// NewRootCommand builds the command tree
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "esign-worker",
		Short: "Background delivery for e-sign documents",
		Long: `esign-worker runs the e-sign background jobs: notification delivery,
signed PDF generation, expiry reminders, document expiry and retention cleanup.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newEncryptCmd())
	return root
}

// Execute runs the root command
func Execute(version string) error {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	for _, w := range cfg.Warnings() {
		log.Warn("Configuration warning", "warning", w)
	}
	return cfg, log, nil
}
