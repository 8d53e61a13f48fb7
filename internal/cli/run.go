package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vhvplatform/go-esign-delivery-service/internal/jobs"
	"github.com/vhvplatform/go-esign-delivery-service/internal/scheduler"
)

var jobNames = []string{
	jobs.NameExpiry,
	jobs.NameReminder,
	jobs.NameRetention,
	jobs.NamePDF,
	scheduler.NameNotifications,
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job pass and print its summary",
		Long: `Run a single pass of a job through the same overlap guard the scheduler
uses, then print the run summary as JSON.

Jobs: expiry, reminder, retention, pdf-generation, notifications`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: jobNames,
		RunE:      runJob,
	}
}

func runJob(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	result, runErr := a.scheduler.RunNow(ctx, args[0])

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if result != nil {
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
	}
	return runErr
}
