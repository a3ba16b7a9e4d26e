package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowsync/internal/presentation"
)

var syncOutput string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync every definition under the root once",
	Long: `Run one batch pass over the definitions root. Each changed file is created
on the orchestration API (or updated when it already exists), its metadata is
published, and the fingerprint cache is saved at the end.

Exits non-zero when any file failed.

Examples:
  flowsync sync
  flowsync sync --root ./kestra/workflows
  FLOWSYNC_REMOTE_PASSWORD=... flowsync sync -o json | jq '.files[] | select(.state == "failed")'`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", presentation.FormatText, "output format: text or json")
}

func runSync(cmd *cobra.Command, _ []string) error {
	if err := requireRemote(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	summary, err := rt.pipeline.Batch(ctx, cfg.Root)
	if err != nil {
		return err
	}

	formatter := presentation.NewFormatter(cmd.OutOrStdout(), syncOutput)
	if err := formatter.FormatSummary(presentation.FromSummary(summary)); err != nil {
		return err
	}
	if summary.Errors > 0 {
		return fmt.Errorf("%d file(s) failed to sync", summary.Errors)
	}
	return nil
}
