package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowsync/internal/config"
	"github.com/zjrosen/flowsync/internal/metadata"
)

var metadataKeys []string

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Inspect the metadata store",
}

var metadataVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the metadata store is reachable and report its record count",
	Long: `Connect to the configured metadata backend, count the published records and
optionally fetch specific keys (namespace.id).

Examples:
  flowsync metadata verify
  flowsync metadata verify --key demo.flow1 --key billing.invoice`,
	RunE: runMetadataVerify,
}

func init() {
	rootCmd.AddCommand(metadataCmd)
	metadataCmd.AddCommand(metadataVerifyCmd)
	metadataVerifyCmd.Flags().StringArrayVarP(&metadataKeys, "key", "k", nil, "fetch this key (repeatable)")
}

func runMetadataVerify(cmd *cobra.Command, _ []string) error {
	if err := config.ValidateMetadata(cfg.Metadata); err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openMetadataStore(ctx, cfg.Metadata)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("metadata backend is %q", config.BackendNone)
	}
	defer func() { _ = store.Close() }()

	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting records: %w", err)
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Metadata store (%s) reachable: %d record(s)\n", cfg.Metadata.Backend, count)

	missing := 0
	for _, key := range metadataKeys {
		p, err := store.Get(ctx, key)
		switch {
		case errors.Is(err, metadata.ErrNotFound):
			missing++
			_, _ = fmt.Fprintf(out, "  %s: not found\n", key)
		case err != nil:
			return fmt.Errorf("fetching %s: %w", key, err)
		default:
			_, _ = fmt.Fprintf(out, "  %s: %q (%s)\n", key, p.Title, p.TemplatePath)
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d key(s) not found", missing)
	}
	return nil
}
