package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/pipeline"
	"github.com/zjrosen/flowsync/internal/status"
	"github.com/zjrosen/flowsync/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync definitions as they change",
	Long: `Watch the definitions root and sync each file shortly after it is created or
written. By default a full sync pass runs first.

A burst of writes to one file is debounced into a single sync. Files are
processed one at a time. On Ctrl+C the file being synced finishes, the cache
is saved and the command exits.

Examples:
  flowsync watch
  flowsync watch --no-initial-sync
  flowsync watch --status-addr 127.0.0.1:8089   # then: curl localhost:8089/status`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("no-initial-sync", false, "skip the full sync pass before watching")
	watchCmd.Flags().String("status-addr", "", "serve /health and /status on this address")
	watchCmd.Flags().Duration("debounce", 0, "quiet period before a changed file is synced")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if err := requireRemote(); err != nil {
		return err
	}
	if skip, _ := cmd.Flags().GetBool("no-initial-sync"); skip {
		cfg.Watch.InitialSync = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	w, err := watcher.New(watcher.Config{
		Root:       cfg.Root,
		Recursive:  cfg.Recursive,
		Extensions: cfg.Extensions,
		Debounce:   cfg.Watch.Debounce,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	if cfg.Watch.StatusAddr != "" {
		srv := status.New(status.Options{
			Addr:     cfg.Watch.StatusAddr,
			TTL:      cfg.Watch.StatusTTL,
			Broker:   rt.broker,
			Detector: rt.pipeline.Detector(),
			Metadata: rt.metaStore,
		})
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.Run(ctx); err != nil {
				log.ErrorErr(log.CatStatus, "status server failed", err, "addr", cfg.Watch.StatusAddr)
			}
		}()
		defer func() {
			stop()
			<-done
		}()
	}

	_, _ = cmd.OutOrStdout().Write([]byte("Watching " + cfg.Root + " (Ctrl+C to stop)\n"))
	return rt.pipeline.Watch(ctx, w, pipeline.WatchOptions{InitialSync: cfg.Watch.InitialSync})
}
