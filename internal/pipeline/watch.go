package pipeline

import (
	"context"

	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/watcher"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// InitialSync runs a batch pass over the watcher root before subscribing.
	InitialSync bool
}

// Watch runs the pipeline for every file the watcher reports until ctx is
// cancelled. Notifications are handled one at a time; cancellation stops
// the subscription, lets an in-flight run finish, persists the cache and
// returns nil.
func (p *Pipeline) Watch(ctx context.Context, w *watcher.Watcher, opts WatchOptions) error {
	root := w.Config().Root

	if opts.InitialSync {
		summary, err := p.Batch(ctx, root)
		if err != nil {
			return err
		}
		if summary.Errors > 0 {
			log.Warn(log.CatSync, "initial sync finished with errors", "errors", summary.Errors)
		}
	}
	if ctx.Err() != nil {
		return p.shutdown(ctx)
	}

	// Runs must complete once started, so they do not inherit cancellation.
	runCtx := context.WithoutCancel(ctx)
	sub, err := w.Subscribe(func(path string) {
		p.Run(runCtx, path)
		if err := p.FlushIfDirty(runCtx); err != nil {
			log.ErrorErr(log.CatCache, "failed to persist sync cache", err)
		}
	})
	if err != nil {
		return err
	}
	log.Info(log.CatWatcher, "watching for changes", "root", root, "recursive", w.Config().Recursive)

	<-ctx.Done()
	sub.Cancel()
	return p.shutdown(ctx)
}

func (p *Pipeline) shutdown(ctx context.Context) error {
	if err := p.Flush(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	log.Info(log.CatWatcher, "watch stopped")
	return nil
}
