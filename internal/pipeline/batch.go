package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/flowsync/internal/flags"
	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/paths"
	"github.com/zjrosen/flowsync/internal/tracing"
)

// Discover lists definition files under root in lexical order. Hidden files
// and hidden directories are skipped; subdirectories are only entered when
// recursive is set. A symlinked root is followed, and returned paths are
// spelled under root as given so cache keys do not depend on the link.
func Discover(root string, exts []string, recursive bool) ([]string, error) {
	resolved, err := paths.ResolveRoot(root)
	if err != nil {
		return nil, fmt.Errorf("definitions root: %w", err)
	}
	exts = paths.NormalizeExtensions(exts)

	var files []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == resolved {
				return nil
			}
			if !recursive || paths.IsHidden(resolved, path) {
				return filepath.SkipDir
			}
			return nil
		}
		if paths.IsDefinition(resolved, path, exts) {
			files = append(files, paths.Rebase(resolved, root, path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Batch runs every definition file under root once, then persists the
// cache. A file failure is counted and the pass continues; only discovery
// and cache persistence errors are returned.
func (p *Pipeline) Batch(ctx context.Context, root string) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.NewString()}

	ctx, span := tracing.Start(ctx, p.tracer, tracing.SpanBatch,
		attribute.String(tracing.AttrRunID, summary.RunID),
		attribute.String(tracing.AttrFilePath, root))
	defer span.End()

	files, err := Discover(root, p.extensions, p.recursive)
	if err != nil {
		tracing.Fail(span, err)
		return summary, err
	}
	log.Info(log.CatSync, "batch started", "run_id", summary.RunID, "root", root, "files", len(files))

	interrupted := false
	for _, path := range files {
		if ctx.Err() != nil {
			log.Warn(log.CatSync, "batch interrupted", "run_id", summary.RunID, "remaining", len(files)-len(summary.Outcomes))
			interrupted = true
			break
		}
		summary.Add(p.Run(ctx, path))
	}
	if !interrupted && p.flags.Enabled(flags.FlagPruneCache) {
		p.prune(root, files)
	}

	// Persist even when interrupted so completed runs are not repeated.
	flushErr := p.Flush(context.WithoutCancel(ctx))
	summary.Duration = time.Since(start)

	log.Info(log.CatSync, "batch finished",
		"run_id", summary.RunID,
		"success", summary.Success,
		"errors", summary.Errors,
		"unchanged", summary.Unchanged,
		"duration", summary.Duration)

	if flushErr != nil {
		tracing.Fail(span, flushErr)
		return summary, flushErr
	}
	return summary, nil
}

// prune forgets cached files under root that discovery no longer returns.
// Entries outside root belong to other roots and are kept.
func (p *Pipeline) prune(root string, files []string) {
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f] = struct{}{}
	}
	removed := p.detector.Prune(func(path string) bool {
		if _, ok := present[path]; ok {
			return true
		}
		rel, err := filepath.Rel(root, path)
		return err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
	})
	if removed > 0 {
		log.Info(log.CatCache, "pruned stale cache entries", "root", root, "removed", removed)
	}
}
