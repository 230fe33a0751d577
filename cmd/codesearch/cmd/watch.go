package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codesearch/codesearch/internal/config"
	"github.com/codesearch/codesearch/internal/logging"
	"github.com/codesearch/codesearch/internal/model"
	"github.com/codesearch/codesearch/internal/output"
	"github.com/codesearch/codesearch/internal/state"
	"github.com/codesearch/codesearch/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var saveInterval time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and keep its index up to date",
		Long: `Watch a directory for file changes and incrementally update its
index: the lexical, BM25, vector, and symbol retrievers are all updated
per-file as changes are debounced in from fsnotify (polling as a
fallback), without ever requiring a full re-index.

Press Ctrl+C to stop; the index is persisted to disk before exiting.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, path, saveInterval)
		},
	}

	cmd.Flags().DurationVar(&saveInterval, "save-interval", time.Minute, "How often to persist the index while watching")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string, saveInterval time.Duration) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.New()
	}

	dataDir := filepath.Join(root, ".codesearch")
	st, err := state.Open(ctx, dataDir, cfg)
	if err != nil {
		return fmt.Errorf("failed to open index state: %w", err)
	}
	defer func() { _ = st.Close() }()

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow:  time.Duration(cfg.Watcher.DebounceMS) * time.Millisecond,
		PollInterval:    time.Duration(cfg.Watcher.PollMS) * time.Millisecond,
		EventBufferSize: cfg.Watcher.EventBuffer,
		IgnorePatterns:  cfg.Paths.Exclude,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.Start(ctx, root); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	out.Statusf("👀", "Watching %s for changes (Ctrl+C to stop)...", root)

	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			out.Status("", "Stopping, persisting index...")
			if err := st.Save(ctx); err != nil {
				return fmt.Errorf("failed to persist index on shutdown: %w", err)
			}
			return nil

		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			applyWatchBatch(ctx, st, out, root, w, batch)

		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))

		case <-ticker.C:
			if err := st.Save(ctx); err != nil {
				slog.Warn("watch_periodic_save_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// applyWatchBatch translates one debounced batch of filesystem events
// into updater FileChanges and applies them. OpIgnoreRuleChange and
// OpConfigChange events don't name a file to index; they trigger a
// reconciliation pass instead of being applied as regular changes.
func applyWatchBatch(ctx context.Context, st *state.State, out *output.Writer, root string, w *watcher.HybridWatcher, batch []watcher.FileEvent) {
	reconciled := false
	for _, ev := range batch {
		switch ev.Operation {
		case watcher.OpIgnoreRuleChange, watcher.OpConfigChange:
			if reconciled {
				continue
			}
			reconciled = true
			reconcileIgnoreRules(ctx, st, out, root, w)
			continue
		}

		if ev.IsDir {
			continue
		}
		absPath := filepath.Join(root, ev.Path)

		kind := model.ChangeModified
		if ev.Operation == watcher.OpDelete {
			kind = model.ChangeDeleted
		} else if ev.Operation == watcher.OpCreate {
			kind = model.ChangeCreated
		}

		if err := st.Updater.Apply(ctx, model.FileChange{FilePath: absPath, Kind: kind}); err != nil {
			slog.Warn("watch_apply_failed", slog.String("file", absPath), slog.String("error", err.Error()))
			continue
		}
		out.Statusf("", "%s %s", changeKindLabel(kind), ev.Path)
	}
}

// reconcileIgnoreRules walks the tree rooted at root after a .gitignore or
// .codesearch.yaml change and brings the index back in sync with the
// watcher's updated ignore rules: newly-ignored files are removed from the
// index, and files that are no longer ignored (or are new) are indexed.
func reconcileIgnoreRules(ctx context.Context, st *state.State, out *output.Writer, root string, w *watcher.HybridWatcher) {
	var upserts, deletes int
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil || relPath == "." {
			return nil
		}
		if d.IsDir() {
			if w.IsIgnored(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.IsIgnored(relPath, false) {
			if err := st.Updater.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeDeleted}); err != nil {
				slog.Warn("reconcile_delete_failed", slog.String("file", path), slog.String("error", err.Error()))
				return nil
			}
			deletes++
			return nil
		}
		if err := st.Updater.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeModified}); err != nil {
			slog.Warn("reconcile_index_failed", slog.String("file", path), slog.String("error", err.Error()))
			return nil
		}
		upserts++
		return nil
	})
	if walkErr != nil {
		slog.Warn("reconcile_walk_failed", slog.String("root", root), slog.String("error", walkErr.Error()))
		return
	}
	out.Statusf("", "reconciled ignore rules (%d indexed, %d removed)", upserts, deletes)
}

func changeKindLabel(kind model.ChangeKind) string {
	switch kind {
	case model.ChangeCreated:
		return "created"
	case model.ChangeDeleted:
		return "deleted"
	default:
		return "modified"
	}
}
