// Package watcher provides real-time file system watching for a codesearch
// project directory, with automatic debouncing and gitignore-aware
// filtering so the index stays in sync with the tree without a full
// re-scan on every keystroke.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify for efficient event-based watching
//   - Fallback: Polling for environments where fsnotify fails (network mounts, Docker volumes)
//
// Events are debounced to coalesce rapid changes from IDEs and git
// operations, and filtered against .gitignore patterns (plus the always-on
// .codesearch/ data directory exclusion) to skip irrelevant files. Edits to
// a .gitignore or .codesearch.yaml/.codesearch.yml file are reported as
// OpIgnoreRuleChange/OpConfigChange rather than as a plain file change, so
// callers can reconcile the whole index against the new rules instead of
// indexing the rule file itself.
//
// Usage:
//
//	opts := watcher.DefaultOptions()
//	w, err := watcher.NewHybridWatcher(opts)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, "/path/to/project"); err != nil {
//	    return err
//	}
//
//	for batch := range w.Events() {
//	    for _, event := range batch {
//	        switch event.Operation {
//	        case watcher.OpCreate, watcher.OpModify:
//	            // Index or re-index event.Path
//	        case watcher.OpDelete:
//	            // Remove event.Path from the index
//	        case watcher.OpIgnoreRuleChange, watcher.OpConfigChange:
//	            // Reconcile the index against the new ignore rules
//	        }
//	    }
//	}
package watcher
