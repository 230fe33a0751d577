package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codesearch/codesearch/internal/config"
	"github.com/codesearch/codesearch/internal/discovery"
	"github.com/codesearch/codesearch/internal/logging"
	"github.com/codesearch/codesearch/internal/output"
	"github.com/codesearch/codesearch/internal/state"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for hybrid search",
		Long: `Index a directory to enable hybrid search over its contents.

This walks the directory (honoring .gitignore and the configured
include/exclude patterns), chunks each file, and builds the lexical,
BM25, vector, and symbol indices that search fuses results from.

Use --force to discard an existing index and rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard the existing index and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
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
	out := output.New(cmd.OutOrStdout())

	if force {
		if err := os.RemoveAll(dataDir); err != nil {
			return fmt.Errorf("failed to clear existing index: %w", err)
		}
		out.Status("", "Cleared existing index, starting fresh")
	}

	st, err := state.Open(ctx, dataDir, cfg)
	if err != nil {
		return fmt.Errorf("failed to open index state: %w", err)
	}
	defer func() { _ = st.Close() }()

	scanner, err := discovery.New()
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	out.Status("🔍", fmt.Sprintf("Scanning %s...", root))
	results, err := scanner.Scan(ctx, discovery.Options{
		RootDir:             root,
		Include:             cfg.Paths.Include,
		Exclude:             cfg.Paths.Exclude,
		RespectGitignore:    true,
		MaxFileSize:         cfg.Chunk.MaxFileSize,
		SupportedExtensions: cfg.Chunk.SupportedExtensions,
		Workers:             cfg.Workers,
	})
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}

	changes, scanErrs := discovery.Collect(results)
	for _, scanErr := range scanErrs {
		slog.Warn("discovery_error", slog.String("error", scanErr.Error()))
	}

	total := len(changes)
	out.Statusf("📂", "Found %d files to index", total)

	for i, change := range changes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := st.Updater.Apply(ctx, change); err != nil {
			slog.Warn("index_apply_failed", slog.String("file", change.FilePath), slog.String("error", err.Error()))
		}
		out.Progress(i+1, total, filepath.Base(change.FilePath))
	}

	if err := st.Save(ctx); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	stats := st.Updater.Stats()
	out.Successf("Indexed %d files (%d chunks, %d failed)",
		stats.FilesIndexed, stats.ChunksTotal, stats.FilesFailed)

	return nil
}
