package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codesearch/codesearch/internal/config"
	"github.com/codesearch/codesearch/internal/logging"
	"github.com/codesearch/codesearch/internal/model"
	"github.com/codesearch/codesearch/internal/output"
	"github.com/codesearch/codesearch/internal/searcher"
	"github.com/codesearch/codesearch/internal/state"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit        int
	format       string // "text", "json"
	expandQuery  bool
	timeout      time.Duration
	queryTimeout time.Duration
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase using hybrid search.

Dispatches the query to the lexical, BM25, vector, and symbol
retrievers concurrently and fuses the results via Reciprocal Rank
Fusion.

Examples:
  codesearch search "authentication middleware"
  codesearch search "handleRequest" --limit 5
  codesearch search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.expandQuery, "expand", false, "Expand the query with synonyms before searching")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Per-retriever timeout (default: retriever.timeout_ms from config)")
	cmd.Flags().DurationVar(&opts.queryTimeout, "query-timeout", 0, "Whole-query wall-clock budget (default: retriever.query_timeout_ms from config)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	dataDir := filepath.Join(root, ".codesearch")
	if _, statErr := os.Stat(dataDir); os.IsNotExist(statErr) {
		return fmt.Errorf("no index found at %s, run 'codesearch index' first", root)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.New()
	}

	st, err := state.Open(ctx, dataDir, cfg)
	if err != nil {
		return fmt.Errorf("failed to open index state: %w", err)
	}
	defer func() { _ = st.Close() }()

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	perRetrieverTimeout := opts.timeout
	if perRetrieverTimeout <= 0 {
		perRetrieverTimeout = time.Duration(cfg.Retriever.TimeoutMS) * time.Millisecond
	}
	queryTimeout := opts.queryTimeout
	if queryTimeout <= 0 {
		queryTimeout = time.Duration(cfg.Retriever.QueryTimeoutMS) * time.Millisecond
	}

	results, err := st.Searcher.SearchExpanded(ctx, query, searcher.Options{
		Limit:               opts.limit,
		PerRetrieverTimeout: perRetrieverTimeout,
		QueryTimeout:        queryTimeout,
		ExpandQuery:         opts.expandQuery,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return out.JSON(toJSONResults(results))
	default:
		return formatResultsText(out, query, results)
	}
}

// jsonResult is the stable --format json shape; it deliberately doesn't
// reuse model.SearchResult's Go field names so the wire format doesn't
// shift with internal struct renames.
type jsonResult struct {
	FilePath  string   `json:"file_path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Score     float64  `json:"score"`
	MatchType string   `json:"match_type"`
	Content   string   `json:"content"`
	Symbol    string   `json:"symbol,omitempty"`
	Matched   []string `json:"matched_terms,omitempty"`
}

func toJSONResults(results []model.SearchResult) []jsonResult {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			FilePath:  r.FilePath,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Score:     r.Score,
			MatchType: r.MatchType.String(),
			Content:   r.Content,
			Symbol:    r.Symbol,
			Matched:   r.MatchedTerms,
		})
	}
	return out
}

// formatResultsText renders results for a human reading a terminal:
// location, fused score, match type, and a short content snippet.
func formatResultsText(out *output.Writer, query string, results []model.SearchResult) error {
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		location := r.FilePath
		if r.StartLine > 0 {
			location = fmt.Sprintf("%s:%d", r.FilePath, r.StartLine)
		}

		label := r.MatchType.String()
		if r.Symbol != "" {
			out.Statusf("", "%d. %s (score: %.3f, %s, symbol: %s)", i+1, location, r.Score, label, r.Symbol)
		} else {
			out.Statusf("", "%d. %s (score: %.3f, %s)", i+1, location, r.Score, label)
		}

		for _, line := range snippet(r.Content, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}

	return nil
}

// snippet returns the first n non-trailing-blank lines of content.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
