// Package cmd implements the codesearch command-line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codesearch/codesearch/internal/errs"
)

var debug bool

// NewRootCmd builds the root codesearch command with its subcommands
// attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codesearch",
		Short: "Hybrid lexical, semantic, and symbolic code search",
		Long: `codesearch indexes a codebase and answers queries by fusing four
independent retrievers - exact/fuzzy full-text, BM25 statistical ranking,
dense vector similarity, and symbol lookup - via Reciprocal Rank Fusion.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "has no effect: index, search and watch log at info level")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command and returns any error it produced.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExitCode maps err to the process exit code documented for codesearch:
// 0 success, 2 usage error, 3 configuration error, 4 corrupted index
// (recoverable by clearing the data directory), 5 unrecoverable.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch errs.KindOf(err) {
	case errs.KindInvalidInput:
		return 2
	case errs.KindIndexCorrupt:
		return 4
	case errs.KindNotFound, errs.KindPermissionDenied:
		return 3
	default:
		return 5
	}
}
