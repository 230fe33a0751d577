package symbols

import (
	"context"

	"github.com/codesearch/codesearch/internal/model"
)

// Indexer parses source files and extracts their symbols in one step.
type Indexer struct {
	parser    *Parser
	extractor *Extractor
}

// NewIndexer builds an Indexer sharing the default language registry.
func NewIndexer() *Indexer {
	return &Indexer{parser: NewParser(), extractor: NewExtractor()}
}

// IndexFile parses source as language and returns its symbols. An
// unsupported or unparseable language yields an empty symbol slice and a
// nil error: callers building a multi-file index should skip rather than
// abort on a per-file parse failure, so this is surfaced as "no symbols"
// rather than propagated as a hard error.
func (idx *Indexer) IndexFile(ctx context.Context, filePath string, source []byte, language string) ([]model.Symbol, error) {
	tree, err := idx.parser.Parse(ctx, source, language)
	if err != nil {
		return []model.Symbol{}, nil
	}
	return idx.extractor.Extract(tree, filePath), nil
}

// Close releases the underlying tree-sitter parser.
func (idx *Indexer) Close() {
	idx.parser.Close()
}
