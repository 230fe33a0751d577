// Package symbols extracts named code entities (functions, methods,
// classes, types) from source files via tree-sitter, for the symbolic
// retriever. It is distinct from the chunker: the chunker tiles a file on
// line boundaries for retrieval context, while this package locates
// semantically meaningful spans within that same file.
package symbols

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codesearch/codesearch/internal/model"
)

// maxWalkDepth bounds AST recursion so a pathologically nested or malformed
// file cannot blow the stack.
const maxWalkDepth = 2000

// Tree is a parsed AST rooted at a single file, detached from the
// tree-sitter node pool so extraction can run after the parser moves on.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a language-agnostic AST node.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartLine  uint32 // 0-indexed
	EndLine    uint32
	Children   []*Node
	Truncated  bool // true if walk stopped early due to maxWalkDepth
}

// Content returns the source slice spanned by n.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// Walk traverses the tree depth-first, calling fn for every node. fn
// returning false stops descent into that node's children (not the whole
// walk).
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Parser wraps a tree-sitter parser bound to the language registry.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser creates a Parser using the default, process-wide language
// registry.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser(), registry: DefaultRegistry()}
}

// Parse parses source as the given language and returns a detached Tree.
// A failure parsing one language must never prevent other languages from
// being indexed, so callers are expected to treat an error here as
// skip-this-file rather than abort-the-run.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse source: nil tree")
	}

	root := convertNode(tsTree.RootNode(), 0)
	return &Tree{Root: root, Source: source, Language: language}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(tsNode *sitter.Node, depth int) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartLine: tsNode.StartPoint().Row,
		EndLine:   tsNode.EndPoint().Row,
	}

	if depth >= maxWalkDepth {
		node.Truncated = true
		return node
	}

	node.Children = make([]*Node, 0, int(tsNode.ChildCount()))
	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child, depth+1))
		}
	}
	return node
}
