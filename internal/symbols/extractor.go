package symbols

import (
	"strings"

	"github.com/codesearch/codesearch/internal/model"
)

// Extractor walks a parsed Tree and produces model.Symbol values.
type Extractor struct {
	registry *LanguageRegistry
}

// NewExtractor creates an Extractor bound to the default language registry.
func NewExtractor() *Extractor {
	return &Extractor{registry: DefaultRegistry()}
}

// Extract returns every symbol discovered in tree, tagged with filePath.
// A tree for an unregistered language, or one truncated by the walk depth
// bound, yields whatever symbols were found above the truncation point
// rather than failing the whole file.
func (e *Extractor) Extract(tree *Tree, filePath string) []model.Symbol {
	if tree == nil || tree.Root == nil {
		return []model.Symbol{}
	}
	config, ok := e.registry.GetByName(tree.Language)
	if !ok {
		return []model.Symbol{}
	}

	var out []model.Symbol
	var stack []string // enclosing symbol names, for Parent

	var walk func(n *Node)
	walk = func(n *Node) {
		sym, kind, isSymbol := e.match(n, tree.Source, config, tree.Language)
		parent := ""
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		}

		if isSymbol {
			out = append(out, model.Symbol{
				Name:      sym,
				Kind:      kind,
				FilePath:  filePath,
				StartLine: int(n.StartLine) + 1,
				EndLine:   int(n.EndLine) + 1,
				Signature: e.signature(n, tree.Source, kind, tree.Language),
				Parent:    parent,
				Language:  tree.Language,
			})
			stack = append(stack, sym)
		}

		for _, child := range n.Children {
			walk(child)
		}

		if isSymbol {
			stack = stack[:len(stack)-1]
		}
	}
	walk(tree.Root)

	return out
}

// match reports whether n is a symbol-defining node, and if so its name and
// kind.
func (e *Extractor) match(n *Node, source []byte, config *LanguageConfig, language string) (name, kind string, ok bool) {
	switch {
	case contains(config.FunctionTypes, n.Type):
		kind = "function"
	case contains(config.MethodTypes, n.Type):
		kind = "method"
	case contains(config.ClassTypes, n.Type):
		kind = "class"
	case contains(config.InterfaceTypes, n.Type):
		kind = "interface"
	case contains(config.TypeDefTypes, n.Type):
		kind = "type"
	case contains(config.ConstantTypes, n.Type):
		kind = "const"
	case contains(config.VariableTypes, n.Type):
		kind = "var"
	default:
		return e.matchSpecial(n, source, language)
	}

	name = e.name(n, source, language)
	if name == "" {
		return "", "", false
	}
	return name, kind, true
}

// matchSpecial handles JS/TS arrow-function and function-expression
// assignments, which tree-sitter represents as plain variable declarations
// rather than a dedicated function node type.
func (e *Extractor) matchSpecial(n *Node, source []byte, language string) (string, string, bool) {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
		if n.Type != "lexical_declaration" && n.Type != "variable_declaration" {
			return "", "", false
		}
		for _, child := range n.Children {
			if child.Type != "variable_declarator" {
				continue
			}
			var name string
			var hasFn bool
			for _, gc := range child.Children {
				if gc.Type == "identifier" {
					name = gc.Content(source)
				}
				if gc.Type == "arrow_function" || gc.Type == "function" || gc.Type == "function_expression" {
					hasFn = true
				}
			}
			if name != "" && hasFn {
				return name, "function", true
			}
		}
	}
	return "", "", false
}

func (e *Extractor) name(n *Node, source []byte, language string) string {
	switch language {
	case "go":
		return e.goName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return e.jsName(n, source)
	case "python":
		return firstChildOfType(n, source, "identifier")
	default:
		return firstChildOfType(n, source, "identifier")
	}
}

func (e *Extractor) goName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		return firstChildOfType(n, source, "identifier")
	case "method_declaration":
		return firstChildOfType(n, source, "field_identifier")
	case "type_declaration":
		for _, child := range n.Children {
			if child.Type == "type_spec" {
				if v := firstChildOfType(child, source, "type_identifier"); v != "" {
					return v
				}
			}
		}
	case "const_declaration":
		for _, child := range n.Children {
			if child.Type == "const_spec" {
				if v := firstChildOfType(child, source, "identifier"); v != "" {
					return v
				}
			}
		}
	case "var_declaration":
		for _, child := range n.Children {
			if child.Type == "var_spec" {
				if v := firstChildOfType(child, source, "identifier"); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func (e *Extractor) jsName(n *Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				if v := firstChildOfType(child, source, "identifier"); v != "" {
					return v
				}
			}
		}
	}
	if v := firstChildOfType(n, source, "identifier"); v != "" {
		return v
	}
	return firstChildOfType(n, source, "type_identifier")
}

func firstChildOfType(n *Node, source []byte, nodeType string) string {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child.Content(source)
		}
	}
	return ""
}

// signature extracts the declaration line (up to the opening brace or, for
// Python, the trailing colon) so downstream consumers can show a symbol's
// interface without its body.
func (e *Extractor) signature(n *Node, source []byte, kind, language string) string {
	content := n.Content(source)
	if content == "" {
		return ""
	}
	firstLine := strings.SplitN(content, "\n", 2)[0]
	firstLine = strings.TrimSpace(firstLine)

	if language == "python" {
		return firstLine
	}
	if idx := strings.Index(firstLine, "{"); idx != -1 {
		return strings.TrimSpace(firstLine[:idx])
	}
	return firstLine
}

func contains(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}
