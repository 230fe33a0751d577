package searcher

import (
	"strings"
	"unicode"
)

// codeSynonyms maps natural-language terms to code-vocabulary equivalents,
// so a query like "search function" also matches "func"/"method"/"fn".
// Bridges the vocabulary gap described in the CodeSearchNet paper: search
// terms and the identifiers that answer them rarely share surface form.
var codeSynonyms = map[string][]string{
	"function": {"func", "method", "fn", "def", "Function", "Func"},
	"method":   {"func", "fn", "def", "function", "Method"},
	"func":     {"function", "method", "def", "fn"},
	"def":      {"func", "function", "method"},
	"lambda":   {"anonymous", "closure", "arrow"},

	"class":     {"type", "struct", "interface", "Class", "Type"},
	"type":      {"class", "struct", "interface", "Type"},
	"struct":    {"class", "type", "structure", "Struct"},
	"interface": {"protocol", "trait", "Interface", "contract"},
	"object":    {"instance", "obj", "struct"},

	"error":     {"err", "Error", "exception", "fail", "failure"},
	"err":       {"error", "Error"},
	"exception": {"error", "err", "panic"},
	"handle":    {"handler", "Handler", "catch", "process"},
	"handler":   {"handle", "Handle", "callback"},
	"retry":     {"Retry", "attempt", "backoff"},
	"panic":     {"Panic", "fatal", "crash"},
	"recover":   {"Recover", "catch", "handle"},

	"request":  {"req", "Request", "http"},
	"response": {"resp", "Response", "reply"},
	"http":     {"request", "response", "web", "api"},
	"api":      {"API", "endpoint", "handler", "route"},
	"endpoint": {"handler", "route", "api", "path"},
	"server":   {"Server", "serve", "listener"},
	"client":   {"Client", "conn", "connection"},

	"context":  {"ctx", "Context"},
	"ctx":      {"context", "Context"},
	"config":   {"cfg", "Config", "configuration", "settings"},
	"options":  {"opts", "Options", "config", "settings"},
	"settings": {"config", "options", "preferences"},

	"database":   {"db", "Database", "store", "storage"},
	"store":      {"Store", "storage", "database", "repository"},
	"repository": {"repo", "Repository", "store"},
	"query":      {"Query", "search", "find", "select"},
	"insert":     {"Insert", "add", "create", "save"},
	"update":     {"Update", "modify", "edit", "change"},
	"delete":     {"Delete", "remove", "drop", "destroy"},

	"search":    {"Search", "find", "query", "lookup"},
	"find":      {"Find", "search", "get", "lookup"},
	"index":     {"Index", "indexer", "indexing", "catalog"},
	"embed":     {"Embed", "embedding", "embedder", "vector"},
	"embedding": {"Embedding", "embed", "vector"},
	"vector":    {"Vector", "embedding", "dense", "semantic"},
	"chunk":     {"Chunk", "segment", "block"},
	"token":     {"Token", "tokenize", "tokenizer"},
	"parse":     {"Parse", "parser", "Parser"},
	"ast":       {"AST", "tree", "syntax"},

	"create": {"Create", "new", "make", "init"},
	"new":    {"New", "create", "make", "init"},
	"init":   {"Init", "initialize", "setup"},
	"get":    {"Get", "fetch", "retrieve", "read"},
	"set":    {"Set", "put", "assign", "write"},
	"read":   {"Read", "get", "load", "fetch"},
	"write":  {"Write", "save", "store", "put"},
	"load":   {"Load", "read", "get", "fetch"},
	"save":   {"Save", "write", "store", "persist"},
	"close":  {"Close", "shutdown", "stop"},
	"start":  {"Start", "begin", "run", "launch"},
	"stop":   {"Stop", "halt", "end", "close"},
	"run":    {"Run", "execute", "start", "process"},

	"test":   {"Test", "testing", "spec", "check"},
	"mock":   {"Mock", "fake", "stub"},
	"assert": {"Assert", "expect", "require"},

	"async":     {"Async", "goroutine", "concurrent", "parallel"},
	"goroutine": {"Goroutine", "async", "concurrent"},
	"channel":   {"Channel", "chan", "pipe"},
	"mutex":     {"Mutex", "lock", "sync"},
	"lock":      {"Lock", "mutex", "sync"},
	"wait":      {"Wait", "block", "await"},

	"file":      {"File", "path", "filesystem"},
	"path":      {"Path", "file", "filepath", "directory"},
	"directory": {"dir", "Directory", "folder", "path"},
	"reader":    {"Reader", "read", "input", "stream"},
	"writer":    {"Writer", "write", "output", "stream"},

	"log":   {"Log", "logger", "Logger", "logging"},
	"debug": {"Debug", "trace", "verbose"},
	"warn":  {"Warn", "warning", "alert"},
	"fatal": {"Fatal", "panic", "critical"},
}

// Expander rewrites a free-text query into one more likely to match code
// vocabulary, for use as a lexical-retriever preprocessing stage. It does
// not affect the semantic retriever, whose embedding model already
// bridges natural-language/code vocabulary gaps on its own.
type Expander struct {
	synonyms      map[string][]string
	maxExpansions int
	includeCasing bool
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithMaxExpansions caps how many synonyms each query term contributes.
func WithMaxExpansions(n int) ExpanderOption {
	return func(e *Expander) { e.maxExpansions = n }
}

// WithCasingVariants toggles Go-style casing-variant expansion.
func WithCasingVariants(enabled bool) ExpanderOption {
	return func(e *Expander) { e.includeCasing = enabled }
}

// NewExpander creates an Expander seeded with the default code-synonym
// dictionary.
func NewExpander(opts ...ExpanderOption) *Expander {
	e := &Expander{
		synonyms:      codeSynonyms,
		maxExpansions: 3,
		includeCasing: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns query with its terms' top synonyms and, optionally,
// Go casing variants appended, deduplicated and in source order.
func (e *Expander) Expand(query string) string {
	terms := splitQueryTerms(query)
	if len(terms) == 0 {
		return query
	}

	seen := make(map[string]bool)
	var expanded []string

	add := func(term string) {
		key := strings.ToLower(term)
		if !seen[key] {
			expanded = append(expanded, term)
			seen[key] = true
		}
	}

	for _, term := range terms {
		add(term)
	}
	for _, term := range terms {
		added := 0
		for _, syn := range e.synonyms[strings.ToLower(term)] {
			if added >= e.maxExpansions {
				break
			}
			if !seen[strings.ToLower(syn)] {
				add(syn)
				added++
			}
		}
	}
	if e.includeCasing {
		for _, term := range terms {
			for _, variant := range casingVariants(term) {
				add(variant)
			}
		}
	}

	return strings.Join(expanded, " ")
}

// splitQueryTerms tokenizes on whitespace/punctuation, then further splits
// each token on camelCase/snake_case boundaries.
func splitQueryTerms(query string) []string {
	var raw []string
	var current strings.Builder
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			raw = append(raw, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		raw = append(raw, current.String())
	}

	var terms []string
	for _, token := range raw {
		terms = append(terms, splitCamelSnake(token)...)
	}
	return terms
}

func splitCamelSnake(token string) []string {
	if strings.Contains(token, "_") {
		var parts []string
		for _, p := range strings.Split(token, "_") {
			if p != "" {
				parts = append(parts, p)
			}
		}
		return parts
	}

	var parts []string
	var current strings.Builder
	for i, r := range token {
		if i > 0 && unicode.IsUpper(r) && current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// casingVariants generates Go-convention casing alternatives for term,
// e.g. "search" -> ["Search"], skipping variants equal to the original.
func casingVariants(term string) []string {
	if term == "" {
		return nil
	}
	lower := strings.ToLower(term)
	upper := strings.ToUpper(term)
	title := strings.ToUpper(term[:1]) + lower[1:]

	var variants []string
	if term != lower {
		variants = append(variants, lower)
	}
	if term != upper && len(term) <= 4 {
		variants = append(variants, upper)
	}
	if term != title {
		variants = append(variants, title)
	}
	return variants
}
