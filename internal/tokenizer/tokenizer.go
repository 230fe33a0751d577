// Package tokenizer splits chunk text into normalized, weighted tokens for
// the BM25 engine and inverted index. It understands camelCase and
// snake_case identifier boundaries and distinguishes identifiers, string
// literals, and comments so each can carry a different importance weight.
package tokenizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/codesearch/codesearch/internal/model"
)

// identifierRegex matches runs of alphanumerics, underscores, and dollar
// signs, so identifiers like "$scope" or "_private" keep their leading
// sigil instead of losing it to the split.
var identifierRegex = regexp.MustCompile(`[\p{L}\p{N}_$]+`)

// stringLiteralRegex matches single- or double-quoted and backtick string
// literals, non-greedily, without attempting to handle every escape edge
// case a full lexer would.
var stringLiteralRegex = regexp.MustCompile("(\"(?:[^\"\\\\]|\\\\.)*\")|('(?:[^'\\\\]|\\\\.)*')|(`[^`]*`)")

// lineCommentRegex matches // and # line comments.
var lineCommentRegex = regexp.MustCompile(`(//[^\n]*)|(#[^\n]*)`)

// blockCommentRegex matches /* ... */ block comments.
var blockCommentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)

// Tokenize splits raw chunk text into positioned, weighted tokens. Regions
// of text are first classified as comment, string, or plain code by regex
// scan; each region's raw identifiers are then emitted both whole and
// split on camelCase/snake_case boundaries - the compound form and its
// subtokens share one Position, so "getUserById" contributes
// "getuserbyid", "get", "user", "by", and "id" all at the same ordinal,
// letting an exact-identifier query match the compound while a subtoken
// query still matches its pieces. Position then advances once per raw
// identifier, not once per emitted token.
func Tokenize(text string) []model.Token {
	regions := classifyRegions(text)

	var tokens []model.Token
	position := 0
	for _, r := range regions {
		for _, raw := range identifierRegex.FindAllString(r.text, -1) {
			seen := make(map[string]struct{}, 4)
			emit := func(s string) {
				norm := normalizeToken(s)
				if norm == "" {
					return
				}
				if _, dup := seen[norm]; dup {
					return
				}
				seen[norm] = struct{}{}
				tokens = append(tokens, model.Token{
					Text:     norm,
					Kind:     r.kind,
					Position: position,
				})
			}

			emit(raw)
			for _, sub := range SplitIdentifier(raw) {
				emit(sub)
			}
			position++
		}
	}
	return tokens
}

type region struct {
	text string
	kind model.TokenKind
}

// classifyRegions partitions text into comment, string, and code regions in
// source order. Overlapping matches are resolved by scanning left to right
// and preferring whichever construct starts earliest.
func classifyRegions(text string) []region {
	type span struct {
		start, end int
		kind       model.TokenKind
	}

	var spans []span
	for _, m := range blockCommentRegex.FindAllStringIndex(text, -1) {
		spans = append(spans, span{m[0], m[1], model.TokenComment})
	}
	for _, m := range lineCommentRegex.FindAllStringIndex(text, -1) {
		spans = append(spans, span{m[0], m[1], model.TokenComment})
	}
	for _, m := range stringLiteralRegex.FindAllStringIndex(text, -1) {
		spans = append(spans, span{m[0], m[1], model.TokenString})
	}

	// Sort by start position, dropping spans that overlap an earlier one.
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[j].start < spans[i].start {
				spans[i], spans[j] = spans[j], spans[i]
			}
		}
	}
	var filtered []span
	cursor := 0
	for _, s := range spans {
		if s.start < cursor {
			continue
		}
		filtered = append(filtered, s)
		cursor = s.end
	}

	var regions []region
	cursor = 0
	for _, s := range filtered {
		if s.start > cursor {
			regions = append(regions, region{text[cursor:s.start], model.TokenIdentifier})
		}
		regions = append(regions, region{text[s.start:s.end], s.kind})
		cursor = s.end
	}
	if cursor < len(text) {
		regions = append(regions, region{text[cursor:], model.TokenIdentifier})
	}
	return regions
}

// normalizeToken applies Unicode NFC normalization and lowercasing, and
// filters tokens shorter than two characters.
func normalizeToken(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	if len([]rune(s)) < 2 {
		return ""
	}
	return s
}

// SplitIdentifier splits a raw identifier on underscores and camelCase
// boundaries, returning the sub-tokens in order.
//
// Examples:
//   - "getUserById"    -> ["get", "User", "By", "Id"]
//   - "HTTPHandler"    -> ["HTTP", "Handler"]
//   - "parse_HTTP_req" -> ["parse", "HTTP", "req"]
func SplitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// DefaultStopWords are common code keywords too generic to be useful
// search terms on their own.
var DefaultStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// BuildStopWordMap converts a slice of stop words to a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// FilterStopWords removes tokens whose text is in stopWords.
func FilterStopWords(tokens []model.Token, stopWords map[string]struct{}) []model.Token {
	result := make([]model.Token, 0, len(tokens))
	for _, t := range tokens {
		if _, isStop := stopWords[t.Text]; !isStop {
			result = append(result, t)
		}
	}
	return result
}
