// Package chunker splits source files into overlapping, line-bounded
// chunks. Unlike AST-boundary chunking, the sliding window guarantees
// contiguous coverage: concatenating a file's chunks in order and
// dropping the overlapping lines reproduces the original file exactly.
package chunker

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/model"
)

// binarySniffLen is how far into content Chunk looks for a NUL byte before
// treating the content as binary.
const binarySniffLen = 8192

// Options configures the chunker.
type Options struct {
	// LinesPerChunk is the target number of lines per chunk.
	LinesPerChunk int
	// OverlapLines is the number of trailing lines repeated at the start
	// of the next chunk, for cross-chunk context at query time.
	OverlapLines int
	// LanguageBoundary, if set, is consulted to avoid splitting a chunk in
	// the middle of a symbol. It receives 1-indexed line numbers and
	// returns true if a chunk boundary may fall after that line. A nil
	// hint disables boundary-aware splitting (pure fixed-size windows).
	LanguageBoundary func(filePath string, afterLine int) bool
	// MaxBytes bounds a single chunk's content size. A chunk whose joined
	// lines exceed MaxBytes is force-split at the line boundary nearest
	// its byte midpoint; a single line that alone exceeds MaxBytes is
	// split by byte budget within that line.
	MaxBytes int
}

// DefaultOptions returns the chunker defaults used absent config overrides.
func DefaultOptions() Options {
	return Options{LinesPerChunk: 60, OverlapLines: 10, MaxBytes: 8192}
}

// Chunker splits file contents into Chunks.
type Chunker struct {
	opts Options
}

// New creates a Chunker with the given options, filling in defaults for
// zero-valued fields.
func New(opts Options) *Chunker {
	d := DefaultOptions()
	if opts.LinesPerChunk <= 0 {
		opts.LinesPerChunk = d.LinesPerChunk
	}
	if opts.OverlapLines < 0 {
		opts.OverlapLines = d.OverlapLines
	}
	if opts.OverlapLines >= opts.LinesPerChunk {
		opts.OverlapLines = opts.LinesPerChunk - 1
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultOptions().MaxBytes
	}
	return &Chunker{opts: opts}
}

// isBinary reports whether content looks binary: a NUL byte within its
// first binarySniffLen bytes.
func isBinary(content string) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte([]byte(content[:n]), 0) != -1
}

// Chunk splits content into a sequence of overlapping, line-bounded
// Chunks. Content is split on "\n"; a trailing newline does not produce a
// spurious empty final line. Binary content (a NUL byte in the first 8 KiB)
// is skipped and reported as an empty sequence, not an error.
func (c *Chunker) Chunk(filePath, content, language string) ([]model.Chunk, error) {
	if content == "" {
		return []model.Chunk{}, nil
	}
	if isBinary(content) {
		return []model.Chunk{}, nil
	}

	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(content, "\n") {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return []model.Chunk{}, nil
	}

	var chunks []model.Chunk
	start := 0 // 0-indexed
	index := 0

	for start < len(lines) {
		end := c.chunkEnd(filePath, lines, start)

		for _, piece := range c.splitOversized(lines, start, end) {
			pieceContent := strings.Join(lines[piece.start:piece.end], "\n")
			if piece.lineFrag != "" {
				pieceContent = piece.lineFrag
			}

			chunks = append(chunks, model.Chunk{
				ID:         chunkID(filePath, index),
				FilePath:   filePath,
				ChunkIndex: index,
				StartLine:  piece.start + 1,
				EndLine:    piece.endLine,
				Content:    pieceContent,
				Language:   language,
				Hash:       contentHash(pieceContent),
			})
			index++
		}

		if end >= len(lines) {
			break
		}

		next := end - c.opts.OverlapLines
		if next <= start {
			next = start + 1 // always make forward progress
		}
		start = next
	}

	return chunks, nil
}

// window is a sub-range of a sliding-window chunk produced by splitting an
// oversized window down to Options.MaxBytes. start/end are 0-indexed line
// bounds (end exclusive) into the original lines slice, except when
// lineFrag is set: then the piece is a byte-budget fragment of the single
// line at index start, and endLine equals start+1 (the "end_line ==
// start_line" edge case, reported 1-indexed).
type window struct {
	start, end int
	endLine    int
	lineFrag   string
}

// splitOversized takes a top-level sliding-window range [start, end) and,
// if its joined content exceeds MaxBytes, recursively splits it at the
// line boundary nearest the byte midpoint. A single line that alone
// exceeds MaxBytes is split by byte budget within that line, respecting
// UTF-8 rune boundaries; each resulting fragment reports StartLine ==
// EndLine.
func (c *Chunker) splitOversized(lines []string, start, end int) []window {
	if end-start <= 1 {
		line := ""
		if start < end {
			line = lines[start]
		}
		if len(line) <= c.opts.MaxBytes {
			return []window{{start: start, end: end, endLine: start + 1}}
		}
		return splitLineByBytes(start, line, c.opts.MaxBytes)
	}

	size := 0
	for i := start; i < end; i++ {
		size += len(lines[i])
		if i > start {
			size++ // joining "\n"
		}
	}
	if size <= c.opts.MaxBytes {
		return []window{{start: start, end: end, endLine: end}}
	}

	mid := c.splitPoint(lines, start, end)
	left := c.splitOversized(lines, start, mid)
	right := c.splitOversized(lines, mid, end)
	return append(left, right...)
}

// splitPoint finds the line boundary within (start, end) nearest the
// window's byte midpoint, so both halves of a force-split are close to
// equal size.
func (c *Chunker) splitPoint(lines []string, start, end int) int {
	prefix := make([]int, end-start+1)
	for i := start; i < end; i++ {
		prefix[i-start+1] = prefix[i-start] + len(lines[i]) + 1
	}
	total := prefix[end-start]
	target := total / 2

	best := start + 1
	bestDiff := total
	for i := start + 1; i < end; i++ {
		diff := prefix[i-start] - target
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	return best
}

// splitLineByBytes splits a single oversized line into byte-budget
// fragments, never cutting a UTF-8 rune in half. Each fragment is reported
// as its own chunk with StartLine == EndLine == lineIdx+1.
func splitLineByBytes(lineIdx int, line string, maxBytes int) []window {
	var pieces []window
	for len(line) > 0 {
		cut := maxBytes
		if cut >= len(line) {
			cut = len(line)
		} else {
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxBytes
			}
		}
		pieces = append(pieces, window{
			start:    lineIdx,
			end:      lineIdx + 1,
			endLine:  lineIdx + 1,
			lineFrag: line[:cut],
		})
		line = line[cut:]
	}
	if len(pieces) == 0 {
		pieces = append(pieces, window{start: lineIdx, end: lineIdx + 1, endLine: lineIdx + 1, lineFrag: ""})
	}
	return pieces
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// chunkEnd returns the exclusive end line (0-indexed) for a chunk starting
// at start, respecting LanguageBoundary when set.
func (c *Chunker) chunkEnd(filePath string, lines []string, start int) int {
	target := start + c.opts.LinesPerChunk
	if target >= len(lines) {
		return len(lines)
	}
	if c.opts.LanguageBoundary == nil {
		return target
	}

	// Search forward a bounded distance for a safe boundary; fall back to
	// the fixed-size cut if none is found, so coverage is never starved.
	const maxSearch = 20
	for delta := 0; delta <= maxSearch && target+delta < len(lines); delta++ {
		if c.opts.LanguageBoundary(filePath, target+delta) {
			return target + delta
		}
	}
	for delta := 1; delta <= maxSearch && target-delta > start; delta++ {
		if c.opts.LanguageBoundary(filePath, target-delta) {
			return target - delta
		}
	}
	return target
}

func chunkID(filePath string, index int) string {
	return fmt.Sprintf("%s:%d", filePath, index)
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}

// LanguageFromExtension maps a file extension to a coarse language tag
// used for tokenizer and symbol-indexer routing.
func LanguageFromExtension(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".go":
		return "go"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "tsx"
	case ".js", ".jsx":
		return "javascript"
	case ".py":
		return "python"
	default:
		return "text"
	}
}

// ValidateContiguous checks that chunks (for a single file, in order) tile
// the file without gaps: each chunk after the first starts at or before the
// previous chunk's end line + 1.
func ValidateContiguous(chunks []model.Chunk) error {
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartLine > chunks[i-1].EndLine+1 {
			return errs.New(errs.KindInternal, "chunker",
				fmt.Sprintf("gap between chunk %d (ends %d) and chunk %d (starts %d)",
					i-1, chunks[i-1].EndLine, i, chunks[i].StartLine))
		}
	}
	return nil
}
