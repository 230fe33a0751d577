// Package discovery walks a project directory to find indexable files,
// honoring .gitignore, custom include/exclude patterns, file-size limits,
// and binary-content detection, before handing them to the incremental
// updater as a batch of FileChange events.
package discovery

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codesearch/codesearch/internal/chunker"
	"github.com/codesearch/codesearch/internal/gitignore"
	"github.com/codesearch/codesearch/internal/model"
)

// DefaultMaxFileSize bounds how large a single file may be before
// discovery skips it outright, regardless of what the chunker could do
// with it.
const DefaultMaxFileSize = 10 * 1024 * 1024

// gitignoreCacheSize bounds the number of per-directory gitignore
// matchers kept in memory during a single scan.
const gitignoreCacheSize = 1000

// defaultExcludeDirs are always skipped, independent of .gitignore or
// caller-supplied exclude patterns.
var defaultExcludeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}

// File describes one discovered, indexable file.
type File struct {
	Path     string // relative to RootDir
	AbsPath  string
	Size     int64
	Language string
}

// Result is one item from a scan's result channel.
type Result struct {
	File *File
	Err  error
}

// Options configures a single Scan call.
type Options struct {
	RootDir             string
	Include             []string // custom include patterns (gitignore syntax); empty = include everything
	Exclude             []string // custom exclude patterns (gitignore syntax), in addition to defaultExcludeDirs
	RespectGitignore    bool
	MaxFileSize         int64
	SupportedExtensions []string // empty = chunker.LanguageFromExtension's defaults, no extension filter
	Workers             int
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Scanner discovers indexable files under a root directory.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	mu             sync.RWMutex
}

// New builds a Scanner with a bounded per-directory gitignore-matcher
// cache, so a long-lived process (the watcher's initial reconciliation
// scan) doesn't grow unbounded across repeated scans.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, err
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan walks opts.RootDir and streams discovered files on the returned
// channel, which is closed when the walk completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	opts = opts.withDefaults()

	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrInvalid
	}

	var includeMatcher, excludeMatcher *gitignore.Matcher
	if len(opts.Include) > 0 {
		includeMatcher = gitignore.New()
		for _, p := range opts.Include {
			includeMatcher.AddPattern(p)
		}
	}
	if len(opts.Exclude) > 0 {
		excludeMatcher = gitignore.New()
		for _, p := range opts.Exclude {
			excludeMatcher.AddPattern(p)
		}
	}

	supported := make(map[string]bool, len(opts.SupportedExtensions))
	for _, ext := range opts.SupportedExtensions {
		supported[ext] = true
	}

	results := make(chan Result, opts.Workers*4)
	go func() {
		defer close(results)
		walkErr := filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return nil
			}
			relPath, relErr := filepath.Rel(absRoot, path)
			if relErr != nil || relPath == "." {
				return nil
			}

			if d.IsDir() {
				if defaultExcludeDirs[d.Name()] || (excludeMatcher != nil && excludeMatcher.Match(relPath, true)) {
					return filepath.SkipDir
				}
				return nil
			}

			if d.Type()&os.ModeSymlink != 0 {
				return nil
			}
			if excludeMatcher != nil && excludeMatcher.Match(relPath, false) {
				return nil
			}
			if includeMatcher != nil && !includeMatcher.Match(relPath, false) {
				return nil
			}
			if opts.RespectGitignore && s.isGitignored(absRoot, relPath) {
				return nil
			}

			fi, statErr := d.Info()
			if statErr != nil {
				return nil
			}
			if fi.Size() > opts.MaxFileSize {
				return nil
			}
			if len(supported) > 0 {
				if !supported[filepath.Ext(path)] {
					return nil
				}
			}
			if isBinary(path) {
				return nil
			}

			file := &File{
				Path:     relPath,
				AbsPath:  path,
				Size:     fi.Size(),
				Language: chunker.LanguageFromExtension(path),
			}
			select {
			case results <- Result{File: file}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if walkErr != nil && walkErr != context.Canceled {
			select {
			case results <- Result{Err: walkErr}:
			case <-ctx.Done():
			}
		}
	}()

	return results, nil
}

// isGitignored checks relPath against the root .gitignore plus any
// nested .gitignore files along its directory chain.
func (s *Scanner) isGitignored(absRoot, relPath string) bool {
	if m := s.matcherFor(absRoot, ""); m != nil && m.Match(relPath, false) {
		return true
	}
	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}
	parts := splitPath(dir)
	base := ""
	cur := absRoot
	for _, part := range parts {
		cur = filepath.Join(cur, part)
		if base == "" {
			base = part
		} else {
			base = filepath.Join(base, part)
		}
		if m := s.matcherFor(cur, base); m != nil && m.Match(relPath, false) {
			return true
		}
	}
	return false
}

func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	s.mu.RLock()
	m, ok := s.gitignoreCache.Get(dir)
	s.mu.RUnlock()
	if ok {
		return m
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); err != nil {
		return nil
	}
	m = gitignore.New()
	if err := m.AddFromFile(gitignorePath, base); err != nil {
		return nil
	}

	s.mu.Lock()
	s.gitignoreCache.Add(dir, m)
	s.mu.Unlock()
	return m
}

// splitPath breaks dir into its path components, root-to-leaf.
func splitPath(dir string) []string {
	var out []string
	cur := dir
	for cur != "" && cur != "." && cur != string(filepath.Separator) {
		out = append([]string{filepath.Base(cur)}, out...)
		next := filepath.Dir(cur)
		if next == cur {
			break
		}
		cur = next
	}
	return out
}

func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}

// Collect drains a scan's result channel into FileChange events suitable
// for updater.ApplyBatch, skipping any entries that errored. A full
// initial index treats every discovered file as created: the updater's
// delete-before-insert semantics make re-indexing an already-known file
// idempotent.
func Collect(results <-chan Result) ([]model.FileChange, []error) {
	var changes []model.FileChange
	var errs []error
	for r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		changes = append(changes, model.FileChange{FilePath: r.File.AbsPath, Kind: model.ChangeCreated})
	}
	return changes, errs
}
