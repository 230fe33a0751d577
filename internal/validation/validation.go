// Package validation runs data-driven golden-query regression tests
// against a live Searcher: for each query, the top results must contain
// at least one expected file. Queries are loaded from YAML so the
// regression suite can grow without a rebuild, the way the teacher's
// dogfooding harness loads its query specs from testdata/queries.yaml.
package validation

import (
	"context"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codesearch/codesearch/internal/fusion"
	"github.com/codesearch/codesearch/internal/searcher"
)

// QuerySpec describes one golden query and the files its results must
// contain to be considered a pass. An empty Expected list marks a
// negative test: it only needs to execute without error.
type QuerySpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Query    string   `yaml:"query"`
	Expected []string `yaml:"expected"`
	Notes    string   `yaml:"notes"`
}

// QuerySet groups specs loaded from a single YAML document.
type QuerySet struct {
	Queries []QuerySpec `yaml:"queries"`
}

// LoadQuerySpecs parses a YAML document of the QuerySet shape.
func LoadQuerySpecs(data []byte) ([]QuerySpec, error) {
	var set QuerySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return set.Queries, nil
}

// Result captures the outcome of running a single QuerySpec.
type Result struct {
	Spec       QuerySpec
	Passed     bool
	Duration   time.Duration
	TopResults []string
	MatchedAt  int // index of first matching result, -1 if none
	Error      string
}

// Summary aggregates a full validation run.
type Summary struct {
	Results []Result
	Pass    int
	Total   int
}

// Validator runs QuerySpecs against a searcher.Searcher.
type Validator struct {
	searcher *searcher.Searcher
	limit    int
}

// NewValidator builds a Validator backed by s. limit bounds how many
// results each query requests; zero uses the searcher's own default.
func NewValidator(s *searcher.Searcher, limit int) *Validator {
	return &Validator{searcher: s, limit: limit}
}

// RunQuery executes spec and checks whether any expected file appears
// among the results.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) Result {
	start := time.Now()
	result := Result{Spec: spec, MatchedAt: -1}

	hits, err := v.searcher.Search(ctx, spec.Query, searcher.Options{Limit: v.limit})
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.TopResults = filePaths(hits)
	if len(spec.Expected) == 0 {
		result.Passed = true
		return result
	}
	result.Passed, result.MatchedAt = checkExpected(result.TopResults, spec.Expected)
	return result
}

// RunAll executes every spec in specs and aggregates the outcome.
func (v *Validator) RunAll(ctx context.Context, specs []QuerySpec) Summary {
	summary := Summary{Total: len(specs)}
	for _, spec := range specs {
		r := v.RunQuery(ctx, spec)
		summary.Results = append(summary.Results, r)
		if r.Passed {
			summary.Pass++
		}
	}
	return summary
}

func filePaths(hits []fusion.Result) []string {
	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.FilePath
	}
	return paths
}

// checkExpected reports whether any expected file path appears as a
// prefix of, or substring within, a result path, and the index of the
// first such match.
func checkExpected(results []string, expected []string) (bool, int) {
	for i, path := range results {
		for _, exp := range expected {
			if strings.HasPrefix(path, exp) || strings.Contains(path, exp) {
				return true, i
			}
		}
	}
	return false, -1
}
