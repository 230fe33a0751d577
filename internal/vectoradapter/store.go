// Package vectoradapter provides the dense-vector retriever: an
// hnsw-backed approximate nearest neighbor index plus a deterministic,
// offline embedder used when no model-backed embedder is configured.
package vectoradapter

import (
	"bufio"
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/codesearch/codesearch/internal/errs"
)

// Metric selects the distance function used by the graph.
type Metric string

const (
	MetricCosine    Metric = "cos"
	MetricEuclidean Metric = "l2"
)

// Config tunes the HNSW graph.
type Config struct {
	Dimensions int
	Metric     Metric
	M          int
	EfSearch   int
}

// Result is a single nearest-neighbor hit.
type Result struct {
	ID       string
	Distance float32
	Score    float32 // normalized similarity in [0, 1], higher is better
}

// Store is a thread-safe nearest-neighbor index over chunk IDs.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64

	closed bool
}

type metadata struct {
	IDToKey map[string]uint64
	NextKey uint64
	Config  Config
}

// New creates a Store with sensible defaults for any zero-valued Config
// fields.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, errs.New(errs.KindInvalidInput, "vectoradapter", "dimensions must be positive")
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:   graph,
		config:  cfg,
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
	}, nil
}

// Add inserts or replaces vectors for ids. A repeated ID is handled via
// lazy deletion: the prior graph node is orphaned rather than removed, to
// avoid a known coder/hnsw fault when the last remaining node is deleted.
func (s *Store) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return errs.New(errs.KindInvalidInput, "vectoradapter", "ids and vectors length mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.KindInternal, "vectoradapter", "store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return errs.New(errs.KindInvalidInput, "vectoradapter", "vector dimension mismatch").
				WithDetail("expected", itoa(s.config.Dimensions)).
				WithDetail("got", itoa(len(v)))
		}
	}

	for i, id := range ids {
		if oldKey, exists := s.idToKey[id]; exists {
			delete(s.keyToID, oldKey)
			delete(s.idToKey, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == MetricCosine {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idToKey[id] = key
		s.keyToID[key] = id
	}
	return nil
}

// Search returns the k nearest neighbors to query.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errs.New(errs.KindInternal, "vectoradapter", "store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, errs.New(errs.KindInvalidInput, "vectoradapter", "query dimension mismatch")
	}
	if s.graph.Len() == 0 {
		return []Result{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == MetricCosine {
		normalizeInPlace(q)
	}

	nodes := s.graph.Search(q, k)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyToID[node.Key]
		if !ok {
			continue // lazily-deleted orphan
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, Result{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}
	return results, nil
}

// Delete lazily removes ids: their graph nodes are orphaned, not excised.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.KindInternal, "vectoradapter", "store is closed")
	}
	for _, id := range ids {
		if key, ok := s.idToKey[id]; ok {
			delete(s.keyToID, key)
			delete(s.idToKey, id)
		}
	}
	return nil
}

// Count returns the number of live (non-orphaned) vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idToKey)
}

// Stats reports live vs. orphaned node counts, useful for deciding when a
// background compaction pass is worthwhile.
type Stats struct {
	Live       int
	GraphNodes int
	Orphans    int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := len(s.idToKey)
	total := s.graph.Len()
	return Stats{Live: live, GraphNodes: total, Orphans: total - live}
}

// Save persists the graph and ID mappings to path (+ path+".meta"),
// writing through a temp file and renaming for atomicity.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errs.New(errs.KindInternal, "vectoradapter", "store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.KindInternal, "vectoradapter", "create store directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "vectoradapter", "create graph file", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindInternal, "vectoradapter", "export graph", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindInternal, "vectoradapter", "close graph file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindInternal, "vectoradapter", "rename graph file", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *Store) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "vectoradapter", "create metadata file", err)
	}

	meta := metadata{IDToKey: s.idToKey, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindInternal, "vectoradapter", "encode metadata", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindInternal, "vectoradapter", "close metadata file", err)
	}
	return os.Rename(tmpPath, path)
}

// Load replaces the store's graph and mappings with the contents of path.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.KindInternal, "vectoradapter", "store is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.KindIndexCorrupt, "vectoradapter", "open graph file", err)
	}
	defer file.Close()

	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return errs.Wrap(errs.KindIndexCorrupt, "vectoradapter", "import graph", err)
	}
	return nil
}

func (s *Store) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.KindIndexCorrupt, "vectoradapter", "open metadata file", err)
	}
	defer file.Close()

	var meta metadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return errs.Wrap(errs.KindIndexCorrupt, "vectoradapter", "decode metadata", err)
	}

	s.idToKey = meta.IDToKey
	s.keyToID = make(map[uint64]string, len(meta.IDToKey))
	for id, key := range s.idToKey {
		s.keyToID[key] = id
	}
	s.nextKey = meta.NextKey
	s.config = meta.Config
	return nil
}

// Close releases the graph. The store is unusable afterward.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func distanceToScore(distance float32, metric Metric) float32 {
	switch metric {
	case MetricEuclidean:
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
