// Package config loads codesearch configuration from layered sources:
// hardcoded defaults, a user-level config file, a project-level config
// file, and environment variable overrides, in increasing precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete codesearch configuration, mirroring the schema
// keys documented for the engine's external interface.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Chunk     ChunkConfig     `yaml:"chunk" json:"chunk"`
	BM25      BM25Config      `yaml:"bm25" json:"bm25"`
	Fusion    FusionConfig    `yaml:"fusion" json:"fusion"`
	Embedder  EmbedderConfig  `yaml:"embedder" json:"embedder"`
	Watcher   WatcherConfig   `yaml:"watcher" json:"watcher"`
	Retriever RetrieverConfig `yaml:"retriever" json:"retriever"`
	Workers   int             `yaml:"workers" json:"workers"`
}

// PathsConfig configures which paths to include and exclude from indexing.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ChunkConfig configures the line-based sliding-window chunker.
type ChunkConfig struct {
	Size        int   `yaml:"chunk_size" json:"chunk_size"`
	Overlap     int   `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
	// MaxChunkBytes bounds a single chunk's byte size; a chunk larger than
	// this is force-split at the line boundary nearest its midpoint (or, if
	// a single line alone exceeds it, by byte budget within that line).
	MaxChunkBytes int `yaml:"max_chunk_bytes" json:"max_chunk_bytes"`
	// MaxTokensPerDocument caps how many tokens a single chunk contributes
	// to the BM25 and inverted indexes; a document over the cap is
	// truncated to its first MaxTokensPerDocument tokens and logged as a
	// warning rather than rejected outright.
	MaxTokensPerDocument int      `yaml:"max_tokens_per_document" json:"max_tokens_per_document"`
	SupportedExtensions  []string `yaml:"supported_extensions" json:"supported_extensions"`
}

// BM25Config configures the hand-rolled BM25 scoring engine.
type BM25Config struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// FusionConfig configures how retriever result lists are combined.
type FusionConfig struct {
	// Method is "rrf" (default) or "weighted_sum".
	Method      string             `yaml:"method" json:"method"`
	RRFConstant int                `yaml:"rrf_constant" json:"rrf_constant"`
	Weights     map[string]float64 `yaml:"weights" json:"weights"`
}

// EmbedderConfig configures the vector embedder and its result cache.
type EmbedderConfig struct {
	ModelPath  string `yaml:"model_path" json:"model_path"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	CacheTTL   string `yaml:"cache_ttl" json:"cache_ttl"`
}

// WatcherConfig configures the filesystem watcher's debounce and fallback
// polling behavior.
type WatcherConfig struct {
	DebounceMS   int `yaml:"debounce_ms" json:"debounce_ms"`
	PollMS       int `yaml:"poll_ms" json:"poll_ms"`
	EventBuffer  int `yaml:"event_buffer" json:"event_buffer"`
}

// RetrieverConfig configures the unified searcher's timeouts.
type RetrieverConfig struct {
	// TimeoutMS bounds a single retriever's own run, independent of the
	// other retrievers.
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`
	// QueryTimeoutMS bounds the wall-clock time of an entire Search call
	// across every retriever and fusion, regardless of TimeoutMS.
	QueryTimeoutMS int `yaml:"query_timeout_ms" json:"query_timeout_ms"`
}

// defaultExcludePatterns are always excluded regardless of project config.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
}

var defaultExtensions = []string{
	".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rs", ".java", ".c", ".h", ".cpp", ".hpp", ".md",
}

// New returns a Config populated with sensible defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Chunk: ChunkConfig{
			Size:                1500,
			Overlap:             200,
			MaxFileSize:         5 * 1024 * 1024,
			MaxChunkBytes:        8192,
			MaxTokensPerDocument: 100000,
			SupportedExtensions:  defaultExtensions,
		},
		BM25: BM25Config{K1: 1.2, B: 0.75},
		Fusion: FusionConfig{
			Method:      "rrf",
			RRFConstant: 60,
			Weights: map[string]float64{
				"bm25":     1.0,
				"semantic": 1.0,
				"symbol":   1.0,
				"fuzzy":    0.5,
			},
		},
		Embedder: EmbedderConfig{
			ModelPath:  "",
			Dimensions: 256,
			CacheSize:  10000,
			CacheTTL:   "1h",
		},
		Watcher: WatcherConfig{
			DebounceMS:  200,
			PollMS:      5000,
			EventBuffer: 1000,
		},
		Retriever: RetrieverConfig{
			TimeoutMS:      500,
			QueryTimeoutMS: 2000,
		},
		Workers: runtime.GOMAXPROCS(0),
	}
}

// GetUserConfigPath returns the user/global configuration path, following
// the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codesearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codesearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "codesearch", "config.yaml")
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := New()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration for dir: defaults, then user
// config, then project config (.codesearch.yaml), then environment
// variable overrides, then validation.
func Load(dir string) (*Config, error) {
	cfg := New()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codesearch.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".codesearch.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Chunk.Size != 0 {
		c.Chunk.Size = other.Chunk.Size
	}
	if other.Chunk.Overlap != 0 {
		c.Chunk.Overlap = other.Chunk.Overlap
	}
	if other.Chunk.MaxFileSize != 0 {
		c.Chunk.MaxFileSize = other.Chunk.MaxFileSize
	}
	if other.Chunk.MaxChunkBytes != 0 {
		c.Chunk.MaxChunkBytes = other.Chunk.MaxChunkBytes
	}
	if other.Chunk.MaxTokensPerDocument != 0 {
		c.Chunk.MaxTokensPerDocument = other.Chunk.MaxTokensPerDocument
	}
	if len(other.Chunk.SupportedExtensions) > 0 {
		c.Chunk.SupportedExtensions = other.Chunk.SupportedExtensions
	}

	if other.BM25.K1 != 0 {
		c.BM25.K1 = other.BM25.K1
	}
	if other.BM25.B != 0 {
		c.BM25.B = other.BM25.B
	}

	if other.Fusion.Method != "" {
		c.Fusion.Method = other.Fusion.Method
	}
	if other.Fusion.RRFConstant != 0 {
		c.Fusion.RRFConstant = other.Fusion.RRFConstant
	}
	for k, v := range other.Fusion.Weights {
		if c.Fusion.Weights == nil {
			c.Fusion.Weights = make(map[string]float64)
		}
		c.Fusion.Weights[k] = v
	}

	if other.Embedder.ModelPath != "" {
		c.Embedder.ModelPath = other.Embedder.ModelPath
	}
	if other.Embedder.Dimensions != 0 {
		c.Embedder.Dimensions = other.Embedder.Dimensions
	}
	if other.Embedder.CacheSize != 0 {
		c.Embedder.CacheSize = other.Embedder.CacheSize
	}
	if other.Embedder.CacheTTL != "" {
		c.Embedder.CacheTTL = other.Embedder.CacheTTL
	}

	if other.Watcher.DebounceMS != 0 {
		c.Watcher.DebounceMS = other.Watcher.DebounceMS
	}
	if other.Watcher.PollMS != 0 {
		c.Watcher.PollMS = other.Watcher.PollMS
	}
	if other.Watcher.EventBuffer != 0 {
		c.Watcher.EventBuffer = other.Watcher.EventBuffer
	}

	if other.Retriever.TimeoutMS != 0 {
		c.Retriever.TimeoutMS = other.Retriever.TimeoutMS
	}
	if other.Retriever.QueryTimeoutMS != 0 {
		c.Retriever.QueryTimeoutMS = other.Retriever.QueryTimeoutMS
	}
	if other.Workers != 0 {
		c.Workers = other.Workers
	}
}

// applyEnvOverrides applies CODESEARCH_* environment variable overrides.
// These take precedence over both user and project config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODESEARCH_BM25_K1"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.BM25.K1 = f
		}
	}
	if v := os.Getenv("CODESEARCH_BM25_B"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.BM25.B = f
		}
	}
	if v := os.Getenv("CODESEARCH_FUSION_METHOD"); v != "" {
		c.Fusion.Method = v
	}
	if v := os.Getenv("CODESEARCH_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Fusion.RRFConstant = k
		}
	}
	if v := os.Getenv("CODESEARCH_EMBEDDER_MODEL_PATH"); v != "" {
		c.Embedder.ModelPath = v
	}
	if v := os.Getenv("CODESEARCH_RETRIEVER_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Retriever.TimeoutMS = ms
		}
	}
	if v := os.Getenv("CODESEARCH_QUERY_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Retriever.QueryTimeoutMS = ms
		}
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.chunk_size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.chunk_overlap must be in [0, chunk_size), got %d", c.Chunk.Overlap)
	}
	if c.BM25.K1 < 0 {
		return fmt.Errorf("bm25.k1 must be non-negative, got %f", c.BM25.K1)
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return fmt.Errorf("bm25.b must be between 0 and 1, got %f", c.BM25.B)
	}
	if c.Fusion.Method != "rrf" && c.Fusion.Method != "weighted_sum" {
		return fmt.Errorf("fusion.method must be 'rrf' or 'weighted_sum', got %q", c.Fusion.Method)
	}
	if c.Fusion.RRFConstant <= 0 {
		return fmt.Errorf("fusion.rrf_constant must be positive, got %d", c.Fusion.RRFConstant)
	}
	if c.Embedder.CacheSize < 0 {
		return fmt.Errorf("embedder.cache_size must be non-negative, got %d", c.Embedder.CacheSize)
	}
	if c.Retriever.TimeoutMS <= 0 {
		return fmt.Errorf("retriever.timeout_ms must be positive, got %d", c.Retriever.TimeoutMS)
	}
	if c.Retriever.QueryTimeoutMS <= 0 {
		return fmt.Errorf("retriever.query_timeout_ms must be positive, got %d", c.Retriever.QueryTimeoutMS)
	}

	sum := 0.0
	for _, w := range c.Fusion.Weights {
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("fusion.weights must sum to a positive value, got %.4f", sum)
	}

	return nil
}

// WriteYAML writes the configuration to path as YAML.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file, falling back to startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".codesearch.yaml")) ||
			fileExists(filepath.Join(currentDir, ".codesearch.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// weightSum is used by tests to sanity-check configured fusion weights
// without duplicating the math.Abs epsilon comparison inline.
func weightSum(weights map[string]float64) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	return math.Round(sum*1e6) / 1e6
}
