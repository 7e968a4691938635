// Package config loads and validates knowbase configuration.
//
// Configuration hierarchy (later overrides earlier):
//  1. Hardcoded defaults (NewConfig)
//  2. Config file (knowbase.yaml)
//  3. Environment variables (KNOWBASE_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete knowbase configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	DataDir      string             `yaml:"data_dir" json:"data_dir"`
	Repositories []RepositoryConfig `yaml:"repositories" json:"repositories"`
	Extraction   ExtractionConfig   `yaml:"extraction" json:"extraction"`
	Processing   ProcessingConfig   `yaml:"processing" json:"processing"`
	Search       SearchConfig       `yaml:"search" json:"search"`
	Embeddings   EmbeddingsConfig   `yaml:"embeddings" json:"embeddings"`
	Performance  PerformanceConfig  `yaml:"performance" json:"performance"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
}

// RepositoryConfig names one source repository snapshot.
type RepositoryConfig struct {
	// Name identifies the repository throughout the knowledge base.
	Name string `yaml:"name" json:"name"`
	// Root is the directory the snapshot lives in.
	Root string `yaml:"root" json:"root"`
	// Include are doublestar globs selecting candidate files (empty = defaults).
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	// Exclude are doublestar globs removing candidates.
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// Duration wraps time.Duration so YAML accepts "10s" style strings as
// well as integer nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", node.Value)
	}
	*d = Duration(n)
	return nil
}

// ExtractionConfig tunes the extractor.
type ExtractionConfig struct {
	// MaxFileBytes is the size ceiling; larger files are truncated, never rejected.
	MaxFileBytes int `yaml:"max_file_bytes" json:"max_file_bytes"`
	// SummaryChars bounds the extracted summary length.
	SummaryChars int `yaml:"summary_chars" json:"summary_chars"`
	// ReadTimeout bounds each source file read; on expiry the file is
	// skipped and recorded, not retried unboundedly.
	ReadTimeout Duration `yaml:"read_timeout" json:"read_timeout"`
}

// ProcessingConfig tunes concept and relationship derivation.
type ProcessingConfig struct {
	// Vocabulary is the domain keyword list matched case-insensitively
	// to derive concept tags.
	Vocabulary []string `yaml:"vocabulary" json:"vocabulary"`
	// MinSharedTags is the co-occurrence threshold (default 2).
	MinSharedTags int `yaml:"min_shared_tags" json:"min_shared_tags"`
	// PatternMinRepos is the repository spread required to promote a
	// relationship shape to a Pattern (default 3).
	PatternMinRepos int `yaml:"pattern_min_repos" json:"pattern_min_repos"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	// KeywordWeight and SemanticWeight control rank fusion (equal by default).
	KeywordWeight  float64 `yaml:"keyword_weight" json:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	// RRFConstant is the rank-fusion smoothing parameter (default 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// DefaultLimit is applied when a query gives no limit (default 20).
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	// MaxLimit is the hard cap; requests beyond it are rejected (default 200).
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
}

// EmbeddingsConfig configures the optional embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (hash-based, always available), "ollama", or
	// "none" (keyword-only search).
	Provider   string   `yaml:"provider" json:"provider"`
	Model      string   `yaml:"model" json:"model"`
	Dimensions int      `yaml:"dimensions" json:"dimensions"`
	OllamaHost string   `yaml:"ollama_host" json:"ollama_host"`
	Timeout    Duration `yaml:"timeout" json:"timeout"`
}

// PerformanceConfig tunes pipeline parallelism.
type PerformanceConfig struct {
	// Workers is the number of repositories extracted concurrently.
	Workers int `yaml:"workers" json:"workers"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

// DefaultVocabulary is the built-in domain keyword list used for tag
// derivation when the config provides none.
var DefaultVocabulary = []string{
	"protocol", "tool", "discovery", "provider", "transport", "endpoint",
	"agent", "registry", "schema", "authentication", "specification",
	"client", "server", "sandbox", "streaming", "manifest", "plugin",
	"search", "index", "pipeline", "extraction", "configuration",
}

// DefaultInclude are the glob patterns used when a repository config
// lists none: documentation, specs, config, and common source files.
var DefaultInclude = []string{
	"**/*.md", "**/*.rst", "**/*.txt",
	"**/*.yaml", "**/*.yml", "**/*.json", "**/*.toml",
	"**/*.go", "**/*.py", "**/*.ts", "**/*.js", "**/*.rs",
}

// DefaultExclude removes noise directories from every repository.
var DefaultExclude = []string{
	"**/.git/**", "**/node_modules/**", "**/vendor/**", "**/dist/**",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: ".knowbase",
		Extraction: ExtractionConfig{
			MaxFileBytes: 1 << 20, // 1 MiB ceiling, truncate beyond
			SummaryChars: 400,
			ReadTimeout:  Duration(10 * time.Second),
		},
		Processing: ProcessingConfig{
			Vocabulary:      DefaultVocabulary,
			MinSharedTags:   2,
			PatternMinRepos: 3,
		},
		Search: SearchConfig{
			KeywordWeight:  0.5,
			SemanticWeight: 0.5,
			RRFConstant:    60,
			DefaultLimit:   20,
			MaxLimit:       200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "static256",
			Dimensions: 256,
			OllamaHost: "http://localhost:11434",
			Timeout:    Duration(30 * time.Second),
		},
		Performance: PerformanceConfig{
			Workers: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (if it exists), applies env
// overrides, and validates. A missing file is not an error: defaults
// plus env apply.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies KNOWBASE_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("KNOWBASE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KNOWBASE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KNOWBASE_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("KNOWBASE_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("KNOWBASE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.Workers = n
		}
	}
}

// Validate checks the configuration for contradictions and fills in
// derived defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	seen := make(map[string]bool, len(c.Repositories))
	for i := range c.Repositories {
		r := &c.Repositories[i]
		if r.Name == "" {
			return fmt.Errorf("repositories[%d]: name must not be empty", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("repositories: duplicate name %q", r.Name)
		}
		seen[r.Name] = true
		if r.Root == "" {
			return fmt.Errorf("repository %q: root must not be empty", r.Name)
		}
		if len(r.Include) == 0 {
			r.Include = DefaultInclude
		}
		r.Exclude = append(r.Exclude, DefaultExclude...)
	}

	if c.Extraction.MaxFileBytes <= 0 {
		return fmt.Errorf("extraction.max_file_bytes must be positive")
	}
	if c.Processing.MinSharedTags < 1 {
		return fmt.Errorf("processing.min_shared_tags must be >= 1")
	}
	if len(c.Processing.Vocabulary) == 0 {
		c.Processing.Vocabulary = DefaultVocabulary
	}

	sum := c.Search.KeywordWeight + c.Search.SemanticWeight
	if sum <= 0 {
		return fmt.Errorf("search weights must sum to a positive value")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 {
		return fmt.Errorf("search limits must be positive")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds max_limit %d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}

	switch c.Embeddings.Provider {
	case "static", "ollama", "none":
	default:
		return fmt.Errorf("embeddings.provider must be static, ollama, or none (got %q)", c.Embeddings.Provider)
	}

	if c.Performance.Workers <= 0 {
		c.Performance.Workers = 4
	}
	return nil
}

// Repository returns the config for the named repository.
func (c *Config) Repository(name string) (*RepositoryConfig, bool) {
	for i := range c.Repositories {
		if c.Repositories[i].Name == name {
			return &c.Repositories[i], true
		}
	}
	return nil, false
}

// StorePath returns the store directory under DataDir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "store")
}

// IndexPath returns the index directory under DataDir.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index")
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
