package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/grantmatch/internal/eligibility"
	"github.com/kailas-cloud/grantmatch/internal/scoring"
)

// Document store drivers.
const (
	DocumentsRedis  = "redis"
	DocumentsBadger = "badger"
)

// Config holds the grantmatch service configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Auth         AuthConfig         `yaml:"auth"`
	Database     DatabaseConfig     `yaml:"database"`
	Documents    DocumentsConfig    `yaml:"documents"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Conversation ConversationConfig `yaml:"conversation"`
	Index        IndexConfig        `yaml:"index"`
	Matching     MatchingConfig     `yaml:"matching"`
	Cache        CacheConfig        `yaml:"cache"`
	Queue        QueueConfig        `yaml:"queue"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds admin API keys. Empty disables admin authentication.
type AuthConfig struct {
	AdminKeys []string `yaml:"admin_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// DocumentsConfig selects the document store backend.
type DocumentsConfig struct {
	Driver     string `yaml:"driver"` // redis (default) or badger
	BadgerPath string `yaml:"badger_path"`
	InMemory   bool   `yaml:"in_memory"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey              string        `yaml:"api_key"`
	BaseURL             string        `yaml:"base_url"`
	Model               string        `yaml:"model"`
	Dimensions          int           `yaml:"dimensions"`
	QueryInstruction    string        `yaml:"query_instruction"`
	DocumentInstruction string        `yaml:"document_instruction"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
}

// ConversationConfig holds the optional conversation provider settings.
type ConversationConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Enabled reports whether a conversation provider is configured.
func (c ConversationConfig) Enabled() bool { return c.Model != "" }

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Name            string `yaml:"name"`
	KeyPrefix       string `yaml:"key_prefix"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// MatchingConfig holds search orchestration and ranking settings.
type MatchingConfig struct {
	Scoring              scoring.Config     `yaml:"scoring"`
	Eligibility          eligibility.Policy `yaml:"eligibility"`
	PrefilterEligibility *bool              `yaml:"prefilter_eligibility"`
	CandidateFactor      int                `yaml:"candidate_factor"`
	MinCandidates        int                `yaml:"min_candidates"`
	MaxCandidates        int                `yaml:"max_candidates"`
	ScoringParallelism   int                `yaml:"scoring_parallelism"`
	CacheAbsoluteTTL     time.Duration      `yaml:"cache_absolute_ttl"`
	CacheSlidingTTL      time.Duration      `yaml:"cache_sliding_ttl"`
	SlowSearchThreshold  time.Duration      `yaml:"slow_search_threshold"`
	SlowStepThreshold    time.Duration      `yaml:"slow_step_threshold"`
}

// Prefilter reports whether eligibility clauses are pushed into the vector search.
func (m MatchingConfig) Prefilter() bool {
	return m.PrefilterEligibility == nil || *m.PrefilterEligibility
}

// CacheConfig holds two-tier cache settings.
type CacheConfig struct {
	Capacity      int           `yaml:"capacity"`
	RemoteEnabled bool          `yaml:"remote_enabled"`
	RemotePrefix  string        `yaml:"remote_prefix"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// QueueConfig holds background task queue settings.
type QueueConfig struct {
	Workers         int           `yaml:"workers"`
	Capacity        int           `yaml:"capacity"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CatalogConfig holds grant catalog settings.
type CatalogConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// Load reads configuration from a YAML file by environment name (local, docker, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML after ${VAR} expansion, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Documents.Driver == "" {
		c.Documents.Driver = DocumentsRedis
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.CacheTTL <= 0 {
		c.Embedding.CacheTTL = 24 * time.Hour
	}
	if c.Index.Name == "" {
		c.Index.Name = "grantmatch:grants:idx"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "grantmatch:grant:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	c.applyMatchingDefaults()
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 10_000
	}
	if c.Cache.RemotePrefix == "" {
		c.Cache.RemotePrefix = "grantmatch:cache:"
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = time.Minute
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 256
	}
	if c.Queue.ShutdownTimeout <= 0 {
		c.Queue.ShutdownTimeout = 15 * time.Second
	}
	if c.Catalog.Retention <= 0 {
		c.Catalog.Retention = 90 * 24 * time.Hour
	}
}

func (c *Config) applyMatchingDefaults() {
	m := &c.Matching
	def := scoring.DefaultConfig()
	if m.Scoring.Weights == (scoring.Weights{}) {
		m.Scoring.Weights = def.Weights
	}
	if m.Scoring.ReferenceAwardCap <= 0 {
		m.Scoring.ReferenceAwardCap = def.ReferenceAwardCap
	}
	if m.Scoring.NearDeadlineWindow <= 0 {
		m.Scoring.NearDeadlineWindow = def.NearDeadlineWindow
	}
	if m.Scoring.NearDeadlineFactor <= 0 {
		m.Scoring.NearDeadlineFactor = def.NearDeadlineFactor
	}
	pol := eligibility.DefaultPolicy()
	if m.Eligibility.MinAwardBudgetRatio <= 0 {
		m.Eligibility.MinAwardBudgetRatio = pol.MinAwardBudgetRatio
	}
	if m.Eligibility.MaxAwardBudgetMultiple <= 0 {
		m.Eligibility.MaxAwardBudgetMultiple = pol.MaxAwardBudgetMultiple
	}
	if m.CandidateFactor <= 0 {
		m.CandidateFactor = 3
	}
	if m.MinCandidates <= 0 {
		m.MinCandidates = 50
	}
	if m.MaxCandidates <= 0 {
		m.MaxCandidates = 300
	}
	if m.ScoringParallelism <= 0 {
		m.ScoringParallelism = 8
	}
	if m.CacheAbsoluteTTL <= 0 && m.CacheSlidingTTL <= 0 {
		m.CacheAbsoluteTTL = 10 * time.Minute
		m.CacheSlidingTTL = 2 * time.Minute
	}
	if m.SlowSearchThreshold <= 0 {
		m.SlowSearchThreshold = 500 * time.Millisecond
	}
	if m.SlowStepThreshold <= 0 {
		m.SlowStepThreshold = 200 * time.Millisecond
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Documents.Driver {
	case DocumentsRedis:
	case DocumentsBadger:
		if c.Documents.BadgerPath == "" && !c.Documents.InMemory {
			return fmt.Errorf("documents.badger_path is required for the badger driver")
		}
	default:
		return fmt.Errorf("documents.driver must be %q or %q, got %q",
			DocumentsRedis, DocumentsBadger, c.Documents.Driver)
	}
	if err := c.Matching.Scoring.Validate(); err != nil {
		return fmt.Errorf("matching.scoring: %w", err)
	}
	if c.Matching.MinCandidates > c.Matching.MaxCandidates {
		return fmt.Errorf("matching.min_candidates (%d) exceeds matching.max_candidates (%d)",
			c.Matching.MinCandidates, c.Matching.MaxCandidates)
	}
	if c.Matching.CacheAbsoluteTTL < 0 || c.Matching.CacheSlidingTTL < 0 {
		return fmt.Errorf("matching cache TTLs must not be negative")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
