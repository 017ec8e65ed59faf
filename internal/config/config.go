// Package config assembles Holocron's configuration from defaults, an
// optional YAML overlay and environment variable overrides, the same
// layered approach the teacher's server config uses.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full Holocron configuration.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Progress  ProgressConfig  `yaml:"progress"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PipelineConfig holds the ingest/retrieval tuning knobs from spec §6.
type PipelineConfig struct {
	Backend              string `yaml:"backend"` // "managed" or "sql"
	MaxChunkTokens       int    `yaml:"max_chunk_tokens"`
	EmbeddingDimension   int    `yaml:"embedding_dimension"`
	BatchTokenLimit      int    `yaml:"batch_token_limit"`
	MaxParallelRequests  int    `yaml:"max_parallel_requests"`
	UploadBatchSize      int    `yaml:"upload_batch_size"`
	NumWorkers           int    `yaml:"num_workers"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	MaxResults           int    `yaml:"max_results"`
	MaxRetries           int    `yaml:"max_retries"`
	CheckpointBatchSize  int    `yaml:"checkpoint_batch_size"`
	DedupeSectionHeaders bool   `yaml:"dedupe_section_headers"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"-"`
	EmbeddingModel string `yaml:"embedding_model"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"-"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

type PostgresConfig struct {
	DSN            string `yaml:"-"`
	Table          string `yaml:"table"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	UseRPC         bool   `yaml:"use_rpc"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type ProgressConfig struct {
	CSVPath string `yaml:"csv_path"`
}

// CrawlerConfig configures the optional live-crawl path (C9), used when
// no XML dump is supplied.
type CrawlerConfig struct {
	BaseURL        string `yaml:"base_url"`
	UserAgent      string `yaml:"user_agent"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns Holocron's defaults, matching the parameter
// defaults named throughout spec §4.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Backend:              "managed",
			MaxChunkTokens:       1000,
			EmbeddingDimension:   1536,
			BatchTokenLimit:      8000,
			MaxParallelRequests:  5,
			UploadBatchSize:      25,
			NumWorkers:           3,
			SimilarityThreshold:  0.01,
			MaxResults:           10,
			MaxRetries:           3,
			CheckpointBatchSize:  10,
			DedupeSectionHeaders: false,
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			RequestTimeout: 30,
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "holocron_chunks",
		},
		Postgres: PostgresConfig{
			Table:        "holocron_vectors",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
			UseRPC:       true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Progress: ProgressConfig{
			CSVPath: "progress.csv",
		},
		Crawler: CrawlerConfig{
			BaseURL:        "https://starwars.fandom.com",
			UserAgent:      "Holocron-Ingest/1.0 (+https://starwars.fandom.com; polite crawler)",
			RequestTimeout: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// LoadConfig loads an optional .env file and YAML config, then applies
// environment variable overrides, matching the teacher's
// LoadConfig/loadFromEnv/Validate sequencing.
func LoadConfig(yamlPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", yamlPath, err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromEnv(c *Config) {
	loadPipelineEnv(c)
	loadOpenAIEnv(c)
	loadQdrantEnv(c)
	loadPostgresEnv(c)
	loadRateLimitEnv(c)
	loadProgressEnv(c)
	loadCrawlerEnv(c)
	loadLoggingEnv(c)
}

func loadPipelineEnv(c *Config) {
	if v := os.Getenv("HOLOCRON_BACKEND"); v != "" {
		c.Pipeline.Backend = v
	}
	c.Pipeline.MaxChunkTokens = getIntEnv("HOLOCRON_MAX_CHUNK_TOKENS", c.Pipeline.MaxChunkTokens)
	c.Pipeline.EmbeddingDimension = getIntEnv("HOLOCRON_EMBEDDING_DIMENSION", c.Pipeline.EmbeddingDimension)
	c.Pipeline.BatchTokenLimit = getIntEnv("HOLOCRON_BATCH_TOKEN_LIMIT", c.Pipeline.BatchTokenLimit)
	c.Pipeline.MaxParallelRequests = getIntEnv("HOLOCRON_MAX_PARALLEL_REQUESTS", c.Pipeline.MaxParallelRequests)
	c.Pipeline.UploadBatchSize = getIntEnv("HOLOCRON_UPLOAD_BATCH_SIZE", c.Pipeline.UploadBatchSize)
	c.Pipeline.NumWorkers = getIntEnv("HOLOCRON_NUM_WORKERS", c.Pipeline.NumWorkers)
	c.Pipeline.MaxResults = getIntEnv("HOLOCRON_MAX_RESULTS", c.Pipeline.MaxResults)
	c.Pipeline.MaxRetries = getIntEnv("HOLOCRON_MAX_RETRIES", c.Pipeline.MaxRetries)
	c.Pipeline.CheckpointBatchSize = getIntEnv("HOLOCRON_CHECKPOINT_BATCH_SIZE", c.Pipeline.CheckpointBatchSize)
	if v := os.Getenv("HOLOCRON_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Pipeline.SimilarityThreshold = f
		}
	}
	c.Pipeline.DedupeSectionHeaders = getBoolEnv("HOLOCRON_DEDUPE_SECTION_HEADERS", c.Pipeline.DedupeSectionHeaders)
}

func loadOpenAIEnv(c *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("HOLOCRON_OPENAI_EMBEDDING_MODEL"); v != "" {
		c.OpenAI.EmbeddingModel = v
	}
	c.OpenAI.RequestTimeout = getIntEnv("HOLOCRON_OPENAI_REQUEST_TIMEOUT_SECONDS", c.OpenAI.RequestTimeout)
}

func loadQdrantEnv(c *Config) {
	if v := os.Getenv("HOLOCRON_QDRANT_HOST"); v != "" {
		c.Qdrant.Host = v
	}
	c.Qdrant.Port = getIntEnv("HOLOCRON_QDRANT_PORT", c.Qdrant.Port)
	if v := os.Getenv("HOLOCRON_QDRANT_API_KEY"); v != "" {
		c.Qdrant.APIKey = v
	}
	c.Qdrant.UseTLS = getBoolEnv("HOLOCRON_QDRANT_USE_TLS", c.Qdrant.UseTLS)
	if v := os.Getenv("HOLOCRON_QDRANT_COLLECTION"); v != "" {
		c.Qdrant.Collection = v
	}
}

func loadPostgresEnv(c *Config) {
	if v := os.Getenv("HOLOCRON_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("HOLOCRON_POSTGRES_TABLE"); v != "" {
		c.Postgres.Table = v
	}
	c.Postgres.MaxOpenConns = getIntEnv("HOLOCRON_POSTGRES_MAX_OPEN_CONNS", c.Postgres.MaxOpenConns)
	c.Postgres.MaxIdleConns = getIntEnv("HOLOCRON_POSTGRES_MAX_IDLE_CONNS", c.Postgres.MaxIdleConns)
	c.Postgres.UseRPC = getBoolEnv("HOLOCRON_POSTGRES_USE_RPC", c.Postgres.UseRPC)
}

func loadRateLimitEnv(c *Config) {
	c.RateLimit.RequestsPerMinute = getIntEnv("HOLOCRON_REQUESTS_PER_MINUTE", c.RateLimit.RequestsPerMinute)
}

func loadProgressEnv(c *Config) {
	if v := os.Getenv("HOLOCRON_PROGRESS_CSV_PATH"); v != "" {
		c.Progress.CSVPath = v
	}
}

func loadCrawlerEnv(c *Config) {
	if v := os.Getenv("HOLOCRON_CRAWLER_BASE_URL"); v != "" {
		c.Crawler.BaseURL = v
	}
	if v := os.Getenv("HOLOCRON_CRAWLER_USER_AGENT"); v != "" {
		c.Crawler.UserAgent = v
	}
	c.Crawler.RequestTimeout = getIntEnv("HOLOCRON_CRAWLER_REQUEST_TIMEOUT_SECONDS", c.Crawler.RequestTimeout)
}

func loadLoggingEnv(c *Config) {
	if v := os.Getenv("HOLOCRON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	c.Logging.JSON = getBoolEnv("HOLOCRON_LOG_JSON", c.Logging.JSON)
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// Validate fails fast on configuration errors per spec §7: bad
// dimension or chunk size, unknown backend, missing credential or
// backend address, non-positive worker count or request rate. Input
// file paths are not part of Config and are not checked here. Exit
// code 2 at the CLI layer corresponds to a non-nil error here.
func (c *Config) Validate() error {
	if c.Pipeline.EmbeddingDimension <= 0 {
		return errors.New("embedding_dimension must be positive")
	}
	if c.Pipeline.MaxChunkTokens <= 0 {
		return errors.New("max_chunk_tokens must be positive")
	}
	if c.Pipeline.Backend != "managed" && c.Pipeline.Backend != "sql" {
		return fmt.Errorf("backend must be %q or %q, got %q", "managed", "sql", c.Pipeline.Backend)
	}
	if c.Pipeline.NumWorkers <= 0 {
		return errors.New("num_workers must be positive")
	}
	if c.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.Pipeline.Backend == "sql" && c.Postgres.DSN == "" {
		return errors.New("HOLOCRON_POSTGRES_DSN is required when backend=sql")
	}
	if c.Pipeline.Backend == "managed" && c.Qdrant.Host == "" {
		return errors.New("HOLOCRON_QDRANT_HOST is required when backend=managed")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("requests_per_minute must be positive")
	}
	return nil
}

// Timeout returns OpenAI.RequestTimeout as a time.Duration.
func (c *OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// Timeout returns Crawler.RequestTimeout as a time.Duration.
func (c *CrawlerConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}
