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

type Config struct {
	ServerAddr  string `yaml:"server_addr"`
	Environment string `yaml:"environment"`
	LogFilePath string `yaml:"log_file_path"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Index     IndexConfig     `yaml:"index"`

	SessionTTL     time.Duration `yaml:"session_ttl"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	MaxUploadBytes int           `yaml:"max_upload_bytes"`
}

// LLMConfig configures the remote chat-completion provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // perplexity | openai | anthropic
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"-"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // openai | hash
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"-"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type RetrievalConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

type IndexConfig struct {
	Backend          string `yaml:"backend"` // memory | postgres | qdrant
	PgConn           string `yaml:"pg_conn"`
	QdrantAddr       string `yaml:"qdrant_addr"`
	QdrantCollection string `yaml:"qdrant_collection_prefix"`
}

const (
	ProviderPerplexity = "perplexity"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderHash       = "hash"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)

// Defaults returns the configuration used when neither a YAML file nor the
// environment says otherwise.
func Defaults() *Config {
	return &Config{
		ServerAddr:  ":8080",
		Environment: "development",
		LogFilePath: "logs/kbagent.log",
		LLM: LLMConfig{
			Provider:    ProviderPerplexity,
			BaseURL:     "", // provider default
			Model:       "sonar",
			Temperature: 0,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOpenAI,
			BaseURL:   "http://localhost:1234/v1",
			APIKey:    "not-needed",
			Model:     "all-MiniLM-L6-v2",
			Dimension: 384,
		},
		Retrieval: RetrievalConfig{ChunkSize: 500, ChunkOverlap: 50, TopK: 3},
		Index: IndexConfig{
			Backend:          BackendMemory,
			PgConn:           "host=localhost port=5432 user=postgres dbname=kbagent sslmode=disable",
			QdrantAddr:       "localhost:6334",
			QdrantCollection: "kb_session",
		},
		SessionTTL:     time.Hour,
		FetchTimeout:   10 * time.Second,
		MaxUploadBytes: 20 << 20,
	}
}

// Load reads .env (if present), then the YAML file named by RAG_CONFIG (if
// set), then environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("RAG_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.Environment = getenv("APP_ENV", cfg.Environment)
	cfg.LogFilePath = getenv("LOG_FILE_PATH", cfg.LogFilePath)

	cfg.LLM.Provider = getenv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = getenv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getenv("PERPLEXITY_API_KEY", getenv("LLM_API_KEY", cfg.LLM.APIKey))
	cfg.LLM.Model = getenv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Temperature = float32(getenvFloat("LLM_TEMPERATURE", float64(cfg.LLM.Temperature)))
	cfg.LLM.MaxTokens = getenvInt("LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.Timeout = getenvDuration("LLM_TIMEOUT", cfg.LLM.Timeout)

	cfg.Embedding.Provider = getenv("EMBED_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.BaseURL = getenv("EMBED_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = getenv("EMBED_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Model = getenv("EMBED_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = getenvInt("EMBED_DIM", cfg.Embedding.Dimension)

	cfg.Retrieval.ChunkSize = getenvInt("CHUNK_SIZE", cfg.Retrieval.ChunkSize)
	cfg.Retrieval.ChunkOverlap = getenvInt("CHUNK_OVERLAP", cfg.Retrieval.ChunkOverlap)
	cfg.Retrieval.TopK = getenvInt("TOP_K", cfg.Retrieval.TopK)

	cfg.Index.Backend = getenv("INDEX_BACKEND", cfg.Index.Backend)
	cfg.Index.PgConn = getenv("PG_CONN", cfg.Index.PgConn)
	cfg.Index.QdrantAddr = getenv("QDRANT_ADDR", cfg.Index.QdrantAddr)
	cfg.Index.QdrantCollection = getenv("QDRANT_COLLECTION_PREFIX", cfg.Index.QdrantCollection)

	cfg.SessionTTL = getenvDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.FetchTimeout = getenvDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	if mb := getenvInt("MAX_UPLOAD_MB", 0); mb > 0 {
		cfg.MaxUploadBytes = mb << 20
	}
}

// Validate rejects configurations the pipeline cannot run with. A missing
// LLM credential is not an error here; it surfaces as AuthError on ask.
func (c *Config) Validate() error {
	var errs []error
	if c.Retrieval.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, errors.New("chunk overlap must be in [0, chunk size)"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("top-k must be positive"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("embedding dimension must be positive"))
	}
	switch c.LLM.Provider {
	case ProviderPerplexity, ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderHash:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	switch c.Index.Backend {
	case BackendMemory, BackendPostgres, BackendQdrant:
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.Index.Backend))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return v
	}
	return def
}
