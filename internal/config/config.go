package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

// Vector backends selectable through VECTOR_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendWeaviate = "weaviate"
)

type Config struct {
	// DatabaseURL takes precedence over the DB_* parts when set.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST" default:"postgres"`
	DBPort      int    `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"folio"`
	DBPass      string `envconfig:"DB_PASS" default:"password"`
	DBName      string `envconfig:"DB_NAME" default:"folio"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	VectorBackend   string `envconfig:"VECTOR_BACKEND" default:"postgres"`
	MemoryIndexPath string `envconfig:"MEMORY_INDEX_PATH"`
	WeaviateHost    string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme  string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	// Must equal PostgresEmbeddingDim with the postgres backend.
	EmbeddingDim   int    `envconfig:"EMBEDDING_DIM" default:"768"`

	OpenRouterAPIKey         string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterModel          string `envconfig:"OPENROUTER_MODEL" default:"arcee-ai/trinity-large-preview:free"`
	OpenRouterURL            string `envconfig:"OPENROUTER_URL" default:"https://openrouter.ai/api/v1/chat/completions"`
	OpenRouterReferer        string `envconfig:"OPENROUTER_REFERER"`
	OpenRouterTitle          string `envconfig:"OPENROUTER_TITLE" default:"Portfolio Assistant"`
	GenerationTimeoutSeconds int    `envconfig:"GENERATION_TIMEOUT_SECONDS" default:"60"`

	OwnerName  string `envconfig:"OWNER_NAME" default:"the portfolio owner"`
	OwnerEmail string `envconfig:"OWNER_EMAIL"`

	// Retrieval
	ChunkSize      int `envconfig:"CHUNK_SIZE" default:"300"`
	ChunkOverlap   int `envconfig:"CHUNK_OVERLAP" default:"50"`
	TopKResults    int `envconfig:"TOP_K_RESULTS" default:"8"`
	MaxChatHistory int `envconfig:"MAX_CHAT_HISTORY" default:"10"`

	// Chat
	MaxMessageLength       int `envconfig:"MAX_MESSAGE_LENGTH" default:"1000"`
	RateLimitMaxRequests   int `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"20"`
	RateLimitWindowSeconds int `envconfig:"RATE_LIMIT_WINDOW_SECONDS" default:"60"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	FrontendURL  string `envconfig:"FRONTEND_URL"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	NSQLookupd         string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost           string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP           string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableIngestWorker bool   `envconfig:"ENABLE_INGEST_WORKER" default:"false"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// PostgresEmbeddingDim is the width of document_embeddings.embedding in
// migrations/000001_init.up.sql.
const PostgresEmbeddingDim = 768

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}

	switch c.VectorBackend {
	case BackendPostgres, BackendMemory, BackendWeaviate:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q (want postgres, memory or weaviate)", ErrInvalid, c.VectorBackend)
	}

	if c.VectorBackend == BackendPostgres && c.EmbeddingDim > 0 && c.EmbeddingDim != PostgresEmbeddingDim {
		return fmt.Errorf("%w: EMBEDDING_DIM %d does not match the vector(%d) column", ErrInvalid, c.EmbeddingDim, PostgresEmbeddingDim)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalid)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalid)
	}
	if c.TopKResults < 0 || c.MaxChatHistory < 0 {
		return fmt.Errorf("%w: TOP_K_RESULTS and MAX_CHAT_HISTORY must not be negative", ErrInvalid)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("%w: MAX_MESSAGE_LENGTH must be positive", ErrInvalid)
	}
	if c.RateLimitMaxRequests <= 0 || c.RateLimitWindowSeconds <= 0 {
		return fmt.Errorf("%w: rate limit must be positive", ErrInvalid)
	}
	if c.GenerationTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: GENERATION_TIMEOUT_SECONDS must be positive", ErrInvalid)
	}
	return nil
}

// DSN is DATABASE_URL, or a key/value connection string built from DB_*.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
