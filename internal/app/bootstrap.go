package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"folio/internal/adapter/chromem"
	"folio/internal/adapter/gemini"
	"folio/internal/adapter/openrouter"
	"folio/internal/adapter/pgvector"
	wstore "folio/internal/adapter/weaviate"
	"folio/internal/config"
	"folio/internal/retrieval"
	"folio/internal/vector"
)

type Dependencies struct {
	DB          *sql.DB
	Store       retrieval.Store
	Embedder    *gemini.Embedder
	Generator   *openrouter.Client
	QueryLogger *retrieval.QueryLogger
	NSQProducer *nsq.Producer
}

// Bootstrap connects to every external service the API needs and applies
// pending migrations.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	if err := requireKeys(cfg); err != nil {
		return nil, err
	}

	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := NewVectorStore(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("gemini client error: %w", err)
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		embedder.Close()
		db.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	createTopics(cfg.NSQDHTTP)

	return &Dependencies{
		DB:          db,
		Store:       store,
		Embedder:    embedder,
		Generator:   NewGenerator(cfg),
		QueryLogger: NewQueryLogger(cfg.QueryLogPath),
		NSQProducer: producer,
	}, nil
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.Embedder != nil {
		if err := d.Embedder.Close(); err != nil {
			slog.Warn("failed to close gemini client", "error", err)
		}
	}
	if err := d.QueryLogger.Close(); err != nil {
		slog.Warn("failed to close query log", "error", err)
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

func requireKeys(cfg *config.Config) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY", config.ErrMissingRequired)
	}
	if cfg.OpenRouterAPIKey == "" {
		return fmt.Errorf("%w: OPENROUTER_API_KEY", config.ErrMissingRequired)
	}
	return nil
}

// OpenDatabase pings Postgres until it answers, then migrates it.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	attempts := max(cfg.BootstrapRetryAttempts, 1)
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", attempts)
		if i < attempts-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}

// NewVectorStore builds the backend named by VECTOR_BACKEND. db is only used
// by the postgres backend.
func NewVectorStore(ctx context.Context, cfg *config.Config, db *sql.DB) (retrieval.Store, error) {
	switch cfg.VectorBackend {
	case config.BackendMemory:
		store, err := chromem.NewStore(cfg.MemoryIndexPath)
		if err != nil {
			return nil, fmt.Errorf("memory index error: %w", err)
		}
		return store, nil

	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		adapter := vector.NewClientAdapter(client)
		ensure := func(ctx context.Context) error { return vector.EnsureSchema(ctx, adapter) }
		retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
		if err := EnsureSchemaWithRetry(ctx, ensure, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		return wstore.NewStore(client), nil

	case config.BackendPostgres, "":
		if db == nil {
			return nil, errors.New("postgres vector backend needs a database")
		}
		return pgvector.NewStore(db), nil

	default:
		return nil, fmt.Errorf("%w: VECTOR_BACKEND %q", config.ErrInvalid, cfg.VectorBackend)
	}
}

func NewGenerator(cfg *config.Config) *openrouter.Client {
	return openrouter.NewClient(openrouter.Config{
		APIKey:  cfg.OpenRouterAPIKey,
		Model:   cfg.OpenRouterModel,
		URL:     cfg.OpenRouterURL,
		Referer: cfg.OpenRouterReferer,
		Title:   cfg.OpenRouterTitle,
		Timeout: cfg.GenerationTimeout(),
	})
}

// NewQueryLogger writes to path, or to stdout alone when path is unusable.
func NewQueryLogger(path string) *retrieval.QueryLogger {
	if path == "" {
		return retrieval.NewQueryLogger(os.Stdout)
	}
	ql, err := retrieval.NewFileQueryLogger(path)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		return retrieval.NewQueryLogger(os.Stdout)
	}
	return ql
}

func createTopics(nsqdHTTP string) {
	go func() {
		time.Sleep(2 * time.Second)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, config.TopicIngestCorpus)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", config.TopicIngestCorpus, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}()
}

// EnsureSchemaWithRetry calls ensure up to attempts times.
func EnsureSchemaWithRetry(ctx context.Context, ensure func(context.Context) error, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if err = ensure(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
