package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"folio/internal/config"
)

// IntegrationSuite starts throwaway Postgres (with pgvector) and NSQ
// containers. Weaviate is only started when requested.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	DSN      string
	NSQ      *nsq.Producer
	NSQAddr  string
	NSQHTTP  string
	Weaviate *weaviate.Client

	weaviateHost string

	withWeaviate bool
	containers   []testcontainers.Container
}

type Option func(*IntegrationSuite)

func WithWeaviate() Option {
	return func(s *IntegrationSuite) { s.withWeaviate = true }
}

func NewIntegrationSuite(t *testing.T, opts ...Option) *IntegrationSuite {
	s := &IntegrationSuite{T: t}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MigrationPath is the file:// URL of the repo's migrations directory.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s", filepath.Join(filepath.Dir(b), "..", "..", "migrations"))
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("folio_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.containers = append(s.containers, pgContainer)

	s.DSN, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", s.DSN)
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationPath(), s.DSN)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nsqio/nsq:v1.3.0",
			ExposedPorts: []string{"4150/tcp", "4151/tcp"},
			Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
			WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, nsqC)

	s.NSQAddr = s.endpoint(ctx, nsqC, "4150")
	s.NSQHTTP = s.endpoint(ctx, nsqC, "4151")
	s.NSQ, err = nsq.NewProducer(s.NSQAddr, nsq.NewConfig())
	require.NoError(s.T, err)

	if !s.withWeaviate {
		return
	}

	weaviateC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "semitechnologies/weaviate:1.28.2",
			ExposedPorts: []string{"8080/tcp", "50051/tcp"},
			Env: map[string]string{
				"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
				"DEFAULT_VECTORIZER_MODULE":               "none",
				"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
			},
			WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, weaviateC)

	s.weaviateHost = s.endpoint(ctx, weaviateC, "8080")
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.weaviateHost, Scheme: "http"})
	require.NoError(s.T, err)
}

// GetAppConfig points a config at the suite's containers. API keys are
// left empty.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	cfg := &config.Config{
		DatabaseURL:                s.DSN,
		MigrationPath:              MigrationPath(),
		VectorBackend:              config.BackendPostgres,
		WeaviateHost:               s.weaviateHost,
		WeaviateScheme:             "http",
		EmbeddingModel:             "text-embedding-004",
		EmbeddingDim:               768,
		GenerationTimeoutSeconds:   5,
		OwnerName:                  "Test Owner",
		OwnerEmail:                 "owner@example.com",
		ChunkSize:                  300,
		ChunkOverlap:               50,
		TopKResults:                8,
		MaxChatHistory:             10,
		MaxMessageLength:           1000,
		RateLimitMaxRequests:       20,
		RateLimitWindowSeconds:     60,
		ServerPort:                 8081,
		QueryLogPath:               filepath.Join(s.T.TempDir(), "query.log"),
		NSQDHost:                   s.NSQAddr,
		NSQDHTTP:                   s.NSQHTTP,
		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
	return cfg
}

func (s *IntegrationSuite) endpoint(ctx context.Context, c testcontainers.Container, port string) string {
	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(s.T, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	for i := len(s.containers) - 1; i >= 0; i-- {
		s.containers[i].Terminate(ctx)
	}
}
