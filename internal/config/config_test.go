package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.BackendPostgres, cfg.VectorBackend)
	assert.Equal(t, "text-embedding-004", cfg.EmbeddingModel)
	assert.Equal(t, 768, cfg.EmbeddingDim)
	assert.Equal(t, "arcee-ai/trinity-large-preview:free", cfg.OpenRouterModel)
	assert.Equal(t, 300, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 8, cfg.TopKResults)
	assert.Equal(t, 10, cfg.MaxChatHistory)
	assert.Equal(t, 1000, cfg.MaxMessageLength)
	assert.Equal(t, 20, cfg.RateLimitMaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow())
	assert.Equal(t, time.Minute, cfg.GenerationTimeout())
	assert.Equal(t, 8081, cfg.ServerPort)
	assert.False(t, cfg.EnableIngestWorker)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	err := os.WriteFile(".env", []byte("OWNER_NAME=Jane Doe\nTOP_K_RESULTS=3"), 0o600)
	require.NoError(t, err)
	defer os.Remove(".env")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", cfg.OwnerName)
	assert.Equal(t, 3, cfg.TopKResults)
}

func TestLoadConfig_Toggles(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "memory")
	t.Setenv("MEMORY_INDEX_PATH", "data/index")
	t.Setenv("ENABLE_INGEST_WORKER", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.VectorBackend)
	assert.Equal(t, "data/index", cfg.MemoryIndexPath)
	assert.True(t, cfg.EnableIngestWorker)
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "redis")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestConfig_DSN(t *testing.T) {
	cfg := config.Config{DBHost: "db", DBPort: 5433, DBUser: "u", DBPass: "p", DBName: "folio"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=folio sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://u:p@db/folio"
	assert.Equal(t, "postgres://u:p@db/folio", cfg.DSN())
}
