package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"folio/internal/middleware"
)

// Chunk is one stored unit of the corpus. ID is derived from Content so the
// same text is only ever stored once.
type Chunk struct {
	ID        string
	Content   string
	Embedding []float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is a vector backend. Insert reports whether a row was created; a
// chunk whose ID already exists is left untouched. Nearest returns contents
// ordered by ascending cosine distance.
type Store interface {
	Insert(ctx context.Context, c Chunk) (bool, error)
	Nearest(ctx context.Context, vector []float32, k int) ([]string, error)
	Count(ctx context.Context) (int, error)
	Wipe(ctx context.Context) (int, error)
}

// ChunkID is the lowercase hex SHA-256 of content.
func ChunkID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

type Index struct {
	embedder  Embedder
	store     Store
	dimension int
	logger    *QueryLogger
}

// NewIndex builds an Index. dimension <= 0 disables the embedding length
// check; a nil logger disables query logging.
func NewIndex(e Embedder, s Store, dimension int, l *QueryLogger) *Index {
	return &Index{embedder: e, store: s, dimension: dimension, logger: l}
}

// Add embeds and stores each non-blank chunk and returns how many were new.
func (idx *Index) Add(ctx context.Context, chunks []string) (int, error) {
	added := 0
	for _, raw := range chunks {
		content := strings.TrimSpace(raw)
		if content == "" {
			continue
		}

		vec, err := idx.embed(ctx, content)
		if err != nil {
			return added, err
		}

		created, err := idx.store.Insert(ctx, Chunk{ID: ChunkID(content), Content: content, Embedding: vec})
		if err != nil {
			return added, fmt.Errorf("insert chunk: %w", err)
		}
		if created {
			added++
		}
	}
	return added, nil
}

// Query returns up to topK stored contents nearest to text.
func (idx *Index) Query(ctx context.Context, text string, topK int) ([]string, error) {
	start := time.Now()

	vec, err := idx.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	total, err := idx.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}

	results := []string{}
	if total > 0 && topK > 0 {
		results, err = idx.store.Nearest(ctx, vec, min(topK, total))
		if err != nil {
			return nil, fmt.Errorf("nearest chunks: %w", err)
		}
	}

	if idx.logger != nil {
		idx.logger.Log(QueryLogEntry{
			Query:         text,
			NumResults:    len(results),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return results, nil
}

func (idx *Index) Wipe(ctx context.Context) (int, error) {
	n, err := idx.store.Wipe(ctx)
	if err != nil {
		return 0, fmt.Errorf("wipe chunks: %w", err)
	}
	return n, nil
}

func (idx *Index) Count(ctx context.Context) (int, error) {
	n, err := idx.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (idx *Index) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if idx.dimension > 0 && len(vec) != idx.dimension {
		return nil, fmt.Errorf("embed: got %d dimensions, want %d", len(vec), idx.dimension)
	}
	return vec, nil
}
