package chromem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"

	"folio/internal/retrieval"
)

const collectionName = "document_embeddings"

var errNoEmbedder = errors.New("chromem: embeddings must be supplied by the caller")

// Store is an in-process vector backend. With a non-empty path the
// collection is persisted on disk and reloaded on start.
type Store struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
}

func NewStore(path string) (*Store, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	c, err := s.db.GetOrCreateCollection(collectionName, nil, refuseEmbedding)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}
	s.collection = c
	return nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

func (s *Store) Insert(ctx context.Context, c retrieval.Chunk) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.collection.GetByID(ctx, c.ID); err == nil {
		return false, nil
	}

	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:        c.ID,
		Content:   c.Content,
		Embedding: c.Embedding,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Nearest(ctx context.Context, vector []float32, k int) ([]string, error) {
	s.mu.Lock()
	collection := s.collection
	s.mu.Unlock()

	// chromem rejects k above the document count
	k = min(k, collection.Count())
	if k <= 0 {
		return []string{}, nil
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, err
	}
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}
	return contents, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Count(), nil
}

// Wipe drops the collection and starts a fresh one.
func (s *Store) Wipe(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.collection.Count()
	if err := s.db.DeleteCollection(collectionName); err != nil {
		return 0, fmt.Errorf("delete collection: %w", err)
	}
	if err := s.open(); err != nil {
		return 0, err
	}
	return n, nil
}
