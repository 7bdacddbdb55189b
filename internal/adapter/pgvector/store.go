package pgvector

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"folio/internal/retrieval"
)

// Store keeps chunks in the document_embeddings table. Deduplication relies
// on the chunk_id primary key; no locking happens in process.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, c retrieval.Chunk) (bool, error) {
	query := `INSERT INTO document_embeddings (chunk_id, content, embedding) VALUES ($1, $2, $3) ON CONFLICT (chunk_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, c.ID, c.Content, pgvector.NewVector(c.Embedding))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Nearest(ctx context.Context, vector []float32, k int) ([]string, error) {
	query := `SELECT content FROM document_embeddings ORDER BY embedding <=> $1 LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contents := make([]string, 0, k)
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	return contents, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_embeddings`).Scan(&n)
	return n, err
}

func (s *Store) Wipe(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_embeddings`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
