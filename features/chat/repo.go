package chat

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, turn *Turn) error {
	query := `INSERT INTO chat_history (session_id, role, message) VALUES ($1, $2, $3) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, turn.SessionID, turn.Role, turn.Message).Scan(&turn.ID, &turn.CreatedAt)
}

// Recent returns up to limit turns written before beforeID, oldest first.
func (r *PostgresRepo) Recent(ctx context.Context, sessionID string, beforeID int64, limit int) ([]Turn, error) {
	query := `SELECT id, session_id, role, message, created_at FROM (
		SELECT id, session_id, role, message, created_at FROM chat_history
		WHERE session_id = $1 AND id < $2
		ORDER BY created_at DESC, id DESC LIMIT $3
	) recent ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, sessionID, beforeID, limit)
}

func (r *PostgresRepo) History(ctx context.Context, sessionID string) ([]Turn, error) {
	query := `SELECT id, session_id, role, message, created_at FROM chat_history WHERE session_id = $1 ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, sessionID)
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...interface{}) ([]Turn, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Message, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
