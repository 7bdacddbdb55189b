package chat_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/features/chat"
)

var turnColumns = []string{"id", "session_id", "role", "message", "created_at"}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := chat.NewPostgresRepo(db)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO chat_history (session_id, role, message) VALUES ($1, $2, $3) RETURNING id, created_at")).
			WithArgs("s1", "user", "hello").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))

		turn := &chat.Turn{SessionID: "s1", Role: "user", Message: "hello"}
		require.NoError(t, repo.Save(context.Background(), turn))
		assert.Equal(t, int64(9), turn.ID)
		assert.Equal(t, now, turn.CreatedAt)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO chat_history")).
			WillReturnError(errors.New("db down"))

		err := repo.Save(context.Background(), &chat.Turn{SessionID: "s1", Role: "user", Message: "x"})
		assert.EqualError(t, err, "db down")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Recent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, session_id, role, message, created_at FROM \(\s*SELECT .* FROM chat_history\s+WHERE session_id = \$1 AND id < \$2\s+ORDER BY created_at DESC, id DESC LIMIT \$3\s*\) recent ORDER BY created_at ASC, id ASC`).
		WithArgs("s1", int64(42), 10).
		WillReturnRows(sqlmock.NewRows(turnColumns).
			AddRow(int64(40), "s1", "user", "q", now).
			AddRow(int64(41), "s1", "assistant", "a", now))

	turns, err := chat.NewPostgresRepo(db).Recent(context.Background(), "s1", 42, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q", turns[0].Message)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := chat.NewPostgresRepo(db)

	t.Run("Empty", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, session_id, role, message, created_at FROM chat_history WHERE session_id = $1 ORDER BY created_at ASC, id ASC")).
			WithArgs("nobody").
			WillReturnRows(sqlmock.NewRows(turnColumns))

		turns, err := repo.History(context.Background(), "nobody")
		require.NoError(t, err)
		assert.NotNil(t, turns)
		assert.Empty(t, turns)
	})

	t.Run("Scan Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM chat_history WHERE session_id = $1")).
			WithArgs("s1").
			WillReturnRows(sqlmock.NewRows(turnColumns).AddRow("not-a-number", "s1", "user", "q", time.Now()))

		_, err := repo.History(context.Background(), "s1")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
