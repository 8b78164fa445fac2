package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the chat_messages table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id         BIGSERIAL PRIMARY KEY,
    role       TEXT NOT NULL,
    hanzi      TEXT NOT NULL,
    pinyin     TEXT NOT NULL DEFAULT '',
    english    TEXT NOT NULL DEFAULT '',
    audio_url  TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_created_at ON chat_messages(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] using the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] before
// issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the chat_messages table and
// index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append implements [Store]. A zero CreatedAt defers to the database clock.
func (s *PostgresStore) Append(ctx context.Context, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		const query = `
			INSERT INTO chat_messages (role, hanzi, pinyin, english, audio_url)
			VALUES ($1,$2,$3,$4,$5)`
		if _, err := s.db.Exec(ctx, query,
			turn.Role, turn.Hanzi, turn.Pinyin, turn.English, turn.AudioURL,
		); err != nil {
			return fmt.Errorf("history: append: %w", err)
		}
		return nil
	}

	const query = `
		INSERT INTO chat_messages (role, hanzi, pinyin, english, audio_url, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := s.db.Exec(ctx, query,
		turn.Role, turn.Hanzi, turn.Pinyin, turn.English, turn.AudioURL, turn.CreatedAt,
	); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// ReadAll implements [Store]. The id tiebreak keeps turns written within the
// same clock tick in insertion order.
func (s *PostgresStore) ReadAll(ctx context.Context) ([]Turn, error) {
	const query = `
		SELECT role, hanzi, pinyin, english, audio_url, created_at
		FROM chat_messages
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history: read: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Hanzi, &t.Pinyin, &t.English, &t.AudioURL, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: read scan: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: read: %w", err)
	}
	return turns, nil
}

// Clear implements [Store].
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM chat_messages`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}
