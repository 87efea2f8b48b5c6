package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore keeps conversation context in Postgres so stateless
// webhook invocations share one history per thread.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// EnsureSchema creates the conversation tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_threads (
			id         TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS bot_messages (
			id         UUID PRIMARY KEY,
			thread_id  TEXT NOT NULL REFERENCES bot_threads(id),
			seq        INTEGER NOT NULL,
			actor      TEXT NOT NULL,
			author     TEXT NOT NULL DEFAULT '',
			body       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS bot_messages_thread_seq_idx
			ON bot_messages (thread_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure conversation schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, threadID string) (*Thread, error) {
	var th Thread
	err := s.db.QueryRowContext(ctx, `
        SELECT id, created_at, updated_at FROM bot_threads WHERE id=$1
    `, threadID).Scan(&th.ID, &th.CreatedAt, &th.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, thread_id, seq, actor, author, body, created_at
        FROM bot_messages WHERE thread_id=$1 ORDER BY seq ASC
    `, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Always a non-nil slice so JSON encodes as [] instead of null
	th.Messages = make([]Message, 0)
	for rows.Next() {
		var m Message
		var actor string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Seq, &actor, &m.Author, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Actor = ActorType(actor)
		th.Messages = append(th.Messages, m)
	}
	return &th, rows.Err()
}

func (s *PostgresStore) Append(ctx context.Context, threadID string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO bot_threads (id) VALUES ($1)
        ON CONFLICT (id) DO UPDATE SET updated_at = now()
    `, threadID)
	if err != nil {
		return fmt.Errorf("failed to upsert thread %s: %w", threadID, err)
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO bot_messages (id, thread_id, seq, actor, author, body)
        VALUES ($1, $2,
            (SELECT COALESCE(MAX(seq), 0) + 1 FROM bot_messages WHERE thread_id = $2),
            $3, $4, $5)
        RETURNING seq, created_at
    `, msg.ID, threadID, string(msg.Actor), msg.Author, msg.Body).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message to %s: %w", threadID, err)
	}

	msg.ThreadID = threadID
	return tx.Commit()
}

func (s *PostgresStore) Tracked(ctx context.Context, threadID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
        SELECT EXISTS (SELECT 1 FROM bot_threads WHERE id=$1)
    `, threadID).Scan(&exists)
	return exists, err
}
