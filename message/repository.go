package message

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository abstracts message persistence for the service.
type Repository interface {
	Insert(ctx context.Context, params AppendParams) (Message, error)
	List(ctx context.Context, sessionID string) ([]Message, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed message repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const messageColumns = `id, session_id, sender_id, sender_role, type, content, file_url, file_name, duration_seconds, created_at`

// Insert appends one message and returns the persisted row including its
// server-assigned id and timestamp. Two racing appends both persist; the log
// is append-only so no coordination is needed.
func (r *PGRepository) Insert(ctx context.Context, params AppendParams) (Message, error) {
	const insertSQL = `
		INSERT INTO messages (session_id, sender_id, sender_role, type, content, file_url, file_name, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + messageColumns

	msg, err := scanMessage(r.pool.QueryRow(ctx, insertSQL,
		params.SessionID,
		params.SenderID,
		params.SenderRole,
		params.Type,
		nullable(params.Content),
		nullable(params.FileURL),
		nullable(params.FileName),
		nullableInt(params.Type, params.DurationSeconds),
	))
	if err != nil {
		return Message{}, fmt.Errorf("message: insert: %w", err)
	}
	return msg, nil
}

// List returns the full message sequence for the session, ordered by
// creation time with id as the tiebreaker. The whole log is re-fetched per
// poll; fine at dispute-chat scale.
func (r *PGRepository) List(ctx context.Context, sessionID string) ([]Message, error) {
	const selectSQL = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, selectSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("message: list: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, 32)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: iterate: %w", err)
	}
	return out, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	err := row.Scan(
		&msg.ID,
		&msg.SessionID,
		&msg.SenderID,
		&msg.SenderRole,
		&msg.Type,
		&msg.Content,
		&msg.FileURL,
		&msg.FileName,
		&msg.DurationSeconds,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(t Type, v int) *int {
	if t != TypeVoice {
		return nil
	}
	return &v
}
