package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediationflow/identity"
)

// ErrSessionUnknown signals a heartbeat for a session that was never opened.
var ErrSessionUnknown = errors.New("presence: unknown session")

// Policy holds the liveness parameters. StaleAfter is how long a record stays
// present without a fresh heartbeat; the exact threshold is deliberately a
// deployment parameter rather than a constant.
type Policy struct {
	StaleAfter time.Duration
}

// DefaultPolicy treats a participant as absent after missing two heartbeat
// windows (reference heartbeat interval: 30s).
var DefaultPolicy = Policy{StaleAfter: 60 * time.Second}

// Store abstracts presence persistence for the services that consume it.
type Store interface {
	Heartbeat(ctx context.Context, sessionID, userID string, role identity.Role) error
	Snapshot(ctx context.Context, sessionID string) ([]Record, error)
}

// PGStore implements Store backed by PostgreSQL. The staleness cut-off is
// applied at read time so presence facts always derive from the latest
// heartbeat rather than a flag that infrastructure must flip first.
type PGStore struct {
	pool   *pgxpool.Pool
	policy Policy
}

// NewStore creates a PostgreSQL-backed presence store.
func NewStore(pool *pgxpool.Pool, policy Policy) *PGStore {
	if policy.StaleAfter <= 0 {
		policy = DefaultPolicy
	}
	return &PGStore{pool: pool, policy: policy}
}

// Heartbeat upserts the participant's presence record, refreshing the
// liveness timestamp. Heartbeats are idempotent refreshes; if two race,
// last-write-wins is acceptable.
func (s *PGStore) Heartbeat(ctx context.Context, sessionID, userID string, role identity.Role) error {
	if !role.Valid() {
		return fmt.Errorf("presence: invalid role %q", role)
	}

	const upsertSQL = `
		INSERT INTO presence_records (session_id, user_id, role, is_present, last_heartbeat)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (session_id, user_id)
		DO UPDATE SET is_present = TRUE, last_heartbeat = NOW()
	`
	if _, err := s.pool.Exec(ctx, upsertSQL, sessionID, userID, role); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrSessionUnknown
		}
		return fmt.Errorf("presence: heartbeat: %w", err)
	}
	return nil
}

// Snapshot returns every presence record for the session with the staleness
// policy applied: a record whose heartbeat is older than the policy window
// reads as absent regardless of its stored flag.
func (s *PGStore) Snapshot(ctx context.Context, sessionID string) ([]Record, error) {
	const selectSQL = `
		SELECT session_id, user_id, role,
		       is_present AND last_heartbeat > NOW() - make_interval(secs => $2),
		       last_heartbeat
		FROM presence_records
		WHERE session_id = $1
		ORDER BY role, user_id
	`

	rows, err := s.pool.Query(ctx, selectSQL, sessionID, s.policy.StaleAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("presence: snapshot: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.Role, &rec.Present, &rec.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("presence: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("presence: iterate records: %w", err)
	}
	return out, nil
}

// MarkStale persists is_present = false for records whose heartbeat fell
// outside the policy window, so raw-row readers see the same facts the
// snapshot computes. Safe to run periodically from any process.
func (s *PGStore) MarkStale(ctx context.Context) (int64, error) {
	const updateSQL = `
		UPDATE presence_records
		SET is_present = FALSE
		WHERE is_present AND last_heartbeat <= NOW() - make_interval(secs => $1)
	`
	tag, err := s.pool.Exec(ctx, updateSQL, s.policy.StaleAfter.Seconds())
	if err != nil {
		return 0, fmt.Errorf("presence: mark stale: %w", err)
	}
	return tag.RowsAffected(), nil
}
