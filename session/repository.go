package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that no mediation session exists for the dispute.
	ErrNotFound = errors.New("session: not found")
	// ErrAlreadyDecided signals a second decision on a closed session.
	ErrAlreadyDecided = errors.New("session: decision already recorded")
	// ErrClosed signals a mutation attempted after the session closed.
	ErrClosed = errors.New("session: closed")
)

// Repository abstracts session persistence for the service.
type Repository interface {
	Ensure(ctx context.Context, disputeID string) (Session, error)
	Get(ctx context.Context, disputeID string) (Session, error)
	SetPaused(ctx context.Context, disputeID string, value bool) (Session, error)
	RecordDecision(ctx context.Context, disputeID, userID string, agreed bool) (Decision, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed session repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const sessionColumns = `dispute_id, paused, created_at, decided_by, agreed, decided_at`

// Ensure creates the session for the dispute if absent and returns it. Two
// racing creators converge on the same row via the primary-key conflict.
func (r *PGRepository) Ensure(ctx context.Context, disputeID string) (Session, error) {
	const insertSQL = `
		INSERT INTO mediation_sessions (dispute_id)
		VALUES ($1)
		ON CONFLICT (dispute_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insertSQL, disputeID); err != nil {
		return Session{}, fmt.Errorf("session: ensure: %w", err)
	}
	return r.Get(ctx, disputeID)
}

// Get fetches the session record for the dispute.
func (r *PGRepository) Get(ctx context.Context, disputeID string) (Session, error) {
	sess, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM mediation_sessions WHERE dispute_id = $1`, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("session: get: %w", err)
	}
	return sess, nil
}

// SetPaused updates the pause flag. Repeated pause while already paused is a
// no-op by construction. A closed session is immutable.
func (r *PGRepository) SetPaused(ctx context.Context, disputeID string, value bool) (Session, error) {
	const updateSQL = `
		UPDATE mediation_sessions
		SET paused = $2
		WHERE dispute_id = $1 AND decided_at IS NULL
		RETURNING ` + sessionColumns

	sess, err := scanSession(r.pool.QueryRow(ctx, updateSQL, disputeID, value))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("session: set paused: %w", err)
	}

	// Distinguish "closed" from "missing".
	existing, getErr := r.Get(ctx, disputeID)
	if getErr != nil {
		return Session{}, getErr
	}
	if existing.Decided() {
		return Session{}, ErrClosed
	}
	return Session{}, fmt.Errorf("session: set paused: %w", err)
}

// RecordDecision records the terminal verdict exactly once. The guarded
// UPDATE serializes racing calls at the storage layer: the loser matches zero
// rows and a diagnostic read distinguishes the duplicate from a missing
// session. The outbox row rides in the same transaction.
func (r *PGRepository) RecordDecision(ctx context.Context, disputeID, userID string, agreed bool) (Decision, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("session: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateSQL = `
		UPDATE mediation_sessions
		SET decided_by = $2, agreed = $3, decided_at = NOW()
		WHERE dispute_id = $1 AND decided_at IS NULL
		RETURNING decided_at
	`

	var dec Decision
	dec.SessionID = disputeID
	dec.UserID = userID
	dec.Agreed = agreed

	err = tx.QueryRow(ctx, updateSQL, disputeID, userID, agreed).Scan(&dec.DecidedAt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Decision{}, fmt.Errorf("session: record decision: %w", err)
		}
		var decided bool
		if err := r.pool.QueryRow(ctx,
			`SELECT decided_at IS NOT NULL FROM mediation_sessions WHERE dispute_id = $1`, disputeID).
			Scan(&decided); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Decision{}, ErrNotFound
			}
			return Decision{}, fmt.Errorf("session: decision fetch: %w", err)
		}
		if decided {
			return Decision{}, ErrAlreadyDecided
		}
		return Decision{}, ErrNotFound
	}

	payload, err := json.Marshal(map[string]any{
		"dispute_id": disputeID,
		"decided_by": userID,
		"agreed":     agreed,
		"decided_at": dec.DecidedAt,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("session: encode outbox payload: %w", err)
	}

	const outboxSQL = `
		INSERT INTO outbox (topic, payload, status)
		VALUES ($1, $2, 'pending')
	`
	if _, err := tx.Exec(ctx, outboxSQL, OutboxTopicDecisionRecorded, payload); err != nil {
		return Decision{}, fmt.Errorf("session: outbox insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Decision{}, fmt.Errorf("session: commit decision: %w", err)
	}
	return dec, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.DisputeID,
		&sess.Paused,
		&sess.CreatedAt,
		&sess.DecidedBy,
		&sess.Agreed,
		&sess.DecidedAt,
	)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}
