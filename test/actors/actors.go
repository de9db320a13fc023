package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Heartbeater refreshes one participant's presence record, occasionally
// going quiet for a stretch to simulate a flapping connection.
func Heartbeater(ctx context.Context, pool *pgxpool.Pool, sessionID, userID, role string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if rand.Intn(10) == 0 {
			// Simulate a dropped connection: mark absent and stay silent.
			_, _ = pool.Exec(ctx, `UPDATE presence_records SET is_present=FALSE WHERE session_id=$1 AND user_id=$2`, sessionID, userID)
			time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO presence_records (session_id, user_id, role, is_present, last_heartbeat)
			VALUES ($1, $2, $3, TRUE, NOW())
			ON CONFLICT (session_id, user_id)
			DO UPDATE SET is_present = TRUE, last_heartbeat = NOW()`,
			sessionID, userID, role)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("heartbeater upsert: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Sender appends text messages through the same gate the service enforces:
// session open, not paused, both required parties live. The gate rides inside
// the INSERT so no message can slip through a stale check.
func Sender(ctx context.Context, pool *pgxpool.Pool, sessionID, userID, role string, sent *atomic.Int64, stop <-chan struct{}) error {
	const gatedInsert = `
		INSERT INTO messages (session_id, sender_id, sender_role, type, content)
		SELECT $1, $2, $3, 'text', $4
		WHERE EXISTS (
			SELECT 1 FROM mediation_sessions s
			WHERE s.dispute_id = $1 AND s.decided_at IS NULL AND NOT s.paused
		)
		AND EXISTS (
			SELECT 1 FROM presence_records p
			WHERE p.session_id = $1 AND p.role = 'client' AND p.is_present
		)
		AND EXISTS (
			SELECT 1 FROM presence_records p
			WHERE p.session_id = $1 AND p.role = 'provider' AND p.is_present
		)
	`

	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		n++
		tag, err := pool.Exec(ctx, gatedInsert, sessionID, userID, role, fmt.Sprintf("%s message %d", role, n))
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("sender insert: %w", err)
		}
		if err == nil {
			sent.Add(tag.RowsAffected())
		}
		time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
	}
}

// Pauser is the admin flipping the moderation pause at random.
func Pauser(ctx context.Context, pool *pgxpool.Pool, sessionID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := pool.Exec(ctx,
			`UPDATE mediation_sessions SET paused = $2 WHERE dispute_id = $1 AND decided_at IS NULL`,
			sessionID, rand.Intn(2) == 0)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("pauser update: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(80)) * time.Millisecond)
	}
}

// Decider races to record the terminal decision. Across all racers at most
// one guarded UPDATE may win; wins counts the victories observed.
func Decider(ctx context.Context, pool *pgxpool.Pool, sessionID, clientID string, wins *atomic.Int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		won, err := tryDecide(ctx, pool, sessionID, clientID)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("decider: %w", err)
		}
		if won {
			wins.Add(1)
		}
		time.Sleep(time.Duration(20+rand.Intn(60)) * time.Millisecond)
	}
}

func tryDecide(ctx context.Context, pool *pgxpool.Pool, sessionID, clientID string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var decidedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE mediation_sessions
		SET decided_by = $2, agreed = TRUE, decided_at = NOW()
		WHERE dispute_id = $1 AND decided_at IS NULL
		RETURNING decided_at`,
		sessionID, clientID).Scan(&decidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO outbox (topic, payload, status)
		VALUES ('mediation.decision_recorded', jsonb_build_object('dispute_id', $1::text, 'decided_by', $2::text, 'agreed', TRUE), 'pending')`,
		sessionID, clientID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
