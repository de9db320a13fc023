package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant queries; each must return zero rows on a healthy
// database.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_decision_event",
			SQL: `SELECT payload->>'dispute_id', COUNT(*)
                  FROM outbox
                  WHERE topic = 'mediation.decision_recorded'
                  GROUP BY payload->>'dispute_id'
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_decision_fields_consistent",
			SQL: `SELECT dispute_id FROM mediation_sessions
                  WHERE (decided_at IS NULL) <> (decided_by IS NULL)
                     OR (decided_at IS NULL) <> (agreed IS NULL)`,
		},
		{
			// The grace window covers gate-check/commit skew between a racing
			// send and the winning decision.
			Name: "O3_no_messages_after_close",
			SQL: `SELECT m.id FROM messages m
                  JOIN mediation_sessions s ON s.dispute_id = m.session_id
                  WHERE s.decided_at IS NOT NULL
                    AND m.created_at > s.decided_at + interval '1 second'`,
		},
		{
			Name: "O4_media_reference_complete",
			SQL: `SELECT id FROM messages
                  WHERE type IN ('image', 'document', 'voice')
                    AND (file_url IS NULL OR file_name IS NULL)`,
		},
		{
			Name: "O5_text_has_content",
			SQL: `SELECT id FROM messages
                  WHERE type = 'text' AND (content IS NULL OR content = '')`,
		},
		{
			Name: "O6_voice_duration_nonnegative",
			SQL: `SELECT id FROM messages
                  WHERE type = 'voice' AND (duration_seconds IS NULL OR duration_seconds < 0)`,
		},
	}
}

// Check runs every oracle and returns a descriptive error for the first
// violation found.
func Check(ctx context.Context, pool *pgxpool.Pool) error {
	for _, oracle := range All() {
		rows, err := pool.Query(ctx, oracle.SQL)
		if err != nil {
			return fmt.Errorf("oracle %s: query: %w", oracle.Name, err)
		}
		violated := rows.Next()
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("oracle %s: iterate: %w", oracle.Name, err)
		}
		if violated {
			return fmt.Errorf("oracle %s violated", oracle.Name)
		}
	}
	return nil
}
