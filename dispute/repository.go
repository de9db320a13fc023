package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals that the dispute does not exist.
var ErrNotFound = errors.New("dispute: not found")

// Repository reads dispute records. All writes belong to case management.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a read-only dispute repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a single dispute record.
func (r *Repository) GetByID(ctx context.Context, disputeID string) (Record, error) {
	const query = `
		SELECT id, client_id, provider_id, status::text, created_at
		FROM disputes
		WHERE id = $1
	`

	var rec Record
	err := r.pool.QueryRow(ctx, query, disputeID).
		Scan(&rec.ID, &rec.ClientID, &rec.ProviderID, &rec.Status, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	return rec, nil
}

// Exists reports whether the dispute is known to case management.
func (r *Repository) Exists(ctx context.Context, disputeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM disputes WHERE id = $1)`, disputeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dispute: exists: %w", err)
	}
	return exists, nil
}

// ListForUser returns the disputes where the user is a party, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Record, error) {
	const query = `
		SELECT id, client_id, provider_id, status::text, created_at
		FROM disputes
		WHERE client_id = $1 OR provider_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ClientID, &rec.ProviderID, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}
