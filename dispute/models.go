package dispute

import "time"

// Status represents the lifecycle of a dispute record as case management
// reports it. The mediation engine only ever reads these.
type Status string

const (
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
)

// Record mirrors the disputes table owned by case management.
type Record struct {
	ID         string
	ClientID   string
	ProviderID string
	Status     Status
	CreatedAt  time.Time
}
