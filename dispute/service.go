package dispute

import "context"

// RecordReader abstracts repository operations for the service.
type RecordReader interface {
	GetByID(ctx context.Context, disputeID string) (Record, error)
	Exists(ctx context.Context, disputeID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]Record, error)
}

// Service exposes the read-only case-management collaborator surface the
// mediation engine consumes.
type Service struct {
	repo RecordReader
}

// NewService builds a Service using the provided repository.
func NewService(repo RecordReader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the dispute record for the given identifier.
func (s *Service) GetByID(ctx context.Context, disputeID string) (Record, error) {
	return s.repo.GetByID(ctx, disputeID)
}

// Exists reports whether the dispute is known.
func (s *Service) Exists(ctx context.Context, disputeID string) (bool, error) {
	return s.repo.Exists(ctx, disputeID)
}

// ListForUser returns the disputes where the user is a party.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Record, error) {
	return s.repo.ListForUser(ctx, userID)
}
