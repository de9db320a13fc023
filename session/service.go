package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediationflow/dispute"
	"mediationflow/identity"
	"mediationflow/presence"
)

var (
	// ErrNotAdmin signals a pause attempt by a non-admin participant.
	ErrNotAdmin = errors.New("session: only an admin may pause or resume")
	// ErrNotClient signals a decision attempt by a non-client participant.
	ErrNotClient = errors.New("session: only the client may record a decision")
	// ErrDisputeUnknown signals a session bootstrap for a dispute that does
	// not exist in case management.
	ErrDisputeUnknown = errors.New("session: unknown dispute")
	// ErrNotParticipant signals access by a user who is neither a party to
	// the dispute nor an admin.
	ErrNotParticipant = errors.New("session: not a party to this dispute")
)

// RoleResolver looks up the authoritative role for a participant. The token
// claim is not trusted for pause/decision authorization.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID string) (identity.Role, error)
}

// DisputeReader is the case-management collaborator consulted for session
// bootstrap and participation checks.
type DisputeReader interface {
	GetByID(ctx context.Context, disputeID string) (dispute.Record, error)
}

// Service is the session controller: it owns the gate predicate, the admin
// pause axis and the client decision.
type Service struct {
	repo          Repository
	store         presence.Store
	roles         RoleResolver
	disputes      DisputeReader
	ensureTimeout time.Duration
}

// NewService builds the session controller. ensureTimeout bounds the session
// bootstrap call; zero selects the 10s reference default.
func NewService(repo Repository, store presence.Store, roles RoleResolver, disputes DisputeReader, ensureTimeout time.Duration) *Service {
	if ensureTimeout <= 0 {
		ensureTimeout = 10 * time.Second
	}
	return &Service{
		repo:          repo,
		store:         store,
		roles:         roles,
		disputes:      disputes,
		ensureTimeout: ensureTimeout,
	}
}

// EnsureSession opens the mediation session for a dispute, creating it if
// absent. Only a party to the dispute or an admin may open it. A timeout is
// treated as a hard failure surfaced to the caller; no automatic retry.
func (s *Service) EnsureSession(ctx context.Context, disputeID, userID string) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ensureTimeout)
	defer cancel()

	if err := s.Authorize(ctx, disputeID, userID); err != nil {
		return Session{}, err
	}
	return s.repo.Ensure(ctx, disputeID)
}

// Authorize verifies the user may act on the dispute's session: the dispute's
// client, its provider, or an admin. A stranger presenting a valid token must
// still be rejected, otherwise their heartbeat would count toward someone
// else's presence quorum.
func (s *Service) Authorize(ctx context.Context, disputeID, userID string) error {
	rec, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, dispute.ErrNotFound) {
			return ErrDisputeUnknown
		}
		return fmt.Errorf("session: resolve dispute: %w", err)
	}
	if userID == rec.ClientID || userID == rec.ProviderID {
		return nil
	}

	role, err := s.roles.ResolveRole(ctx, userID)
	if err != nil {
		return err
	}
	if role != identity.RoleAdmin {
		return ErrNotParticipant
	}
	return nil
}

// Get returns the raw session record.
func (s *Service) Get(ctx context.Context, disputeID string) (Session, error) {
	return s.repo.Get(ctx, disputeID)
}

// Gate recomputes the send-gating verdict from the current session record and
// a fresh presence snapshot. Callers must not cache the result across polls.
func (s *Service) Gate(ctx context.Context, disputeID string) (Gate, error) {
	sess, err := s.repo.Get(ctx, disputeID)
	if err != nil {
		return Gate{}, err
	}
	if sess.Decided() {
		return ComputeGate(sess, presence.Quorum{}), nil
	}

	records, err := s.store.Snapshot(ctx, disputeID)
	if err != nil {
		return Gate{}, err
	}
	return ComputeGate(sess, presence.Evaluate(records)), nil
}

// SetPaused toggles the moderation pause. Admin-only; idempotent.
func (s *Service) SetPaused(ctx context.Context, disputeID, userID string, value bool) (Session, error) {
	role, err := s.roles.ResolveRole(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if role != identity.RoleAdmin {
		return Session{}, ErrNotAdmin
	}
	return s.repo.SetPaused(ctx, disputeID, value)
}

// RecordDecision records the client's binding verdict, closing the session.
// A second call fails with ErrAlreadyDecided rather than overwriting.
func (s *Service) RecordDecision(ctx context.Context, disputeID, userID string, agreed bool) (Decision, error) {
	role, err := s.roles.ResolveRole(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if role != identity.RoleClient {
		return Decision{}, ErrNotClient
	}
	return s.repo.RecordDecision(ctx, disputeID, userID, agreed)
}
