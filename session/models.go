package session

import (
	"strings"
	"time"

	"mediationflow/identity"
	"mediationflow/presence"
)

// Phase is the lifecycle of a mediation session. Assembling and Live are
// derived from presence on every read; only Closed is sticky, driven by the
// recorded decision.
type Phase string

const (
	PhaseAssembling Phase = "assembling"
	PhaseLive       Phase = "live"
	PhaseClosed     Phase = "closed"
)

// Session mirrors the mediation_sessions table. Phase is intentionally not a
// column: persisting it would create a second source of truth that can drift
// from presence.
type Session struct {
	DisputeID string
	Paused    bool
	CreatedAt time.Time
	DecidedBy *string
	Agreed    *bool
	DecidedAt *time.Time
}

// Decided reports whether the terminal decision has been recorded.
func (s Session) Decided() bool {
	return s.DecidedAt != nil
}

// Decision is the client's binding verdict that closes the session.
type Decision struct {
	SessionID string
	UserID    string
	Agreed    bool
	DecidedAt time.Time
}

// Gate is the send-gating verdict computed for one poll. It is recomputed
// from the latest presence snapshot on every evaluation, never cached.
type Gate struct {
	Phase   Phase
	Paused  bool
	Missing []identity.Role
	CanSend bool
}

// ComputeGate derives the gate from the session record and a presence quorum.
func ComputeGate(sess Session, q presence.Quorum) Gate {
	g := Gate{Paused: sess.Paused}
	switch {
	case sess.Decided():
		g.Phase = PhaseClosed
	case q.Met():
		g.Phase = PhaseLive
	default:
		g.Phase = PhaseAssembling
		g.Missing = q.Missing()
	}
	g.CanSend = g.Phase == PhaseLive && !g.Paused
	return g
}

// BlockedReason names the specific reason the composer is disabled, for the
// participant-facing label. Empty when sending is allowed.
func (g Gate) BlockedReason() string {
	switch {
	case g.CanSend:
		return ""
	case g.Phase == PhaseClosed:
		return "session closed"
	case g.Paused:
		return "paused by moderator"
	default:
		parts := make([]string, 0, 2)
		for _, role := range g.Missing {
			parts = append(parts, string(role))
		}
		return "waiting for " + strings.Join(parts, " and ")
	}
}

// OutboxTopicDecisionRecorded is published whenever a decision closes a
// session; case management consumes it to trigger refund-or-release.
const OutboxTopicDecisionRecorded = "mediation.decision_recorded"
