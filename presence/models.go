package presence

import (
	"time"

	"mediationflow/identity"
)

// Record mirrors one row of the presence_records table: the latest liveness
// fact for one participant in one session. Records are upserted by heartbeats
// and never deleted while the session lives.
type Record struct {
	SessionID     string
	UserID        string
	Role          identity.Role
	Present       bool
	LastHeartbeat time.Time
}

// Quorum captures the session-level presence facts derived from a snapshot.
// Only client and provider presence gates messaging; admins may come and go.
type Quorum struct {
	ClientPresent   bool
	ProviderPresent bool
}

// Met reports whether both required parties are present.
func (q Quorum) Met() bool {
	return q.ClientPresent && q.ProviderPresent
}

// Missing lists the required roles with no live record, in a stable order.
func (q Quorum) Missing() []identity.Role {
	var out []identity.Role
	if !q.ClientPresent {
		out = append(out, identity.RoleClient)
	}
	if !q.ProviderPresent {
		out = append(out, identity.RoleProvider)
	}
	return out
}
