package presence

import "mediationflow/identity"

// Evaluate derives session-level presence facts from a snapshot. It performs
// no timeout math of its own; staleness is already applied when the snapshot
// is read, so the evaluator simply reflects the latest fetched records.
func Evaluate(records []Record) Quorum {
	var q Quorum
	for _, rec := range records {
		if !rec.Present {
			continue
		}
		switch rec.Role {
		case identity.RoleClient:
			q.ClientPresent = true
		case identity.RoleProvider:
			q.ProviderPresent = true
		}
	}
	return q
}
