// Package approval implements the two-phase request/approve/settle state
// machine shared by every money-moving entity. Each engine declares its own
// adjacency rules; the canonical transfer gate lives here because transfers
// are the payload every other entity ultimately settles through.
package approval

import (
	"github.com/famvault/famvault/internal/domain"
)

// Status of a gated entity.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Rules is an adjacency map from a status to the statuses reachable from
// it. A status with no entry (or an empty list) is terminal.
type Rules map[Status][]Status

// TransferRules is the canonical money-movement gate:
// REQUESTED -> APPROVED | REJECTED | CANCELLED, APPROVED -> COMPLETED,
// everything else terminal.
func TransferRules() Rules {
	return Rules{
		StatusRequested: {StatusApproved, StatusRejected, StatusCancelled},
		StatusApproved:  {StatusCompleted},
		StatusCompleted: {},
		StatusRejected:  {},
		StatusCancelled: {},
	}
}

// Allowed reports whether from -> to is a declared transition.
func (r Rules) Allowed(from, to Status) bool {
	for _, next := range r[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func (r Rules) Terminal(status Status) bool {
	return len(r[status]) == 0
}

// Guard returns an InvalidStateTransition error when from -> to is not in
// the adjacency list, nil otherwise.
func (r Rules) Guard(entity, id string, from, to Status) error {
	if r.Allowed(from, to) {
		return nil
	}
	return domain.Errf(domain.ErrInvalidStateTransition, entity,
		"cannot move %s from %s to %s", id, from, to).
		WithDetails(map[string]any{
			"id":      id,
			"from":    string(from),
			"to":      string(to),
			"allowed": r.nextNames(from),
		})
}

func (r Rules) nextNames(from Status) []string {
	next := r[from]
	names := make([]string, len(next))
	for i, s := range next {
		names[i] = string(s)
	}
	return names
}
