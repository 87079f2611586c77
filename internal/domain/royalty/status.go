package royalty

import (
	"github.com/minegov/royalty-engine/pkg/errors"
)

// Status is the lifecycle state of a royalty record.
type Status string

const (
	StatusDraft         Status = "Draft"
	StatusPending       Status = "Pending"
	StatusPaid          Status = "Paid"
	StatusOverdue       Status = "Overdue"
	StatusDisputed      Status = "Disputed"
	StatusPartiallyPaid Status = "PartiallyPaid"
)

// Statuses returns every recognised lifecycle state.
func Statuses() []Status {
	return []Status{
		StatusDraft, StatusPending, StatusPaid,
		StatusOverdue, StatusDisputed, StatusPartiallyPaid,
	}
}

// Valid reports whether s is a recognised lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPaid,
		StatusOverdue, StatusDisputed, StatusPartiallyPaid:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// allowedTransitions defines the valid next states reachable from each
// status. Transitions not listed are illegal.
//
//	Draft ──► Pending ──► {Paid, Overdue, Disputed, PartiallyPaid}
//	Overdue ──► {Paid, PartiallyPaid, Disputed}
//	PartiallyPaid ──► {Paid, Overdue, Disputed}
//	Disputed ──► {Pending, Paid}
var allowedTransitions = map[Status][]Status{
	StatusDraft:         {StatusPending},
	StatusPending:       {StatusPaid, StatusOverdue, StatusDisputed, StatusPartiallyPaid},
	StatusOverdue:       {StatusPaid, StatusPartiallyPaid, StatusDisputed},
	StatusPartiallyPaid: {StatusPaid, StatusOverdue, StatusDisputed},
	StatusDisputed:      {StatusPending, StatusPaid},
	// Paid is terminal.
	StatusPaid: {},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a stored string into a Status, failing with an
// invalid-transition code for unrecognised values.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", errors.Newf(errors.CodeInvalidTransition, "unknown record status %q", s)
	}
	return status, nil
}
