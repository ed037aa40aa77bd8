package listing

import "time"

// Status is the one-way lifecycle of a deal. Values are the stable string
// tokens persisted in the listings table.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusUnderContract Status = "UNDER_CONTRACT"
	StatusClosed        Status = "CLOSED"
)

// Listing mirrors the listings table columns touched by the core.
type Listing struct {
	ID        string
	SellerID  string
	Title     string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// rank orders statuses along the pipeline. Unknown statuses rank below
// ACTIVE so they can never be transitioned into.
func rank(s Status) int {
	switch s {
	case StatusActive:
		return 1
	case StatusUnderContract:
		return 2
	case StatusClosed:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether from may move to next. Transitions flow
// strictly forward, one stage at a time; there are no reverse transitions.
func CanTransition(from, next Status) bool {
	return rank(from) > 0 && rank(next) == rank(from)+1
}

// AtLeast reports whether s has reached want in the pipeline.
func AtLeast(s, want Status) bool {
	return rank(s) > 0 && rank(s) >= rank(want)
}
