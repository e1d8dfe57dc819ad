package scheduler

import "errors"

var (
	// ErrInvalidSchedule is returned when a template's next computed
	// occurrence is closer than the minimum lead time.
	ErrInvalidSchedule = errors.New("next occurrence violates minimum lead time")

	// ErrNotEditable is returned when a scoped action targets a finished
	// (completed/approved/archived) instance.
	ErrNotEditable = errors.New("finished tasks cannot be edited")

	// ErrAlreadyClaimed is returned to the losers of a hanging-task pickup
	// race. It is informational, not a failure: someone else got there first.
	ErrAlreadyClaimed = errors.New("task already claimed")

	// ErrInsufficientPoints is returned when a redemption or offer exceeds
	// the user's balance. No state is changed.
	ErrInsufficientPoints = errors.New("not enough points")

	// ErrNegotiationClosed is returned when acting on a negotiation that is
	// no longer pending (accepted, rejected, withdrawn or past expiry).
	ErrNegotiationClosed = errors.New("negotiation is no longer open")

	ErrTaskNotFound = errors.New("task not found")
)
