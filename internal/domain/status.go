package domain

// Status is the lifecycle state of an attempt.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusTimedOut   Status = "timed_out"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further lifecycle transition may occur.
// An essay regrade can still refresh a terminal attempt's aggregates,
// but its status never changes again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTimedOut, StatusAbandoned:
		return true
	}
	return false
}

// CountsTowardLimit reports whether the attempt consumes one of the
// student's max_attempts slots. Abandoned and in-progress attempts do not.
func (s Status) CountsTowardLimit() bool {
	return s == StatusCompleted || s == StatusTimedOut
}

// Event is a lifecycle trigger applied to an attempt.
type Event string

const (
	EventSubmit  Event = "submit"
	EventTimeout Event = "timeout"
	EventAbandon Event = "abandon"
)

// transitions is the full table of legal (status, event) moves. Anything
// absent is illegal; in particular no event ever leads back to in_progress.
var transitions = map[Status]map[Event]Status{
	StatusInProgress: {
		EventSubmit:  StatusCompleted,
		EventTimeout: StatusTimedOut,
		EventAbandon: StatusAbandoned,
	},
}

// Transition returns the status reached by applying ev to current, or
// ErrAlreadyFinalized when current admits no such move.
func Transition(current Status, ev Event) (Status, error) {
	if next, ok := transitions[current][ev]; ok {
		return next, nil
	}
	return current, ErrAlreadyFinalized
}
