// ABOUTME: Call lifecycle status type and the validated transition table.
// ABOUTME: Statuses form a closed set; terminal statuses admit no further transitions.

package callstate

// Status is the lifecycle state of a single ring attempt.
// Keep values stable because they are part of the persisted format.
type Status string

const (
	StatusReceived  Status = "received"
	StatusShown     Status = "shown"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusShown, StatusAccepted, StatusDeclined, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle. No transition is
// permitted out of a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether a call in this status is still ringing or on
// screen, i.e. it should appear in the active-call listing.
func (s Status) Active() bool {
	return s == StatusReceived || s == StatusShown
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. The "shown" callback may be skipped entirely
// when the user answers or declines from the notification itself, so
// terminal outcomes are reachable directly from "received".
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	switch s {
	case StatusReceived:
		return next != StatusReceived
	case StatusShown:
		return next != StatusReceived && next != StatusShown
	}
	return false
}
