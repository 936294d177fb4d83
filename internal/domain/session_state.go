package domain

// SessionState is the lifecycle state of a download session
type SessionState int

const (
	StatePending SessionState = iota
	StateInProgress
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the state name
func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for completed, failed and cancelled
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether moving from s to next is allowed
func (s SessionState) CanTransition(next SessionState) bool {
	switch s {
	case StatePending:
		return next == StateInProgress || next == StateFailed || next == StateCancelled
	case StateInProgress:
		return next == StateCompleted || next == StateFailed || next == StateCancelled
	default:
		return false
	}
}
