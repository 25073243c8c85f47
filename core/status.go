package core

// Status is the lifecycle outcome of a decision.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
	StatusDeferred Status = "deferred"
)

// Terminal reports whether s is one of the four final statuses.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusFailed, StatusRejected, StatusDeferred:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// ParseStatus converts a terminal status name. ok is false for anything else,
// including "pending".
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Terminal()
}
