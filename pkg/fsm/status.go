package fsm

// Status is the terminal value every behavior reports.
type Status int

const (
	// StatusUnset is only used inside a Transition to mean "no change".
	StatusUnset Status = iota
	StatusReady
	StatusRunning
	StatusSucceeded
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unset"
	}
}

// OK reports whether the status is StatusSucceeded.
func (s Status) OK() bool {
	return s == StatusSucceeded
}
