package fsm

// Gate is the external run/pause predicate polled once per step.
// Changed is signalled whenever either predicate may have flipped, so a
// paused machine can wake up without sleeping out its full quantum.
type Gate interface {
	Running() bool
	Paused() bool
	Changed() <-chan struct{}
}

// AlwaysRun is a Gate that never pauses or stops.
type AlwaysRun struct{}

func (AlwaysRun) Running() bool { return true }

func (AlwaysRun) Paused() bool { return false }

func (AlwaysRun) Changed() <-chan struct{} { return nil }
