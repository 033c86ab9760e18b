package world

import (
	"sync"
)

// TaskContext is the per-run mutable state shared by the behaviors of one
// mission. It is created once per run and passed by reference to every
// behavior constructor.
type TaskContext struct {
	world *World

	mu      sync.Mutex
	holding Arm
	object  string
	command string
	onSwap  func(prev, next Arm)
}

// NewTaskContext creates a context bound to a world.
func NewTaskContext(w *World) *TaskContext {
	return &TaskContext{world: w}
}

// World returns the static arena model.
func (c *TaskContext) World() *World {
	return c.world
}

// OnHoldingSwap registers a callback invoked when an arm is marked as holding
// while another arm already was. Used for logging.
func (c *TaskContext) OnHoldingSwap(fn func(prev, next Arm)) {
	c.mu.Lock()
	c.onSwap = fn
	c.mu.Unlock()
}

// HoldingArm returns the arm currently grasping an object, or ArmNone.
func (c *TaskContext) HoldingArm() Arm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holding
}

// IsHolding reports whether any arm holds an object.
func (c *TaskContext) IsHolding() bool {
	return c.HoldingArm() != ArmNone
}

// SetHoldingArm marks arm as the holding arm. At most one arm holds an
// object; marking a second arm replaces the first.
func (c *TaskContext) SetHoldingArm(arm Arm) {
	c.mu.Lock()
	prev := c.holding
	c.holding = arm
	swap := c.onSwap
	c.mu.Unlock()

	if swap != nil && prev != ArmNone && prev != arm {
		swap(prev, arm)
	}
}

// SetHeldObject records the name of the object in the holding arm.
func (c *TaskContext) SetHeldObject(name string) {
	c.mu.Lock()
	c.object = name
	c.mu.Unlock()
}

// HeldObject returns the name of the held object, if known.
func (c *TaskContext) HeldObject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.object
}

// ClearHoldingArm empties the holding marker and the held object name and
// returns the arm that held.
func (c *TaskContext) ClearHoldingArm() Arm {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.holding
	c.holding = ArmNone
	c.object = ""
	return prev
}

// SetCommand records the confirmed utterance of the current command cycle.
func (c *TaskContext) SetCommand(text string) {
	c.mu.Lock()
	c.command = text
	c.mu.Unlock()
}

// Command returns the confirmed utterance of the current command cycle.
func (c *TaskContext) Command() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command
}

// Reset clears per-run state. Called on mission Init.
func (c *TaskContext) Reset() {
	c.mu.Lock()
	c.holding = ArmNone
	c.object = ""
	c.command = ""
	c.mu.Unlock()
}

// TravelPose returns the arm pose for moving the base: the with-object pose
// while holding, otherwise the plain navigation pose.
func (c *TaskContext) TravelPose() string {
	poses := c.world.Poses()
	if c.IsHolding() {
		return poses.NavigationWithObject
	}
	return poses.Navigation
}

// EnabledArms returns the manipulators that may be commanded.
func (c *TaskContext) EnabledArms() ArmSet {
	return c.world.EnabledArms()
}
