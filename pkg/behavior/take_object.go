package behavior

import (
	"context"

	"github.com/odvcencio/gpsr/pkg/fsm"
	"github.com/odvcencio/gpsr/pkg/world"
)

const (
	takeSearch    fsm.State = "search_and_take"
	takeSucceeded fsm.State = "succeeded"
	takeFailed    fsm.State = "failed"
)

// TakeObject searches for an object (or a backup) and grasps it. On success
// the grasping arm becomes the holding arm.
type TakeObject struct {
	env    *Env
	object string
	backup string
	m      *fsm.Machine
}

// NewTakeObject creates a take primitive. backup may be empty.
func NewTakeObject(env *Env, object, backup string) *TakeObject {
	t := &TakeObject{env: env, object: object, backup: backup}
	t.m = env.Machine("take_object").
		AddState(stateInit, t.init, takeSearch).
		AddState(takeSearch, t.searchAndTake, takeSucceeded, takeFailed).
		AddState(takeSucceeded, t.succeeded, stateFinal).
		AddState(takeFailed, t.failed, stateFinal).
		AddState(stateFinal, nil).
		SetStart(stateInit).
		SetFinal(stateFinal).
		MustBuild()
	return t
}

func (t *TakeObject) Name() string { return "take_object" }

// Execute runs the primitive to completion.
func (t *TakeObject) Execute(ctx context.Context) fsm.Status {
	return run(ctx, t.env, t.Name(), t.m)
}

func (t *TakeObject) init(ctx context.Context) fsm.Transition {
	return fsm.Go(takeSearch)
}

func (t *TakeObject) searchAndTake(ctx context.Context) fsm.Transition {
	arm, ok := t.env.Commands.SearchAndTake(ctx, t.object, t.backup, t.preferredHand())
	if !ok {
		return fsm.Go(takeFailed)
	}
	t.env.Task.SetHoldingArm(arm)
	t.env.Task.SetHeldObject(t.object)
	return fsm.Go(takeSucceeded)
}

// preferredHand picks a free arm when one is already holding something.
func (t *TakeObject) preferredHand() world.Arm {
	enabled := t.env.Task.EnabledArms()
	switch t.env.Task.HoldingArm() {
	case world.ArmLeft:
		if enabled == world.ArmsBoth || enabled == world.ArmsRight {
			return world.ArmRight
		}
	case world.ArmRight:
		if enabled == world.ArmsBoth || enabled == world.ArmsLeft {
			return world.ArmLeft
		}
	}
	switch enabled {
	case world.ArmsLeft:
		return world.ArmLeft
	case world.ArmsRight:
		return world.ArmRight
	}
	return world.ArmNone
}

func (t *TakeObject) succeeded(ctx context.Context) fsm.Transition {
	t.env.Commands.SayBrief(ctx, t.env.phrases().ObjectTaken)
	return fsm.Finish(stateFinal, fsm.StatusSucceeded)
}

func (t *TakeObject) failed(ctx context.Context) fsm.Transition {
	t.env.Commands.SayBrief(ctx, t.env.phrases().ObjectNotTaken)
	return fsm.Finish(stateFinal, fsm.StatusFailed)
}
