package behavior

import (
	"context"

	"github.com/odvcencio/gpsr/pkg/fsm"
	"github.com/odvcencio/gpsr/pkg/world"
)

const (
	bringNavigate    fsm.State = "navigate_to_target"
	bringFoundPerson fsm.State = "found_person"
	bringDeliver     fsm.State = "deliver_object"
)

// BringObject carries the held object to a target and releases it.
//
// Navigation to the target is retried without bound at this level; each
// attempt is itself bounded inside Navigation. The holding marker is always
// cleared after delivery and the primitive always ends Succeeded once the
// target is reached.
type BringObject struct {
	env    *Env
	target string
	place  string
	m      *fsm.Machine

	navigations int
}

// NewBringObject creates a bring primitive. target is a spoken alias
// resolved through the bring-target table; an unknown alias is used as a
// location name directly.
func NewBringObject(env *Env, target string) *BringObject {
	b := &BringObject{env: env, target: target}
	b.m = env.Machine("bring_object").
		AddState(stateInit, b.init, bringNavigate).
		AddState(bringNavigate, b.navigateToTarget, bringFoundPerson, bringDeliver).
		AddState(bringFoundPerson, b.foundPerson, bringDeliver).
		AddState(bringDeliver, b.deliver, stateFinal).
		AddState(stateFinal, nil).
		SetStart(stateInit).
		SetFinal(stateFinal).
		MustBuild()
	return b
}

func (b *BringObject) Name() string { return "bring_object" }

// Execute runs the primitive to completion.
func (b *BringObject) Execute(ctx context.Context) fsm.Status {
	return run(ctx, b.env, b.Name(), b.m)
}

// Navigations returns how many navigation runs were needed.
func (b *BringObject) Navigations() int {
	return b.navigations
}

func (b *BringObject) init(ctx context.Context) fsm.Transition {
	place, ok := b.env.Task.World().ResolveTarget(b.target)
	if !ok {
		b.env.Log.Warn("bring target not in table, using it as a location", "target", b.target)
		place = b.target
	}
	b.place = place
	return fsm.Go(bringNavigate)
}

func (b *BringObject) navigateToTarget(ctx context.Context) fsm.Transition {
	b.navigations++
	if !NewNavigation(b.env, b.place).Execute(ctx).OK() {
		return fsm.Go(bringNavigate)
	}
	if b.env.Task.World().BringToHuman() {
		return fsm.Go(bringFoundPerson)
	}
	return fsm.Go(bringDeliver)
}

func (b *BringObject) foundPerson(ctx context.Context) fsm.Transition {
	b.env.Commands.SayBrief(ctx, b.env.phrases().TakeObjectFromMe)
	return fsm.Go(bringDeliver)
}

func (b *BringObject) deliver(ctx context.Context) fsm.Transition {
	if b.env.Task.World().BringToHuman() {
		arm := b.env.Task.HoldingArm()
		if object := b.env.Task.HeldObject(); object != "" {
			b.env.Commands.SayBrief(ctx, world.DeliverPhrase(object, ""))
		}
		if !b.env.Commands.DeliverObject(ctx, arm) {
			b.env.Log.Warn("release failed, reporting delivery as done", "arm", arm)
		}
	}
	b.env.Task.ClearHoldingArm()
	return fsm.Finish(stateFinal, fsm.StatusSucceeded)
}
