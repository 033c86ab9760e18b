package behavior

import (
	"context"

	"github.com/odvcencio/gpsr/pkg/fsm"
	"github.com/odvcencio/gpsr/pkg/world"
)

const (
	navPrepareArms fsm.State = "prepare_arms"
	navNavigate    fsm.State = "navigate"
	navSucceeded   fsm.State = "succeeded"
	navFailed      fsm.State = "failed"
)

// Navigation moves the base to a named location. Arms are first put into a
// travel pose; the approach strategy depends on the location kind.
type Navigation struct {
	env         *Env
	destination string
	m           *fsm.Machine
}

// NewNavigation creates a navigation primitive towards destination.
func NewNavigation(env *Env, destination string) *Navigation {
	n := &Navigation{env: env, destination: destination}
	n.m = env.Machine("navigate").
		AddState(stateInit, n.init, navPrepareArms).
		AddState(navPrepareArms, n.prepareArms, navNavigate).
		AddState(navNavigate, n.navigate, navSucceeded, navFailed).
		AddState(navSucceeded, n.succeeded, stateFinal).
		AddState(navFailed, n.failed, stateFinal).
		AddState(stateFinal, nil).
		SetStart(stateInit).
		SetFinal(stateFinal).
		MustBuild()
	return n
}

func (n *Navigation) Name() string { return "navigate" }

// Execute runs the primitive to completion.
func (n *Navigation) Execute(ctx context.Context) fsm.Status {
	return run(ctx, n.env, n.Name(), n.m)
}

func (n *Navigation) init(ctx context.Context) fsm.Transition {
	n.env.Log.Debug("navigation started", "destination", n.destination)
	return fsm.Go(navPrepareArms)
}

// prepareArms is best effort: failing to reach the travel pose does not
// stop the navigation.
func (n *Navigation) prepareArms(ctx context.Context) fsm.Transition {
	pose := n.env.Task.TravelPose()
	arms := n.env.Task.EnabledArms()
	n.env.Attempt(ctx, "navigate.prepare_arms", func() bool {
		return n.env.Commands.ArmsGoto(ctx, arms, pose)
	})
	return fsm.Go(navNavigate)
}

func (n *Navigation) navigate(ctx context.Context) fsm.Transition {
	kind := n.env.Task.World().KindOf(n.destination)
	n.env.Log.Debug("approaching location", "destination", n.destination, "kind", kind.String())

	approach := n.env.Commands.GetClose
	if kind == world.KindTable {
		approach = n.env.Commands.GetCloseToTable
	}
	if n.env.Attempt(ctx, "navigate.approach", func() bool { return approach(ctx, n.destination) }) {
		return fsm.Go(navSucceeded)
	}
	return fsm.Go(navFailed)
}

func (n *Navigation) succeeded(ctx context.Context) fsm.Transition {
	if arm := n.env.Task.HoldingArm(); arm != world.ArmNone {
		n.env.Commands.ArmGoto(ctx, arm, n.env.Task.World().Poses().Home)
	}
	n.env.Commands.SayBrief(ctx, n.env.phrases().LocationReached)
	return fsm.Finish(stateFinal, fsm.StatusSucceeded)
}

func (n *Navigation) failed(ctx context.Context) fsm.Transition {
	n.env.Commands.SayBrief(ctx, n.env.phrases().LocationNotReached)
	return fsm.Finish(stateFinal, fsm.StatusFailed)
}
