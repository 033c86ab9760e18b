// Package behavior implements the primitive robot actions (navigate, take,
// bring, tell, answer). Each primitive is a small state machine that drives
// the command channel and updates the shared task context, and reports its
// outcome only through its terminal status.
package behavior

import (
	"context"
	"time"

	"github.com/odvcencio/gpsr/pkg/command"
	"github.com/odvcencio/gpsr/pkg/fsm"
	"github.com/odvcencio/gpsr/pkg/lang"
	"github.com/odvcencio/gpsr/pkg/observability"
	"github.com/odvcencio/gpsr/pkg/utterance"
	"github.com/odvcencio/gpsr/pkg/world"
)

// MaxAttempts bounds every retried subsystem call inside a primitive.
const MaxAttempts = 3

// Answer polling defaults.
const (
	DefaultAnswerPolls     = 15
	DefaultAnswerPollDelay = time.Second
)

// Common state names.
const (
	stateInit  fsm.State = "init"
	stateFinal fsm.State = "final"
)

// Behavior is a runnable primitive.
type Behavior interface {
	Name() string
	Execute(ctx context.Context) fsm.Status
}

// Env is everything a primitive needs. One Env is shared by all behaviors
// of a mission run.
type Env struct {
	Commands   *command.Commands
	Task       *world.TaskContext
	Queue      *utterance.Queue
	Classifier lang.Classifier
	Gate       fsm.Gate
	Log        *observability.Logger
	Observers  []fsm.Observer

	AnswerPolls     int
	AnswerPollDelay time.Duration
	PauseQuantum    time.Duration

	now func() time.Time
}

// NewEnv fills defaults and hooks holding-arm swaps into the log.
func NewEnv(cmds *command.Commands, task *world.TaskContext, queue *utterance.Queue, classifier lang.Classifier, log *observability.Logger) *Env {
	if log == nil {
		log = observability.Discard()
	}
	env := &Env{
		Commands:        cmds,
		Task:            task,
		Queue:           queue,
		Classifier:      classifier,
		Gate:            fsm.AlwaysRun{},
		Log:             log,
		AnswerPolls:     DefaultAnswerPolls,
		AnswerPollDelay: DefaultAnswerPollDelay,
		PauseQuantum:    fsm.DefaultPauseQuantum,
		now:             time.Now,
	}
	task.OnHoldingSwap(func(prev, next world.Arm) {
		log.Warn("holding arm replaced while still marked", "previous", prev, "next", next)
	})
	return env
}

func (e *Env) phrases() world.Phrases {
	return e.Task.World().Phrases()
}

func (e *Env) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

// Machine returns a state machine wired to the env gate, its observers and
// the transition log.
func (e *Env) Machine(name string) *fsm.Machine {
	m := fsm.New(name).WithGate(e.Gate).WithPauseQuantum(e.PauseQuantum)
	m.Observe(transitionLogger{log: e.Log})
	for _, o := range e.Observers {
		m.Observe(o)
	}
	return m
}

// Attempt runs fn up to MaxAttempts times and records exhaustion.
func (e *Env) Attempt(ctx context.Context, step string, fn func() bool) bool {
	if fsm.AttemptCtx(ctx, MaxAttempts, func(int) bool { return fn() }) {
		return true
	}
	e.Log.AttemptsExhausted(step, MaxAttempts)
	observability.AttemptsExhausted.WithLabelValues(step).Inc()
	return false
}

// run executes a primitive's machine and converts the outcome to a status.
// A machine stopped before a final state counts as Failed.
func run(ctx context.Context, env *Env, name string, m *fsm.Machine) fsm.Status {
	ctx, span := observability.StartSpan(ctx, "behavior."+name)
	defer span.End()
	span.SetAttributes(observability.AttrBehavior.String(name))

	start := time.Now()
	status, err := m.Execute(ctx)
	if err != nil {
		env.Log.WithBehavior(name).Warn("behavior stopped before completion",
			"state", m.Current().String(), "error", err.Error())
		observability.RecordError(ctx, err)
		status = fsm.StatusFailed
	}
	if !status.OK() && status != fsm.StatusFailed {
		status = fsm.StatusFailed
	}

	elapsed := time.Since(start)
	observability.BehaviorRuns.WithLabelValues(name, status.String()).Inc()
	observability.BehaviorDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	span.SetAttributes(observability.AttrStatus.String(status.String()))
	env.Log.BehaviorFinished(name, status.String(), elapsed)
	return status
}

type transitionLogger struct {
	log *observability.Logger
}

func (t transitionLogger) OnTransition(machine string, from, to fsm.State) {
	t.log.StateEntered(machine, from.String(), to.String())
	observability.StateTransitions.WithLabelValues(machine, to.String()).Inc()
}
