// Package mission sequences one GPSR command cycle: enter the arena, reach
// the operator, listen for and confirm a command, parse it into primitive
// invocations, run them in order, then leave.
package mission

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/gpsr/pkg/behavior"
	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/fsm"
	"github.com/odvcencio/gpsr/pkg/lang"
	"github.com/odvcencio/gpsr/pkg/observability"
	"github.com/odvcencio/gpsr/pkg/world"
)

// Mission states.
const (
	StateInit               fsm.State = "init"
	StateEnterArena         fsm.State = "enter_arena"
	StateNavigateToOperator fsm.State = "navigate_to_operator"
	StateWaitForCommand     fsm.State = "wait_for_command"
	StateConfirmCommand     fsm.State = "confirm_command"
	StateParseCommand       fsm.State = "parse_command"
	StatePerformCommand     fsm.State = "perform_command"
	StateLeaveArena         fsm.State = "leave_arena"
	StateFinal              fsm.State = "final"
)

// Defaults for Options.
const (
	DefaultConfirmAttempts = 15
	DefaultPollDelay       = time.Second
)

// Options tune the listening states.
type Options struct {
	// ConfirmAttempts bounds how many empty or unclear polls the
	// confirmation step tolerates before treating the answer as "no".
	ConfirmAttempts int `yaml:"confirm_attempts"`
	// PollDelay is the longest single wait on the utterance queue.
	PollDelay time.Duration `yaml:"poll_delay"`
}

// DefaultOptions returns the options used on the robot.
func DefaultOptions() Options {
	return Options{ConfirmAttempts: DefaultConfirmAttempts, PollDelay: DefaultPollDelay}
}

// Snapshot is a point-in-time view of a running mission.
type Snapshot struct {
	RunID      string `json:"runId"`
	State      string `json:"state"`
	Command    string `json:"command,omitempty"`
	Holding    string `json:"holding,omitempty"`
	Invocation int    `json:"invocation"`
	Total      int    `json:"total"`
}

// Orchestrator runs the mission state machine.
type Orchestrator struct {
	env        *behavior.Env
	parser     lang.Parser
	dispatcher *Dispatcher
	recorder   Recorder
	opts       Options
	log        *observability.Logger

	m            *fsm.Machine
	report       *Report
	sequence     lang.Sequence
	next         int
	confirmPolls int

	mu    sync.RWMutex
	state fsm.State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder persists the report when the run ends.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithDispatcher replaces the built-in primitive table.
func WithDispatcher(d *Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithOptions overrides the listening options.
func WithOptions(opts Options) Option {
	return func(o *Orchestrator) {
		if opts.ConfirmAttempts > 0 {
			o.opts.ConfirmAttempts = opts.ConfirmAttempts
		}
		if opts.PollDelay > 0 {
			o.opts.PollDelay = opts.PollDelay
		}
	}
}

// New builds an orchestrator on top of a behavior environment.
func New(env *behavior.Env, parser lang.Parser, options ...Option) *Orchestrator {
	o := &Orchestrator{
		env:        env,
		parser:     parser,
		dispatcher: NewDispatcher(),
		opts:       DefaultOptions(),
		log:        env.Log.WithBehavior("mission"),
		state:      StateInit,
	}
	for _, opt := range options {
		opt(o)
	}

	o.m = env.Machine("mission").
		Observe(fsm.ObserverFunc(o.track)).
		AddState(StateInit, o.traced(StateInit, o.init), StateEnterArena).
		AddState(StateEnterArena, o.traced(StateEnterArena, o.enterArena), StateNavigateToOperator).
		AddState(StateNavigateToOperator, o.traced(StateNavigateToOperator, o.navigateToOperator), StateWaitForCommand).
		AddState(StateWaitForCommand, o.waitForCommand, StateConfirmCommand).
		AddState(StateConfirmCommand, o.confirmCommand, StateWaitForCommand, StateParseCommand).
		AddState(StateParseCommand, o.traced(StateParseCommand, o.parseCommand), StatePerformCommand, StateLeaveArena).
		AddState(StatePerformCommand, o.performCommand, StateLeaveArena).
		AddState(StateLeaveArena, o.traced(StateLeaveArena, o.leaveArena), StateFinal).
		AddState(StateFinal, nil).
		SetStart(StateInit).
		SetFinal(StateFinal).
		MustBuild()
	return o
}

// Run executes one mission to completion and returns its report. The error
// is non-nil only when the mission was halted before leaving the arena.
// Runs must not overlap.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if err := o.m.Build(); err != nil {
		return nil, err
	}
	report := &Report{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	o.mu.Lock()
	o.report = report
	o.sequence = nil
	o.mu.Unlock()
	o.log = o.env.Log.WithBehavior("mission").WithRun(report.ID)

	ctx, span := observability.StartSpan(ctx, "mission.run")
	defer span.End()
	span.SetAttributes(observability.AttrRunID.String(o.report.ID))

	status, err := o.m.Execute(ctx)
	if err != nil {
		o.log.Warn("mission halted", "state", o.m.Current().String(), "error", err.Error())
		observability.RecordError(ctx, err)
		status = fsm.StatusFailed
	}

	o.report.Status = status.String()
	o.report.EndedAt = time.Now().UTC()
	observability.MissionRuns.WithLabelValues(o.report.Status).Inc()
	span.SetAttributes(observability.AttrStatus.String(o.report.Status))
	o.log.Info("mission finished",
		"status", o.report.Status,
		"invocations", len(o.report.Invocations),
		"failed", o.report.Failed(),
		"skipped", o.report.Skipped(),
		"duration_ms", o.report.EndedAt.Sub(o.report.StartedAt).Milliseconds(),
	)

	if o.recorder != nil {
		// the run context may already be cancelled
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := o.recorder.RecordRun(recordCtx, o.report); rerr != nil {
			o.log.Error("failed to record mission run", "error", rerr.Error())
		}
	}
	return o.report, err
}

// Snapshot reports where the mission currently is.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := Snapshot{
		State:   o.state.String(),
		Command: o.env.Task.Command(),
		Holding: string(o.env.Task.HoldingArm()),
	}
	if o.report != nil {
		s.RunID = o.report.ID
		s.Invocation = len(o.report.Invocations)
		s.Total = len(o.sequence)
	}
	return s
}

func (o *Orchestrator) track(_ string, _, to fsm.State) {
	o.mu.Lock()
	o.state = to
	o.mu.Unlock()
}

func (o *Orchestrator) traced(state fsm.State, h fsm.Handler) fsm.Handler {
	return func(ctx context.Context) fsm.Transition {
		ctx, span := observability.StartSpan(ctx, "mission."+state.String())
		defer span.End()
		tr := h(ctx)
		span.SetAttributes(observability.AttrState.String(tr.Next.String()))
		return tr
	}
}

func (o *Orchestrator) phrases() world.Phrases {
	return o.env.Task.World().Phrases()
}

func (o *Orchestrator) say(ctx context.Context, text string) {
	o.env.Commands.Say(ctx, text)
}

// attempt bounds a mission phase at behavior.MaxAttempts and reports
// whether it was exhausted.
func (o *Orchestrator) attempt(ctx context.Context, step string, fn func() bool) (exhausted bool) {
	return !o.env.Attempt(ctx, step, fn)
}

func (o *Orchestrator) init(ctx context.Context) fsm.Transition {
	o.env.Task.Reset()
	o.env.Queue.Clear()
	o.next = 0
	o.confirmPolls = 0
	return fsm.Go(StateEnterArena)
}

// enterArena never blocks the mission: an exhausted entry is recorded and
// the run carries on.
func (o *Orchestrator) enterArena(ctx context.Context) fsm.Transition {
	entrance := o.env.Task.World().Places().Entrance
	o.report.EnterExhausted = o.attempt(ctx, "mission.enter_arena", func() bool {
		return o.env.Commands.EnterArena(ctx, entrance)
	})
	return fsm.Go(StateNavigateToOperator)
}

func (o *Orchestrator) navigateToOperator(ctx context.Context) fsm.Transition {
	operator := o.env.Task.World().Places().Operator
	o.report.ApproachExhausted = o.attempt(ctx, "mission.navigate_to_operator", func() bool {
		return behavior.NewNavigation(o.env, operator).Execute(ctx).OK()
	})
	o.say(ctx, o.phrases().WaitForCommand)
	o.env.Queue.Clear()
	return fsm.Go(StateWaitForCommand)
}

// waitForCommand polls without bound; the gate is consulted between polls.
func (o *Orchestrator) waitForCommand(ctx context.Context) fsm.Transition {
	if !o.env.Queue.Wait(ctx, o.opts.PollDelay) {
		return fsm.Go(StateWaitForCommand)
	}
	text, ok := o.env.Queue.TakeAndClear()
	if !ok {
		return fsm.Go(StateWaitForCommand)
	}

	o.log.Info("command heard", "utterance", text)
	o.env.Task.SetCommand(text)
	o.report.Utterance = text
	o.say(ctx, o.phrases().DidYouSay+" "+text)
	o.env.Commands.SayBrief(ctx, o.phrases().ConfirmPrompt)
	o.env.Queue.Clear()
	o.confirmPolls = 0
	return fsm.Go(StateConfirmCommand)
}

func (o *Orchestrator) confirmCommand(ctx context.Context) fsm.Transition {
	if o.confirmPolls >= o.opts.ConfirmAttempts {
		o.log.AttemptsExhausted("mission.confirm_command", o.confirmPolls)
		observability.AttemptsExhausted.WithLabelValues("mission.confirm_command").Inc()
		return o.rejectCommand(ctx)
	}
	if !o.env.Queue.Wait(ctx, o.opts.PollDelay) {
		o.confirmPolls++
		return fsm.Go(StateConfirmCommand)
	}
	// only a rejection clears the queue
	text, ok := o.env.Queue.TryDequeue()
	if !ok {
		return fsm.Go(StateConfirmCommand)
	}

	switch lang.ParseConfirmation(text) {
	case lang.ConfirmYes:
		o.log.Info("command confirmed", "command", o.env.Task.Command())
		return fsm.Go(StateParseCommand)
	case lang.ConfirmNo:
		return o.rejectCommand(ctx)
	default:
		o.log.Debug("unclear confirmation", "utterance", text)
		o.confirmPolls++
		return fsm.Go(StateConfirmCommand)
	}
}

func (o *Orchestrator) rejectCommand(ctx context.Context) fsm.Transition {
	o.report.Rejected++
	o.report.Utterance = ""
	o.env.Task.SetCommand("")
	o.env.Queue.Clear()
	o.say(ctx, o.phrases().RepeatCommand)
	return fsm.Go(StateWaitForCommand)
}

func (o *Orchestrator) parseCommand(ctx context.Context) fsm.Transition {
	command := o.env.Task.Command()
	seq, err := o.parser.Parse(ctx, command)
	if err != nil {
		o.log.ParseFailed(command, err)
		o.report.ParseError = err.Error()
		o.say(ctx, o.phrases().SentenceNotParsed)
		return fsm.Go(StateLeaveArena)
	}

	o.mu.Lock()
	o.sequence = seq
	o.mu.Unlock()
	o.next = 0
	o.report.Sequence = seq.String()
	o.log.Info("command parsed", "sequence", o.report.Sequence, "invocations", len(seq))
	return fsm.Go(StatePerformCommand)
}

// performCommand runs one invocation per step so the gate can pause the
// mission between primitives.
func (o *Orchestrator) performCommand(ctx context.Context) fsm.Transition {
	if o.next >= len(o.sequence) {
		return fsm.Go(StateLeaveArena)
	}
	inv := o.sequence[o.next]
	result := InvocationResult{
		Index:     o.next,
		Primitive: inv.Name,
		Args:      inv.Args,
		StartedAt: time.Now().UTC(),
	}
	o.next++

	ctx, span := observability.StartSpan(ctx, "mission.invocation")
	defer span.End()
	span.SetAttributes(
		observability.AttrPrimitive.String(inv.Name),
		observability.AttrArgs.String(strings.Join(inv.Args, " ")),
	)

	b, err := o.dispatcher.Build(o.env, inv)
	switch {
	case gerrors.IsCode(err, gerrors.ErrCodeUnknownPrimitive):
		o.log.UnknownPrimitive(inv.Name, inv.Args)
		observability.UnknownPrimitives.WithLabelValues(inv.Name).Inc()
		result.Outcome = OutcomeSkipped
		result.Reason = err.Error()
	case err != nil:
		o.log.Warn("invocation skipped", "primitive", inv.Name, "error", err.Error())
		result.Outcome = OutcomeSkipped
		result.Reason = err.Error()
	default:
		if b.Execute(ctx).OK() {
			result.Outcome = OutcomeSucceeded
		} else {
			o.log.Warn("primitive failed, continuing with the sequence", "primitive", inv.Name, "args", inv.Args)
			result.Outcome = OutcomeFailed
		}
	}

	result.EndedAt = time.Now().UTC()
	span.SetAttributes(observability.AttrStatus.String(string(result.Outcome)))
	o.mu.Lock()
	o.report.Invocations = append(o.report.Invocations, result)
	o.mu.Unlock()
	return fsm.Go(StatePerformCommand)
}

// leaveArena ends the run. The mission succeeds when a command was parsed
// and none of its primitives failed.
func (o *Orchestrator) leaveArena(ctx context.Context) fsm.Transition {
	o.say(ctx, o.phrases().LeavingArena)
	exit := o.env.Task.World().Places().Exit
	o.report.ExitExhausted = o.attempt(ctx, "mission.leave_arena", func() bool {
		return behavior.NewNavigation(o.env, exit).Execute(ctx).OK()
	})

	status := fsm.StatusSucceeded
	if o.report.ParseError != "" || o.report.Failed() > 0 {
		status = fsm.StatusFailed
	}
	return fsm.Finish(StateFinal, status)
}
