package behavior

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/gpsr/pkg/command"
	"github.com/odvcencio/gpsr/pkg/command/commandtest"
	"github.com/odvcencio/gpsr/pkg/fsm"
	"github.com/odvcencio/gpsr/pkg/lang"
	"github.com/odvcencio/gpsr/pkg/utterance"
	"github.com/odvcencio/gpsr/pkg/world"
)

type harness struct {
	env *Env
	ch  *commandtest.Channel
}

func newHarness(t *testing.T, mutate func(*world.Spec), classifier lang.Classifier) *harness {
	t.Helper()
	spec := world.DefaultSpec()
	spec.Locations["table1"] = "table"
	if mutate != nil {
		mutate(&spec)
	}
	w, err := world.New(spec)
	require.NoError(t, err)

	ch := commandtest.New()
	cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)
	env := NewEnv(cmds, world.NewTaskContext(w), utterance.NewQueue(), classifier, nil)
	env.AnswerPollDelay = time.Millisecond
	return &harness{env: env, ch: ch}
}

func TestNavigation_ApproachByKind(t *testing.T) {
	tests := []struct {
		destination string
		kind        command.Kind
	}{
		{"table1", command.KindTableApproach},
		{"kitchen", command.KindGetClose},
		{"gpsrLoc", command.KindGetClose},
		{"nowhere", command.KindGetClose},
	}
	for _, tt := range tests {
		t.Run(tt.destination, func(t *testing.T) {
			h := newHarness(t, nil, nil)

			status := NewNavigation(h.env, tt.destination).Execute(context.Background())

			assert.Equal(t, fsm.StatusSucceeded, status)
			assert.Equal(t, []string{tt.destination}, h.ch.Payloads(tt.kind))
			assert.Equal(t, []string{"standby"}, h.ch.Payloads(command.KindArmsGoto))
			assert.Equal(t, []string{h.env.phrases().LocationReached}, h.ch.Payloads(command.KindSay))
		})
	}
}

func TestNavigation_FailsAfterThreeApproaches(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ch.Default(command.KindGetClose, commandtest.Fail)

	status := NewNavigation(h.env, "kitchen").Execute(context.Background())

	assert.Equal(t, fsm.StatusFailed, status)
	assert.Equal(t, MaxAttempts, h.ch.Count(command.KindGetClose))
	assert.Equal(t, []string{h.env.phrases().LocationNotReached}, h.ch.Payloads(command.KindSay))
}

func TestNavigation_ArmFailuresDoNotBlock(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ch.Default(command.KindArmsGoto, commandtest.TimedOut)

	status := NewNavigation(h.env, "kitchen").Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.Equal(t, MaxAttempts, h.ch.Count(command.KindArmsGoto))
	assert.Equal(t, 1, h.ch.Count(command.KindGetClose))
}

func TestNavigation_HoldingUsesObjectPoseAndHomesArm(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.env.Task.SetHoldingArm(world.ArmRight)

	status := NewNavigation(h.env, "kitchen").Execute(context.Background())

	require.Equal(t, fsm.StatusSucceeded, status)
	assert.Equal(t, []string{"navigation"}, h.ch.Payloads(command.KindArmsGoto))
	assert.Equal(t, []string{"home"}, h.ch.Payloads(command.KindRightArmGoto))
}

func TestNavigation_SingleArmConfiguration(t *testing.T) {
	h := newHarness(t, func(s *world.Spec) { s.Arms.Right = false }, nil)

	status := NewNavigation(h.env, "kitchen").Execute(context.Background())

	require.Equal(t, fsm.StatusSucceeded, status)
	assert.Zero(t, h.ch.Count(command.KindArmsGoto))
	assert.Equal(t, []string{"standby"}, h.ch.Payloads(command.KindLeftArmGoto))
}

func TestTakeObject_RecordsGraspingArm(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ch.Script(command.KindSearchAndTake, commandtest.Reply("left"))

	status := NewTakeObject(h.env, "coke", "juice").Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.Equal(t, world.ArmLeft, h.env.Task.HoldingArm())
	assert.Equal(t, "coke", h.env.Task.HeldObject())
	assert.Equal(t, []string{h.env.phrases().ObjectTaken}, h.ch.Payloads(command.KindSay))
	assert.JSONEq(t, `{"object":"coke","backup":"juice"}`, h.ch.Payloads(command.KindSearchAndTake)[0])
}

func TestTakeObject_FailureLeavesMarker(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ch.Script(command.KindSearchAndTake, commandtest.Fail)

	status := NewTakeObject(h.env, "coke", "").Execute(context.Background())

	assert.Equal(t, fsm.StatusFailed, status)
	assert.False(t, h.env.Task.IsHolding())
	assert.Equal(t, []string{h.env.phrases().ObjectNotTaken}, h.ch.Payloads(command.KindSay))
}

func TestTakeObject_PrefersFreeHand(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.env.Task.SetHoldingArm(world.ArmRight)

	status := NewTakeObject(h.env, "apple", "").Execute(context.Background())

	require.Equal(t, fsm.StatusSucceeded, status)
	assert.JSONEq(t, `{"object":"apple","hand":"left"}`, h.ch.Payloads(command.KindSearchAndTake)[0])
	assert.Equal(t, world.ArmLeft, h.env.Task.HoldingArm())
}

func TestBringObject_WithoutHandOver(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.env.Task.SetHoldingArm(world.ArmRight)

	b := NewBringObject(h.env, "living_room")
	status := b.Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.Equal(t, []string{"loc2"}, h.ch.Payloads(command.KindGetClose))
	assert.Zero(t, h.ch.Count(command.KindDeliver))
	assert.False(t, h.env.Task.IsHolding())
	assert.Equal(t, 1, b.Navigations())
}

func TestBringObject_HandOverReleasesHoldingArm(t *testing.T) {
	h := newHarness(t, func(s *world.Spec) { s.BringToHuman = true }, nil)
	h.env.Task.SetHoldingArm(world.ArmLeft)
	h.env.Task.SetHeldObject("coke")

	status := NewBringObject(h.env, "me_location").Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.Equal(t, []string{"left"}, h.ch.Payloads(command.KindDeliver))
	assert.Contains(t, h.ch.Payloads(command.KindSay), h.env.phrases().TakeObjectFromMe)
	assert.Contains(t, h.ch.Payloads(command.KindSay), "Here is your coke")
	assert.False(t, h.env.Task.IsHolding())
}

func TestBringObject_ReleaseFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, func(s *world.Spec) { s.BringToHuman = true }, nil)
	h.env.Task.SetHoldingArm(world.ArmLeft)
	h.ch.Script(command.KindDeliver, commandtest.Fail)

	status := NewBringObject(h.env, "me_location").Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.False(t, h.env.Task.IsHolding())
}

func TestBringObject_RetriesNavigation(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ch.Script(command.KindGetClose, commandtest.Fail, commandtest.Fail, commandtest.Fail, commandtest.OK)

	b := NewBringObject(h.env, "kitchen")
	status := b.Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.Equal(t, 2, b.Navigations())
	assert.Equal(t, 4, h.ch.Count(command.KindGetClose))
}

func TestBringObject_UnknownAliasUsedAsLocation(t *testing.T) {
	h := newHarness(t, nil, nil)

	status := NewBringObject(h.env, "table1").Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.Equal(t, []string{"table1"}, h.ch.Payloads(command.KindTableApproach))
}

func TestBringObject_StopsWhenCancelled(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ch.Default(command.KindGetClose, commandtest.Fail)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.env.Observers = append(h.env.Observers, fsm.ObserverFunc(func(machine string, from, to fsm.State) {
		if machine == "bring_object" && to == bringNavigate && from == bringNavigate {
			cancel()
		}
	}))

	status := NewBringObject(h.env, "kitchen").Execute(ctx)

	assert.Equal(t, fsm.StatusFailed, status)
}

func TestTellPhrase(t *testing.T) {
	fixed := time.Date(2024, time.March, 4, 15, 7, 0, 0, time.UTC)
	tests := []struct {
		key  string
		want []string
	}{
		{"time", []string{"Monday, March 4 2024, 3:07 PM"}},
		{"name", []string{"Hello I'm the robot Justina"}},
		{"weather", nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			h := newHarness(t, nil, nil)
			h.env.now = func() time.Time { return fixed }

			status := NewTellPhrase(h.env, tt.key).Execute(context.Background())

			assert.Equal(t, fsm.StatusSucceeded, status)
			assert.Equal(t, tt.want, h.ch.Payloads(command.KindSay))
		})
	}
}

func TestTellPhrase_SpeechFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ch.Default(command.KindSay, commandtest.TimedOut)

	assert.Equal(t, fsm.StatusSucceeded, NewTellPhrase(h.env, "name").Execute(context.Background()))
}

// stepPastQuestion runs the answer primitive up to the polling state so the
// queue can be filled after the prompt cleared it.
func stepPastQuestion(t *testing.T, a *AnswerQuestion) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.m.Step(ctx))
	require.NoError(t, a.m.Step(ctx))
	require.Equal(t, answerAnswer, a.m.Current())
}

func TestAnswerQuestion_GivesUpAfterEmptyPolls(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t, nil, NewMockClassifier(ctrl))

	a := NewAnswerQuestion(h.env)
	status := a.Execute(context.Background())

	assert.Equal(t, fsm.StatusFailed, status)
	assert.Equal(t, DefaultAnswerPolls, a.Attempts())
	assert.Equal(t, []string{h.env.phrases().AskQuestion, h.env.phrases().CannotHear}, h.ch.Payloads(command.KindSay))
}

func TestAnswerQuestion_AnswersFirstQuestion(t *testing.T) {
	ctrl := gomock.NewController(t)
	classifier := NewMockClassifier(ctrl)
	classifier.EXPECT().
		Classify(gomock.Any(), "what is your name").
		Return(lang.Act{Verb: lang.VerbSay, Payload: "My name is Justina"}, nil)
	h := newHarness(t, nil, classifier)

	a := NewAnswerQuestion(h.env)
	stepPastQuestion(t, a)
	h.env.Queue.Push("what is your name")
	h.env.Queue.Push("leftover")

	status := a.Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.Zero(t, a.Attempts())
	assert.Equal(t, []string{h.env.phrases().AskQuestion, "My name is Justina"}, h.ch.Payloads(command.KindSay))
	assert.Zero(t, h.env.Queue.Len())
}

func TestAnswerQuestion_IgnoresNonSayActs(t *testing.T) {
	ctrl := gomock.NewController(t)
	classifier := NewMockClassifier(ctrl)
	gomock.InOrder(
		classifier.EXPECT().Classify(gomock.Any(), "hmm").Return(lang.Act{Verb: lang.VerbUnknown}, nil),
		classifier.EXPECT().Classify(gomock.Any(), "say hello").Return(lang.Act{Verb: lang.VerbSay, Payload: "hello"}, nil),
	)
	h := newHarness(t, nil, classifier)

	a := NewAnswerQuestion(h.env)
	stepPastQuestion(t, a)
	h.env.Queue.Push("hmm")
	require.NoError(t, a.m.Step(context.Background()))
	assert.Zero(t, a.Attempts())
	h.env.Queue.Push("say hello")

	status := a.Execute(context.Background())

	assert.Equal(t, fsm.StatusSucceeded, status)
	assert.Zero(t, a.Attempts())
	assert.Contains(t, h.ch.Payloads(command.KindSay), "hello")
}

func TestAnswerQuestion_ClassifierErrorKeepsPolling(t *testing.T) {
	ctrl := gomock.NewController(t)
	classifier := NewMockClassifier(ctrl)
	classifier.EXPECT().Classify(gomock.Any(), "garbled").Return(lang.Act{}, assert.AnError)
	h := newHarness(t, nil, classifier)
	h.env.AnswerPolls = 2

	a := NewAnswerQuestion(h.env)
	stepPastQuestion(t, a)
	h.env.Queue.Push("garbled")

	assert.Equal(t, fsm.StatusFailed, a.Execute(context.Background()))
	assert.Equal(t, 2, a.Attempts())
}

func TestEnv_PausedGateHoldsBehavior(t *testing.T) {
	h := newHarness(t, nil, nil)
	gate := &toggleGate{paused: true, changed: make(chan struct{}, 1)}
	h.env.Gate = gate
	h.env.PauseQuantum = time.Millisecond

	done := make(chan fsm.Status, 1)
	go func() { done <- NewTellPhrase(h.env, "name").Execute(context.Background()) }()

	select {
	case <-done:
		t.Fatal("behavior ran while paused")
	case <-time.After(20 * time.Millisecond):
	}
	gate.resume()

	select {
	case status := <-done:
		assert.Equal(t, fsm.StatusSucceeded, status)
	case <-time.After(time.Second):
		t.Fatal("behavior did not resume")
	}
}

type toggleGate struct {
	mu      sync.Mutex
	paused  bool
	changed chan struct{}
}

func (g *toggleGate) Running() bool { return true }

func (g *toggleGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func (g *toggleGate) Changed() <-chan struct{} { return g.changed }

func (g *toggleGate) resume() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
	select {
	case g.changed <- struct{}{}:
	default:
	}
}
