package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/gpsr/pkg/bus"
	"github.com/odvcencio/gpsr/pkg/command"
	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/lang"
	"github.com/odvcencio/gpsr/pkg/world"
)

type fixture struct {
	responder *Responder
	channel   *command.BusChannel
	commands  *command.Commands
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b := bus.NewMemoryBus()
	t.Cleanup(func() {
		cancel()
		b.Close()
	})

	r := NewResponder(b, opts...)
	require.NoError(t, r.Start(ctx))
	t.Cleanup(func() { _ = r.Stop() })

	ch, err := command.NewBusChannel(ctx, b, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })

	timeouts := command.DefaultTimeouts()
	timeouts.Navigation = 200 * time.Millisecond
	timeouts.Say = 200 * time.Millisecond
	return &fixture{responder: r, channel: ch, commands: command.NewCommands(ch, timeouts, nil)}
}

func TestResponder_SucceedsByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.commands.Say(ctx, "hello"))
	assert.True(t, f.commands.GetClose(ctx, "kitchen"))
	assert.Equal(t, 1, f.responder.Count(command.KindSay))
	assert.Equal(t, 1, f.responder.Count(command.KindGetClose))
}

func TestResponder_ScriptThenDefault(t *testing.T) {
	f := newFixture(t)
	f.responder.Script(command.KindGetClose, Fail, Succeed).Default(command.KindGetClose, Fail)
	ctx := context.Background()

	assert.False(t, f.commands.GetClose(ctx, "kitchen"))
	assert.True(t, f.commands.GetClose(ctx, "kitchen"))
	assert.False(t, f.commands.GetClose(ctx, "kitchen"))
	assert.Equal(t, 3, f.responder.Count(command.KindGetClose))
}

func TestResponder_SilentTimesOut(t *testing.T) {
	f := newFixture(t)
	f.responder.Script(command.KindSay, Silent)
	ctx := context.Background()

	require.NoError(t, f.channel.Send(ctx, command.KindSay, "anyone?"))
	_, err := f.channel.AwaitResponse(ctx, command.KindSay, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, gerrors.IsCode(err, gerrors.ErrCodeTimeout))
}

func TestResponder_DelayedReplyArrives(t *testing.T) {
	f := newFixture(t)
	f.responder.Script(command.KindGetClose, Outcome{OK: true, Delay: 30 * time.Millisecond})

	start := time.Now()
	assert.True(t, f.commands.GetClose(context.Background(), "kitchen"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestResponder_LatencyOption(t *testing.T) {
	f := newFixture(t, WithLatency(20*time.Millisecond))

	start := time.Now()
	assert.True(t, f.commands.Say(context.Background(), "hello"))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestResponder_SearchAndTakeNamesArm(t *testing.T) {
	f := newFixture(t)
	f.responder.Script(command.KindSearchAndTake, Outcome{OK: true, Payload: "left"})

	arm, ok := f.commands.SearchAndTake(context.Background(), "coke", "", world.ArmNone)
	require.True(t, ok)
	assert.Equal(t, world.ArmLeft, arm)
}

func TestResponder_GrammarAnswersProcessString(t *testing.T) {
	f := newFixture(t, WithGrammar(NewGrammar()))
	parser := lang.NewChannelParser(f.commands)

	seq, err := parser.Parse(context.Background(), "Bring me a coke from the kitchen")
	require.NoError(t, err)
	assert.Equal(t, "navigate_to kitchen|take_object coke|bring_object me_location", seq.String())

	_, err = parser.Parse(context.Background(), "dance for me")
	require.Error(t, err)
	assert.True(t, gerrors.IsCode(err, gerrors.ErrCodeInterpreter))
}

func TestResponder_StopIsIdempotent(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()
	r := NewResponder(b)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	assert.NoError(t, r.Stop())
	assert.NoError(t, r.Stop())
}

func TestGrammar_Interpret(t *testing.T) {
	g := NewGrammar()
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"go to the kitchen", "navigate_to kitchen", true},
		{"Robot, please navigate to loc2.", "navigate_to loc2", true},
		{"go to the kitchen, take the coke and bring it to me", "navigate_to kitchen|take_object coke|bring_object me_location", true},
		{"grab an apple then deliver it to exit", "take_object apple|bring_object exit", true},
		{"tell me the time", "tell_phrase time", true},
		{"say your name", "tell_phrase name", true},
		{"answer a question", "answer_question", true},
		{"go to the kitchen and juggle", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := g.Interpret(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
