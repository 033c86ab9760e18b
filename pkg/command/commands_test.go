package command_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/gpsr/pkg/command"
	"github.com/odvcencio/gpsr/pkg/command/commandtest"
	"github.com/odvcencio/gpsr/pkg/world"
)

func TestCommands_ArmsGotoSelectsKind(t *testing.T) {
	tests := []struct {
		arms world.ArmSet
		kind command.Kind
	}{
		{world.ArmsBoth, command.KindArmsGoto},
		{world.ArmsLeft, command.KindLeftArmGoto},
		{world.ArmsRight, command.KindRightArmGoto},
	}
	for _, tt := range tests {
		t.Run(tt.arms.String(), func(t *testing.T) {
			ch := commandtest.New()
			cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)

			assert.True(t, cmds.ArmsGoto(context.Background(), tt.arms, "standby"))
			require.Len(t, ch.Calls(), 1)
			assert.Equal(t, commandtest.Call{Kind: tt.kind, Payload: "standby"}, ch.Calls()[0])
		})
	}
}

func TestCommands_ArmsGotoNoArmsIsNoop(t *testing.T) {
	ch := commandtest.New()
	cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)

	assert.True(t, cmds.ArmsGoto(context.Background(), world.ArmsNone, "home"))
	assert.Empty(t, ch.Calls())
}

func TestCommands_FailureAndTimeoutAreFalse(t *testing.T) {
	ch := commandtest.New().Script(command.KindGetClose, commandtest.Fail, commandtest.TimedOut, commandtest.OK)
	cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)
	ctx := context.Background()

	assert.False(t, cmds.GetClose(ctx, "kitchen"))
	assert.False(t, cmds.GetClose(ctx, "kitchen"))
	assert.True(t, cmds.GetClose(ctx, "kitchen"))
	assert.Equal(t, 3, ch.Count(command.KindGetClose))
}

func TestCommands_SearchAndTake(t *testing.T) {
	ctx := context.Background()

	t.Run("reply names arm", func(t *testing.T) {
		ch := commandtest.New().Script(command.KindSearchAndTake, commandtest.Reply("left"))
		cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)

		arm, ok := cmds.SearchAndTake(ctx, "snack", "chips", world.ArmNone)
		require.True(t, ok)
		assert.Equal(t, world.ArmLeft, arm)

		var req command.SearchRequest
		require.NoError(t, json.Unmarshal([]byte(ch.Payloads(command.KindSearchAndTake)[0]), &req))
		assert.Equal(t, command.SearchRequest{Object: "snack", Backup: "chips"}, req)
	})

	t.Run("falls back to preferred hand", func(t *testing.T) {
		ch := commandtest.New()
		cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)

		arm, ok := cmds.SearchAndTake(ctx, "snack", "", world.ArmLeft)
		require.True(t, ok)
		assert.Equal(t, world.ArmLeft, arm)
	})

	t.Run("defaults to right arm", func(t *testing.T) {
		ch := commandtest.New()
		cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)

		arm, ok := cmds.SearchAndTake(ctx, "snack", "", world.ArmNone)
		require.True(t, ok)
		assert.Equal(t, world.ArmRight, arm)
	})

	t.Run("failure holds nothing", func(t *testing.T) {
		ch := commandtest.New().Script(command.KindSearchAndTake, commandtest.Fail)
		cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)

		arm, ok := cmds.SearchAndTake(ctx, "snack", "", world.ArmRight)
		assert.False(t, ok)
		assert.Equal(t, world.ArmNone, arm)
	})
}

func TestCommands_DeliverAndSay(t *testing.T) {
	ch := commandtest.New()
	cmds := command.NewCommands(ch, command.DefaultTimeouts(), nil)
	ctx := context.Background()

	assert.True(t, cmds.DeliverObject(ctx, world.ArmRight))
	assert.True(t, cmds.Say(ctx, "I got it."))
	assert.True(t, cmds.SayBrief(ctx, "Did you say:"))

	assert.Equal(t, []string{"right"}, ch.Payloads(command.KindDeliver))
	assert.Equal(t, []string{"I got it.", "Did you say:"}, ch.Payloads(command.KindSay))
}
