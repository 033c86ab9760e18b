//go:build !windows

package mission

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/gpsr/pkg/command"
	"github.com/odvcencio/gpsr/pkg/command/commandtest"
	"github.com/odvcencio/gpsr/pkg/lang"
)

func TestOrchestrator_BridgeSequenceRunsPastFailedTake(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "parser.sh")
	require.NoError(t, os.WriteFile(script, []byte(`echo "parsing $(cat "$1")"
echo "navigate_to kitchen|take_object snack|navigate_to kitchen|bring_object kitchen"
`), 0o644))
	bridge := lang.NewBridge(lang.BridgeConfig{
		Interpreter: "/bin/sh",
		Script:      script,
		InputPath:   filepath.Join(dir, "stringToProcess"),
		LogPath:     filepath.Join(dir, "LOG"),
		Timeout:     5 * time.Second,
	}, nil)

	f := newFixture(t, []string{"bring the snack to the kitchen"}, []string{"yes"})
	f.ch.Script(command.KindSearchAndTake, commandtest.Fail)

	report, err := New(f.env, bridge, fastOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "bring the snack to the kitchen", report.Utterance)
	assert.Equal(t, "navigate_to kitchen|take_object snack|navigate_to kitchen|bring_object kitchen", report.Sequence)
	require.Len(t, report.Invocations, 4)

	var names []string
	var outcomes []Outcome
	for _, inv := range report.Invocations {
		names = append(names, inv.Primitive)
		outcomes = append(outcomes, inv.Outcome)
	}
	assert.Equal(t, []string{"navigate_to", "take_object", "navigate_to", "bring_object"}, names)
	assert.Equal(t, []Outcome{OutcomeSucceeded, OutcomeFailed, OutcomeSucceeded, OutcomeSucceeded}, outcomes)
	assert.Equal(t, "failed", report.Status)
	assert.Equal(t, 1, f.ch.Count(command.KindSearchAndTake))
	assert.Equal(t, 0, f.ch.Count(command.KindDeliver))
	assert.Empty(t, f.env.Task.HoldingArm())

	input, err := os.ReadFile(filepath.Join(dir, "stringToProcess"))
	require.NoError(t, err)
	assert.Equal(t, "bring the snack to the kitchen", string(input))
}
