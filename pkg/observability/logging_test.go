package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_FieldsAndHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "mission", slog.LevelDebug).WithRun("run-1").WithBehavior("navigate")

	log.StateEntered("navigate", "init", "prepare_arms")
	log.CommandTimedOut("mvn.getclose", 50*time.Second)
	log.UnknownPrimitive("dance", []string{"wildly"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "mission", lines[0]["component"])
	assert.Equal(t, "gpsr", lines[0]["system"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "navigate", lines[0]["behavior"])
	assert.Equal(t, "prepare_arms", lines[0]["to"])

	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "mvn.getclose", lines[1]["kind"])

	assert.Equal(t, "dance", lines[2]["primitive"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "x", slog.LevelInfo)

	log.StateEntered("m", "a", "b") // debug, filtered
	log.AttemptsExhausted("enter_arena", 3)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "attempts exhausted", lines[0]["msg"])
	assert.EqualValues(t, 3, lines[0]["attempts"])
}

func TestLogger_WithContextWithoutSpan(t *testing.T) {
	log := Discard()
	assert.Same(t, log, log.WithContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
