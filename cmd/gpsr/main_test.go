package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/gpsr/pkg/bus"
	"github.com/odvcencio/gpsr/pkg/config"
	"github.com/odvcencio/gpsr/pkg/observability"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseFlags([]string{"-sim", "-http", ":0", "-db", "off", "-log-level", "debug"}, &stderr)
	require.NoError(t, err)
	assert.True(t, opts.sim)
	assert.Equal(t, ":0", opts.httpAddr)
	assert.Equal(t, "off", opts.dbPath)
	assert.Equal(t, "debug", opts.logLevel)

	_, err = parseFlags([]string{"extra"}, &stderr)
	assert.Error(t, err)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "gpsr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bus:\n  url: nats://file:4222\nlog:\n  level: warn\n"), 0o600))

	cfg, err := loadConfig(options{configPath: path, natsURL: "nats://flag:4222", controlPath: "/tmp/ctl.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "nats://flag:4222", cfg.Bus.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/ctl.yaml", cfg.Control.Path)
	assert.Equal(t, config.ParserBridge, cfg.Language.Parser)
}

func TestLoadConfig_SimUsesChannelParser(t *testing.T) {
	isolate(t)
	cfg, err := loadConfig(options{sim: true})
	require.NoError(t, err)
	assert.Equal(t, config.ParserChannel, cfg.Language.Parser)

	_, err = loadConfig(options{parser: "oracle"})
	assert.Error(t, err)
}

func TestRun_BadConfigIsUsageError(t *testing.T) {
	isolate(t)
	var stderr bytes.Buffer
	code := run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, strings.NewReader(""), &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "gpsr:")
}

func TestReadUtterances(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()
	got := make(chan string, 4)
	_, err := b.Subscribe(context.Background(), bus.RecognizedSpeech, func(msg *bus.Message) []byte {
		got <- string(msg.Data)
		return nil
	})
	require.NoError(t, err)

	readUtterances(context.Background(), strings.NewReader("go to the kitchen\n\n  yes  \n"), b, observability.Discard())

	for _, want := range []string{"go to the kitchen", "yes"} {
		select {
		case line := <-got:
			assert.Equal(t, want, line)
		case <-time.After(time.Second):
			t.Fatalf("utterance %q not published", want)
		}
	}
}
