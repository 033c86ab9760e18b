package lang

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/observability"
)

// Parser turns an utterance into a sequence of invocations.
type Parser interface {
	Parse(ctx context.Context, utterance string) (Sequence, error)
}

// BridgeConfig locates the external interpreter and its working files.
type BridgeConfig struct {
	Interpreter string        `yaml:"interpreter"`
	Script      string        `yaml:"script"`
	InputPath   string        `yaml:"input_path"`
	LogPath     string        `yaml:"log_path"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Bridge runs an external language-understanding script. The utterance is
// written to InputPath, the interpreter is run as
// "interpreter script inputPath", its standard output is appended to
// LogPath, and the last non-blank output line is parsed as the result.
type Bridge struct {
	cfg BridgeConfig
	log *observability.Logger

	// the input and log files are shared, so runs are serialized
	mu  sync.Mutex
	now func() time.Time
}

// NewBridge creates a bridge.
func NewBridge(cfg BridgeConfig, log *observability.Logger) *Bridge {
	if log == nil {
		log = observability.Discard()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Bridge{cfg: cfg, log: log, now: time.Now}
}

// Parse runs the interpreter on utterance. It fails with PARSE_FAILURE when
// the process yields no usable line and INTERPRETER when it cannot be run.
func (b *Bridge) Parse(ctx context.Context, utterance string) (Sequence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "lang.parse")
	defer span.End()
	span.SetAttributes(observability.AttrUtterance.String(utterance))

	seq, err := b.run(ctx, utterance)
	if err != nil {
		observability.ParseRequests.WithLabelValues("failed").Inc()
		observability.RecordError(ctx, err)
		return nil, err
	}
	observability.ParseRequests.WithLabelValues("ok").Inc()
	return seq, nil
}

func (b *Bridge) run(ctx context.Context, utterance string) (Sequence, error) {
	if err := writeFile(b.cfg.InputPath, []byte(utterance)); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeInterpreter, "write utterance").
			WithContext("path", b.cfg.InputPath)
	}

	output, runErr := b.exec(ctx)
	b.appendLog(utterance, output, runErr)

	line := LastLine(output)
	if line == "" {
		if runErr != nil {
			return nil, gerrors.Wrap(runErr, gerrors.ErrCodeInterpreter, "interpreter failed without output")
		}
		return nil, gerrors.New(gerrors.ErrCodeParseFailure, "interpreter produced no usable line")
	}
	if runErr != nil {
		b.log.Warn("interpreter exited with error but produced output", "error", runErr.Error())
	}

	seq := ParseLine(line)
	if len(seq) == 0 {
		return nil, gerrors.New(gerrors.ErrCodeParseFailure, "no invocations in interpreter output").
			WithContext("line", line)
	}
	return seq, nil
}

func (b *Bridge) exec(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	cmd := exec.Command(b.cfg.Interpreter, b.cfg.Script, b.cfg.InputPath)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start interpreter: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		_ = forceKill(cmd)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		err = ctx.Err()
	}

	if stderr.Len() > 0 {
		b.log.Debug("interpreter stderr", "stderr", stderr.String())
	}
	if err != nil {
		return stdout.String(), fmt.Errorf("interpreter: %w", err)
	}
	return stdout.String(), nil
}

func (b *Bridge) appendLog(utterance, output string, runErr error) {
	if b.cfg.LogPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(b.cfg.LogPath), 0o755); err != nil {
		b.log.Warn("create bridge log dir", "error", err.Error())
		return
	}
	f, err := os.OpenFile(b.cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		b.log.Warn("open bridge log", "error", err.Error())
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "=== %s %q\n", b.now().Format(time.RFC3339), utterance)
	fmt.Fprint(f, output)
	if len(output) > 0 && output[len(output)-1] != '\n' {
		fmt.Fprintln(f)
	}
	if runErr != nil {
		fmt.Fprintf(f, "!!! %v\n", runErr)
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
