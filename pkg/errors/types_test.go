package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeTimeout, "spg.say timed out")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}
	if err.Code != ErrCodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTimeout)
	}
	if err.Message != "spg.say timed out" {
		t.Errorf("Message = %v", err.Message)
	}
	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}
	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}
	if err.Retryable {
		t.Error("Retryable should default to false")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("exit status 1")
	err := Wrap(underlying, ErrCodeInterpreter, "interpreter failed")

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}
	if !strings.Contains(err.Error(), "exit status 1") {
		t.Error("Error string should include underlying error")
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should reach the underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "test"); err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestError_ContextIsSorted(t *testing.T) {
	err := New(ErrCodeChannelBusy, "request outstanding").
		WithContext("kind", "spg.say").
		WithContext("attempt", 2)

	want := "[CHANNEL_BUSY] request outstanding {attempt: 2, kind: spg.say}"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsCode_ThroughFmtWrap(t *testing.T) {
	base := New(ErrCodeParseFailure, "no usable line")
	wrapped := fmt.Errorf("parse command: %w", base)

	if !IsCode(wrapped, ErrCodeParseFailure) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if IsCode(wrapped, ErrCodeTimeout) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(nil, ErrCodeTimeout) {
		t.Error("IsCode(nil) should be false")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %q", got)
	}
	if got := GetCode(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("GetCode(plain) = %q, want INTERNAL", got)
	}
	if got := GetCode(New(ErrCodeHalted, "stopped")); got != ErrCodeHalted {
		t.Errorf("GetCode = %q, want HALTED", got)
	}
}

func TestErrorsIs_MatchesByCode(t *testing.T) {
	sentinel := New(ErrCodeTimeout, "")
	err := fmt.Errorf("await: %w", New(ErrCodeTimeout, "mvn.getclose"))

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should match errors carrying the same code")
	}
	if errors.Is(err, New(ErrCodeChannelBusy, "")) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestIsRetryable(t *testing.T) {
	err := New(ErrCodeTimeout, "t").WithRetryable(true)
	if !IsRetryable(fmt.Errorf("x: %w", err)) {
		t.Error("expected retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestStackTrace(t *testing.T) {
	trace := New(ErrCodeInternal, "x").StackTrace()
	if !strings.HasPrefix(trace, "Stack trace:") {
		t.Errorf("unexpected trace header: %q", trace)
	}
	if !strings.Contains(trace, "TestStackTrace") {
		t.Error("trace should include the calling test")
	}
}
