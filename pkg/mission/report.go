package mission

import (
	"context"
	"time"
)

// Outcome is the result of one invocation in a command cycle.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// InvocationResult records how one primitive invocation went.
type InvocationResult struct {
	Index     int       `json:"index"`
	Primitive string    `json:"primitive"`
	Args      []string  `json:"args,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// Report summarizes a mission run.
type Report struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
	Status     string    `json:"status"`
	Utterance  string    `json:"utterance,omitempty"`
	Sequence   string    `json:"sequence,omitempty"`
	ParseError string    `json:"parseError,omitempty"`

	// Rejected counts commands the operator answered "no" to (or never
	// confirmed) before one was accepted.
	Rejected int `json:"rejected"`

	EnterExhausted    bool `json:"enterExhausted"`
	ApproachExhausted bool `json:"approachExhausted"`
	ExitExhausted     bool `json:"exitExhausted"`

	Invocations []InvocationResult `json:"invocations,omitempty"`
}

// Failed returns how many invocations failed.
func (r *Report) Failed() int {
	n := 0
	for _, inv := range r.Invocations {
		if inv.Outcome == OutcomeFailed {
			n++
		}
	}
	return n
}

// Skipped returns how many invocations were not run.
func (r *Report) Skipped() int {
	n := 0
	for _, inv := range r.Invocations {
		if inv.Outcome == OutcomeSkipped {
			n++
		}
	}
	return n
}

//go:generate mockgen -package=mission -destination=mock_recorder_test.go github.com/odvcencio/gpsr/pkg/mission Recorder

// Recorder persists finished reports.
type Recorder interface {
	RecordRun(ctx context.Context, report *Report) error
}
