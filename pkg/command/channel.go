// Package command is the request/await channel between behaviors and the
// subsystem controllers (speech, arms, base, manipulation).
package command

import (
	"context"
	"time"
)

// Kind names a subsystem command.
type Kind string

const (
	KindSay           Kind = "spg.say"
	KindArmsGoto      Kind = "arms.goto"
	KindLeftArmGoto   Kind = "arms.la.goto"
	KindRightArmGoto  Kind = "arms.ra.goto"
	KindGetClose      Kind = "mvn.getclose"
	KindTableApproach Kind = "mvn.table_approach"
	KindDeliver       Kind = "st.deliver"
	KindSearchAndTake Kind = "st.search_take"
	KindEnterArena    Kind = "mvn.enter_arena"
	KindProcessString Kind = "lang.process_string"
)

// Kinds lists every command kind the orchestrator issues.
var Kinds = []Kind{
	KindSay,
	KindArmsGoto,
	KindLeftArmGoto,
	KindRightArmGoto,
	KindGetClose,
	KindTableApproach,
	KindDeliver,
	KindSearchAndTake,
	KindEnterArena,
	KindProcessString,
}

// Request is the wire form of a command.
type Request struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Payload  string    `json:"payload"`
	IssuedAt time.Time `json:"issued_at"`
}

// Response is the wire form of a subsystem reply.
type Response struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	OK      bool   `json:"ok"`
	Payload string `json:"payload,omitempty"`
}

// Channel sends commands and awaits their responses.
//
// Send fires a request. AwaitResponse blocks until the response for the
// outstanding request of that kind arrives, the timeout elapses, or ctx is
// done. A subsystem that answers with OK=false is not an error; timeouts and
// transport failures are.
type Channel interface {
	Send(ctx context.Context, kind Kind, payload string) error
	AwaitResponse(ctx context.Context, kind Kind, timeout time.Duration) (Response, error)
}
