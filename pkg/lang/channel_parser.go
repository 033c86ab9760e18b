package lang

import (
	"context"

	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/observability"
)

// StringProcessor sends an utterance to a language-understanding subsystem
// over the command channel. *command.Commands implements it.
type StringProcessor interface {
	ProcessString(ctx context.Context, text string) (string, bool)
}

// ChannelParser is a Parser backed by a language-understanding subsystem on
// the command channel instead of a local process. The reply payload has the
// same pipe-delimited format as the bridge output.
type ChannelParser struct {
	proc StringProcessor
}

// NewChannelParser creates a parser over proc.
func NewChannelParser(proc StringProcessor) *ChannelParser {
	return &ChannelParser{proc: proc}
}

// Parse forwards utterance and parses the last line of the reply.
func (p *ChannelParser) Parse(ctx context.Context, utterance string) (Sequence, error) {
	payload, ok := p.proc.ProcessString(ctx, utterance)
	if !ok {
		observability.ParseRequests.WithLabelValues("failed").Inc()
		return nil, gerrors.New(gerrors.ErrCodeInterpreter, "language subsystem did not answer")
	}
	seq := ParseLine(LastLine(payload))
	if len(seq) == 0 {
		observability.ParseRequests.WithLabelValues("failed").Inc()
		return nil, gerrors.New(gerrors.ErrCodeParseFailure, "language subsystem returned no invocations")
	}
	observability.ParseRequests.WithLabelValues("ok").Inc()
	return seq, nil
}
