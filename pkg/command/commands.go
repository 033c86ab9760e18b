package command

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/odvcencio/gpsr/pkg/observability"
	"github.com/odvcencio/gpsr/pkg/world"
)

// Timeouts bound each class of subsystem command.
type Timeouts struct {
	Say        time.Duration `yaml:"say"`
	SayBrief   time.Duration `yaml:"say_brief"`
	Arms       time.Duration `yaml:"arms"`
	Navigation time.Duration `yaml:"navigation"`
	Deliver    time.Duration `yaml:"deliver"`
	SearchTake time.Duration `yaml:"search_take"`
	EnterArena time.Duration `yaml:"enter_arena"`
	Answer     time.Duration `yaml:"answer"`
	Language   time.Duration `yaml:"language"`
}

// DefaultTimeouts returns the deadlines used on the robot.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Say:        5 * time.Second,
		SayBrief:   3 * time.Second,
		Arms:       10 * time.Second,
		Navigation: 50 * time.Second,
		Deliver:    15 * time.Second,
		SearchTake: 120 * time.Second,
		EnterArena: 50 * time.Second,
		Answer:     10 * time.Second,
		Language:   30 * time.Second,
	}
}

// SearchRequest is the payload of a search-and-take command.
type SearchRequest struct {
	Object string    `json:"object"`
	Backup string    `json:"backup,omitempty"`
	Hand   world.Arm `json:"hand,omitempty"`
}

// Commands is the typed facade behaviors use. Each operation sends one
// command, waits for its response, and reports success as a bool; errors
// are logged here and never returned.
type Commands struct {
	ch       Channel
	timeouts Timeouts
	log      *observability.Logger
}

// NewCommands wraps a channel.
func NewCommands(ch Channel, timeouts Timeouts, log *observability.Logger) *Commands {
	if log == nil {
		log = observability.Discard()
	}
	return &Commands{ch: ch, timeouts: timeouts, log: log}
}

// Timeouts returns the configured deadlines.
func (c *Commands) Timeouts() Timeouts {
	return c.timeouts
}

func (c *Commands) call(ctx context.Context, kind Kind, payload string, timeout time.Duration) (Response, bool) {
	ctx, span := observability.StartSpan(ctx, "command."+string(kind))
	defer span.End()
	span.SetAttributes(observability.AttrCommand.String(string(kind)))

	if err := c.ch.Send(ctx, kind, payload); err != nil {
		c.log.WithContext(ctx).Warn("command send failed", "kind", kind, "error", err.Error())
		observability.RecordError(ctx, err)
		return Response{}, false
	}
	resp, err := c.ch.AwaitResponse(ctx, kind, timeout)
	if err != nil {
		observability.RecordError(ctx, err)
		return resp, false
	}
	span.SetAttributes(attribute.Bool("gpsr.command.ok", resp.OK))
	return resp, resp.OK
}

// Say speaks text and waits up to the standard speech deadline.
func (c *Commands) Say(ctx context.Context, text string) bool {
	_, ok := c.call(ctx, KindSay, text, c.timeouts.Say)
	return ok
}

// SayBrief speaks text with the shorter speech deadline.
func (c *Commands) SayBrief(ctx context.Context, text string) bool {
	_, ok := c.call(ctx, KindSay, text, c.timeouts.SayBrief)
	return ok
}

// SayWithin speaks text with an explicit deadline.
func (c *Commands) SayWithin(ctx context.Context, text string, timeout time.Duration) bool {
	_, ok := c.call(ctx, KindSay, text, timeout)
	return ok
}

// ArmsGoto moves the given arm set into a named pose. An empty set has
// nothing to move and succeeds.
func (c *Commands) ArmsGoto(ctx context.Context, arms world.ArmSet, pose string) bool {
	switch arms {
	case world.ArmsBoth:
		_, ok := c.call(ctx, KindArmsGoto, pose, c.timeouts.Arms)
		return ok
	case world.ArmsLeft:
		return c.ArmGoto(ctx, world.ArmLeft, pose)
	case world.ArmsRight:
		return c.ArmGoto(ctx, world.ArmRight, pose)
	default:
		return true
	}
}

// ArmGoto moves a single arm into a named pose.
func (c *Commands) ArmGoto(ctx context.Context, arm world.Arm, pose string) bool {
	switch arm {
	case world.ArmLeft:
		_, ok := c.call(ctx, KindLeftArmGoto, pose, c.timeouts.Arms)
		return ok
	case world.ArmRight:
		_, ok := c.call(ctx, KindRightArmGoto, pose, c.timeouts.Arms)
		return ok
	default:
		return true
	}
}

// GetClose drives the base to a named location.
func (c *Commands) GetClose(ctx context.Context, location string) bool {
	_, ok := c.call(ctx, KindGetClose, location, c.timeouts.Navigation)
	return ok
}

// GetCloseToTable drives the base to a table and aligns with its edge.
func (c *Commands) GetCloseToTable(ctx context.Context, location string) bool {
	_, ok := c.call(ctx, KindTableApproach, location, c.timeouts.Navigation)
	return ok
}

// DeliverObject opens the hand of arm to release its object.
func (c *Commands) DeliverObject(ctx context.Context, arm world.Arm) bool {
	_, ok := c.call(ctx, KindDeliver, string(arm), c.timeouts.Deliver)
	return ok
}

// SearchAndTake asks the manipulation subsystem to find and grasp object,
// falling back to backup. It returns the arm that grasped. A reply that does
// not name an arm is attributed to the preferred hand, or the right arm when
// there is no preference.
func (c *Commands) SearchAndTake(ctx context.Context, object, backup string, hand world.Arm) (world.Arm, bool) {
	payload, err := json.Marshal(SearchRequest{Object: object, Backup: backup, Hand: hand})
	if err != nil {
		return world.ArmNone, false
	}
	resp, ok := c.call(ctx, KindSearchAndTake, string(payload), c.timeouts.SearchTake)
	if !ok {
		return world.ArmNone, false
	}
	switch arm := world.Arm(resp.Payload); arm {
	case world.ArmLeft, world.ArmRight:
		return arm, true
	}
	if hand != world.ArmNone {
		return hand, true
	}
	return world.ArmRight, true
}

// EnterArena drives through the arena door towards location.
func (c *Commands) EnterArena(ctx context.Context, location string) bool {
	_, ok := c.call(ctx, KindEnterArena, location, c.timeouts.EnterArena)
	return ok
}

// ProcessString hands an utterance to the language-understanding subsystem
// and returns its reply payload.
func (c *Commands) ProcessString(ctx context.Context, text string) (string, bool) {
	resp, ok := c.call(ctx, KindProcessString, text, c.timeouts.Language)
	return resp.Payload, ok
}
