package mission

import (
	"sort"

	"github.com/odvcencio/gpsr/pkg/behavior"
	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/lang"
)

// Factory builds a primitive from an invocation's positional arguments.
type Factory func(env *behavior.Env, inv lang.Invocation) (behavior.Behavior, error)

// Dispatcher maps primitive names to factories.
type Dispatcher struct {
	table map[string]Factory
}

// NewDispatcher returns a dispatcher that knows the built-in primitives:
//
//	navigate_to <location>
//	take_object <object> [backup]
//	bring_object <target>
//	tell_phrase <key>
//	answer_question
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{table: make(map[string]Factory)}
	d.Register("navigate_to", func(env *behavior.Env, inv lang.Invocation) (behavior.Behavior, error) {
		if err := requireArgs(inv, 1); err != nil {
			return nil, err
		}
		return behavior.NewNavigation(env, inv.Arg(0)), nil
	})
	d.Register("take_object", func(env *behavior.Env, inv lang.Invocation) (behavior.Behavior, error) {
		if err := requireArgs(inv, 1); err != nil {
			return nil, err
		}
		return behavior.NewTakeObject(env, inv.Arg(0), inv.Arg(1)), nil
	})
	d.Register("bring_object", func(env *behavior.Env, inv lang.Invocation) (behavior.Behavior, error) {
		if err := requireArgs(inv, 1); err != nil {
			return nil, err
		}
		return behavior.NewBringObject(env, inv.Arg(0)), nil
	})
	d.Register("tell_phrase", func(env *behavior.Env, inv lang.Invocation) (behavior.Behavior, error) {
		return behavior.NewTellPhrase(env, inv.Arg(0)), nil
	})
	d.Register("answer_question", func(env *behavior.Env, inv lang.Invocation) (behavior.Behavior, error) {
		return behavior.NewAnswerQuestion(env), nil
	})
	return d
}

// Register adds or replaces a primitive.
func (d *Dispatcher) Register(name string, f Factory) {
	d.table[name] = f
}

// Build resolves an invocation to a runnable primitive. An unknown name
// yields an UNKNOWN_PRIMITIVE error.
func (d *Dispatcher) Build(env *behavior.Env, inv lang.Invocation) (behavior.Behavior, error) {
	f, ok := d.table[inv.Name]
	if !ok {
		return nil, gerrors.Newf(gerrors.ErrCodeUnknownPrimitive, "unknown primitive %q", inv.Name)
	}
	return f(env, inv)
}

// Names lists the registered primitives in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.table))
	for name := range d.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func requireArgs(inv lang.Invocation, n int) error {
	if len(inv.Args) < n {
		return gerrors.Newf(gerrors.ErrCodeInvalidInput, "%s needs %d argument(s), got %d", inv.Name, n, len(inv.Args))
	}
	return nil
}
