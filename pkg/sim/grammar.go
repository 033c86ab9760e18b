package sim

import (
	"regexp"
	"strings"

	"github.com/odvcencio/gpsr/pkg/lang"
)

type rule struct {
	pattern *regexp.Regexp
	build   func(m []string) lang.Sequence
}

// Grammar is a small command grammar standing in for the language
// subsystem. Each clause of a command ("go to the kitchen and bring me a
// coke") maps to one or more primitive invocations.
type Grammar struct {
	rules []rule
	// Here is the bring target meaning "back to the operator".
	Here string
}

var (
	clauseSplit = regexp.MustCompile(`\s*(?:,|\band then\b|\bthen\b|\band\b)\s*`)
	leadIn      = regexp.MustCompile(`^(?:robot\s*,?\s*)?(?:please\s+)?`)
)

// NewGrammar returns the built-in household grammar.
func NewGrammar() *Grammar {
	g := &Grammar{Here: "me_location"}
	g.rules = []rule{
		{regexp.MustCompile(`^(?:go|navigate|move) to (?:the )?(\w+)$`), func(m []string) lang.Sequence {
			return lang.Sequence{{Name: "navigate_to", Args: []string{m[1]}}}
		}},
		{regexp.MustCompile(`^(?:bring|get) me (?:a |an |the )?(\w+) from (?:the )?(\w+)$`), func(m []string) lang.Sequence {
			return lang.Sequence{
				{Name: "navigate_to", Args: []string{m[2]}},
				{Name: "take_object", Args: []string{m[1]}},
				{Name: "bring_object", Args: []string{g.Here}},
			}
		}},
		{regexp.MustCompile(`^(?:take|grab|pick up) (?:a |an |the )?(\w+)$`), func(m []string) lang.Sequence {
			return lang.Sequence{{Name: "take_object", Args: []string{m[1]}}}
		}},
		{regexp.MustCompile(`^(?:bring|deliver) it to (?:the )?(\w+)$`), func(m []string) lang.Sequence {
			return lang.Sequence{{Name: "bring_object", Args: []string{m[1]}}}
		}},
		{regexp.MustCompile(`^(?:bring|give) it to me$`), func([]string) lang.Sequence {
			return lang.Sequence{{Name: "bring_object", Args: []string{g.Here}}}
		}},
		{regexp.MustCompile(`^(?:tell|say) (?:me )?(?:the |your )?(time|name)$`), func(m []string) lang.Sequence {
			return lang.Sequence{{Name: "tell_phrase", Args: []string{m[1]}}}
		}},
		{regexp.MustCompile(`^answer (?:a |my )?question$`), func([]string) lang.Sequence {
			return lang.Sequence{{Name: "answer_question"}}
		}},
	}
	return g
}

// Interpret returns the pipe-delimited sequence for text. It fails when any
// clause is not understood.
func (g *Grammar) Interpret(text string) (string, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimRight(text, ".!?")
	if text == "" {
		return "", false
	}
	text = leadIn.ReplaceAllString(text, "")

	var seq lang.Sequence
	for _, clause := range clauseSplit.Split(text, -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		matched := false
		for _, r := range g.rules {
			if m := r.pattern.FindStringSubmatch(clause); m != nil {
				seq = append(seq, r.build(m)...)
				matched = true
				break
			}
		}
		if !matched {
			return "", false
		}
	}
	if len(seq) == 0 {
		return "", false
	}
	return seq.String(), true
}
