package lang

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Verbs produced by classifiers.
const (
	VerbSay     = "say"
	VerbUnknown = "unknown"
)

// Act is the classified intent of a short utterance. For VerbSay the payload
// is the sentence the robot should speak.
type Act struct {
	Verb    string
	Payload string
}

// Classifier maps an utterance to an Act.
type Classifier interface {
	Classify(ctx context.Context, utterance string) (Act, error)
}

// RuleClassifier answers questions from a fixed table and recognizes
// explicit "say ..." and "repeat ..." requests. Answers may contain the
// placeholders {time}, {date} and {name}.
type RuleClassifier struct {
	answers   map[string]string
	questions []string
	name      string
	now       func() time.Time
}

// NewRuleClassifier builds a classifier from a question->answer table.
// Questions are matched after lower-casing and dropping punctuation.
func NewRuleClassifier(answers map[string]string, robotName string) *RuleClassifier {
	c := &RuleClassifier{
		answers: make(map[string]string, len(answers)),
		name:    robotName,
		now:     time.Now,
	}
	for q, a := range answers {
		key := normalize(q)
		if key == "" {
			continue
		}
		c.answers[key] = a
		c.questions = append(c.questions, key)
	}
	// longest question first so specific entries win over their prefixes
	sort.Slice(c.questions, func(i, j int) bool {
		if len(c.questions[i]) != len(c.questions[j]) {
			return len(c.questions[i]) > len(c.questions[j])
		}
		return c.questions[i] < c.questions[j]
	})
	return c
}

// DefaultAnswers is the built-in question table.
func DefaultAnswers() map[string]string {
	return map[string]string{
		"what time is it":           "It is {time}",
		"what is the time":          "It is {time}",
		"what day is today":         "Today is {date}",
		"what is your name":         "My name is {name}",
		"who are you":               "I am {name}, a service robot",
		"how many arms do you have": "I have two arms",
	}
}

var sayPrefixes = []string{"say ", "repeat "}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(ctx context.Context, utterance string) (Act, error) {
	text := normalize(utterance)
	if text == "" {
		return Act{Verb: VerbUnknown}, nil
	}

	for _, q := range c.questions {
		if text == q || strings.Contains(text, q) {
			return Act{Verb: VerbSay, Payload: c.expand(c.answers[q])}, nil
		}
	}

	for _, prefix := range sayPrefixes {
		if rest, ok := strings.CutPrefix(text, prefix); ok && strings.TrimSpace(rest) != "" {
			return Act{Verb: VerbSay, Payload: rest}, nil
		}
	}

	return Act{Verb: VerbUnknown}, nil
}

func (c *RuleClassifier) expand(answer string) string {
	now := c.now()
	r := strings.NewReplacer(
		"{time}", now.Format("3:04 PM"),
		"{date}", now.Format("Monday, January 2"),
		"{name}", c.name,
	)
	return r.Replace(answer)
}
