package lang

import (
	"strings"
	"unicode"
)

// Confirmation is the reading of a yes/no reply.
type Confirmation int

const (
	ConfirmUnknown Confirmation = iota
	ConfirmYes
	ConfirmNo
)

// String returns "yes", "no" or "unknown".
func (c Confirmation) String() string {
	switch c {
	case ConfirmYes:
		return "yes"
	case ConfirmNo:
		return "no"
	default:
		return "unknown"
	}
}

var (
	yesWords = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "sure": true,
		"correct": true, "affirmative": true, "right": true, "ok": true, "okay": true,
	}
	noWords = map[string]bool{
		"no": true, "nope": true, "negative": true, "wrong": true, "incorrect": true,
	}
)

// ParseConfirmation reads a yes/no reply. The first token that is a yes or
// no word decides; replies with neither are Unknown.
func ParseConfirmation(utterance string) Confirmation {
	for _, token := range tokens(utterance) {
		switch {
		case yesWords[token]:
			return ConfirmYes
		case noWords[token]:
			return ConfirmNo
		}
	}
	return ConfirmUnknown
}

// tokens lower-cases s and splits it into words, dropping punctuation.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func normalize(s string) string {
	return strings.Join(tokens(s), " ")
}
