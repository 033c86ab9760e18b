// Package lang turns a confirmed utterance into an ordered list of primitive
// invocations, and classifies short replies (yes/no, questions).
package lang

import (
	"strings"
)

// Invocation is one primitive call: a name and its positional arguments.
type Invocation struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// String renders the invocation in its wire form.
func (i Invocation) String() string {
	if len(i.Args) == 0 {
		return i.Name
	}
	return i.Name + " " + strings.Join(i.Args, " ")
}

// Arg returns the n-th argument, or "" when absent.
func (i Invocation) Arg(n int) string {
	if n < 0 || n >= len(i.Args) {
		return ""
	}
	return i.Args[n]
}

// Sequence is the ordered list of invocations for one command.
type Sequence []Invocation

// String renders the sequence in its pipe-delimited wire form.
func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, inv := range s {
		parts[i] = inv.String()
	}
	return strings.Join(parts, "|")
}

// ParseLine splits a pipe-delimited line into invocations. Each segment is
// split on whitespace; the first token names the primitive. Blank segments
// are skipped.
func ParseLine(line string) Sequence {
	var seq Sequence
	for _, segment := range strings.Split(line, "|") {
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		seq = append(seq, Invocation{Name: fields[0], Args: fields[1:]})
	}
	return seq
}

// LastLine returns the last non-blank line of output.
func LastLine(output string) string {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
