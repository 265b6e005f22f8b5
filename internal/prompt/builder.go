// Package prompt composes the twin's system message from a persona template
// and the optional context sections gathered for a turn.
package prompt

import (
	"strings"
)

// Section dividers, in the order they are emitted.
const (
	DividerSummaries = "\n\n---\nContext from Recently Uploaded Files:\n"
	DividerExcerpt   = "\n\n---\nContext from Most Recent Uploaded Document:\n"
	DividerKnowledge = "\n\n---\nRelevant Reference Knowledge:\n"
	DividerMemory    = "\n\n---\nMemory from Past Interactions:\n"
)

// Persona is the fixed part of the system message.
type Persona struct {
	Name          string
	Template      string
	ModeDirective string
}

// Sections holds the per-turn context. Empty fields are left out.
type Sections struct {
	Summaries   []string
	FileExcerpt string
	Knowledge   string
	Memory      string
	FormalMode  bool
}

// Build renders the system message. It has no side effects: identical
// inputs produce byte-identical output.
func Build(p Persona, s Sections) string {
	var b strings.Builder
	b.WriteString(p.Template)

	var summaries []string
	for _, sum := range s.Summaries {
		if !blank(sum) {
			summaries = append(summaries, sum)
		}
	}
	if len(summaries) > 0 {
		b.WriteString(DividerSummaries)
		b.WriteString(strings.Join(summaries, "\n\n"))
	}
	writeSection(&b, DividerExcerpt, s.FileExcerpt)
	writeSection(&b, DividerKnowledge, s.Knowledge)
	writeSection(&b, DividerMemory, s.Memory)

	if s.FormalMode && !blank(p.ModeDirective) {
		b.WriteString("\n\n")
		b.WriteString(p.ModeDirective)
	}
	return b.String()
}

func writeSection(b *strings.Builder, divider, body string) {
	if blank(body) {
		return
	}
	b.WriteString(divider)
	b.WriteString(body)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
