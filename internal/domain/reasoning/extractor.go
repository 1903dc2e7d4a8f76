// Package reasoning separates a model's reasoning trace from its visible
// answer. Reasoning models report the trace through a dedicated delta field;
// models without that field inline it between <think> or <thinking> markers.
package reasoning

import (
	"regexp"
	"strings"
)

var markerPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>|<thinking>(.*?)</thinking>`)

// Extract pulls marker-delimited reasoning out of content. Multiple marker
// blocks are joined with blank lines; the returned content has the blocks
// stripped. Content without markers passes through unchanged.
func Extract(content string) (reasoning, cleaned string) {
	matches := markerPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return "", content
	}

	parts := make([]string, 0, len(matches))
	for _, match := range matches {
		part := match[1]
		if part == "" {
			part = match[2]
		}
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	cleaned = strings.TrimSpace(markerPattern.ReplaceAllString(content, ""))
	return strings.Join(parts, "\n\n"), cleaned
}

// Accumulator collects streamed deltas, keeping the dedicated reasoning
// channel separate from answer content. One accumulator serves one turn.
type Accumulator struct {
	reasoning strings.Builder
	content   strings.Builder
}

// AddReasoningDelta appends a chunk from the dedicated reasoning field.
func (a *Accumulator) AddReasoningDelta(delta string) {
	a.reasoning.WriteString(delta)
}

// AddContentDelta appends a chunk of answer content.
func (a *Accumulator) AddContentDelta(delta string) {
	a.content.WriteString(delta)
}

// HasReasoning reports whether any dedicated reasoning deltas arrived.
func (a *Accumulator) HasReasoning() bool {
	return a.reasoning.Len() > 0
}

// Content returns the answer content accumulated so far, unmodified.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Finalize returns the separated reasoning and answer. When the stream
// carried dedicated reasoning deltas those win; otherwise the accumulated
// content is scanned for inline markers.
func (a *Accumulator) Finalize() (reasoning, content string) {
	if a.HasReasoning() {
		return a.reasoning.String(), a.content.String()
	}
	return Extract(a.content.String())
}
