package reasoning

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		wantReasoning string
		wantCleaned   string
	}{
		{
			name:          "no markers passes through",
			content:       "The answer is 42.",
			wantReasoning: "",
			wantCleaned:   "The answer is 42.",
		},
		{
			name:          "think marker",
			content:       "<think>Let me check the math.</think>The answer is 42.",
			wantReasoning: "Let me check the math.",
			wantCleaned:   "The answer is 42.",
		},
		{
			name:          "thinking marker",
			content:       "<thinking>Consider edge cases.</thinking>Handled.",
			wantReasoning: "Consider edge cases.",
			wantCleaned:   "Handled.",
		},
		{
			name:          "multiple blocks joined with blank line",
			content:       "<think>First pass.</think>Partial.<thinking>Second pass.</thinking> Done.",
			wantReasoning: "First pass.\n\nSecond pass.",
			wantCleaned:   "Partial. Done.",
		},
		{
			name:          "multiline reasoning",
			content:       "<think>line one\nline two</think>answer",
			wantReasoning: "line one\nline two",
			wantCleaned:   "answer",
		},
		{
			name:          "empty marker block",
			content:       "<think></think>answer",
			wantReasoning: "",
			wantCleaned:   "answer",
		},
		{
			name:          "unclosed marker left alone",
			content:       "<think>never closed, so treated as content",
			wantReasoning: "",
			wantCleaned:   "<think>never closed, so treated as content",
		},
		{
			name:          "reasoning only",
			content:       "<think>all reasoning, no answer</think>",
			wantReasoning: "all reasoning, no answer",
			wantCleaned:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoning, cleaned := Extract(tt.content)
			if reasoning != tt.wantReasoning {
				t.Errorf("Extract() reasoning = %q, want %q", reasoning, tt.wantReasoning)
			}
			if cleaned != tt.wantCleaned {
				t.Errorf("Extract() cleaned = %q, want %q", cleaned, tt.wantCleaned)
			}
		})
	}
}

func TestAccumulator_DedicatedFieldWins(t *testing.T) {
	var acc Accumulator
	acc.AddReasoningDelta("thinking ")
	acc.AddReasoningDelta("out loud")
	acc.AddContentDelta("the ")
	acc.AddContentDelta("answer")

	if !acc.HasReasoning() {
		t.Error("HasReasoning() = false, want true")
	}

	reasoning, content := acc.Finalize()
	if reasoning != "thinking out loud" {
		t.Errorf("reasoning = %q", reasoning)
	}
	if content != "the answer" {
		t.Errorf("content = %q", content)
	}
}

func TestAccumulator_FallsBackToMarkers(t *testing.T) {
	var acc Accumulator
	// Marker arrives split across deltas, as real streams deliver it.
	acc.AddContentDelta("<thi")
	acc.AddContentDelta("nk>checking</th")
	acc.AddContentDelta("ink>done")

	if acc.HasReasoning() {
		t.Error("HasReasoning() = true before any reasoning delta")
	}

	reasoning, content := acc.Finalize()
	if reasoning != "checking" {
		t.Errorf("reasoning = %q, want checking", reasoning)
	}
	if content != "done" {
		t.Errorf("content = %q, want done", content)
	}
}

func TestAccumulator_NoReasoningAnywhere(t *testing.T) {
	var acc Accumulator
	acc.AddContentDelta("plain answer")

	reasoning, content := acc.Finalize()
	if reasoning != "" {
		t.Errorf("reasoning = %q, want empty", reasoning)
	}
	if content != "plain answer" {
		t.Errorf("content = %q", content)
	}
}
