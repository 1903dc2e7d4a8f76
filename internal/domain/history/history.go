// Package history assembles the model-ready context for a conversation turn,
// compacting older rounds into a summary once the conversation outgrows its
// window.
package history

import (
	"context"

	"github.com/simon-0512/superrag/internal/domain/conversation"
)

// Outcome reports how a snapshot was assembled.
type Outcome string

const (
	// OutcomeFull means the history fit the window without compaction.
	OutcomeFull Outcome = "full"
	// OutcomeSummarized means older rounds were compacted into Summary.
	OutcomeSummarized Outcome = "summarized"
	// OutcomeDegraded means summarization failed and the snapshot holds a
	// bounded recent window with no summary.
	OutcomeDegraded Outcome = "degraded"
)

// Snapshot is the compacted context for one turn: a chronological message
// window plus an optional summary of everything older.
type Snapshot struct {
	Messages []*conversation.Message
	Summary  string
	Outcome  Outcome
}

// Summarizer compacts a formatted transcript of older rounds into a short
// summary. Implemented by the inference client.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// ContextProvider yields the context snapshot for a conversation turn. The
// strategy is fixed at construction time.
type ContextProvider interface {
	Context(ctx context.Context, conv *conversation.Conversation) (*Snapshot, error)
	// Invalidate discards any cached state for the conversation. Called
	// after new messages are persisted.
	Invalidate(conversationID uint)
}

// Policy holds the compaction thresholds.
type Policy struct {
	// SummaryRounds sizes the recent window kept verbatim when a
	// transcript is compacted.
	SummaryRounds int
	// MaxContextMessages is the transcript length beyond which older
	// rounds are compacted into a summary.
	MaxContextMessages int
}

// ShouldSummarize reports whether a conversation with the given number of
// user messages has hit the summarization cadence. Snapshot assembly does
// not depend on it; it exists for callers scheduling proactive compaction.
func (p Policy) ShouldSummarize(userMessages int64) bool {
	return userMessages > 0 && userMessages%int64(p.SummaryRounds) == 0
}

// RecentWindow is how many messages stay verbatim alongside a summary, two
// per round.
func (p Policy) RecentWindow() int {
	return p.SummaryRounds * 2
}
