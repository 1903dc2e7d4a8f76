package history

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/domain/prompt"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

// WindowProvider assembles context straight from storage on every turn,
// applying the sliding window and on-demand summarization.
type WindowProvider struct {
	messages   conversation.MessageRepository
	summarizer Summarizer
	policy     Policy
	log        zerolog.Logger
}

func NewWindowProvider(messages conversation.MessageRepository, summarizer Summarizer, policy Policy, log zerolog.Logger) *WindowProvider {
	return &WindowProvider{
		messages:   messages,
		summarizer: summarizer,
		policy:     policy,
		log:        log,
	}
}

func (p *WindowProvider) Context(ctx context.Context, conv *conversation.Conversation) (*Snapshot, error) {
	all, err := p.messages.FindByConversation(ctx, conv.ID, 0)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load history")
	}
	return compact(ctx, all, p.summarizer, p.policy, p.log), nil
}

// Invalidate is a no-op: the window provider holds no state.
func (p *WindowProvider) Invalidate(uint) {}

// compact applies the window and summarization policy to a full chronological
// transcript. Once the transcript outgrows MaxContextMessages, everything
// older than the recent window is summarized. Summarization failures degrade
// to a bounded window, never to an error: a turn must not fail because
// compaction did.
func compact(ctx context.Context, all []*conversation.Message, summarizer Summarizer, policy Policy, log zerolog.Logger) *Snapshot {
	if len(all) <= policy.MaxContextMessages {
		return &Snapshot{Messages: all, Outcome: OutcomeFull}
	}

	recent := tail(all, policy.RecentWindow())
	older := all[:len(all)-len(recent)]
	if len(older) == 0 {
		return &Snapshot{Messages: recent, Outcome: OutcomeFull}
	}

	summary, err := summarizer.Summarize(ctx, prompt.FormatHistory(older))
	if err != nil || summary == "" {
		log.Warn().Err(err).Int("older_messages", len(older)).Msg("history summarization failed, degrading to bounded window")
		return &Snapshot{Messages: tail(all, policy.MaxContextMessages), Outcome: OutcomeDegraded}
	}

	return &Snapshot{Messages: recent, Summary: summary, Outcome: OutcomeSummarized}
}

func tail(messages []*conversation.Message, n int) []*conversation.Message {
	if n > 0 && len(messages) > n {
		return messages[len(messages)-n:]
	}
	return messages
}
