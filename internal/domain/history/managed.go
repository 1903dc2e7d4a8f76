package history

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

// ManagedProvider keeps per-conversation transcripts in memory so repeated
// turns skip the storage round trip. The persistence worker calls Invalidate
// after each committed write; a cold cache reloads from storage, so evictions
// are always safe.
type ManagedProvider struct {
	messages   conversation.MessageRepository
	summarizer Summarizer
	policy     Policy
	log        zerolog.Logger

	mu    sync.Mutex
	cache map[uint][]*conversation.Message
}

func NewManagedProvider(messages conversation.MessageRepository, summarizer Summarizer, policy Policy, log zerolog.Logger) *ManagedProvider {
	return &ManagedProvider{
		messages:   messages,
		summarizer: summarizer,
		policy:     policy,
		log:        log,
		cache:      make(map[uint][]*conversation.Message),
	}
}

func (p *ManagedProvider) Context(ctx context.Context, conv *conversation.Conversation) (*Snapshot, error) {
	all, err := p.load(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return compact(ctx, all, p.summarizer, p.policy, p.log), nil
}

// Invalidate drops the cached transcript so the next turn reloads it.
func (p *ManagedProvider) Invalidate(conversationID uint) {
	p.mu.Lock()
	delete(p.cache, conversationID)
	p.mu.Unlock()
}

// CachedConversations reports how many transcripts are currently cached.
func (p *ManagedProvider) CachedConversations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

func (p *ManagedProvider) load(ctx context.Context, conversationID uint) ([]*conversation.Message, error) {
	p.mu.Lock()
	cached, ok := p.cache[conversationID]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	all, err := p.messages.FindByConversation(ctx, conversationID, 0)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load history")
	}

	p.mu.Lock()
	p.cache[conversationID] = all
	p.mu.Unlock()
	p.log.Debug().Uint("conversation_id", conversationID).Int("messages", len(all)).Msg("history cache filled")
	return all, nil
}
