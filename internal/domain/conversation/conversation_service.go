package conversation

import (
	"context"
	"time"

	"github.com/simon-0512/superrag/internal/utils/platformerrors"
	"github.com/simon-0512/superrag/internal/utils/stringutils"
)

const titleMaxLen = 60

// ConversationService handles business logic for conversations and their
// messages.
type ConversationService struct {
	conversations ConversationRepository
	messages      MessageRepository
	validator     *ConversationValidator
	maxPerUser    int
}

// NewConversationService creates a new conversation service. maxPerUser caps
// how many active conversations a user may keep; creating beyond the cap
// purges the least recently updated ones.
func NewConversationService(conversations ConversationRepository, messages MessageRepository, maxPerUser int) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		validator:     NewConversationValidator(nil),
		maxPerUser:    maxPerUser,
	}
}

// ModelDefaults carries the generation parameters a new conversation starts
// with.
type ModelDefaults struct {
	ModelName    string
	Temperature  float32
	MaxTokens    int
	SystemPrompt *string
}

// GetOrCreateConversation resolves publicID to an owned active conversation,
// or creates a fresh one when publicID is empty. The boolean result reports
// whether a conversation was created.
func (s *ConversationService) GetOrCreateConversation(ctx context.Context, userID, publicID, firstMessage string, defaults ModelDefaults) (*Conversation, bool, error) {
	if publicID != "" {
		conv, err := s.GetConversationByPublicIDAndUserID(ctx, publicID, userID)
		if err != nil {
			return nil, false, err
		}
		if !conv.IsActive {
			return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "8f4c2d1a-7b3e-4f6a-9c0d-2e5b8a1f4c7d")
		}
		return conv, false, nil
	}

	if err := s.cleanupOldConversations(ctx, userID); err != nil {
		return nil, false, err
	}

	title := stringutils.GenerateTitle(firstMessage, titleMaxLen)
	if title == "" {
		title = "New Conversation"
	}

	conv, err := NewConversation(userID, title, defaults.ModelName, defaults.Temperature, defaults.MaxTokens)
	if err != nil {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to generate conversation id", err, "3a9d5e2b-1c8f-4a7d-b6e0-9f2c5d8a3b1e")
	}
	conv.SystemPrompt = defaults.SystemPrompt

	if err := s.validator.ValidateConversation(conv); err != nil {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "conversation validation failed", err, "e1f7a3c9-5b2d-4e8f-a0c6-7d4b9e2f5a8c")
	}

	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, false, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create conversation")
	}
	return conv, true, nil
}

// GetConversationByPublicIDAndUserID retrieves a conversation by public ID
// and validates ownership. Foreign conversations surface as not found.
func (s *ConversationService) GetConversationByPublicIDAndUserID(ctx context.Context, publicID string, userID string) (*Conversation, error) {
	if err := s.validator.ValidateConversationID(publicID); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid conversation ID", err, "b2c3d4e5-f6a7-4b8c-9d0e-1f2a3b4c5d6e")
	}

	conv, err := s.conversations.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "conversation not found")
	}

	if conv.UserID != userID {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "c3d4e5f6-a7b8-4c9d-0e1f-2a3b4c5d6e7f")
	}

	return conv, nil
}

// ListConversations returns the user's active conversations, most recently
// updated first.
func (s *ConversationService) ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > s.maxPerUser {
		limit = s.maxPerUser
	}
	conversations, err := s.conversations.FindByUser(ctx, userID, limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list conversations")
	}
	return conversations, nil
}

// GetTranscript returns the full ordered message history of an owned
// conversation.
func (s *ConversationService) GetTranscript(ctx context.Context, userID, publicID string) (*Conversation, []*Message, error) {
	conv, err := s.GetConversationByPublicIDAndUserID(ctx, publicID, userID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.messages.FindByConversation(ctx, conv.ID, 0)
	if err != nil {
		return nil, nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load messages")
	}
	return conv, messages, nil
}

// UpdateTitle renames an owned conversation.
func (s *ConversationService) UpdateTitle(ctx context.Context, userID, publicID, title string) (*Conversation, error) {
	conv, err := s.GetConversationByPublicIDAndUserID(ctx, publicID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateTitle(title); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid title", err, "d5e8f1a4-2b7c-4d9e-8f3a-6c1b4e7d0a2f")
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	if err := s.conversations.Update(ctx, conv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update conversation")
	}
	return conv, nil
}

// DeactivateConversation soft deletes an owned conversation. Its rows stay
// in storage for retention cleanup to reclaim later.
func (s *ConversationService) DeactivateConversation(ctx context.Context, userID, publicID string) error {
	conv, err := s.GetConversationByPublicIDAndUserID(ctx, publicID, userID)
	if err != nil {
		return err
	}
	if err := s.conversations.Deactivate(ctx, conv.ID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to deactivate conversation")
	}
	return nil
}

// AppendMessage inserts a message and rolls the conversation counters
// forward. Callers wrap this in a transaction when atomicity matters.
func (s *ConversationService) AppendMessage(ctx context.Context, conv *Conversation, msg *Message) error {
	if err := s.validator.ValidateMessage(msg); err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "message validation failed", err, "f2a5c8e1-4d7b-4a0e-9c3f-6b8d1e4a7c0f")
	}

	msg.ConversationID = conv.ID
	if err := s.messages.Create(ctx, msg); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create message")
	}

	conv.MessageCount++
	conv.TotalTokens += msg.TokenCount
	conv.UpdatedAt = time.Now().UTC()
	if err := s.conversations.Update(ctx, conv); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update conversation counters")
	}
	return nil
}

// MessageExists reports whether a message with the given public ID was
// already persisted. Used to keep retried queue writes idempotent.
func (s *ConversationService) MessageExists(ctx context.Context, publicID string) (bool, error) {
	exists, err := s.messages.ExistsByPublicID(ctx, publicID)
	if err != nil {
		return false, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to check message existence")
	}
	return exists, nil
}

// cleanupOldConversations enforces the per-user retention cap so a create
// never pushes the user above maxPerUser active conversations.
func (s *ConversationService) cleanupOldConversations(ctx context.Context, userID string) error {
	count, err := s.conversations.CountByUser(ctx, userID)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to count conversations")
	}
	excess := int(count) - s.maxPerUser + 1
	if excess <= 0 {
		return nil
	}

	oldest, err := s.conversations.FindOldestByUser(ctx, userID, excess)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to find stale conversations")
	}
	for _, conv := range oldest {
		if err := s.conversations.DeleteWithMessages(ctx, conv.ID); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to purge stale conversation")
		}
	}
	return nil
}

// SweepRetention purges conversations beyond the retention cap for every
// user with stored conversations. Run from the scheduled retention job.
func (s *ConversationService) SweepRetention(ctx context.Context) (int, error) {
	userIDs, err := s.conversations.DistinctUserIDs(ctx)
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list users")
	}

	purged := 0
	for _, userID := range userIDs {
		count, err := s.conversations.CountByUser(ctx, userID)
		if err != nil {
			return purged, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to count conversations")
		}
		excess := int(count) - s.maxPerUser
		if excess <= 0 {
			continue
		}
		oldest, err := s.conversations.FindOldestByUser(ctx, userID, excess)
		if err != nil {
			return purged, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to find stale conversations")
		}
		for _, conv := range oldest {
			if err := s.conversations.DeleteWithMessages(ctx, conv.ID); err != nil {
				return purged, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to purge stale conversation")
			}
			purged++
		}
	}
	return purged, nil
}
