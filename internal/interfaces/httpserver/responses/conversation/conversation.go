package conversationresponses

import (
	"github.com/simon-0512/superrag/internal/domain/conversation"
)

// ConversationResponse represents one conversation in API responses
type ConversationResponse struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	Title        string `json:"title"`
	Model        string `json:"model"`
	MessageCount int    `json:"message_count"`
	TotalTokens  int    `json:"total_tokens"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// ConversationListResponse represents a list of conversations
type ConversationListResponse struct {
	Object  string                 `json:"object"`
	Data    []ConversationResponse `json:"data"`
	FirstID string                 `json:"first_id"`
	LastID  string                 `json:"last_id"`
}

// MessageResponse represents one transcript message
type MessageResponse struct {
	ID               string `json:"id"`
	Object           string `json:"object"`
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
	TokenCount       int    `json:"token_count"`
	CreatedAt        int64  `json:"created_at"`
}

// MessageListResponse represents an ordered transcript
type MessageListResponse struct {
	Object         string            `json:"object"`
	ConversationID string            `json:"conversation_id"`
	Data           []MessageResponse `json:"data"`
}

// ConversationDeletedResponse represents the delete confirmation response
type ConversationDeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// NewConversationResponse creates a response from a domain conversation
func NewConversationResponse(conv *conversation.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:           conv.PublicID,
		Object:       "conversation",
		Title:        conv.Title,
		Model:        conv.ModelName,
		MessageCount: conv.MessageCount,
		TotalTokens:  conv.TotalTokens,
		CreatedAt:    conv.CreatedAt.Unix(),
		UpdatedAt:    conv.UpdatedAt.Unix(),
	}
}

// NewConversationListResponse creates a conversation list response
func NewConversationListResponse(conversations []*conversation.Conversation) *ConversationListResponse {
	data := make([]ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		if conv == nil {
			continue
		}
		data = append(data, *NewConversationResponse(conv))
	}

	firstID := ""
	lastID := ""
	if len(data) > 0 {
		firstID = data[0].ID
		lastID = data[len(data)-1].ID
	}

	return &ConversationListResponse{
		Object:  "list",
		Data:    data,
		FirstID: firstID,
		LastID:  lastID,
	}
}

// NewMessageListResponse creates an ordered transcript response
func NewMessageListResponse(conversationID string, messages []*conversation.Message) *MessageListResponse {
	data := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		data = append(data, MessageResponse{
			ID:               msg.PublicID,
			Object:           "message",
			Role:             string(msg.Role),
			Content:          msg.Content,
			ReasoningContent: msg.ReasoningContent(),
			TokenCount:       msg.TokenCount,
			CreatedAt:        msg.CreatedAt.Unix(),
		})
	}

	return &MessageListResponse{
		Object:         "list",
		ConversationID: conversationID,
		Data:           data,
	}
}

// NewConversationDeletedResponse creates a delete response
func NewConversationDeletedResponse(publicID string) *ConversationDeletedResponse {
	return &ConversationDeletedResponse{
		ID:      publicID,
		Object:  "conversation.deleted",
		Deleted: true,
	}
}
