package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/simon-0512/superrag/internal/utils/idgen"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MetadataKeyReasoning is the message metadata key carrying the model's
// reasoning trace when one was produced.
const MetadataKeyReasoning = "reasoning_content"

// Conversation is a chat thread owned by a single user. Deactivated
// conversations stay in storage but are hidden from listings and rejected
// for new turns.
type Conversation struct {
	ID           uint      `json:"-"`
	PublicID     string    `json:"id"` // string ID like "conv_abc123"
	Title        string    `json:"title"`
	UserID       string    `json:"-"`
	ModelName    string    `json:"model_name"`
	SystemPrompt *string   `json:"system_prompt,omitempty"`
	Temperature  float32   `json:"temperature"`
	MaxTokens    int       `json:"max_tokens"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single utterance in a conversation. Messages are immutable
// after insert.
type Message struct {
	ID             uint           `json:"-"`
	PublicID       string         `json:"id"` // string ID like "msg_abc123"
	ConversationID uint           `json:"-"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	TokenCount     int            `json:"token_count"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ReasoningContent returns the reasoning trace stored in metadata, if any.
func (m *Message) ReasoningContent() string {
	if m.Metadata == nil {
		return ""
	}
	if reasoning, ok := m.Metadata[MetadataKeyReasoning].(string); ok {
		return reasoning
	}
	return ""
}

type ConversationRepository interface {
	Create(ctx context.Context, conv *Conversation) error
	FindByPublicID(ctx context.Context, publicID string) (*Conversation, error)
	// FindByUser returns active conversations ordered by most recent update.
	FindByUser(ctx context.Context, userID string, limit int) ([]*Conversation, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	// FindOldestByUser returns active conversations ordered by least recent
	// update, used by retention cleanup.
	FindOldestByUser(ctx context.Context, userID string, limit int) ([]*Conversation, error)
	// DistinctUserIDs lists every user with at least one active conversation.
	DistinctUserIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, conv *Conversation) error
	Deactivate(ctx context.Context, id uint) error
	// DeleteWithMessages removes the conversation row and its messages.
	DeleteWithMessages(ctx context.Context, id uint) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	ExistsByPublicID(ctx context.Context, publicID string) (bool, error)
	// FindByConversation returns messages in chronological order. A limit of
	// 0 returns the full transcript.
	FindByConversation(ctx context.Context, conversationID uint, limit int) ([]*Message, error)
}

// NewConversation creates a conversation with a freshly generated public ID.
func NewConversation(userID, title, modelName string, temperature float32, maxTokens int) (*Conversation, error) {
	publicID, err := idgen.GenerateSecureID("conv", 16)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Conversation{
		PublicID:    publicID,
		Title:       title,
		UserID:      userID,
		ModelName:   modelName,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewMessageID generates a message public ID. IDs are assigned before
// persistence so retried writes stay idempotent.
func NewMessageID() (string, error) {
	return idgen.GenerateSecureID("msg", 16)
}

// NewMessage creates a message with the given pre-generated public ID and a
// whitespace-based token estimate.
func NewMessage(publicID string, conversationID uint, role Role, content string, metadata map[string]any) *Message {
	return &Message{
		PublicID:       publicID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		TokenCount:     EstimateTokens(content),
		CreatedAt:      time.Now().UTC(),
	}
}

// EstimateTokens approximates token usage by whitespace-separated word count.
func EstimateTokens(content string) int {
	return len(strings.Fields(content))
}
