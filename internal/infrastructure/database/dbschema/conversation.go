package dbschema

import (
	"gorm.io/datatypes"

	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(Conversation{})
	database.RegisterSchemaForAutoMigrate(Message{})
}

// Conversation represents the database schema for conversations
type Conversation struct {
	BaseModel
	PublicID     string  `gorm:"type:varchar(50);uniqueIndex;not null"`
	Title        string  `gorm:"type:varchar(256);not null"`
	UserID       string  `gorm:"type:varchar(64);index:idx_conversation_user_active;not null"`
	ModelName    string  `gorm:"type:varchar(100);not null;default:'deepseek-chat'"`
	SystemPrompt *string `gorm:"type:text"`
	Temperature  float32 `gorm:"not null;default:0.7"`
	MaxTokens    int     `gorm:"not null;default:2000"`
	MessageCount int     `gorm:"not null;default:0"`
	TotalTokens  int     `gorm:"not null;default:0"`
	IsActive     bool    `gorm:"index:idx_conversation_user_active;not null;default:true"`

	Messages []Message `gorm:"foreignKey:ConversationID"`
}

// Message represents the database schema for messages
type Message struct {
	BaseModel
	ConversationID uint              `gorm:"index:idx_message_conversation_created;not null"`
	Conversation   Conversation      `gorm:"foreignKey:ConversationID"`
	PublicID       string            `gorm:"type:varchar(50);uniqueIndex;not null"`
	Role           string            `gorm:"type:varchar(20);not null"`
	Content        string            `gorm:"type:text;not null"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	TokenCount     int               `gorm:"not null;default:0"`
}

// NewSchemaConversation creates a database schema from domain conversation
func NewSchemaConversation(c *conversation.Conversation) *Conversation {
	return &Conversation{
		BaseModel: BaseModel{
			ID:        c.ID,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		},
		PublicID:     c.PublicID,
		Title:        c.Title,
		UserID:       c.UserID,
		ModelName:    c.ModelName,
		SystemPrompt: c.SystemPrompt,
		Temperature:  c.Temperature,
		MaxTokens:    c.MaxTokens,
		MessageCount: c.MessageCount,
		TotalTokens:  c.TotalTokens,
		IsActive:     c.IsActive,
	}
}

// EtoD converts database schema to domain conversation (Entity to Domain)
func (c *Conversation) EtoD() *conversation.Conversation {
	return &conversation.Conversation{
		ID:           c.ID,
		PublicID:     c.PublicID,
		Title:        c.Title,
		UserID:       c.UserID,
		ModelName:    c.ModelName,
		SystemPrompt: c.SystemPrompt,
		Temperature:  c.Temperature,
		MaxTokens:    c.MaxTokens,
		MessageCount: c.MessageCount,
		TotalTokens:  c.TotalTokens,
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// NewSchemaMessage creates a database schema from domain message
func NewSchemaMessage(m *conversation.Message) *Message {
	return &Message{
		BaseModel: BaseModel{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
		},
		ConversationID: m.ConversationID,
		PublicID:       m.PublicID,
		Role:           string(m.Role),
		Content:        m.Content,
		Metadata:       datatypes.JSONMap(m.Metadata),
		TokenCount:     m.TokenCount,
	}
}

// EtoD converts database schema to domain message (Entity to Domain)
func (m *Message) EtoD() *conversation.Message {
	return &conversation.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		PublicID:       m.PublicID,
		Role:           conversation.Role(m.Role),
		Content:        m.Content,
		Metadata:       map[string]any(m.Metadata),
		TokenCount:     m.TokenCount,
		CreatedAt:      m.CreatedAt,
	}
}
