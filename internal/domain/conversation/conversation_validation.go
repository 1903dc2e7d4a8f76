package conversation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/simon-0512/superrag/internal/utils/idgen"
)

// ConversationValidationConfig holds conversation-level validation rules
type ConversationValidationConfig struct {
	MaxTitleLength   int
	MaxContentLength int
}

// DefaultConversationValidationConfig returns the default validation rules
func DefaultConversationValidationConfig() *ConversationValidationConfig {
	return &ConversationValidationConfig{
		MaxTitleLength:   256,
		MaxContentLength: 65536,
	}
}

// ConversationValidator handles conversation and message validation
type ConversationValidator struct {
	config *ConversationValidationConfig
}

// NewConversationValidator creates a validator for conversations
func NewConversationValidator(config *ConversationValidationConfig) *ConversationValidator {
	if config == nil {
		config = DefaultConversationValidationConfig()
	}
	return &ConversationValidator{config: config}
}

// ValidateConversation performs full conversation validation
func (v *ConversationValidator) ValidateConversation(conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("conversation cannot be nil")
	}

	if conv.PublicID != "" {
		if err := v.ValidateConversationID(conv.PublicID); err != nil {
			return fmt.Errorf("invalid conversation ID: %w", err)
		}
	}

	if err := v.ValidateTitle(conv.Title); err != nil {
		return fmt.Errorf("invalid title: %w", err)
	}

	if strings.TrimSpace(conv.UserID) == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	if conv.Temperature < 0 || conv.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2 (got %v)", conv.Temperature)
	}

	if conv.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}

	return nil
}

// ValidateConversationID validates conversation ID format
func (v *ConversationValidator) ValidateConversationID(id string) error {
	if id == "" {
		return fmt.Errorf("conversation ID cannot be empty")
	}

	if !strings.HasPrefix(id, "conv_") {
		return fmt.Errorf("conversation ID must start with 'conv_' prefix")
	}

	if !idgen.ValidateIDFormat(id, "conv") {
		return fmt.Errorf("invalid conversation ID format")
	}

	return nil
}

// ValidateTitle validates a conversation title
func (v *ConversationValidator) ValidateTitle(title string) error {
	// Title can be empty (optional field)
	if title == "" {
		return nil
	}

	// Character count, not bytes
	length := utf8.RuneCountInString(title)
	if length > v.config.MaxTitleLength {
		return fmt.Errorf("title cannot exceed %d characters (got %d)", v.config.MaxTitleLength, length)
	}

	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title cannot be only whitespace")
	}

	if strings.Contains(title, "\x00") {
		return fmt.Errorf("title cannot contain null bytes")
	}

	return nil
}

// ValidateMessage performs message validation before insert
func (v *ConversationValidator) ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	if msg.PublicID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}
	if !idgen.ValidateIDFormat(msg.PublicID, "msg") {
		return fmt.Errorf("invalid message ID format")
	}

	switch msg.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return fmt.Errorf("invalid message role: %s (must be user, assistant, or system)", msg.Role)
	}

	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	if utf8.RuneCountInString(msg.Content) > v.config.MaxContentLength {
		return fmt.Errorf("message content cannot exceed %d characters", v.config.MaxContentLength)
	}

	return nil
}
