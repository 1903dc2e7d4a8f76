package chatrequests

import (
	"strings"
)

const maxMessageLength = 65536

// ChatRequest is one chat turn. When ConversationID is empty a new
// conversation is created. Stream defaults to true.
type ChatRequest struct {
	Message         string   `json:"message" binding:"required"`
	ConversationID  *string  `json:"conversation_id,omitempty"`
	KnowledgeBaseID *string  `json:"knowledge_base_id,omitempty"`
	Model           *string  `json:"model,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	Stream          *bool    `json:"stream,omitempty"`
}

// IsStream reports whether the caller asked for the event stream mode.
func (r *ChatRequest) IsStream() bool {
	return r.Stream == nil || *r.Stream
}

// Validate checks the fields that gin bindings cannot express.
func (r *ChatRequest) Validate() string {
	if strings.TrimSpace(r.Message) == "" {
		return "message must not be empty"
	}
	if len(r.Message) > maxMessageLength {
		return "message exceeds maximum length"
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return "temperature must be between 0 and 2"
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return "max_tokens must be positive"
	}
	return ""
}
