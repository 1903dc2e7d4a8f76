package chatresponses

// Stream event types, emitted in this order for a successful turn:
// start, processing, thinking_stream*, thinking_complete?, content+, done.
const (
	EventStart            = "start"
	EventProcessing       = "processing"
	EventThinkingStream   = "thinking_stream"
	EventThinkingComplete = "thinking_complete"
	EventContent          = "content"
	EventDone             = "done"
	EventError            = "error"
)

// StreamEvent is one line of the chat event stream.
type StreamEvent struct {
	Type               string `json:"type"`
	ConversationID     string `json:"conversation_id,omitempty"`
	UserMessageID      string `json:"user_message_id,omitempty"`
	AssistantMessageID string `json:"assistant_message_id,omitempty"`
	Status             string `json:"status,omitempty"`
	Content            string `json:"content,omitempty"`
	Error              string `json:"error,omitempty"`
}

// ChatResponse is the non-streaming turn result.
type ChatResponse struct {
	ConversationID     string `json:"conversation_id"`
	ConversationTitle  string `json:"conversation_title,omitempty"`
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`
	Content            string `json:"content"`
	ReasoningContent   string `json:"reasoning_content,omitempty"`
	PromptTokens       int    `json:"prompt_tokens"`
	CompletionTokens   int    `json:"completion_tokens"`
}
