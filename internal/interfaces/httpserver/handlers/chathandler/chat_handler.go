// Package chathandler runs one chat turn: resolve the conversation, persist
// the user message, stream the model response, and hand the assistant
// message to the save queue.
package chathandler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/simon-0512/superrag/internal/config"
	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/domain/history"
	"github.com/simon-0512/superrag/internal/domain/knowledge"
	"github.com/simon-0512/superrag/internal/domain/prompt"
	"github.com/simon-0512/superrag/internal/domain/reasoning"
	"github.com/simon-0512/superrag/internal/infrastructure/inference"
	"github.com/simon-0512/superrag/internal/infrastructure/logger"
	"github.com/simon-0512/superrag/internal/infrastructure/metrics"
	"github.com/simon-0512/superrag/internal/infrastructure/observability"
	"github.com/simon-0512/superrag/internal/infrastructure/savequeue"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/middlewares"
	chatrequests "github.com/simon-0512/superrag/internal/interfaces/httpserver/requests/chat"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/responses"
	chatresponses "github.com/simon-0512/superrag/internal/interfaces/httpserver/responses/chat"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

const fallbackApology = "I'm sorry, I wasn't able to generate a response just now. Please try again."

// Backend is the model client surface the handler depends on.
type Backend interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
	StreamChatCompletion(ctx context.Context, request openai.ChatCompletionRequest, onDelta inference.DeltaFunc) (*openai.ChatCompletionResponse, error)
}

// ChatHandler orchestrates chat turns.
type ChatHandler struct {
	conversations *conversation.ConversationService
	provider      history.ContextProvider
	knowledge     knowledge.Provider
	backend       Backend
	queue         *savequeue.Service
	tx            savequeue.Transactor
	cfg           *config.Config
}

func NewChatHandler(
	conversations *conversation.ConversationService,
	provider history.ContextProvider,
	knowledgeProvider knowledge.Provider,
	backend Backend,
	queue *savequeue.Service,
	tx savequeue.Transactor,
	cfg *config.Config,
) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		provider:      provider,
		knowledge:     knowledgeProvider,
		backend:       backend,
		queue:         queue,
		tx:            tx,
		cfg:           cfg,
	}
}

// ChatTurn handles POST /v1/chat in both stream and JSON modes.
func (h *ChatHandler) ChatTurn(reqCtx *gin.Context) {
	var request chatrequests.ChatRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body")
		return
	}
	if msg := request.Validate(); msg != "" {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, msg)
		return
	}

	userID := middlewares.UserIDFromContext(reqCtx)
	defaults := h.resolveDefaults(request)

	reqCtx.Set("model", defaults.ModelName)
	reqCtx.Set("stream", request.IsStream())

	ctx, span := observability.StartSpan(reqCtx.Request.Context(), h.cfg.ServiceName, "ChatHandler.ChatTurn")
	defer span.End()
	observability.AddSpanAttributes(ctx,
		attribute.String("chat.model", defaults.ModelName),
		attribute.Bool("chat.stream", request.IsStream()),
	)

	requestedID := ""
	if request.ConversationID != nil {
		requestedID = *request.ConversationID
	}
	conv, created, err := h.conversations.GetOrCreateConversation(ctx, userID, requestedID, request.Message, defaults)
	if err != nil {
		observability.RecordError(ctx, err)
		responses.HandleError(reqCtx, err, "failed to resolve conversation")
		return
	}
	if created {
		metrics.ConversationsCreatedTotal.Inc()
	}
	observability.AddSpanAttributes(ctx, attribute.String("conversation.id", conv.PublicID))

	knowledgeContext := h.lookupKnowledge(ctx, request)

	// The user message is durable before any token streams.
	userMsg, err := h.persistUserMessage(ctx, conv, request.Message)
	if err != nil {
		observability.RecordError(ctx, err)
		responses.HandleError(reqCtx, err, "failed to persist user message")
		return
	}
	h.provider.Invalidate(conv.ID)

	snapshot, err := h.provider.Context(ctx, conv)
	if err != nil {
		observability.RecordError(ctx, err)
		responses.HandleError(reqCtx, err, "failed to assemble context")
		return
	}
	metrics.RecordCompaction(string(snapshot.Outcome))

	completionReq := h.buildCompletionRequest(conv, defaults, snapshot, knowledgeContext)

	if request.IsStream() {
		h.streamTurn(ctx, reqCtx, conv, userMsg, completionReq)
		return
	}
	h.syncTurn(ctx, reqCtx, conv, userMsg, completionReq)
}

// streamTurn emits the event stream for one turn. After the start event the
// response is committed to SSE: failures surface as error events, not HTTP
// statuses.
func (h *ChatHandler) streamTurn(
	ctx context.Context,
	reqCtx *gin.Context,
	conv *conversation.Conversation,
	userMsg *conversation.Message,
	completionReq openai.ChatCompletionRequest,
) {
	log := logger.With("chathandler")

	// Everything that can fail as a plain HTTP error happens before the
	// response switches to event-stream mode.
	assistantMsgID, err := conversation.NewMessageID()
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to generate message id")
		return
	}

	flusher, ok := middlewares.PrepareSSE(reqCtx)
	if !ok || flusher == nil {
		reqCtx.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeInternal, "streaming unsupported by connection")
		return
	}

	h.writeEvent(reqCtx, chatresponses.StreamEvent{
		Type:               chatresponses.EventStart,
		ConversationID:     conv.PublicID,
		UserMessageID:      userMsg.PublicID,
		AssistantMessageID: assistantMsgID,
	})
	h.writeEvent(reqCtx, chatresponses.StreamEvent{
		Type:   chatresponses.EventProcessing,
		Status: "thinking",
	})

	metrics.IncrementActiveStreams(completionReq.Model)
	defer metrics.DecrementActiveStreams(completionReq.Model)

	var acc reasoning.Accumulator
	thinkingClosed := false
	firstToken := time.Time{}
	startTime := time.Now()

	resp, streamErr := h.backend.StreamChatCompletion(ctx, completionReq, func(d inference.Delta) error {
		if firstToken.IsZero() && (d.Content != "" || d.ReasoningContent != "") {
			firstToken = time.Now()
			metrics.RecordFirstToken(completionReq.Model, firstToken.Sub(startTime).Seconds())
		}
		if d.ReasoningContent != "" {
			acc.AddReasoningDelta(d.ReasoningContent)
			return h.writeEvent(reqCtx, chatresponses.StreamEvent{
				Type:    chatresponses.EventThinkingStream,
				Content: d.ReasoningContent,
			})
		}
		if d.Content != "" {
			if !thinkingClosed && acc.HasReasoning() {
				thinkingClosed = true
				reasoningText, _ := acc.Finalize()
				if err := h.writeEvent(reqCtx, chatresponses.StreamEvent{
					Type:    chatresponses.EventThinkingComplete,
					Content: reasoningText,
				}); err != nil {
					return err
				}
			}
			acc.AddContentDelta(d.Content)
			return h.writeEvent(reqCtx, chatresponses.StreamEvent{
				Type:    chatresponses.EventContent,
				Content: d.Content,
			})
		}
		return nil
	})
	metrics.RecordInference(completionReq.Model, true, time.Since(startTime).Seconds())

	reasoningText, contentText := acc.Finalize()

	if streamErr != nil {
		observability.RecordError(ctx, streamErr)
		metrics.RecordInferenceError(completionReq.Model, "stream")
		log.Warn().Err(streamErr).Str("conversation_id", conv.PublicID).Msg("stream failed, trying non-streaming fallback")

		if reqCtx.Request.Context().Err() != nil {
			// Client is gone. Persist whatever was produced; there is
			// nobody left to stream to.
			if contentText != "" {
				h.enqueueAssistant(conv, assistantMsgID, contentText, reasoningText)
			}
			return
		}

		if contentText == "" {
			// Nothing reached the client yet, so a non-streaming retry can
			// still produce the whole answer.
			reasoningText, contentText = h.fallbackCompletion(ctx, completionReq, log)
			if contentText == "" {
				h.writeEvent(reqCtx, chatresponses.StreamEvent{
					Type:  chatresponses.EventError,
					Error: "generation failed, please retry",
				})
				contentText = fallbackApology
				h.writeEvent(reqCtx, chatresponses.StreamEvent{
					Type:    chatresponses.EventContent,
					Content: contentText,
				})
			} else {
				if reasoningText != "" {
					h.writeEvent(reqCtx, chatresponses.StreamEvent{
						Type:    chatresponses.EventThinkingComplete,
						Content: reasoningText,
					})
				}
				h.writeEvent(reqCtx, chatresponses.StreamEvent{
					Type:    chatresponses.EventContent,
					Content: contentText,
				})
			}
		}
		// Tokens that already reached the client stand as the answer; the
		// done payload must equal exactly what was streamed.
	} else if resp != nil && resp.Usage.TotalTokens > 0 {
		metrics.RecordTokens(completionReq.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	if contentText != "" {
		h.enqueueAssistant(conv, assistantMsgID, contentText, reasoningText)
	}

	h.writeEvent(reqCtx, chatresponses.StreamEvent{
		Type:               chatresponses.EventDone,
		AssistantMessageID: assistantMsgID,
		Content:            contentText,
	})
}

// syncTurn runs the turn synchronously and writes the assistant message
// directly, bypassing the queue.
func (h *ChatHandler) syncTurn(
	ctx context.Context,
	reqCtx *gin.Context,
	conv *conversation.Conversation,
	userMsg *conversation.Message,
	completionReq openai.ChatCompletionRequest,
) {
	startTime := time.Now()
	resp, err := h.backend.CreateChatCompletion(ctx, completionReq)
	metrics.RecordInference(completionReq.Model, false, time.Since(startTime).Seconds())
	if err != nil {
		observability.RecordError(ctx, err)
		metrics.RecordInferenceError(completionReq.Model, "complete")
		responses.HandleError(reqCtx, err, "completion failed")
		return
	}
	if len(resp.Choices) == 0 {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeExternal, "model returned no choices")
		return
	}
	metrics.RecordTokens(completionReq.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	reasoningText := resp.Choices[0].Message.ReasoningContent
	contentText := resp.Choices[0].Message.Content
	if reasoningText == "" {
		reasoningText, contentText = reasoning.Extract(contentText)
	}

	assistantMsgID, err := conversation.NewMessageID()
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to generate message id")
		return
	}

	var metadata map[string]any
	if reasoningText != "" {
		metadata = map[string]any{conversation.MetadataKeyReasoning: reasoningText}
	}
	msg := conversation.NewMessage(assistantMsgID, conv.ID, conversation.RoleAssistant, contentText, metadata)
	err = h.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		return h.conversations.AppendMessage(txCtx, conv, msg)
	})
	if err != nil {
		observability.RecordError(ctx, err)
		responses.HandleError(reqCtx, err, "failed to persist assistant message")
		return
	}
	h.provider.Invalidate(conv.ID)

	reqCtx.JSON(200, chatresponses.ChatResponse{
		ConversationID:     conv.PublicID,
		ConversationTitle:  conv.Title,
		UserMessageID:      userMsg.PublicID,
		AssistantMessageID: assistantMsgID,
		Content:            contentText,
		ReasoningContent:   reasoningText,
		PromptTokens:       resp.Usage.PromptTokens,
		CompletionTokens:   resp.Usage.CompletionTokens,
	})
}

func (h *ChatHandler) resolveDefaults(request chatrequests.ChatRequest) conversation.ModelDefaults {
	defaults := conversation.ModelDefaults{
		ModelName:   h.cfg.DefaultModel,
		Temperature: h.cfg.DefaultTemperature,
		MaxTokens:   h.cfg.DefaultMaxTokens,
	}
	if request.Model != nil && *request.Model != "" {
		defaults.ModelName = *request.Model
	}

	if preset, ok := h.cfg.ModelPresets.ForModel(defaults.ModelName); ok {
		if preset.Temperature != nil {
			defaults.Temperature = *preset.Temperature
		}
		if preset.MaxTokens != nil {
			defaults.MaxTokens = *preset.MaxTokens
		}
		if preset.SystemPrompt != "" {
			promptCopy := preset.SystemPrompt
			defaults.SystemPrompt = &promptCopy
		}
	}

	if request.Temperature != nil {
		defaults.Temperature = *request.Temperature
	}
	if request.MaxTokens != nil {
		defaults.MaxTokens = *request.MaxTokens
	}
	return defaults
}

func (h *ChatHandler) lookupKnowledge(ctx context.Context, request chatrequests.ChatRequest) string {
	if h.knowledge == nil || request.KnowledgeBaseID == nil || *request.KnowledgeBaseID == "" {
		return ""
	}
	knowledgeContext, err := h.knowledge.Lookup(ctx, *request.KnowledgeBaseID)
	if err != nil {
		log := logger.GetLogger()
		log.Warn().Err(err).Str("knowledge_base_id", *request.KnowledgeBaseID).Msg("knowledge lookup failed, continuing without")
		return ""
	}
	return knowledgeContext
}

func (h *ChatHandler) persistUserMessage(ctx context.Context, conv *conversation.Conversation, text string) (*conversation.Message, error) {
	userMsgID, err := conversation.NewMessageID()
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeInternal, "failed to generate message id", err, "7c1e4a9d-3f6b-4e2a-80d5-c9f2e5b8a1d4")
	}
	msg := conversation.NewMessage(userMsgID, conv.ID, conversation.RoleUser, text, nil)
	err = h.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		return h.conversations.AppendMessage(txCtx, conv, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (h *ChatHandler) buildCompletionRequest(
	conv *conversation.Conversation,
	defaults conversation.ModelDefaults,
	snapshot *history.Snapshot,
	knowledgeContext string,
) openai.ChatCompletionRequest {
	basePrompt := ""
	if conv.SystemPrompt != nil {
		basePrompt = *conv.SystemPrompt
	}
	systemPrompt := prompt.BuildSystemPrompt(basePrompt, snapshot.Summary, knowledgeContext)

	messages := make([]openai.ChatCompletionMessage, 0, len(snapshot.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range snapshot.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	return openai.ChatCompletionRequest{
		Model:       defaults.ModelName,
		Messages:    messages,
		Temperature: defaults.Temperature,
		MaxTokens:   defaults.MaxTokens,
	}
}

// fallbackCompletion retries the turn without streaming. Both results empty
// means the fallback failed too.
func (h *ChatHandler) fallbackCompletion(ctx context.Context, completionReq openai.ChatCompletionRequest, log zerolog.Logger) (reasoningText, contentText string) {
	resp, err := h.backend.CreateChatCompletion(ctx, completionReq)
	if err != nil || len(resp.Choices) == 0 {
		metrics.RecordInferenceError(completionReq.Model, "fallback")
		log.Error().Err(err).Msg("non-streaming fallback failed")
		return "", ""
	}
	reasoningText = resp.Choices[0].Message.ReasoningContent
	contentText = resp.Choices[0].Message.Content
	if reasoningText == "" {
		reasoningText, contentText = reasoning.Extract(contentText)
	}
	return reasoningText, contentText
}

func (h *ChatHandler) enqueueAssistant(conv *conversation.Conversation, assistantMsgID, contentText, reasoningText string) {
	var metadata map[string]any
	if reasoningText != "" {
		metadata = map[string]any{conversation.MetadataKeyReasoning: reasoningText}
	}
	if err := h.queue.Enqueue(&savequeue.Task{
		ConversationPublicID: conv.PublicID,
		UserID:               conv.UserID,
		MessagePublicID:      assistantMsgID,
		Role:                 conversation.RoleAssistant,
		Content:              contentText,
		Metadata:             metadata,
	}); err != nil {
		log := logger.GetLogger()
		log.Error().Err(err).Str("message_id", assistantMsgID).Msg("failed to enqueue assistant message")
	}
}

// writeEvent writes one SSE data line and flushes it.
func (h *ChatHandler) writeEvent(reqCtx *gin.Context, event chatresponses.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := reqCtx.Writer.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := reqCtx.Writer.Write(payload); err != nil {
		return err
	}
	if _, err := reqCtx.Writer.Write([]byte("\n\n")); err != nil {
		return err
	}
	reqCtx.Writer.Flush()
	return nil
}
