// Package conversationhandler serves the conversation management endpoints.
package conversationhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/middlewares"
	conversationrequests "github.com/simon-0512/superrag/internal/interfaces/httpserver/requests/conversation"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/responses"
	conversationresponses "github.com/simon-0512/superrag/internal/interfaces/httpserver/responses/conversation"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

const defaultListLimit = 20

// ConversationHandler handles conversation-related HTTP requests
type ConversationHandler struct {
	conversations *conversation.ConversationService
}

func NewConversationHandler(conversations *conversation.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// ListConversations handles GET /v1/conversations
func (h *ConversationHandler) ListConversations(reqCtx *gin.Context) {
	userID := middlewares.UserIDFromContext(reqCtx)

	var params conversationrequests.ListConversationsQueryParams
	if err := reqCtx.ShouldBindQuery(&params); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid query parameters")
		return
	}
	limit := defaultListLimit
	if params.Limit != nil && *params.Limit > 0 {
		limit = *params.Limit
	}

	conversations, err := h.conversations.ListConversations(reqCtx.Request.Context(), userID, limit)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to list conversations")
		return
	}
	reqCtx.JSON(http.StatusOK, conversationresponses.NewConversationListResponse(conversations))
}

// GetMessages handles GET /v1/conversations/:id/messages
func (h *ConversationHandler) GetMessages(reqCtx *gin.Context) {
	userID := middlewares.UserIDFromContext(reqCtx)
	publicID := reqCtx.Param("id")

	conv, messages, err := h.conversations.GetTranscript(reqCtx.Request.Context(), userID, publicID)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to load transcript")
		return
	}
	reqCtx.JSON(http.StatusOK, conversationresponses.NewMessageListResponse(conv.PublicID, messages))
}

// UpdateConversation handles PATCH /v1/conversations/:id
func (h *ConversationHandler) UpdateConversation(reqCtx *gin.Context) {
	userID := middlewares.UserIDFromContext(reqCtx)
	publicID := reqCtx.Param("id")

	var req conversationrequests.UpdateConversationRequest
	if err := reqCtx.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "title is required")
		return
	}

	conv, err := h.conversations.UpdateTitle(reqCtx.Request.Context(), userID, publicID, req.Title)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to update conversation")
		return
	}
	reqCtx.JSON(http.StatusOK, conversationresponses.NewConversationResponse(conv))
}

// DeleteConversation handles DELETE /v1/conversations/:id
func (h *ConversationHandler) DeleteConversation(reqCtx *gin.Context) {
	userID := middlewares.UserIDFromContext(reqCtx)
	publicID := reqCtx.Param("id")

	if err := h.conversations.DeactivateConversation(reqCtx.Request.Context(), userID, publicID); err != nil {
		responses.HandleError(reqCtx, err, "failed to delete conversation")
		return
	}
	reqCtx.JSON(http.StatusOK, conversationresponses.NewConversationDeletedResponse(publicID))
}
