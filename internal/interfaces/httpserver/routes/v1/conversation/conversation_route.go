package conversation

import (
	"github.com/gin-gonic/gin"

	"github.com/simon-0512/superrag/internal/interfaces/httpserver/handlers/conversationhandler"
)

type ConversationRoute struct {
	handler *conversationhandler.ConversationHandler
}

func NewConversationRoute(handler *conversationhandler.ConversationHandler) *ConversationRoute {
	return &ConversationRoute{handler: handler}
}

func (route *ConversationRoute) RegisterRouter(router gin.IRouter) {
	conversations := router.Group("/conversations")
	conversations.GET("", route.handler.ListConversations)
	conversations.GET("/:id/messages", route.handler.GetMessages)
	conversations.PATCH("/:id", route.handler.UpdateConversation)
	conversations.DELETE("/:id", route.handler.DeleteConversation)
}
