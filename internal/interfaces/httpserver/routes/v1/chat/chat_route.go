package chat

import (
	"github.com/gin-gonic/gin"

	"github.com/simon-0512/superrag/internal/interfaces/httpserver/handlers/chathandler"
)

type ChatRoute struct {
	handler *chathandler.ChatHandler
}

func NewChatRoute(handler *chathandler.ChatHandler) *ChatRoute {
	return &ChatRoute{handler: handler}
}

func (route *ChatRoute) RegisterRouter(router gin.IRouter) {
	router.POST("/chat", route.handler.ChatTurn)
}
