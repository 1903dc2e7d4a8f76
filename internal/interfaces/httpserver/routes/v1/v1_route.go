package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simon-0512/superrag/internal/config"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/middlewares"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/routes/v1/chat"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/routes/v1/conversation"
)

type V1Route struct {
	chat         *chat.ChatRoute
	conversation *conversation.ConversationRoute
	cfg          *config.Config
}

func NewV1Route(
	chat *chat.ChatRoute,
	conversation *conversation.ConversationRoute,
	cfg *config.Config,
) *V1Route {
	return &V1Route{
		chat,
		conversation,
		cfg,
	}
}

func (v1Route *V1Route) RegisterRouter(router gin.IRouter) {
	v1Router := router.Group("/v1")
	v1Router.GET("/version", GetVersion)

	authed := v1Router.Group("")
	authed.Use(middlewares.UserResolver())
	if v1Route.cfg.RateLimitPerMinute > 0 {
		authed.Use(middlewares.RateLimitMiddleware(v1Route.cfg.RateLimitPerMinute))
	}
	v1Route.chat.RegisterRouter(authed)
	v1Route.conversation.RegisterRouter(authed)
}

// GetVersion returns the current build version of the API server.
func GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": config.Version})
}
