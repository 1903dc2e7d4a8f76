package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PrepareSSE switches the response into event-stream mode. The returned
// flusher is nil when the underlying writer cannot stream.
func PrepareSSE(c *gin.Context) (http.Flusher, bool) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	// Keep intermediary proxies from buffering the stream.
	header.Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	return flusher, ok
}
