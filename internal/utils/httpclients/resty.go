package httpclients

import (
	"context"
	"time"

	"resty.dev/v3"

	"github.com/simon-0512/superrag/internal/infrastructure/logger"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

type httpClientStartsAt struct{}

// NewClient builds a resty client with request/response debug logging.
// The request ID is picked up from the context when present.
func NewClient(clientName string) *resty.Client {
	client := resty.New()
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		ctx := context.WithValue(r.Context(), httpClientStartsAt{}, time.Now())
		r.SetContext(ctx)
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		log := logger.GetLogger()
		requestID := platformerrors.RequestIDFromContext(r.Request.Context())
		startTime, _ := r.Request.Context().Value(httpClientStartsAt{}).(time.Time)
		latency := time.Since(startTime)

		log.Debug().
			Str("request_id", requestID).
			Str("client", clientName).
			Int("status", r.StatusCode()).
			Str("method", r.Request.RawRequest.Method).
			Str("path", r.Request.RawRequest.URL.Path).
			Dur("latency", latency).
			Msg("HTTP client request")
		return nil
	})
	return client
}
