package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Counters receives per-request counts.
type Counters interface {
	Inc(ctx context.Context, name string, labels map[string]string, n int64)
}

const requestIDHeader = "X-Request-ID"

// LoggingMiddleware attaches a request-scoped zerolog logger to the request
// context, logs the outcome of every request and counts it.
func LoggingMiddleware(counters Counters) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		rid := req.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)

		logger := log.With().
			Str("request_id", rid).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Request = req.WithContext(logger.WithContext(req.Context()))

		c.Next()

		status := c.Writer.Status()
		duration := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := map[string]string{
			"method": req.Method,
			"route":  route,
			"status": statusClass(status),
		}

		if counters != nil {
			counters.Inc(c.Request.Context(), "http_requests_total", labels, 1)
		}

		if status >= 500 || len(c.Errors) > 0 {
			logger.Error().
				Str("errors", c.Errors.String()).
				Int("status", status).
				Dur("duration", duration).
				Msg("http request failed")
			if counters != nil {
				counters.Inc(c.Request.Context(), "http_requests_errors_total", labels, 1)
			}
			return
		}

		logger.Info().
			Int("status", status).
			Dur("duration", duration).
			Msg("http request served")
	}
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "0"
	}
}
