package middleware

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns panics into a 500 envelope and forwards them to Sentry. The
// Sentry call is a no-op when no client was initialised.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID := c.Writer.Header().Get(requestIDHeader)
				log.Error().
					Interface("error", r).
					Str("request_id", requestID).
					Msg("panic recovered")

				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(c.Request)
				hub.Scope().SetTag("request_id", requestID)
				hub.RecoverWithContext(c.Request.Context(), r)

				abort(c, http.StatusInternalServerError, "Internal server error")
			}
		}()
		c.Next()
	}
}
