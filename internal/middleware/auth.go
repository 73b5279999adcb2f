package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/service"
)

const currentUserKey = "current_user"

// Auth resolves the bearer token to a live, active account and stores it on
// the context for CurrentUser.
func Auth(gate *service.Gate, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			abort(c, http.StatusUnauthorized, "Not authorized, no token provided")
			return
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		user, err := gate.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				log.Warn().Err(err).Str("path", c.FullPath()).Msg("authentication rejected")
				abort(c, http.StatusUnauthorized, service.ErrUnauthenticated.Error())
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				log.Error().Err(err).Str("path", c.FullPath()).Msg("authentication lookup timed out")
				abort(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}
			log.Error().Err(err).Msg("authentication lookup failed")
			abort(c, http.StatusInternalServerError, "Internal server error")
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the account set by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
