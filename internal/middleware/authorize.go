package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/service"
)

// RequireRoles must run after Auth.
func RequireRoles(gate *service.Gate, roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abort(c, http.StatusUnauthorized, service.ErrUnauthenticated.Error())
			return
		}

		if err := gate.Authorize(user, roles...); err != nil {
			abort(c, http.StatusForbidden, service.ErrForbidden.Error())
			return
		}

		c.Next()
	}
}
