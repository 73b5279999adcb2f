package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Database    string    `json:"database"`
	Cache       string    `json:"cache"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
}

// Health reports 503 when the database is unreachable. Redis is optional, so
// a cache failure degrades the report without failing it.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "not_configured"
	if h.db != nil {
		dbStatus = "ok"
		if err := h.db.Ping(ctx); err != nil {
			dbStatus = "error"
			h.log.Error().Err(err).Msg("database ping failed")
		}
	}

	cacheStatus := "not_configured"
	if h.cache != nil {
		cacheStatus = "ok"
		if err := h.cache.Ping(ctx).Err(); err != nil {
			cacheStatus = "error"
			h.log.Error().Err(err).Msg("redis ping failed")
		}
	}

	resp := healthResponse{
		Database:    dbStatus,
		Cache:       cacheStatus,
		Environment: h.cfg.Environment,
		Timestamp:   time.Now().UTC(),
	}
	if dbStatus == "error" {
		c.JSON(http.StatusServiceUnavailable, envelope{Success: false, Message: "Database unavailable", Data: resp})
		return
	}
	respond(c, http.StatusOK, "Server is running", resp)
}
