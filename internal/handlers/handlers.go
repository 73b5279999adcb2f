package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taskmanager/api/internal/config"
	"taskmanager/api/internal/middleware"
	"taskmanager/api/internal/models"
	"taskmanager/api/internal/service"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the HTTP layer depends on. Database and Cache may be
// nil; health reports them as not configured.
type Services struct {
	Auth      *service.AuthService
	Gate      *service.Gate
	Admin     *service.AdminService
	Tasks     *service.TaskService
	Assistant *service.AssistantService
	Database  Pinger
	Cache     *redis.Client
}

type HandlerSet struct {
	log       zerolog.Logger
	cfg       *config.AppConfig
	auth      *service.AuthService
	gate      *service.Gate
	admin     *service.AdminService
	tasks     *service.TaskService
	assistant *service.AssistantService
	db        Pinger
	cache     *redis.Client
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, svc Services) HandlerSet {
	return HandlerSet{
		log:       log,
		cfg:       cfg,
		auth:      svc.Auth,
		gate:      svc.Gate,
		admin:     svc.Admin,
		tasks:     svc.Tasks,
		assistant: svc.Assistant,
		db:        svc.Database,
		cache:     svc.Cache,
	}
}

func (h HandlerSet) Register(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Route "+c.Request.URL.Path+" not found")
	})

	api := router.Group("/api")
	if h.cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(h.cache, "general", h.cfg.RateLimit.GeneralMax, h.cfg.RateLimit.GeneralWindow, h.log))
	}
	v1 := api.Group("/v1")

	requireUser := middleware.Auth(h.gate, h.log)

	auth := v1.Group("/auth")
	if h.cfg.RateLimit.Enabled {
		auth.Use(middleware.RateLimit(h.cache, "auth", h.cfg.RateLimit.AuthMax, h.cfg.RateLimit.AuthWindow, h.log))
	}
	{
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/refresh-token", h.RefreshToken)
		auth.POST("/logout", requireUser, h.Logout)
		auth.GET("/me", requireUser, h.Me)
		auth.PUT("/update-password", requireUser, h.UpdatePassword)
		auth.PUT("/update-profile", requireUser, h.UpdateProfile)
	}

	tasks := v1.Group("/tasks", requireUser)
	{
		tasks.GET("", h.ListTasks)
		tasks.GET("/stats", h.TaskStats)
		tasks.POST("", h.CreateTask)
		tasks.GET("/:id", h.GetTask)
		tasks.PUT("/:id", h.UpdateTask)
		tasks.DELETE("/:id", h.DeleteTask)
	}

	admin := v1.Group("/admin", requireUser, middleware.RequireRoles(h.gate, models.UserRoleAdmin))
	{
		admin.GET("/stats", h.AdminStats)
		admin.GET("/users", h.AdminListUsers)
		admin.GET("/users/:id", h.AdminGetUser)
		admin.PUT("/users/:id/role", h.AdminChangeRole)
		admin.PUT("/users/:id/deactivate", h.AdminDeactivate)
		admin.PUT("/users/:id/activate", h.AdminActivate)
		admin.DELETE("/users/:id", h.AdminDeleteUser)
		admin.GET("/audit", h.AdminAuditLog)
	}

	ai := v1.Group("/ai", requireUser)
	{
		ai.POST("/analyze", h.Analyze)
		ai.POST("/chat", h.Chat)
		ai.GET("/schedule", h.Schedule)
	}
}

// currentUser is only called behind middleware.Auth, so a miss means the
// route was registered without it.
func currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "Not authorized")
	}
	return user, ok
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type pageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q *pageQuery) normalize() {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 10
	}
}

func (q pageQuery) offset() int {
	return (q.Page - 1) * q.Limit
}

func (q pageQuery) result(total int) pagination {
	return pagination{
		Page:  q.Page,
		Limit: q.Limit,
		Total: total,
		Pages: (total + q.Limit - 1) / q.Limit,
	}
}
