package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/service"
)

type adminStatsResponse struct {
	Users struct {
		Total  int `json:"total"`
		Active int `json:"active"`
		Admins int `json:"admins"`
	} `json:"users"`
	Tasks struct {
		Total    int                       `json:"total"`
		ByStatus map[models.TaskStatus]int `json:"byStatus"`
	} `json:"tasks"`
	RecentUsers []userResponse `json:"recentUsers"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

func (h HandlerSet) AdminStats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		h.failService(c, err)
		return
	}

	var resp adminStatsResponse
	resp.Users.Total = stats.Users.Total
	resp.Users.Active = stats.Users.Active
	resp.Users.Admins = stats.Users.Admins
	resp.Tasks.Total = stats.Tasks.Total
	resp.Tasks.ByStatus = stats.Tasks.ByStatus
	resp.RecentUsers = make([]userResponse, 0, len(stats.RecentUsers))
	for _, u := range stats.RecentUsers {
		resp.RecentUsers = append(resp.RecentUsers, toUserResponse(u))
	}
	resp.GeneratedAt = stats.GeneratedAt

	respond(c, http.StatusOK, "", resp)
}

type listUsersQuery struct {
	pageQuery
	Role   string `form:"role" binding:"omitempty,oneof=user admin"`
	Search string `form:"search"`
}

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	var q listUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	q.normalize()

	users, total, err := h.admin.ListUsers(c.Request.Context(), models.UserFilter{
		Role:   models.UserRole(q.Role),
		Search: q.Search,
		Limit:  q.Limit,
		Offset: q.offset(),
	})
	if err != nil {
		h.failService(c, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	respond(c, http.StatusOK, "", gin.H{
		"users":      out,
		"pagination": q.result(total),
	})
}

type userDetailResponse struct {
	userResponse
	TaskCount int `json:"taskCount"`
}

func (h HandlerSet) AdminGetUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.admin.GetUser(c.Request.Context(), id)
	if err != nil {
		h.failUser(c, err)
		return
	}

	respond(c, http.StatusOK, "", userDetailResponse{
		userResponse: toUserResponse(detail.User),
		TaskCount:    detail.TaskCount,
	})
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h HandlerSet) AdminChangeRole(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}

	user, err := h.admin.ChangeRole(c.Request.Context(), actor.ID, id, models.UserRole(req.Role))
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			fail(c, http.StatusBadRequest, "Invalid role")
			return
		}
		h.failUser(c, err)
		return
	}

	respond(c, http.StatusOK, "User role updated successfully", toUserResponse(user))
}

func (h HandlerSet) AdminDeactivate(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.admin.Deactivate(c.Request.Context(), actor.ID, id); err != nil {
		if errors.Is(err, service.ErrSelfActionForbidden) {
			fail(c, http.StatusBadRequest, "Cannot deactivate your own account")
			return
		}
		h.failUser(c, err)
		return
	}

	respond(c, http.StatusOK, "User deactivated successfully", nil)
}

func (h HandlerSet) AdminActivate(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.admin.Activate(c.Request.Context(), actor.ID, id); err != nil {
		h.failUser(c, err)
		return
	}

	respond(c, http.StatusOK, "User activated successfully", nil)
}

func (h HandlerSet) AdminDeleteUser(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.admin.DeleteUser(c.Request.Context(), actor.ID, id); err != nil {
		if errors.Is(err, service.ErrSelfActionForbidden) {
			fail(c, http.StatusBadRequest, "Cannot delete your own account")
			return
		}
		h.failUser(c, err)
		return
	}

	respond(c, http.StatusOK, "User and associated tasks deleted successfully", nil)
}

type auditQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

type auditEventResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (h HandlerSet) AdminAuditLog(c *gin.Context) {
	var q auditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	events, err := h.admin.AuditLog(c.Request.Context(), q.Limit)
	if err != nil {
		h.failService(c, err)
		return
	}

	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			ID:         e.ID,
			Type:       string(e.Type),
			UserID:     e.UserID,
			ActorID:    e.ActorID,
			Detail:     e.Detail,
			IPAddress:  e.IPAddress,
			OccurredAt: e.OccurredAt,
		})
	}
	respond(c, http.StatusOK, "", gin.H{"events": out})
}

func (h HandlerSet) failUser(c *gin.Context, err error) {
	if isNotFound(err) {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	h.failService(c, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, service.ErrNotFound)
}
