package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskmanager/api/internal/ids"
	"taskmanager/api/internal/models"
	"taskmanager/api/internal/service"
)

type taskResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toTaskResponse(task models.Task) taskResponse {
	tags := task.Tags
	if tags == nil {
		tags = []string{}
	}
	return taskResponse{
		ID:          task.ID,
		UserID:      task.UserID,
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		DueDate:     task.DueDate,
		Tags:        tags,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

type taskStatsResponse struct {
	Total      int                         `json:"total"`
	ByStatus   map[models.TaskStatus]int   `json:"byStatus"`
	ByPriority map[models.TaskPriority]int `json:"byPriority"`
}

func toTaskStatsResponse(stats models.TaskStats) taskStatsResponse {
	return taskStatsResponse{Total: stats.Total, ByStatus: stats.ByStatus, ByPriority: stats.ByPriority}
}

type listTasksQuery struct {
	pageQuery
	Status   string `form:"status" binding:"omitempty,oneof=pending in-progress completed"`
	Priority string `form:"priority" binding:"omitempty,oneof=low medium high"`
	Search   string `form:"search"`
	SortBy   string `form:"sortBy" binding:"omitempty,oneof=createdAt updatedAt dueDate priority title status"`
	Order    string `form:"order" binding:"omitempty,oneof=asc desc"`
}

func (h HandlerSet) ListTasks(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var q listTasksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	q.normalize()

	tasks, total, err := h.tasks.List(c.Request.Context(), models.TaskFilter{
		UserID:   user.ID,
		Status:   models.TaskStatus(q.Status),
		Priority: models.TaskPriority(q.Priority),
		Search:   q.Search,
		SortBy:   q.SortBy,
		Desc:     q.Order != "asc",
		Limit:    q.Limit,
		Offset:   q.offset(),
	})
	if err != nil {
		h.failService(c, err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskResponse(task))
	}
	respond(c, http.StatusOK, "", gin.H{
		"tasks":      out,
		"pagination": q.result(total),
	})
}

func (h HandlerSet) GetTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		h.failTask(c, err)
		return
	}

	respond(c, http.StatusOK, "", toTaskResponse(task))
}

type taskRequest struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Status      *string      `json:"status" binding:"omitempty,oneof=pending in-progress completed"`
	Priority    *string      `json:"priority" binding:"omitempty,oneof=low medium high"`
	DueDate     nullableDate `json:"dueDate"`
	Tags        []string     `json:"tags"`
}

// nullableDate tells an absent dueDate apart from an explicit null.
type nullableDate struct {
	Set   bool
	Value *string
}

func (d *nullableDate) UnmarshalJSON(b []byte) error {
	d.Set = true
	if string(b) == "null" {
		d.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	d.Value = &v
	return nil
}

func (h HandlerSet) CreateTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}
	if req.Title == nil {
		fail(c, http.StatusBadRequest, "Title is required")
		return
	}
	due, ok := parseDueDate(c, req.DueDate.Value)
	if !ok {
		return
	}

	input := service.CreateTaskInput{
		UserID:  user.ID,
		Title:   *req.Title,
		DueDate: due,
		Tags:    req.Tags,
	}
	if req.Description != nil {
		input.Description = *req.Description
	}
	if req.Status != nil {
		input.Status = models.TaskStatus(*req.Status)
	}
	if req.Priority != nil {
		input.Priority = models.TaskPriority(*req.Priority)
	}

	task, err := h.tasks.Create(c.Request.Context(), input)
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusCreated, "Task created successfully", toTaskResponse(task))
}

func (h HandlerSet) UpdateTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}
	due, ok := parseDueDate(c, req.DueDate.Value)
	if !ok {
		return
	}

	patch := service.TaskPatch{
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      due,
		ClearDueDate: req.DueDate.Set && due == nil,
		Tags:         req.Tags,
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		patch.Status = &status
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		patch.Priority = &priority
	}

	task, err := h.tasks.Update(c.Request.Context(), user.ID, id, patch)
	if err != nil {
		h.failTask(c, err)
		return
	}

	respond(c, http.StatusOK, "Task updated successfully", toTaskResponse(task))
}

func (h HandlerSet) DeleteTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), user.ID, id); err != nil {
		h.failTask(c, err)
		return
	}

	respond(c, http.StatusOK, "Task deleted successfully", nil)
}

func (h HandlerSet) TaskStats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	stats, err := h.tasks.Stats(c.Request.Context(), user.ID)
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "", toTaskStatsResponse(stats))
}

func (h HandlerSet) failTask(c *gin.Context, err error) {
	if isNotFound(err) {
		fail(c, http.StatusNotFound, "Task not found")
		return
	}
	h.failService(c, err)
}

// pathID rejects ids that could not have been issued by ids.New.
func pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !ids.Valid(id) {
		fail(c, http.StatusBadRequest, "Invalid ID format")
		return "", false
	}
	return id, true
}

// parseDueDate accepts RFC 3339 timestamps and plain dates.
func parseDueDate(c *gin.Context, raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *raw); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	fail(c, http.StatusBadRequest, "Invalid date format")
	return nil, false
}
