package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskmanager/api/internal/llm"
)

type analyzeRequest struct {
	Question string `json:"question" binding:"max=1000"`
}

func (h HandlerSet) Analyze(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req analyzeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			failBinding(c, err)
			return
		}
	}

	analysis, err := h.assistant.Analyze(c.Request.Context(), user.ID, req.Question)
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "", gin.H{
		"response":  analysis.Response,
		"taskStats": toTaskStatsResponse(analysis.Stats),
		"model":     analysis.Model,
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message             string        `json:"message" binding:"required,max=2000"`
	ConversationHistory []chatMessage `json:"conversationHistory"`
}

func (h HandlerSet) Chat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}

	history := make([]llm.Message, 0, len(req.ConversationHistory))
	for _, m := range req.ConversationHistory {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := h.assistant.Chat(c.Request.Context(), user.ID, req.Message, history)
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "", gin.H{"response": reply})
}

type scheduleQuery struct {
	WorkHours int    `form:"workHours"`
	StartTime string `form:"startTime"`
}

func (h HandlerSet) Schedule(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var q scheduleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	if q.WorkHours == 0 {
		q.WorkHours = 8
	}
	if q.StartTime == "" {
		q.StartTime = "09:00"
	}

	schedule, err := h.assistant.Schedule(c.Request.Context(), user.ID, q.WorkHours, q.StartTime)
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "", gin.H{
		"response":   schedule.Response,
		"totalTasks": schedule.TotalTasks,
		"workHours":  schedule.WorkHours,
	})
}
