package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taskmanager/api/internal/llm"
	"taskmanager/api/internal/models"
)

var (
	ErrAssistantNotConfigured = errors.New("AI assistant is not configured, set llm.apikey")
	ErrAssistantUnavailable   = errors.New("AI service temporarily unavailable, please try again later")
)

const (
	chatHistoryLimit = 10
	noOpenTasksReply = "You have no pending tasks. Enjoy your free time or plan ahead for upcoming projects!"
	defaultQuestion  = "Analyze my tasks and give me a productivity plan. What should I focus on today?"
)

type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Model() string
}

type AssistantService struct {
	tasks   TaskStore
	llm     Completer
	timeout time.Duration
	log     zerolog.Logger
}

func NewAssistantService(tasks TaskStore, completer Completer, timeout time.Duration, log zerolog.Logger) *AssistantService {
	return &AssistantService{tasks: tasks, llm: completer, timeout: timeout, log: log}
}

type Analysis struct {
	Response string
	Stats    models.TaskStats
	Model    string
}

type Schedule struct {
	Response   string
	TotalTasks int
	WorkHours  int
}

func (s *AssistantService) Analyze(ctx context.Context, userID, question string) (Analysis, error) {
	tasks, err := s.planningTasks(ctx, userID, false)
	if err != nil {
		return Analysis{}, err
	}
	stats := statsOf(tasks)

	var b strings.Builder
	b.WriteString("You are a productivity assistant helping a user manage tasks.\n")
	fmt.Fprintf(&b, "Totals: %d tasks, %d pending, %d in progress, %d completed; %d high, %d medium, %d low priority.\n",
		stats.Total,
		stats.ByStatus[models.TaskStatusPending],
		stats.ByStatus[models.TaskStatusInProgress],
		stats.ByStatus[models.TaskStatusCompleted],
		stats.ByPriority[models.TaskPriorityHigh],
		stats.ByPriority[models.TaskPriorityMedium],
		stats.ByPriority[models.TaskPriorityLow],
	)
	b.WriteString("Tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s [%s, %s priority, due %s]\n", t.Title, t.Status, t.Priority, dueLabel(t))
	}
	b.WriteString("Suggest what to focus on, time allocation and a schedule. Be concise and actionable.")

	if strings.TrimSpace(question) == "" {
		question = defaultQuestion
	}

	reply, err := s.complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: b.String()},
			{Role: llm.RoleUser, Content: question},
		},
		Temperature: 0.7,
		MaxTokens:   1500,
	})
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{Response: reply, Stats: stats, Model: s.llm.Model()}, nil
}

// Chat answers message in the context of the user's workload. Only the last
// ten history messages are forwarded, and history may not claim the system
// role.
func (s *AssistantService) Chat(ctx context.Context, userID, message string, history []llm.Message) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	tasks, err := s.planningTasks(ctx, userID, false)
	if err != nil {
		return "", err
	}
	stats := statsOf(tasks)
	system := fmt.Sprintf("You are TaskBot, a friendly productivity assistant. The user has %d tasks: %d high priority, %d pending, %d in progress. Give practical, concise advice.",
		stats.Total,
		stats.ByPriority[models.TaskPriorityHigh],
		stats.ByStatus[models.TaskStatusPending],
		stats.ByStatus[models.TaskStatusInProgress],
	)

	if len(history) > chatHistoryLimit {
		history = history[len(history)-chatHistoryLimit:]
	}
	messages := []llm.Message{{Role: llm.RoleSystem, Content: system}}
	for _, m := range history {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	return s.complete(ctx, llm.Request{Messages: messages, Temperature: 0.8, MaxTokens: 800})
}

// Schedule plans a working day over the user's open tasks. With nothing open
// the model is not called.
func (s *AssistantService) Schedule(ctx context.Context, userID string, workHours int, startTime string) (Schedule, error) {
	if workHours < 1 || workHours > 24 {
		return Schedule{}, fmt.Errorf("%w: workHours must be between 1 and 24", ErrInvalidInput)
	}
	if _, err := time.Parse("15:04", startTime); err != nil {
		return Schedule{}, fmt.Errorf("%w: startTime must be HH:MM", ErrInvalidInput)
	}

	tasks, err := s.planningTasks(ctx, userID, true)
	if err != nil {
		return Schedule{}, err
	}
	if len(tasks) == 0 {
		return Schedule{Response: noOpenTasksReply, WorkHours: workHours}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a %d-hour daily schedule starting at %s for these tasks:\n", workHours, startTime)
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s (%s priority, %s)\n", t.Title, t.Priority, t.Status)
	}
	b.WriteString("Use explicit time slots, include short breaks, and put high priority work first.")

	reply, err := s.complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a scheduling expert. Create practical, realistic daily schedules."},
			{Role: llm.RoleUser, Content: b.String()},
		},
		Temperature: 0.6,
		MaxTokens:   1000,
	})
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Response: reply, TotalTasks: len(tasks), WorkHours: workHours}, nil
}

func (s *AssistantService) planningTasks(ctx context.Context, userID string, openOnly bool) ([]models.Task, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.tasks.ListForPlanning(ctx, userID, openOnly)
}

func (s *AssistantService) complete(ctx context.Context, req llm.Request) (string, error) {
	reply, err := s.llm.Complete(ctx, req)
	if errors.Is(err, llm.ErrNotConfigured) {
		return "", ErrAssistantNotConfigured
	}
	if err != nil {
		s.log.Error().Err(err).Msg("llm request failed")
		return "", fmt.Errorf("%w: %w", ErrAssistantUnavailable, err)
	}
	return reply, nil
}

func statsOf(tasks []models.Task) models.TaskStats {
	stats := models.NewTaskStats()
	for _, t := range tasks {
		stats.Total++
		stats.ByStatus[t.Status]++
		stats.ByPriority[t.Priority]++
	}
	return stats
}

func dueLabel(t models.Task) string {
	if t.DueDate == nil {
		return "none"
	}
	return t.DueDate.Format("2006-01-02")
}
