package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"taskmanager/api/internal/ids"
	"taskmanager/api/internal/models"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 500
)

type TaskService struct {
	tasks   TaskStore
	timeout time.Duration
}

func NewTaskService(tasks TaskStore, timeout time.Duration) *TaskService {
	return &TaskService{tasks: tasks, timeout: timeout}
}

type CreateTaskInput struct {
	UserID      string
	Title       string
	Description string
	Status      models.TaskStatus
	Priority    models.TaskPriority
	DueDate     *time.Time
	Tags        []string
}

// TaskPatch holds the fields of an update. Nil fields are left unchanged;
// ClearDueDate removes the due date when DueDate is nil.
type TaskPatch struct {
	Title        *string
	Description  *string
	Status       *models.TaskStatus
	Priority     *models.TaskPriority
	DueDate      *time.Time
	ClearDueDate bool
	Tags         []string
}

func (s *TaskService) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	if filter.Status != "" && !slices.Contains(models.TaskStatuses, filter.Status) {
		return nil, 0, fmt.Errorf("%w: invalid status filter", ErrInvalidInput)
	}
	if filter.Priority != "" && !slices.Contains(models.TaskPriorities, filter.Priority) {
		return nil, 0, fmt.Errorf("%w: invalid priority filter", ErrInvalidInput)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.tasks.List(ctx, filter)
}

func (s *TaskService) Get(ctx context.Context, userID, id string) (models.Task, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return models.Task{}, notFound(err)
	}
	return task, nil
}

func (s *TaskService) Create(ctx context.Context, input CreateTaskInput) (models.Task, error) {
	task := models.Task{
		ID:          ids.New(),
		UserID:      input.UserID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      input.Status,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
		Tags:        cleanTags(input.Tags),
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = models.TaskPriorityMedium
	}
	if err := validateTask(task); err != nil {
		return models.Task{}, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.tasks.Create(ctx, task)
}

func (s *TaskService) Update(ctx context.Context, userID, id string, patch TaskPatch) (models.Task, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return models.Task{}, notFound(err)
	}

	if patch.Title != nil {
		task.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		task.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	switch {
	case patch.DueDate != nil:
		task.DueDate = patch.DueDate
	case patch.ClearDueDate:
		task.DueDate = nil
	}
	if patch.Tags != nil {
		task.Tags = cleanTags(patch.Tags)
	}
	if err := validateTask(task); err != nil {
		return models.Task{}, err
	}

	updated, err := s.tasks.Update(ctx, task)
	if err != nil {
		return models.Task{}, notFound(err)
	}
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return notFound(s.tasks.Delete(ctx, userID, id))
}

func (s *TaskService) Stats(ctx context.Context, userID string) (models.TaskStats, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.tasks.Stats(ctx, userID)
}

func validateTask(task models.Task) error {
	switch {
	case task.Title == "" || len([]rune(task.Title)) > maxTitleLen:
		return fmt.Errorf("%w: title must be between 1 and %d characters", ErrInvalidInput, maxTitleLen)
	case len([]rune(task.Description)) > maxDescriptionLen:
		return fmt.Errorf("%w: description cannot exceed %d characters", ErrInvalidInput, maxDescriptionLen)
	case !slices.Contains(models.TaskStatuses, task.Status):
		return fmt.Errorf("%w: invalid status", ErrInvalidInput)
	case !slices.Contains(models.TaskPriorities, task.Priority):
		return fmt.Errorf("%w: invalid priority", ErrInvalidInput)
	}
	return nil
}

func cleanTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	return cleaned
}
