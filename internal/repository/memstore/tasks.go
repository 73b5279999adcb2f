package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/repository"
)

type Tasks struct {
	mu   sync.RWMutex
	byID map[string]models.Task
	now  func() time.Time
}

func NewTasks() *Tasks {
	return &Tasks{
		byID: make(map[string]models.Task),
		now:  time.Now,
	}
}

func (s *Tasks) Create(ctx context.Context, task models.Task) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Tags = cloneTags(task.Tags)
	s.byID[task.ID] = task
	return task, nil
}

func (s *Tasks) GetByID(ctx context.Context, userID string, id string) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.byID[id]
	if !ok || task.UserID != userID {
		return models.Task{}, repository.ErrTaskNotFound
	}
	task.Tags = cloneTags(task.Tags)
	return task, nil
}

func (s *Tasks) Update(ctx context.Context, task models.Task) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[task.ID]
	if !ok || existing.UserID != task.UserID {
		return models.Task{}, repository.ErrTaskNotFound
	}
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = s.now()
	task.Tags = cloneTags(task.Tags)
	s.byID[task.ID] = task
	return task, nil
}

func (s *Tasks) Delete(ctx context.Context, userID string, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.byID[id]
	if !ok || task.UserID != userID {
		return repository.ErrTaskNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Tasks) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	search := strings.ToLower(filter.Search)

	s.mu.RLock()
	var matched []models.Task
	for _, task := range s.byID {
		if task.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && task.Priority != filter.Priority {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(task.Title), search) &&
			!strings.Contains(strings.ToLower(task.Description), search) {
			continue
		}
		matched = append(matched, task)
	}
	s.mu.RUnlock()

	less := taskLess(filter.SortBy)
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.Desc {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return matched[i].ID < matched[j].ID
	})
	return paginate(matched, filter.Offset, filter.Limit), len(matched), nil
}

func (s *Tasks) ListForPlanning(ctx context.Context, userID string, openOnly bool) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var tasks []models.Task
	for _, task := range s.byID {
		if task.UserID != userID {
			continue
		}
		if openOnly && task.Status == models.TaskStatusCompleted {
			continue
		}
		tasks = append(tasks, task)
	}
	s.mu.RUnlock()

	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if dueBefore(a, b) || dueBefore(b, a) {
			return dueBefore(a, b)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return tasks, nil
}

func (s *Tasks) Stats(ctx context.Context, userID string) (models.TaskStats, error) {
	if err := ctx.Err(); err != nil {
		return models.TaskStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.NewTaskStats()
	for _, task := range s.byID {
		if userID != "" && task.UserID != userID {
			continue
		}
		stats.Total++
		stats.ByStatus[task.Status]++
		stats.ByPriority[task.Priority]++
	}
	return stats, nil
}

func (s *Tasks) CountByUser(ctx context.Context, userID string) (int, error) {
	stats, err := s.Stats(ctx, userID)
	return stats.Total, err
}

func (s *Tasks) deleteByUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, task := range s.byID {
		if task.UserID == userID {
			delete(s.byID, id)
		}
	}
}

func taskLess(sortBy string) func(a, b models.Task) bool {
	switch sortBy {
	case "title":
		return func(a, b models.Task) bool { return a.Title < b.Title }
	case "status":
		return func(a, b models.Task) bool { return a.Status < b.Status }
	case "priority":
		// ascending means low before high
		return func(a, b models.Task) bool { return a.Priority.Rank() > b.Priority.Rank() }
	case "dueDate":
		return dueBefore
	case "updatedAt":
		return func(a, b models.Task) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	default:
		return func(a, b models.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

// dueBefore orders tasks without a due date last.
func dueBefore(a, b models.Task) bool {
	switch {
	case a.DueDate == nil:
		return false
	case b.DueDate == nil:
		return true
	default:
		return a.DueDate.Before(*b.DueDate)
	}
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return append([]string(nil), tags...)
}
