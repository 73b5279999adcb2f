package models

import "time"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

var TaskStatuses = []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

var TaskPriorities = []TaskPriority{TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh}

// Rank orders priorities high-first for scheduling prompts.
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityHigh:
		return 0
	case TaskPriorityMedium:
		return 1
	default:
		return 2
	}
}

type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *time.Time
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TaskFilter struct {
	UserID   string
	Status   TaskStatus
	Priority TaskPriority
	Search   string
	SortBy   string
	Desc     bool
	Limit    int
	Offset   int
}

type TaskStats struct {
	Total      int
	ByStatus   map[TaskStatus]int
	ByPriority map[TaskPriority]int
}

func NewTaskStats() TaskStats {
	stats := TaskStats{
		ByStatus:   make(map[TaskStatus]int, len(TaskStatuses)),
		ByPriority: make(map[TaskPriority]int, len(TaskPriorities)),
	}
	for _, s := range TaskStatuses {
		stats.ByStatus[s] = 0
	}
	for _, p := range TaskPriorities {
		stats.ByPriority[p] = 0
	}
	return stats
}
