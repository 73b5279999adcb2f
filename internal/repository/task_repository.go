package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskmanager/api/internal/models"
)

var ErrTaskNotFound = errors.New("task not found")

const taskColumns = `id, user_id, title, description, status, priority, due_date, tags, created_at, updated_at`

// sortColumns maps accepted sortBy values to SQL. Anything else falls back to
// created_at.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"dueDate":   "due_date",
	"title":     "title",
	"status":    "status",
	"priority":  "CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
}

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Create(ctx context.Context, task models.Task) (models.Task, error) {
	query := `
		INSERT INTO tasks (
			id, user_id, title, description, status, priority, due_date, tags, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
		RETURNING ` + taskColumns

	return scanTask(r.pool.QueryRow(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		nonNilTags(task.Tags),
	))
}

func (r *TaskRepository) GetByID(ctx context.Context, userID string, id string) (models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	return scanTask(r.pool.QueryRow(ctx, query, id, userID))
}

func (r *TaskRepository) Update(ctx context.Context, task models.Task) (models.Task, error) {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, status = $5, priority = $6, due_date = $7, tags = $8, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + taskColumns

	return scanTask(r.pool.QueryRow(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		nonNilTags(task.Tags),
	))
}

func (r *TaskRepository) Delete(ctx context.Context, userID string, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	where := []string{"user_id = $1"}
	args := []any{filter.UserID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := sortColumns[filter.SortBy]
	if order == "" {
		order = "created_at"
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tasks%s ORDER BY %s %s NULLS LAST, id LIMIT $%d OFFSET $%d`,
		taskColumns, clause, order, direction, len(args)-1, len(args))

	tasks, err := r.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// ListForPlanning returns a user's tasks high priority first, then by due
// date. Completed tasks are skipped when openOnly is set.
func (r *TaskRepository) ListForPlanning(ctx context.Context, userID string, openOnly bool) ([]models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1 AND (NOT $2 OR status <> 'completed')
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, due_date ASC NULLS LAST, created_at
	`
	return r.queryTasks(ctx, query, userID, openOnly)
}

// Stats aggregates tasks by status and priority. An empty userID aggregates
// across all users.
func (r *TaskRepository) Stats(ctx context.Context, userID string) (models.TaskStats, error) {
	const query = `
		SELECT status, priority, COUNT(*)
		FROM tasks
		WHERE $1 = '' OR user_id = $1
		GROUP BY status, priority
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return models.TaskStats{}, err
	}
	defer rows.Close()

	stats := models.NewTaskStats()
	for rows.Next() {
		var (
			status   models.TaskStatus
			priority models.TaskPriority
			count    int
		)
		if err := rows.Scan(&status, &priority, &count); err != nil {
			return models.TaskStats{}, err
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByPriority[priority] += count
	}
	return stats, rows.Err()
}

func (r *TaskRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (models.Task, error) {
	var task models.Task
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Priority,
		&task.DueDate,
		&task.Tags,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, err
	}
	return task, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
