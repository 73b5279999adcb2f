package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskmanager/api/internal/models"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Insert is idempotent on the event id so redelivered stream messages do not
// duplicate rows.
func (r *AuditRepository) Insert(ctx context.Context, event models.AuditEvent) error {
	const query = `
		INSERT INTO auth_events (id, user_id, actor_id, type, detail, ip_address, occurred_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.UserID,
		event.ActorID,
		event.Type,
		event.Detail,
		event.IPAddress,
		event.OccurredAt,
	)
	return err
}

func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	const query = `
		SELECT id, COALESCE(user_id, ''), COALESCE(actor_id, ''), type, detail, ip_address, occurred_at
		FROM auth_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var event models.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.ActorID,
			&event.Type,
			&event.Detail,
			&event.IPAddress,
			&event.OccurredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *AuditRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM auth_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
