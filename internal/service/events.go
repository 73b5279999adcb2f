package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taskmanager/api/internal/ids"
	"taskmanager/api/internal/models"
)

const auditStreamMaxLen = 100_000

// EventPublisher appends audit events to a redis stream for the worker. A nil
// publisher or client drops events, and publish errors are only logged.
type EventPublisher struct {
	client *redis.Client
	stream string
	log    zerolog.Logger
	now    func() time.Time
}

func NewEventPublisher(client *redis.Client, stream string, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		client: client,
		stream: stream,
		log:    log,
		now:    time.Now,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event models.AuditEvent) {
	if p == nil || p.client == nil {
		return
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	values := map[string]any{
		"eventId":    event.ID,
		"type":       string(event.Type),
		"userId":     event.UserID,
		"actorId":    event.ActorID,
		"detail":     event.Detail,
		"ip":         event.IPAddress,
		"occurredAt": event.OccurredAt.Format(time.RFC3339Nano),
	}
	// detached so a cancelled request still records its audit trail
	ctx = context.WithoutCancel(ctx)
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: auditStreamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		p.log.Warn().Err(err).Str("event", string(event.Type)).Msg("publish audit event failed")
	}
}
