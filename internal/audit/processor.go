package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/queue"
)

// ErrBadEvent marks stream entries that can never be stored. It wraps
// queue.ErrDrop so the consumer acknowledges them instead of retrying.
var ErrBadEvent = fmt.Errorf("malformed audit event: %w", queue.ErrDrop)

type Store interface {
	Insert(ctx context.Context, event models.AuditEvent) error
}

// Processor persists audit events read from the auth:events stream.
type Processor struct {
	store   Store
	timeout time.Duration
	logger  zerolog.Logger
}

type eventPayload struct {
	EventID    string `json:"eventId"`
	Type       string `json:"type"`
	UserID     string `json:"userId"`
	ActorID    string `json:"actorId"`
	Detail     string `json:"detail"`
	IP         string `json:"ip"`
	OccurredAt string `json:"occurredAt"`
}

func NewProcessor(store Store, timeout time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload eventPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("%w: decode payload: %w", ErrBadEvent, err)
	}
	if payload.EventID == "" || payload.Type == "" {
		return fmt.Errorf("%w: missing eventId or type", ErrBadEvent)
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, payload.OccurredAt)
	if err != nil {
		p.logger.Warn().Str("message_id", msg.ID).Msg("audit event without timestamp, using stream time")
		occurredAt = streamTime(msg.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Insert ignores duplicate event ids, so a redelivered message is harmless.
	return p.store.Insert(ctx, models.AuditEvent{
		ID:         payload.EventID,
		UserID:     payload.UserID,
		ActorID:    payload.ActorID,
		Type:       models.AuditEventType(payload.Type),
		Detail:     payload.Detail,
		IPAddress:  payload.IP,
		OccurredAt: occurredAt,
	})
}

func decodePayload(values map[string]interface{}, out *eventPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

// streamTime recovers the append time from a stream id of the form
// <unix-millis>-<seq>.
func streamTime(id string) time.Time {
	var ms, seq int64
	if _, err := fmt.Sscanf(id, "%d-%d", &ms, &seq); err != nil {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
