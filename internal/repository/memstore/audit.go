package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskmanager/api/internal/models"
)

type Audit struct {
	mu     sync.Mutex
	events map[string]models.AuditEvent
}

func NewAudit() *Audit {
	return &Audit{events: make(map[string]models.AuditEvent)}
}

func (s *Audit) Insert(ctx context.Context, event models.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		s.events[event.ID] = event
	}
	return nil
}

func (s *Audit) ListRecent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	events := make([]models.AuditEvent, 0, len(s.events))
	for _, event := range s.events {
		events = append(events, event)
	}
	s.mu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		return events[i].OccurredAt.After(events[j].OccurredAt)
	})
	return paginate(events, 0, limit), nil
}

func (s *Audit) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, event := range s.events {
		if event.OccurredAt.Before(cutoff) {
			delete(s.events, id)
			purged++
		}
	}
	return purged, nil
}
