package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/repository"
)

const recentUsersLimit = 5

type AdminService struct {
	users   UserStore
	tasks   TaskStore
	audit   AuditStore
	cache   *StatsCache
	events  *EventPublisher
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

func NewAdminService(
	users UserStore,
	tasks TaskStore,
	audit AuditStore,
	cache *StatsCache,
	events *EventPublisher,
	timeout time.Duration,
	log zerolog.Logger,
) *AdminService {
	return &AdminService{
		users:   users,
		tasks:   tasks,
		audit:   audit,
		cache:   cache,
		events:  events,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

type UserDetail struct {
	User      models.User
	TaskCount int
}

// Stats serves the cached dashboard snapshot when one exists and computes it
// otherwise.
func (s *AdminService) Stats(ctx context.Context) (AdminStats, error) {
	if stats, ok, err := s.cache.Get(ctx); err != nil {
		s.log.Warn().Err(err).Msg("read stats snapshot failed")
	} else if ok {
		return stats, nil
	}
	return s.RefreshStats(ctx)
}

// RefreshStats recomputes the dashboard and stores the snapshot.
func (s *AdminService) RefreshStats(ctx context.Context) (AdminStats, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	counts, err := s.users.Counts(ctx)
	if err != nil {
		return AdminStats{}, fmt.Errorf("count users: %w", err)
	}
	taskStats, err := s.tasks.Stats(ctx, "")
	if err != nil {
		return AdminStats{}, fmt.Errorf("task stats: %w", err)
	}
	recent, err := s.users.Recent(ctx, recentUsersLimit)
	if err != nil {
		return AdminStats{}, fmt.Errorf("recent users: %w", err)
	}

	stats := AdminStats{
		Users:       counts,
		Tasks:       taskStats,
		RecentUsers: recent,
		GeneratedAt: s.now().UTC(),
	}
	if err := s.cache.Set(ctx, stats); err != nil {
		s.log.Warn().Err(err).Msg("store stats snapshot failed")
	}
	return stats, nil
}

func (s *AdminService) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.List(ctx, filter)
}

func (s *AdminService) GetUser(ctx context.Context, id string) (UserDetail, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return UserDetail{}, notFound(err)
	}
	count, err := s.tasks.CountByUser(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	return UserDetail{User: user, TaskCount: count}, nil
}

func (s *AdminService) ChangeRole(ctx context.Context, actorID, id string, role models.UserRole) (models.User, error) {
	if !role.Valid() {
		return models.User{}, fmt.Errorf("%w: invalid role %q", ErrInvalidInput, role)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.SetRole(ctx, id, role)
	if err != nil {
		return models.User{}, notFound(err)
	}
	s.events.Publish(ctx, models.AuditEvent{UserID: id, ActorID: actorID, Type: models.AuditRoleChanged, Detail: string(role)})
	s.invalidateStats(ctx)
	return user, nil
}

// Deactivate disables the account and revokes its refresh token.
func (s *AdminService) Deactivate(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfActionForbidden
	}
	return s.setActive(ctx, actorID, id, false)
}

func (s *AdminService) Activate(ctx context.Context, actorID, id string) error {
	return s.setActive(ctx, actorID, id, true)
}

// DeleteUser removes the account and all of its tasks.
func (s *AdminService) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfActionForbidden
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.users.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	s.events.Publish(ctx, models.AuditEvent{UserID: id, ActorID: actorID, Type: models.AuditDeleted})
	s.invalidateStats(ctx)
	return nil
}

func (s *AdminService) AuditLog(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.audit.ListRecent(ctx, limit)
}

// PurgeAudit drops audit rows older than retention.
func (s *AdminService) PurgeAudit(ctx context.Context, retention time.Duration) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.audit.PurgeBefore(ctx, s.now().Add(-retention))
}

func (s *AdminService) setActive(ctx context.Context, actorID, id string, active bool) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.users.SetActive(ctx, id, active); err != nil {
		return notFound(err)
	}

	eventType := models.AuditActivated
	if !active {
		eventType = models.AuditDeactivated
	}
	s.events.Publish(ctx, models.AuditEvent{UserID: id, ActorID: actorID, Type: eventType})
	s.invalidateStats(ctx)
	return nil
}

func (s *AdminService) invalidateStats(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("invalidate stats snapshot failed")
	}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, repository.ErrTaskNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
