package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"taskmanager/api/internal/config"
	"taskmanager/api/internal/service"
)

const jobTimeout = time.Minute

// Maintenance is the part of the admin service the scheduler drives.
type Maintenance interface {
	RefreshStats(ctx context.Context) (service.AdminStats, error)
	PurgeAudit(ctx context.Context, retention time.Duration) (int64, error)
}

type Scheduler struct {
	cron  *cron.Cron
	admin Maintenance
	cfg   config.JobsConfig
	log   zerolog.Logger
}

func NewScheduler(admin Maintenance, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{log})))
	return &Scheduler{
		cron:  c,
		admin: admin,
		cfg:   cfg,
		log:   log,
	}
}

// Start registers the jobs whose spec is non-empty and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.cfg.StatsSnapshotSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.StatsSnapshotSpec, s.refreshStats); err != nil {
			return fmt.Errorf("schedule stats snapshot: %w", err)
		}
	}
	if s.cfg.AuditPurgeSpec != "" && s.cfg.AuditRetention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.AuditPurgeSpec, s.purgeAudit); err != nil {
			return fmt.Errorf("schedule audit purge: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) refreshStats() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	stats, err := s.admin.RefreshStats(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("stats snapshot failed")
		return
	}
	s.log.Debug().Int("users", stats.Users.Total).Int("tasks", stats.Tasks.Total).Msg("stats snapshot refreshed")
}

func (s *Scheduler) purgeAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	purged, err := s.admin.PurgeAudit(ctx, s.cfg.AuditRetention)
	if err != nil {
		s.log.Error().Err(err).Msg("audit purge failed")
		return
	}
	s.log.Info().Int64("purged", purged).Dur("retention", s.cfg.AuditRetention).Msg("audit events purged")
}

// cronLogger adapts zerolog to cron.Logger so recovered job panics are logged.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
