// Package maintenance runs the background housekeeping jobs: expired-code
// sweeps, audit retention, and periodic snapshot flushes.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kitemc/verifyd/internal/store"
	"github.com/kitemc/verifyd/internal/verify"
	"github.com/kitemc/verifyd/pkg/logger"
)

const defaultSchedule = "@every 1m"

// Sweeper coordinates the periodic jobs. Any nil dependency results in the
// corresponding job being skipped.
type Sweeper struct {
	codes  *verify.Manager
	users  store.UserStore
	audits store.AuditStore

	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	schedule  string
	retention time.Duration
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedule overrides the cron specification for all jobs.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithAuditRetention adjusts how long audit entries are kept. Zero disables
// retention enforcement.
func WithAuditRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		s.retention = d
	}
}

// NewSweeper constructs a Sweeper with sensible defaults.
func NewSweeper(codes *verify.Manager, users store.UserStore, audits store.AuditStore, opts ...Option) *Sweeper {
	s := &Sweeper{
		codes:    codes,
		users:    users,
		audits:   audits,
		now:      time.Now,
		schedule: defaultSchedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the sweep job with the scheduler and launches it.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running job to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes all configured jobs sequentially. Also used during
// graceful shutdown to flush snapshots one last time.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	var errs error

	if s.codes != nil {
		if swept := s.codes.Sweep(); swept > 0 {
			s.log.Debug("swept expired codes", zap.Int("count", swept))
		}
	}

	if s.audits != nil {
		if s.retention > 0 {
			cutoff := s.now().UTC().Add(-s.retention)
			if removed, err := s.audits.Prune(ctx, cutoff); err != nil {
				errs = multierr.Append(errs, err)
			} else if removed > 0 {
				s.log.Info("pruned audit entries", zap.Int("count", removed))
			}
		}
		if err := s.audits.Save(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.users != nil {
		if err := s.users.Save(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
