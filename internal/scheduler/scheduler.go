// Package scheduler runs the periodic booking tasks: reconciliation of
// elapsed sessions, pre-session reminders and re-engagement follow-ups.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/metrics"
	"github.com/hackgods/therapy-booking/internal/notify"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
)

const (
	TaskReconciliation = "reconciliation"
	TaskReminders      = "reminders"
	TaskFollowups      = "followups"
)

const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeSkipped = "skipped"
)

// Reminder window relative to now. A 5 minute tick always lands once inside
// it for every session.
const (
	reminderFrom = 25 * time.Minute
	reminderTo   = 35 * time.Minute
)

// Deliverer sends a notification synchronously and reports the outcome.
type Deliverer interface {
	Deliver(ctx context.Context, n notify.Notification) notify.Report
}

type Config struct {
	// Interval drives reconciliation and reminders.
	Interval time.Duration
	// FollowupInterval drives the re-engagement scan.
	FollowupInterval time.Duration
	// RunTimeout bounds a single task run.
	RunTimeout time.Duration
	Location   *time.Location
	Now        func() time.Time
}

type Scheduler struct {
	repo     booking.Repository
	svc      *booking.Service
	notifier Deliverer
	leaser   redisclient.Leaser
	metrics  *metrics.SchedulerMetrics
	logger   zerolog.Logger
	cfg      Config

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(repo booking.Repository, svc *booking.Service, notifier Deliverer, leaser redisclient.Leaser, m *metrics.SchedulerMetrics, logger zerolog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.FollowupInterval <= 0 {
		cfg.FollowupInterval = 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = svc.Resolver().Location()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		repo:     repo,
		svc:      svc,
		notifier: notifier,
		leaser:   leaser,
		metrics:  m,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		cfg:      cfg,
	}
}

// Start runs every task once and then on its ticker until Stop is called or
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.loop(ctx, s.cfg.Interval, func(ctx context.Context) {
		_, _ = s.RunReconciliation(ctx)
		_, _ = s.RunReminders(ctx)
	})
	s.loop(ctx, s.cfg.FollowupInterval, func(ctx context.Context) {
		_, _ = s.RunFollowups(ctx)
	})

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("followup_interval", s.cfg.FollowupInterval).
		Msg("scheduler started")
}

// Stop cancels the loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		tick(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}

// RunOnce runs every task a single time, in order.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if _, err := s.RunReconciliation(ctx); err != nil {
		return err
	}
	if _, err := s.RunReminders(ctx); err != nil {
		return err
	}
	_, err := s.RunFollowups(ctx)
	return err
}

// RunReconciliation marks open bookings whose slot has fully elapsed as
// missed. It returns the number of bookings closed.
func (s *Scheduler) RunReconciliation(ctx context.Context) (int, error) {
	return s.run(ctx, TaskReconciliation, s.reconcile)
}

// RunReminders sends the pre-session reminder for sessions starting in
// about 30 minutes. It returns the number of reminders marked sent.
func (s *Scheduler) RunReminders(ctx context.Context) (int, error) {
	return s.run(ctx, TaskReminders, s.remind)
}

// RunFollowups sends due re-engagement messages. It returns the number of
// milestones marked sent.
func (s *Scheduler) RunFollowups(ctx context.Context) (int, error) {
	return s.run(ctx, TaskFollowups, s.followUp)
}

func (s *Scheduler) run(ctx context.Context, task string, fn func(ctx context.Context, logger zerolog.Logger) (int, error)) (int, error) {
	logger := s.logger.With().Str("task", task).Logger()
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	var items int
	ran, err := s.leaser.WithLease(runCtx, task, func(ctx context.Context) error {
		var runErr error
		items, runErr = fn(ctx, logger)
		return runErr
	})

	elapsed := time.Since(start)
	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeError
		logger.Error().Err(err).Dur("elapsed", elapsed).Int("items", items).Msg("scheduler run failed")
	case !ran:
		outcome = outcomeSkipped
		logger.Debug().Msg("lease held elsewhere, skipping run")
	default:
		logger.Info().Dur("elapsed", elapsed).Int("items", items).Msg("scheduler run complete")
	}
	s.metrics.ObserveRun(task, outcome, items, elapsed.Seconds())

	return items, err
}
