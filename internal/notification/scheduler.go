package notification

import (
	"context"
	"log/slog"
	"time"
)

// Processor is the unit of work the scheduler drives on each pass.
type Processor interface {
	ProcessScheduled(ctx context.Context, now time.Time) (int, error)
}

// Lock is an advisory lease so only one replica runs a scheduler pass at
// a time. Acquire reports whether the lease was obtained; Release is
// best-effort.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// Scheduler runs the reminder scan on a fixed interval, backing off after
// storage errors. Work left over from a failed pass is picked up again on
// the next one.
type Scheduler struct {
	processor Processor
	interval  time.Duration
	backoff   time.Duration
	lock      Lock // optional
	logger    *slog.Logger
	now       func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithLock(l Lock) SchedulerOption {
	return func(s *Scheduler) { s.lock = l }
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(processor Processor, interval, backoff time.Duration, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		processor: processor,
		interval:  interval,
		backoff:   backoff,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loops until ctx is cancelled. Each pass sleeps the interval on
// success and the (shorter) backoff after an error.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reminder scheduler started",
		"interval", s.interval, "backoff", s.backoff)

	for {
		wait := s.interval
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("scheduler pass failed", "error", err)
			wait = s.backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("reminder scheduler stopped")
			return
		case <-timer.C:
		}
	}
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx)
		if err != nil {
			// The lock is advisory; a broken Redis must not stall
			// reminders. Proceed and rely on the sent-flag guard.
			s.logger.Warn("scheduler lock unavailable, proceeding without it", "error", err)
		} else if !acquired {
			SchedulerPasses.WithLabelValues("skipped").Inc()
			return nil
		} else {
			defer s.lock.Release(ctx)
		}
	}

	count, err := s.processor.ProcessScheduled(ctx, s.now().UTC())
	if err != nil {
		SchedulerPasses.WithLabelValues("error").Inc()
		return err
	}
	SchedulerPasses.WithLabelValues("ok").Inc()
	if count > 0 {
		s.logger.Info("processed due reminders", "count", count)
	}
	return nil
}
