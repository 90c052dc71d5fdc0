// Package scheduler fires a job whenever its cron expression comes due.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Locker guards a run against concurrent schedulers on other hosts.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Scheduler struct {
	Spec       string
	Job        Job
	Tick       time.Duration
	RunOnStart bool
	Locker     Locker
	Logger     *zap.Logger
	Now        func() time.Time

	last *time.Time
}

// Validate checks the cron expression.
func Validate(spec string) error {
	switch spec {
	case "@daily", "@hourly":
		return nil
	}
	if _, err := cronexpr.Parse(spec); err != nil {
		return &failure.ConfigurationError{Field: "schedule.cron", Reason: err.Error()}
	}
	return nil
}

// Run blocks, checking every Tick whether the job is due, until ctx is
// cancelled. Job failures are logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := Validate(s.Spec); err != nil {
		return err
	}
	tick := s.Tick
	if tick <= 0 {
		tick = time.Minute
	}
	if !s.RunOnStart {
		now := s.now()
		s.last = &now
	}
	log := s.logger()
	log.Info("scheduler started", zap.String("cron", s.Spec), zap.Duration("tick", tick))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if !isDue(s.Spec, s.last, now) {
		return
	}
	s.last = &now
	log := s.logger()

	if s.Locker != nil {
		ok, err := s.Locker.Acquire(ctx)
		if err != nil {
			log.Warn("schedule lock unavailable", zap.Error(err))
			return
		}
		if !ok {
			log.Info("run already in progress elsewhere, skipping")
			return
		}
		defer func() {
			if err := s.Locker.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release schedule lock", zap.Error(err))
			}
		}()
	}

	started := time.Now()
	if err := s.runJob(ctx); err != nil {
		log.Error("scheduled run failed", zap.Error(err), zap.Duration("took", time.Since(started)))
		return
	}
	log.Info("scheduled run finished", zap.Duration("took", time.Since(started)))
}

func (s *Scheduler) runJob(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduled job panicked: %v", r)
		}
	}()
	return s.Job(ctx)
}

// isDue reports whether a job with cronSpec should run at now given its last
// run. Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	switch cronSpec {
	case "@daily":
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return now.Sub(*last) >= 24*time.Hour
		}
		next := expr.Next(*last)
		return !next.IsZero() && !next.After(now)
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
