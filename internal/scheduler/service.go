package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

type Task func(ctx context.Context) error

// ScheduleFunc returns the current daily schedule. It is read once per cycle.
type ScheduleFunc func() domain.ScheduleConfig

type Service struct {
	schedule ScheduleFunc
	loc      *time.Location
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	changed chan struct{}
}

func NewService(schedule ScheduleFunc, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		schedule: schedule,
		loc:      loc,
		now:      time.Now,
		after:    time.After,
		changed:  make(chan struct{}),
	}
}

// RunForever fires task at the configured time every day until ctx is done.
func (s *Service) RunForever(ctx context.Context, name string, task Task) error {
	log.Info().Str("task", name).Msg("schedule service started")
	for {
		changed := s.changedCh()
		cfg := s.schedule()
		now := s.now()
		next, err := NextRunTime(cfg, now, s.loc)
		if err != nil {
			return err
		}
		log.Info().Str("task", name).Time("next_run", next).Msg("next scheduled run")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			log.Info().Str("task", name).Msg("schedule changed, recomputing next run")
			continue
		case <-s.after(next.Sub(now)):
		}
		s.invoke(ctx, name, task)
	}
}

// TriggerNow runs task immediately, outside the daily schedule.
func (s *Service) TriggerNow(ctx context.Context, name string, task Task) error {
	return s.invoke(ctx, name, task)
}

// Reschedule wakes every pending wait so the next occurrence is recomputed
// from the current schedule.
func (s *Service) Reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Service) changedCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Service) invoke(ctx context.Context, name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
			log.Error().Str("task", name).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()
	start := time.Now()
	if err = task(ctx); err != nil {
		log.Error().Err(err).Str("task", name).Msg("scheduled task failed")
		return err
	}
	log.Info().Str("task", name).Dur("took", time.Since(start)).Msg("scheduled task finished")
	return nil
}

// NextRunTime returns the first hour:minute strictly after from, in loc.
func NextRunTime(cfg domain.ScheduleConfig, from time.Time, loc *time.Location) (time.Time, error) {
	sched, err := cron.ParseStandard(CronExpr(cfg))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %02d:%02d: %w", cfg.Hour, cfg.Minute, err)
	}
	return sched.Next(from.In(loc)), nil
}

// CronExpr renders a daily schedule as a standard cron expression.
func CronExpr(cfg domain.ScheduleConfig) string {
	return fmt.Sprintf("%d %d * * *", cfg.Minute, cfg.Hour)
}
