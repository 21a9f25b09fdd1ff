// Package scheduler provides wall-clock callbacks for the trigger engine on
// top of robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"homeweather/internal/types"
)

// CronScheduler runs callbacks at a fixed minute of every hour or at a fixed
// interval. Jobs that are still running when their next tick arrives are
// skipped, and a panicking job is recovered and logged.
type CronScheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	logger types.Logger

	mu      sync.Mutex
	started bool
}

// NewCronScheduler creates a scheduler evaluating expressions in loc. A nil
// loc uses time.Local.
func NewCronScheduler(loc *time.Location, logger types.Logger) *CronScheduler {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger: logger}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)
	return &CronScheduler{cron: c, loc: loc, logger: logger}
}

// Start begins dispatching jobs. Calling Start on a running scheduler is a
// no-op.
func (s *CronScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
}

// Stop halts dispatch and waits for running jobs until ctx is done.
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled jobs: %w", ctx.Err())
	}
}

// EveryHourAt calls fn at minute past every hour.
func (s *CronScheduler) EveryHourAt(minute int, fn func(now time.Time)) (types.Subscription, error) {
	if minute < 0 || minute > 59 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationOutOfRange,
			"minute must be between 0 and 59", nil, map[string]any{"minute": minute})
	}
	id, err := s.cron.AddFunc(fmt.Sprintf("%d * * * *", minute), func() { fn(s.now()) })
	if err != nil {
		return nil, fmt.Errorf("scheduling hourly job at minute %d: %w", minute, err)
	}
	return s.subscription(id), nil
}

// Every calls fn once per interval, starting one interval from now. The
// interval is rounded down to whole seconds with a one second minimum.
func (s *CronScheduler) Every(interval time.Duration, fn func(now time.Time)) (types.Subscription, error) {
	if interval <= 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationOutOfRange,
			"interval must be positive", nil, map[string]any{"interval": interval.String()})
	}
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { fn(s.now()) }))
	return s.subscription(id), nil
}

// Len returns the number of registered jobs.
func (s *CronScheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *CronScheduler) now() time.Time {
	return time.Now().In(s.loc)
}

func (s *CronScheduler) subscription(id cron.EntryID) *entrySubscription {
	return &entrySubscription{cron: s.cron, id: id}
}

type entrySubscription struct {
	cron *cron.Cron
	id   cron.EntryID
	once sync.Once
}

func (e *entrySubscription) Unsubscribe() error {
	e.once.Do(func() { e.cron.Remove(e.id) })
	return nil
}

// cronLogger adapts types.Logger to cron.Logger.
type cronLogger struct {
	logger types.Logger
}

// Info is dropped: cron reports every wake-up at info level.
func (l cronLogger) Info(msg string, keysAndValues ...any) {}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("scheduler: "+msg, append([]any{"error", err.Error()}, keysAndValues...)...)
}
