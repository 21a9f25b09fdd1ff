package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeweather/internal/types"
)

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *mockLogger) Info(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any) {}
func (l *mockLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}
func (l *mockLogger) With(args ...any) types.Logger { return l }

func TestCronScheduler_EveryHourAt_NextRun(t *testing.T) {
	s := NewCronScheduler(time.UTC, &mockLogger{})

	sub, err := s.EveryHourAt(5, func(time.Time) {})
	require.NoError(t, err)

	entry := s.cron.Entry(sub.(*entrySubscription).id)
	from := time.Date(2026, 10, 19, 10, 0, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 10, 5, 0, 0, time.UTC), entry.Schedule.Next(from))
	assert.Equal(t, time.Date(2026, 10, 19, 11, 5, 0, 0, time.UTC), entry.Schedule.Next(from.Add(5*time.Minute)))
}

func TestCronScheduler_EveryHourAt_RejectsBadMinute(t *testing.T) {
	s := NewCronScheduler(time.UTC, &mockLogger{})

	for _, m := range []int{-1, 60} {
		_, err := s.EveryHourAt(m, func(time.Time) {})
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr), "minute %d", m)
		assert.Equal(t, types.ErrCodeValidationOutOfRange, appErr.Code)
	}
	assert.Equal(t, 0, s.Len())
}

func TestCronScheduler_Every_RejectsNonPositive(t *testing.T) {
	s := NewCronScheduler(time.UTC, &mockLogger{})
	_, err := s.Every(0, func(time.Time) {})
	assert.Error(t, err)
}

func TestCronScheduler_Unsubscribe_RemovesOnce(t *testing.T) {
	s := NewCronScheduler(time.UTC, &mockLogger{})

	a, err := s.Every(5*time.Minute, func(time.Time) {})
	require.NoError(t, err)
	_, err = s.EveryHourAt(3, func(time.Time) {})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	require.NoError(t, a.Unsubscribe())
	require.NoError(t, a.Unsubscribe())
	assert.Equal(t, 1, s.Len())
}

func TestCronScheduler_Every_Fires(t *testing.T) {
	loc := time.FixedZone("home", -4*3600)
	s := NewCronScheduler(loc, &mockLogger{})

	fired := make(chan time.Time, 1)
	_, err := s.Every(time.Second, func(now time.Time) {
		select {
		case fired <- now:
		default:
		}
	})
	require.NoError(t, err)

	s.Start()
	s.Start()
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	select {
	case now := <-fired:
		assert.Equal(t, loc, now.Location())
	case <-time.After(5 * time.Second):
		t.Fatal("job did not fire")
	}
}

func TestCronScheduler_RecoversPanickingJob(t *testing.T) {
	logger := &mockLogger{}
	s := NewCronScheduler(time.UTC, logger)

	done := make(chan struct{})
	var once sync.Once
	_, err := s.Every(time.Second, func(time.Time) {
		defer once.Do(func() { close(done) })
		panic("boom")
	})
	require.NoError(t, err)

	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	assert.Eventually(t, func() bool {
		logger.mu.Lock()
		defer logger.mu.Unlock()
		return len(logger.errors) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCronScheduler_StopWithoutStart(t *testing.T) {
	s := NewCronScheduler(nil, &mockLogger{})
	assert.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, time.Local, s.loc)
}
