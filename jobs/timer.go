package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// TimerScheduler runs expiries on in-process timers. Timers do not survive
// a restart; rows they leave behind are rejected at confirm time and removed
// by the next sweep.
type TimerScheduler struct {
	mu      sync.Mutex
	expirer Expirer
	timers  map[string]*time.Timer
	closed  bool
	logger  *slog.Logger
}

// NewTimerScheduler constructs a TimerScheduler. Bind must be called before
// the first ScheduleExpiry.
func NewTimerScheduler(logger *slog.Logger) *TimerScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{timers: make(map[string]*time.Timer), logger: logger}
}

// Bind sets the component that performs the expiry.
func (s *TimerScheduler) Bind(expirer Expirer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expirer = expirer
}

// ScheduleExpiry arms a timer for token. Scheduling the same token twice keeps the first timer.
func (s *TimerScheduler) ScheduleExpiry(ctx context.Context, token string, after time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("jobs: timer scheduler closed")
	}
	if s.expirer == nil {
		return errors.New("jobs: timer scheduler not bound")
	}
	if _, ok := s.timers[token]; ok {
		return nil
	}
	s.timers[token] = time.AfterFunc(after, func() { s.fire(token) })
	return nil
}

func (s *TimerScheduler) fire(token string) {
	s.mu.Lock()
	delete(s.timers, token)
	expirer := s.expirer
	s.mu.Unlock()

	if err := expirer.Expire(context.Background(), token); err != nil {
		s.logger.Error("timer expire", slog.Any("error", err))
	}
}

// Pending reports how many timers are armed.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops every armed timer.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for token, t := range s.timers {
		t.Stop()
		delete(s.timers, token)
	}
}
