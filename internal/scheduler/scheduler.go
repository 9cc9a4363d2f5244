// Package scheduler provides the timer capability consumed by the maintenance
// runtime: one-shot callbacks at absolute times plus a clock. Cron recurrence
// is handled above this layer by re-arming after each fire.
package scheduler

import (
	"sync"
	"time"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Callback runs when a scheduled time arrives. firedAt is the scheduled time,
// not the dispatch time.
type Callback func(firedAt time.Time)

// Handle cancels a pending callback.
type Handle interface {
	// Cancel stops the callback if it has not yet been dispatched. It
	// reports whether the callback was prevented from running.
	Cancel() bool
}

// Scheduler schedules one-shot callbacks.
type Scheduler interface {
	Clock
	// ScheduleAt arms fn to run at the given time. Times in the past fire
	// immediately on a background goroutine.
	ScheduleAt(at time.Time, fn Callback) Handle
}

// TimerScheduler is the production Scheduler backed by the Go runtime timer
// wheel.
type TimerScheduler struct {
	clock Clock
}

// NewTimerScheduler constructs a TimerScheduler.
func NewTimerScheduler(clock Clock) *TimerScheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TimerScheduler{clock: clock}
}

// Now implements Clock.
func (s *TimerScheduler) Now() time.Time {
	return s.clock.Now()
}

// ScheduleAt implements Scheduler.
func (s *TimerScheduler) ScheduleAt(at time.Time, fn Callback) Handle {
	task := &timerTask{}
	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	task.timer = time.AfterFunc(delay, func() {
		task.mu.Lock()
		if task.cancelled {
			task.mu.Unlock()
			return
		}
		task.fired = true
		task.mu.Unlock()
		fn(at)
	})
	return task
}

type timerTask struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	fired     bool
}

// Cancel implements Handle.
func (t *timerTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	t.timer.Stop()
	return true
}
