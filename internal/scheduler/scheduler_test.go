package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleAtFires(t *testing.T) {
	s := NewTimerScheduler(nil)
	fired := make(chan time.Time, 1)
	at := s.Now().Add(10 * time.Millisecond)
	s.ScheduleAt(at, func(firedAt time.Time) {
		fired <- firedAt
	})

	select {
	case firedAt := <-fired:
		if !firedAt.Equal(at) {
			t.Fatalf("expected firedAt %s, got %s", at, firedAt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for callback")
	}
}

func TestScheduleAtPastFiresImmediately(t *testing.T) {
	s := NewTimerScheduler(nil)
	fired := make(chan struct{}, 1)
	s.ScheduleAt(s.Now().Add(-time.Minute), func(time.Time) {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for past-due callback")
	}
}

func TestCancelPreventsCallback(t *testing.T) {
	s := NewTimerScheduler(nil)
	var calls atomic.Int32
	handle := s.ScheduleAt(s.Now().Add(50*time.Millisecond), func(time.Time) {
		calls.Add(1)
	})
	if !handle.Cancel() {
		t.Fatal("expected cancel to succeed")
	}
	if handle.Cancel() {
		t.Fatal("expected second cancel to report false")
	}

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no calls after cancel, got %d", got)
	}
}
