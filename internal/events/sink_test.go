package events

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	maintenance "scada-maintenance/internal/maintenance/domain"
)

type recordingStore struct {
	mu       sync.Mutex
	raised   []Instance
	returned []int
	err      error
}

func (s *recordingStore) Raise(_ context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	instance.ID = int64(len(s.raised) + 1)
	s.raised = append(s.raised, *instance)
	return nil
}

func (s *recordingStore) ReturnToNormal(_ context.Context, maintenanceEventID int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.returned = append(s.returned, maintenanceEventID)
	return nil
}

func TestSinkActivationRaisesInstanceAndSuppresses(t *testing.T) {
	store := &recordingStore{}
	var notified []bool
	sink := NewSink(store, nil, func(_ maintenance.MaintenanceEvent, active bool, _ time.Time) {
		notified = append(notified, active)
	}, log.New(io.Discard, "", 0))

	event := maintenance.MaintenanceEvent{ID: 7, Name: "feeder overhaul", DataPoints: []int{10}, DataSources: []int{1}}
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	sink.MaintenanceActivated(context.Background(), event, at)
	if !sink.Suppression().IsPointSuppressed(10) || !sink.Suppression().IsSourceSuppressed(1) {
		t.Fatal("scope should be suppressed while active")
	}
	if len(store.raised) != 1 {
		t.Fatalf("expected one raised instance, got %d", len(store.raised))
	}
	raised := store.raised[0]
	if raised.MaintenanceEventID != 7 || raised.ActiveAt != at {
		t.Fatalf("unexpected instance %+v", raised)
	}
	if raised.Message != "maintenance window active: feeder overhaul" {
		t.Fatalf("unexpected message %q", raised.Message)
	}

	sink.MaintenanceDeactivated(context.Background(), event, at.Add(time.Hour))
	if sink.Suppression().IsPointSuppressed(10) || sink.Suppression().IsSourceSuppressed(1) {
		t.Fatal("scope should be released after deactivation")
	}
	if len(store.returned) != 1 || store.returned[0] != 7 {
		t.Fatalf("expected return-to-normal for event 7, got %v", store.returned)
	}
	if len(notified) != 2 || !notified[0] || notified[1] {
		t.Fatalf("listener should see activation then deactivation, got %v", notified)
	}
}

func TestSinkStoreFailureDoesNotBlockSuppression(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	sink := NewSink(store, nil, nil, log.New(io.Discard, "", 0))

	event := maintenance.MaintenanceEvent{ID: 8, DataPoints: []int{10}}
	sink.MaintenanceActivated(context.Background(), event, time.Now().UTC())

	if !sink.Suppression().IsPointSuppressed(10) {
		t.Fatal("suppression must apply even when persistence fails")
	}
}

func TestSinkWithoutStoreOrListener(t *testing.T) {
	sink := NewSink(nil, nil, nil, nil)
	event := maintenance.MaintenanceEvent{ID: 9, DataPoints: []int{10}}
	sink.MaintenanceActivated(context.Background(), event, time.Now().UTC())
	sink.MaintenanceDeactivated(context.Background(), event, time.Now().UTC())
	if sink.Suppression().IsPointSuppressed(10) {
		t.Fatal("scope should be released")
	}
}
