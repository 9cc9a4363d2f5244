package events

import (
	"context"
	"log"
	"time"

	maintenance "scada-maintenance/internal/maintenance/domain"
)

// InstanceStore persists raised instances.
type InstanceStore interface {
	Raise(ctx context.Context, instance *Instance) error
	ReturnToNormal(ctx context.Context, maintenanceEventID int, at time.Time) error
}

// ChangeListener observes transitions, used to bridge timer-driven state
// changes into the change-notification stream. Best effort.
type ChangeListener func(event maintenance.MaintenanceEvent, active bool, at time.Time)

// Sink applies maintenance transitions to the alarm side: raising and
// returning event instances and maintaining the suppression list. Persistence
// failures are logged, not propagated, so a database hiccup never wedges the
// state machine.
type Sink struct {
	store       InstanceStore
	suppression *SuppressionList
	listener    ChangeListener
	logger      *log.Logger
}

// NewSink constructs a Sink. store and listener may be nil.
func NewSink(store InstanceStore, suppression *SuppressionList, listener ChangeListener, logger *log.Logger) *Sink {
	if suppression == nil {
		suppression = NewSuppressionList()
	}
	return &Sink{store: store, suppression: suppression, listener: listener, logger: logger}
}

// Suppression returns the list this sink maintains.
func (s *Sink) Suppression() *SuppressionList {
	return s.suppression
}

// MaintenanceActivated implements the runtime's event sink.
func (s *Sink) MaintenanceActivated(ctx context.Context, event maintenance.MaintenanceEvent, at time.Time) {
	if s == nil {
		return
	}
	s.suppression.Suppress(event.DataPoints, event.DataSources)
	if s.store != nil {
		instance := &Instance{
			MaintenanceEventID: event.ID,
			Message:            "maintenance window active: " + event.Name,
			ActiveAt:           at,
		}
		if err := s.store.Raise(ctx, instance); err != nil && s.logger != nil {
			s.logger.Printf("maintenance instance raise error: event=%d err=%v", event.ID, err)
		}
	}
	if s.listener != nil {
		s.listener(event, true, at)
	}
}

// MaintenanceDeactivated implements the runtime's event sink.
func (s *Sink) MaintenanceDeactivated(ctx context.Context, event maintenance.MaintenanceEvent, at time.Time) {
	if s == nil {
		return
	}
	s.suppression.Release(event.DataPoints, event.DataSources)
	if s.store != nil {
		if err := s.store.ReturnToNormal(ctx, event.ID, at); err != nil && s.logger != nil {
			s.logger.Printf("maintenance instance rtn error: event=%d err=%v", event.ID, err)
		}
	}
	if s.listener != nil {
		s.listener(event, false, at)
	}
}
