package runtime

import (
	"context"
	"sync"
	"time"

	maintenance "scada-maintenance/internal/maintenance/domain"
	"scada-maintenance/internal/observability/metrics"
	"scada-maintenance/internal/scheduler"
)

// EventSink receives state transitions. Activation suppresses alarm
// generation for the event's linked points and sources; deactivation restores
// it. Implementations must be callable from timer and request threads.
type EventSink interface {
	MaintenanceActivated(ctx context.Context, event maintenance.MaintenanceEvent, at time.Time)
	MaintenanceDeactivated(ctx context.Context, event maintenance.MaintenanceEvent, at time.Time)
}

// EventRuntime is the live state machine bound to one stored definition.
// All state (active flag, armed trigger, sequence token) is guarded by one
// mutex so toggles and timer firings serialize per instance.
type EventRuntime struct {
	mu sync.Mutex

	def   maintenance.MaintenanceEvent
	sched scheduler.Scheduler
	sink  EventSink

	activeTrigger   *Trigger
	inactiveTrigger *Trigger

	active  bool
	stopped bool

	// seq orders re-arms against racing callbacks: every re-arm increments
	// it, and a callback carrying a stale token is a no-op.
	seq    uint64
	handle scheduler.Handle
}

// NewEventRuntime builds a runtime for the definition. Trigger construction
// errors mean the definition should never have passed validation.
func NewEventRuntime(def maintenance.MaintenanceEvent, sched scheduler.Scheduler, sink EventSink) (*EventRuntime, error) {
	activeTrigger, ferr := BuildTrigger(def, true)
	if ferr != nil {
		verr := &maintenance.ValidationError{}
		verr.Add(ferr.Field, ferr.Message)
		return nil, verr
	}
	inactiveTrigger, ferr := BuildTrigger(def, false)
	if ferr != nil {
		verr := &maintenance.ValidationError{}
		verr.Add(ferr.Field, ferr.Message)
		return nil, verr
	}
	return &EventRuntime{
		def:             def.Copy(),
		sched:           sched,
		sink:            sink,
		activeTrigger:   activeTrigger,
		inactiveTrigger: inactiveTrigger,
	}, nil
}

// Start computes the initial state from the schedule and the current time,
// reports it to the sink when active, and arms the next trigger.
func (r *EventRuntime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	now := r.sched.Now()
	r.active = r.initialActive(now)
	if r.active {
		metrics.IncTransition(true, "load")
		r.sink.MaintenanceActivated(context.Background(), r.def, now)
	}
	r.armLocked(now)
}

func (r *EventRuntime) initialActive(now time.Time) bool {
	switch r.def.ScheduleType {
	case maintenance.SchedulePermanent:
		return true
	case maintenance.ScheduleOnce:
		return !now.Before(r.def.ActiveAt) && now.Before(r.def.InactiveAt)
	case maintenance.ScheduleCron:
		lastActive, okActive := r.activeTrigger.Last(now)
		if !okActive {
			return false
		}
		lastInactive, okInactive := r.inactiveTrigger.Last(now)
		return !okInactive || lastInactive.Before(lastActive)
	default:
		return false
	}
}

// Definition returns a copy of the bound definition.
func (r *EventRuntime) Definition() maintenance.MaintenanceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.def.Copy()
}

// EventID returns the bound definition's id.
func (r *EventRuntime) EventID() int {
	return r.def.ID
}

// IsActive reports the current state.
func (r *EventRuntime) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Toggle flips the state regardless of the timer, re-arms the trigger for the
// new state's schedule, and returns the resulting state.
func (r *EventRuntime) Toggle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return r.active
	}
	r.transitionLocked(!r.active, r.sched.Now(), "toggle")
	return r.active
}

// SetState moves to the requested state, or returns the current state without
// side effects when already there.
func (r *EventRuntime) SetState(active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.active == active {
		return r.active
	}
	r.transitionLocked(active, r.sched.Now(), "toggle")
	return r.active
}

// Stop cancels the armed trigger and retires the instance. A stopped runtime
// ignores all further timer callbacks and state requests. An active window is
// deactivated so the suppression it raised is released.
func (r *EventRuntime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	r.seq++
	if r.handle != nil {
		r.handle.Cancel()
		r.handle = nil
	}
	if r.active {
		r.active = false
		metrics.IncTransition(false, "unload")
		r.sink.MaintenanceDeactivated(context.Background(), r.def, r.sched.Now())
	}
}

func (r *EventRuntime) timerFired(seq uint64, toActive bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || seq != r.seq {
		return
	}
	if r.active == toActive {
		// A toggle already moved us past this edge; arm the next one.
		r.armLocked(r.sched.Now())
		return
	}
	r.transitionLocked(toActive, at, "timer")
}

func (r *EventRuntime) transitionLocked(active bool, at time.Time, cause string) {
	r.active = active
	metrics.IncTransition(active, cause)
	ctx := context.Background()
	if active {
		r.sink.MaintenanceActivated(ctx, r.def, at)
	} else {
		r.sink.MaintenanceDeactivated(ctx, r.def, at)
	}
	r.armLocked(at)
}

// armLocked cancels the previous trigger and schedules the edge opposite to
// the current state. When a timeout is configured and the event just became
// active, the timeout deadline supersedes a later scheduled deactivation.
func (r *EventRuntime) armLocked(from time.Time) {
	if r.handle != nil {
		r.handle.Cancel()
		r.handle = nil
	}
	r.seq++

	var next time.Time
	var toActive bool
	if r.active {
		next = r.inactiveTrigger.Next(from)
		if r.def.Timeout > 0 {
			deadline := from.Add(r.def.Timeout)
			if next.IsZero() || deadline.Before(next) {
				next = deadline
			}
		}
		toActive = false
	} else {
		next = r.activeTrigger.Next(from)
		toActive = true
	}
	if next.IsZero() {
		return
	}

	seq := r.seq
	r.handle = r.sched.ScheduleAt(next, func(at time.Time) {
		r.timerFired(seq, toActive, at)
	})
}

// nextScheduled exposes the armed trigger state for tests.
func (r *EventRuntime) nextScheduled() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq, r.handle != nil
}
