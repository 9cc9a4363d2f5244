package runtime

import (
	"context"
	"log"
	"sync"

	maintenance "scada-maintenance/internal/maintenance/domain"
	"scada-maintenance/internal/observability/metrics"
	"scada-maintenance/internal/scheduler"
)

// DefinitionLister loads every persisted definition, used to populate the
// registry on startup.
type DefinitionLister interface {
	ListAll(ctx context.Context) ([]maintenance.MaintenanceEvent, error)
}

// Manager owns the registry of live runtimes. It is the only component that
// creates or destroys EventRuntime instances; exactly one runtime exists per
// loaded definition.
type Manager struct {
	mu       sync.RWMutex
	runtimes map[int]*EventRuntime

	sched  scheduler.Scheduler
	sink   EventSink
	logger *log.Logger
}

// NewManager constructs a Manager.
func NewManager(sched scheduler.Scheduler, sink EventSink, logger *log.Logger) *Manager {
	return &Manager{
		runtimes: make(map[int]*EventRuntime),
		sched:    sched,
		sink:     sink,
		logger:   logger,
	}
}

// Install builds and starts a runtime for the definition, replacing any
// existing runtime for the same id. The swap happens under the write lock so
// readers never observe two live runtimes for one definition nor a gap where
// the id is missing mid-swap.
func (m *Manager) Install(def maintenance.MaintenanceEvent) error {
	rt, err := NewEventRuntime(def, m.sched, m.sink)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if old, ok := m.runtimes[def.ID]; ok {
		old.Stop()
	}
	rt.Start()
	m.runtimes[def.ID] = rt
	count := len(m.runtimes)
	m.mu.Unlock()

	metrics.SetRunningEvents(count)
	return nil
}

// Remove stops the runtime's scheduled triggers and deletes it from the
// registry. Pending callbacks are cancelled before Remove returns; a callback
// already in flight finds its instance stopped and does nothing.
func (m *Manager) Remove(eventID int) {
	m.mu.Lock()
	rt, ok := m.runtimes[eventID]
	delete(m.runtimes, eventID)
	count := len(m.runtimes)
	m.mu.Unlock()

	if ok {
		rt.Stop()
	}
	metrics.SetRunningEvents(count)
}

// Get returns the runtime for the definition id.
func (m *Manager) Get(eventID int) (*EventRuntime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[eventID]
	return rt, ok
}

// All returns a snapshot of the live runtimes.
func (m *Manager) All() []*EventRuntime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*EventRuntime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		out = append(out, rt)
	}
	return out
}

// StartAll installs a runtime for every persisted definition. Definitions are
// independent; a failed install is logged and does not block the rest.
func (m *Manager) StartAll(ctx context.Context, store DefinitionLister) error {
	defs, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := m.Install(def); err != nil && m.logger != nil {
			m.logger.Printf("maintenance runtime install error: id=%d xid=%s err=%v", def.ID, def.XID, err)
		}
	}
	return nil
}

// StopAll cancels every runtime's triggers and empties the registry.
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*EventRuntime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		all = append(all, rt)
	}
	m.runtimes = make(map[int]*EventRuntime)
	m.mu.Unlock()

	for _, rt := range all {
		rt.Stop()
	}
	metrics.SetRunningEvents(0)
}
