package runtime

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	maintenance "scada-maintenance/internal/maintenance/domain"
)

func testManager(sched *fakeScheduler, sink EventSink) *Manager {
	return NewManager(sched, sink, log.New(io.Discard, "", 0))
}

func TestInstallReplacesExistingRuntime(t *testing.T) {
	sched := newFakeScheduler(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	m := testManager(sched, sink)

	def := maintenance.MaintenanceEvent{ID: 1, Name: "first", ScheduleType: maintenance.SchedulePermanent}
	if err := m.Install(def); err != nil {
		t.Fatalf("install: %v", err)
	}

	def.Name = "second"
	if err := m.Install(def); err != nil {
		t.Fatalf("reinstall: %v", err)
	}

	rt, ok := m.Get(1)
	if !ok {
		t.Fatal("runtime missing after reinstall")
	}
	if got := rt.Definition().Name; got != "second" {
		t.Fatalf("expected replacement definition, got %q", got)
	}
	// load, unload of the old runtime, load of the new one
	if got := sink.all(); len(got) != 3 {
		t.Fatalf("unexpected transitions %v", got)
	}
	if len(m.All()) != 1 {
		t.Fatal("exactly one runtime per definition id")
	}
}

func TestInstallRejectsBadDefinition(t *testing.T) {
	m := testManager(newFakeScheduler(time.Now()), &recordingSink{})
	def := maintenance.MaintenanceEvent{ID: 2, ScheduleType: maintenance.ScheduleCron, ActiveCron: "bad", InactiveCron: "bad"}
	if err := m.Install(def); err == nil {
		t.Fatal("expected install error")
	}
	if _, ok := m.Get(2); ok {
		t.Fatal("failed install must not register a runtime")
	}
}

func TestRemoveStopsRuntime(t *testing.T) {
	sched := newFakeScheduler(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	m := testManager(sched, sink)

	if err := m.Install(maintenance.MaintenanceEvent{ID: 3, ScheduleType: maintenance.SchedulePermanent}); err != nil {
		t.Fatalf("install: %v", err)
	}
	m.Remove(3)

	if _, ok := m.Get(3); ok {
		t.Fatal("runtime should be gone")
	}
	// load then unload deactivation
	if got := sink.all(); len(got) != 2 {
		t.Fatalf("unexpected transitions %v", got)
	}
}

func TestRemoveUnknownIDIsNoop(t *testing.T) {
	m := testManager(newFakeScheduler(time.Now()), &recordingSink{})
	m.Remove(99)
}

type stubLister struct {
	defs []maintenance.MaintenanceEvent
	err  error
}

func (s stubLister) ListAll(_ context.Context) ([]maintenance.MaintenanceEvent, error) {
	return s.defs, s.err
}

func TestStartAllContinuesPastBadDefinitions(t *testing.T) {
	sched := newFakeScheduler(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	m := testManager(sched, &recordingSink{})

	lister := stubLister{defs: []maintenance.MaintenanceEvent{
		{ID: 1, ScheduleType: maintenance.ScheduleCron, ActiveCron: "bad", InactiveCron: "bad"},
		{ID: 2, ScheduleType: maintenance.SchedulePermanent},
	}}
	if err := m.StartAll(context.Background(), lister); err != nil {
		t.Fatalf("start all: %v", err)
	}
	if _, ok := m.Get(1); ok {
		t.Fatal("invalid definition must not load")
	}
	if _, ok := m.Get(2); !ok {
		t.Fatal("valid definition should load")
	}
}

func TestStopAllEmptiesRegistry(t *testing.T) {
	sched := newFakeScheduler(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	m := testManager(sched, sink)

	for id := 1; id <= 3; id++ {
		if err := m.Install(maintenance.MaintenanceEvent{ID: id, ScheduleType: maintenance.SchedulePermanent}); err != nil {
			t.Fatalf("install %d: %v", id, err)
		}
	}
	m.StopAll()
	if len(m.All()) != 0 {
		t.Fatal("registry should be empty")
	}
	// three loads plus three unload deactivations
	if sink.count() != 6 {
		t.Fatalf("expected 6 transitions, got %d", sink.count())
	}
}
