package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"scada-maintenance/internal/auth"
	"scada-maintenance/internal/events"
	maintapp "scada-maintenance/internal/maintenance/application"
	maintenance "scada-maintenance/internal/maintenance/domain"
	"scada-maintenance/internal/maintenance/runtime"
	masterdata "scada-maintenance/internal/masterdata/domain"
	"scada-maintenance/internal/scheduler"
)

type stubPoints struct {
	points map[int]*masterdata.DataPoint
}

func (s stubPoints) GetByID(_ context.Context, id int) (*masterdata.DataPoint, error) {
	return s.points[id], nil
}

func (s stubPoints) GetByXID(_ context.Context, xid string) (*masterdata.DataPoint, error) {
	for _, point := range s.points {
		if point.XID == xid {
			return point, nil
		}
	}
	return nil, nil
}

func (s stubPoints) ListByIDs(_ context.Context, ids []int) ([]masterdata.DataPoint, error) {
	out := make([]masterdata.DataPoint, 0, len(ids))
	for _, id := range ids {
		if point := s.points[id]; point != nil {
			out = append(out, *point)
		}
	}
	return out, nil
}

type stubSources struct {
	sources map[int]*masterdata.DataSource
}

func (s stubSources) GetByID(_ context.Context, id int) (*masterdata.DataSource, error) {
	return s.sources[id], nil
}

func (s stubSources) GetByXID(_ context.Context, xid string) (*masterdata.DataSource, error) {
	for _, source := range s.sources {
		if source.XID == xid {
			return source, nil
		}
	}
	return nil, nil
}

func (s stubSources) ListByIDs(_ context.Context, ids []int) ([]masterdata.DataSource, error) {
	out := make([]masterdata.DataSource, 0, len(ids))
	for _, id := range ids {
		if source := s.sources[id]; source != nil {
			out = append(out, *source)
		}
	}
	return out, nil
}

type stubRoles struct{}

func (stubRoles) Exists(_ context.Context, role auth.Role) (bool, error) {
	return role == "night-shift", nil
}

type memStore struct {
	mu   sync.Mutex
	seq  int
	defs map[int]maintenance.MaintenanceEvent
}

func (s *memStore) Insert(_ context.Context, def *maintenance.MaintenanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	def.ID = s.seq
	s.defs[def.ID] = def.Copy()
	return nil
}

func (s *memStore) Update(_ context.Context, def *maintenance.MaintenanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def.Copy()
	return nil
}

func (s *memStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, id)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id int) (*maintenance.MaintenanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if def, ok := s.defs[id]; ok {
		out := def.Copy()
		return &out, nil
	}
	return nil, nil
}

func (s *memStore) GetByXID(_ context.Context, xid string) (*maintenance.MaintenanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range s.defs {
		if def.XID == xid {
			out := def.Copy()
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListAll(_ context.Context) ([]maintenance.MaintenanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]maintenance.MaintenanceEvent, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def.Copy())
	}
	return out, nil
}

func (s *memStore) Query(ctx context.Context, _ maintenance.Filter) ([]maintenance.MaintenanceEvent, error) {
	return s.ListAll(ctx)
}

func (s *memStore) ForDataPointXID(ctx context.Context, _ string) ([]maintenance.MaintenanceEvent, error) {
	return s.ListAll(ctx)
}

func (s *memStore) ForDataSourceXID(ctx context.Context, _ string) ([]maintenance.MaintenanceEvent, error) {
	return s.ListAll(ctx)
}

type stubInstances struct{}

func (stubInstances) ListForMaintenanceEvents(_ context.Context, eventIDs []int, _ *bool, _ events.Order, _ int) ([]events.Instance, error) {
	out := make([]events.Instance, 0, len(eventIDs))
	for _, id := range eventIDs {
		out = append(out, events.Instance{ID: int64(id), MaintenanceEventID: id, Active: true, ActiveAt: time.Now().UTC()})
	}
	return out, nil
}

type noopSink struct{}

func (noopSink) MaintenanceActivated(context.Context, maintenance.MaintenanceEvent, time.Time)   {}
func (noopSink) MaintenanceDeactivated(context.Context, maintenance.MaintenanceEvent, time.Time) {}

func testHandler(t *testing.T) *Handler {
	t.Helper()
	points := stubPoints{points: map[int]*masterdata.DataPoint{
		10: {ID: 10, XID: "DP_10", DataSourceID: 1},
	}}
	sources := stubSources{sources: map[int]*masterdata.DataSource{
		1: {ID: 1, XID: "DS_1"},
	}}
	logger := log.New(io.Discard, "", 0)
	manager := runtime.NewManager(scheduler.NewTimerScheduler(nil), noopSink{}, logger)
	t.Cleanup(manager.StopAll)
	service, err := maintapp.NewService(
		&memStore{defs: make(map[int]maintenance.MaintenanceEvent)},
		points,
		sources,
		stubRoles{},
		manager,
		stubInstances{},
		logger,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := NewHandler(service, points, sources)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func doRequest(handler *Handler, method, path, body string, roles ...auth.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := auth.WithIdentity(req.Context(), auth.Identity{Subject: "tester", Roles: roles})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestCreateReturnsStoredEvent(t *testing.T) {
	handler := testHandler(t)
	body := `{"name":"pump service","scheduleType":"PERMANENT","dataPoints":["DP_10"]}`
	rec := doRequest(handler, http.MethodPost, basePath, body, auth.RoleSuperadmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var model eventModel
	if err := json.Unmarshal(rec.Body.Bytes(), &model); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(model.XID, "ME_") {
		t.Fatalf("expected generated xid, got %q", model.XID)
	}
	if len(model.DataPoints) != 1 || model.DataPoints[0] != "DP_10" {
		t.Fatalf("expected point xids in response, got %v", model.DataPoints)
	}
}

func TestCreateValidationFailureReturns422(t *testing.T) {
	handler := testHandler(t)
	body := `{"name":"","scheduleType":"CRON","activeCron":"bad","inactiveCron":"0 * * * *","dataPoints":["DP_10"]}`
	rec := doRequest(handler, http.MethodPost, basePath, body, auth.RoleSuperadmin)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp validationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields := make(map[string]bool)
	for _, violation := range resp.Errors {
		fields[violation.Field] = true
	}
	if !fields["activeCron"] || !fields["name"] {
		t.Fatalf("missing expected violations: %v", resp.Errors)
	}
}

func TestCreateUnknownPointXIDReturns422(t *testing.T) {
	handler := testHandler(t)
	body := `{"name":"x","scheduleType":"PERMANENT","dataPoints":["DP_missing"]}`
	rec := doRequest(handler, http.MethodPost, basePath, body, auth.RoleSuperadmin)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "dataPoints[0]") {
		t.Fatalf("expected indexed field error, got %s", rec.Body.String())
	}
}

func TestCreateWithoutPermissionReturns403(t *testing.T) {
	handler := testHandler(t)
	body := `{"name":"x","scheduleType":"PERMANENT","dataPoints":["DP_10"]}`
	rec := doRequest(handler, http.MethodPost, basePath, body, "ops")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestGetUnknownXIDReturns404(t *testing.T) {
	handler := testHandler(t)
	rec := doRequest(handler, http.MethodGet, basePath+"/ME_missing", "", auth.RoleSuperadmin)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestToggleLifecycleOverHTTP(t *testing.T) {
	handler := testHandler(t)
	body := `{"name":"pump service","scheduleType":"PERMANENT","dataPoints":["DP_10"]}`
	rec := doRequest(handler, http.MethodPost, basePath, body, auth.RoleSuperadmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d", rec.Code)
	}
	var created eventModel
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRequest(handler, http.MethodGet, basePath+"/active/"+created.XID, "", auth.RoleSuperadmin)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"active":true`) {
		t.Fatalf("active status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(handler, http.MethodPut, basePath+"/toggle/"+created.XID, "", auth.RoleSuperadmin)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"active":false`) {
		t.Fatalf("toggle status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestToggleDisabledEventReturns409(t *testing.T) {
	handler := testHandler(t)
	// Definition reaches the store without a runtime when installed state
	// is lost, e.g. after a failed reinstall.
	store := &memStore{defs: map[int]maintenance.MaintenanceEvent{
		1: {ID: 1, XID: "ME_cold", Name: "cold", ScheduleType: maintenance.SchedulePermanent, DataPoints: []int{10}},
	}}
	points := stubPoints{points: map[int]*masterdata.DataPoint{10: {ID: 10, XID: "DP_10", DataSourceID: 1}}}
	sources := stubSources{sources: map[int]*masterdata.DataSource{1: {ID: 1, XID: "DS_1"}}}
	logger := log.New(io.Discard, "", 0)
	manager := runtime.NewManager(scheduler.NewTimerScheduler(nil), noopSink{}, logger)
	t.Cleanup(manager.StopAll)
	service, err := maintapp.NewService(store, points, sources, stubRoles{}, manager, stubInstances{}, logger)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err = NewHandler(service, points, sources)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := doRequest(handler, http.MethodPut, basePath+"/toggle/ME_cold", "", auth.RoleSuperadmin)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestUnauthenticatedRequestReturns401(t *testing.T) {
	handler := testHandler(t)
	req := httptest.NewRequest(http.MethodPost, basePath+"/query", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestSetStateRejectsBadQuery(t *testing.T) {
	handler := testHandler(t)
	rec := doRequest(handler, http.MethodPut, basePath+"/active/ME_x?active=maybe", "", auth.RoleSuperadmin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}
