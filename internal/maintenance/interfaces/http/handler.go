package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"scada-maintenance/internal/auth"
	"scada-maintenance/internal/events"
	maintapp "scada-maintenance/internal/maintenance/application"
	maintenance "scada-maintenance/internal/maintenance/domain"
)

const basePath = "/api/v1/maintenance-events"

// Handler provides the maintenance event HTTP endpoints.
type Handler struct {
	service *maintapp.Service
	points  maintapp.PointReader
	sources maintapp.SourceReader
}

// NewHandler constructs a handler.
func NewHandler(service *maintapp.Service, points maintapp.PointReader, sources maintapp.SourceReader) (*Handler, error) {
	if service == nil {
		return nil, errors.New("maintenance handler: nil service")
	}
	if points == nil || sources == nil {
		return nil, errors.New("maintenance handler: nil master data readers")
	}
	return &Handler{service: service, points: points, sources: sources}, nil
}

// ServeHTTP handles /api/v1/maintenance-events and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, basePath)
	switch {
	case path == "" || path == "/":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case path == "/query":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleQuery(w, r)
	case path == "/query/get-for-points-by-xids":
		h.handleForScope(w, r, h.service.ForDataPointXIDs)
	case path == "/query/get-for-sources-by-xids":
		h.handleForScope(w, r, h.service.ForDataSourceXIDs)
	case path == "/query/events":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleInstances(w, r)
	case strings.HasPrefix(path, "/toggle/"):
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleToggle(w, r, strings.TrimPrefix(path, "/toggle/"))
	case strings.HasPrefix(path, "/active/"):
		h.handleActive(w, r, strings.TrimPrefix(path, "/active/"))
	case strings.HasPrefix(path, "/"):
		h.handleByXID(w, r, strings.TrimPrefix(path, "/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.Query(r.Context(), maintenance.Filter{})
	if err != nil {
		respondError(w, err)
		return
	}
	h.respondEvents(w, r, defs)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var model eventModel
	if err := json.NewDecoder(r.Body).Decode(&model); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	def, err := model.toDomain(r.Context(), h.points, h.sources)
	if err != nil {
		respondError(w, err)
		return
	}
	stored, err := h.service.Insert(r.Context(), def)
	if err != nil {
		respondError(w, err)
		return
	}
	h.respondEvent(w, r, *stored, http.StatusCreated)
}

func (h *Handler) handleByXID(w http.ResponseWriter, r *http.Request, xid string) {
	if xid == "" || strings.Contains(xid, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		def, err := h.service.GetByXID(r.Context(), xid)
		if err != nil {
			respondError(w, err)
			return
		}
		h.respondEvent(w, r, *def, http.StatusOK)
	case http.MethodPut:
		var model eventModel
		if err := json.NewDecoder(r.Body).Decode(&model); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		def, err := model.toDomain(r.Context(), h.points, h.sources)
		if err != nil {
			respondError(w, err)
			return
		}
		stored, err := h.service.Update(r.Context(), xid, def)
		if err != nil {
			respondError(w, err)
			return
		}
		h.respondEvent(w, r, *stored, http.StatusOK)
	case http.MethodDelete:
		deleted, err := h.service.Delete(r.Context(), xid)
		if err != nil {
			respondError(w, err)
			return
		}
		h.respondEvent(w, r, *deleted, http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request, xid string) {
	active, err := h.service.Toggle(r.Context(), xid)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// handleActive serves GET (current state) and PUT (set state) for one event.
func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request, xid string) {
	switch r.Method {
	case http.MethodGet:
		active, err := h.service.IsEventActive(r.Context(), xid)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"active": active})
	case http.MethodPut:
		value := r.URL.Query().Get("active")
		if value != "true" && value != "false" {
			http.Error(w, "active must be true or false", http.StatusBadRequest)
			return
		}
		state, err := h.service.SetState(r.Context(), xid, value == "true")
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"active": state})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type queryRequest struct {
	XID          string `json:"xid,omitempty"`
	Name         string `json:"name,omitempty"`
	ScheduleType string `json:"scheduleType,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defs, err := h.service.Query(r.Context(), maintenance.Filter{
		XID:          req.XID,
		Name:         req.Name,
		ScheduleType: maintenance.ScheduleType(req.ScheduleType),
		Limit:        req.Limit,
		Offset:       req.Offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	h.respondEvents(w, r, defs)
}

type scopeRequest struct {
	XIDs []string `json:"xids"`
}

// handleForScope serves both GET with repeated xid query parameters and POST
// with a JSON body.
func (h *Handler) handleForScope(w http.ResponseWriter, r *http.Request, lookup func(ctx context.Context, xids []string) ([]maintenance.MaintenanceEvent, error)) {
	var xids []string
	switch r.Method {
	case http.MethodGet:
		xids = r.URL.Query()["xid"]
	case http.MethodPost:
		var req scopeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		xids = req.XIDs
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defs, err := lookup(r.Context(), xids)
	if err != nil {
		respondError(w, err)
		return
	}
	h.respondEvents(w, r, defs)
}

type instancesRequest struct {
	EventXIDs []string `json:"eventXids"`
	Active    *bool    `json:"active,omitempty"`
	Order     string   `json:"order,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

func (h *Handler) handleInstances(w http.ResponseWriter, r *http.Request) {
	var req instancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	order := events.OrderDesc
	if strings.EqualFold(req.Order, string(events.OrderAsc)) {
		order = events.OrderAsc
	}
	var eventIDs []int
	for _, xid := range req.EventXIDs {
		def, err := h.service.GetByXID(r.Context(), xid)
		if err != nil {
			if errors.Is(err, maintenance.ErrNotFound) {
				continue
			}
			var denied *auth.PermissionError
			if errors.As(err, &denied) {
				continue
			}
			respondError(w, err)
			return
		}
		eventIDs = append(eventIDs, def.ID)
	}
	instances, err := h.service.Instances(r.Context(), eventIDs, req.Active, order, req.Limit)
	if err != nil {
		respondError(w, err)
		return
	}
	models := make([]instanceModel, 0, len(instances))
	for _, instance := range instances {
		model := instanceModel{
			ID:                 instance.ID,
			MaintenanceEventID: instance.MaintenanceEventID,
			Message:            instance.Message,
			Active:             instance.Active,
			ActiveAt:           instance.ActiveAt.UTC().Format(timeLayout),
		}
		if !instance.ReturnedAt.IsZero() {
			model.ReturnedAt = instance.ReturnedAt.UTC().Format(timeLayout)
		}
		models = append(models, model)
	}
	respondJSON(w, http.StatusOK, models)
}

func (h *Handler) respondEvent(w http.ResponseWriter, r *http.Request, def maintenance.MaintenanceEvent, status int) {
	model, err := fromDomain(r.Context(), def, h.points, h.sources)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, status, model)
}

func (h *Handler) respondEvents(w http.ResponseWriter, r *http.Request, defs []maintenance.MaintenanceEvent) {
	models := make([]eventModel, 0, len(defs))
	for _, def := range defs {
		model, err := fromDomain(r.Context(), def, h.points, h.sources)
		if err != nil {
			respondError(w, err)
			return
		}
		models = append(models, model)
	}
	respondJSON(w, http.StatusOK, models)
}

// validationResponse is the 422 body: one entry per violated field.
type validationResponse struct {
	Errors []maintenance.FieldError `json:"errors"`
}

func respondError(w http.ResponseWriter, err error) {
	var invalid *maintenance.ValidationError
	if errors.As(err, &invalid) {
		respondJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: invalid.Fields})
		return
	}
	var denied *auth.PermissionError
	if errors.As(err, &denied) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	switch {
	case errors.Is(err, maintenance.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, maintenance.ErrEventDisabled):
		http.Error(w, "maintenance event is not loaded", http.StatusConflict)
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
