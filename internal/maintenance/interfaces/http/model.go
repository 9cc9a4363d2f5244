package http

import (
	"context"
	"strconv"
	"time"

	"scada-maintenance/internal/auth"
	maintapp "scada-maintenance/internal/maintenance/application"
	maintenance "scada-maintenance/internal/maintenance/domain"
)

const timeLayout = time.RFC3339

// eventModel is the wire representation of a maintenance event. Linked
// points and sources travel as external identifiers, never as database ids.
type eventModel struct {
	XID          string   `json:"xid,omitempty"`
	Name         string   `json:"name"`
	ScheduleType string   `json:"scheduleType"`
	ActiveCron   string   `json:"activeCron,omitempty"`
	InactiveCron string   `json:"inactiveCron,omitempty"`
	ActiveAt     string   `json:"activeAt,omitempty"`
	InactiveAt   string   `json:"inactiveAt,omitempty"`
	DataPoints   []string `json:"dataPoints,omitempty"`
	DataSources  []string `json:"dataSources,omitempty"`
	ToggleRoles  []string `json:"toggleRoles,omitempty"`

	TimeoutSeconds int64 `json:"timeoutSeconds,omitempty"`

	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// toDomain translates the wire model, resolving point and source xids to
// ids. Unknown xids and malformed timestamps are collected as field errors
// so the caller sees every problem at once.
func (m eventModel) toDomain(ctx context.Context, points maintapp.PointReader, sources maintapp.SourceReader) (maintenance.MaintenanceEvent, error) {
	var violations maintenance.ValidationError
	def := maintenance.MaintenanceEvent{
		XID:          m.XID,
		Name:         m.Name,
		ScheduleType: maintenance.ScheduleType(m.ScheduleType),
		ActiveCron:   m.ActiveCron,
		InactiveCron: m.InactiveCron,
		ToggleRoles:  auth.RolesFromStrings(m.ToggleRoles),
		Timeout:      time.Duration(m.TimeoutSeconds) * time.Second,
	}
	if m.ActiveAt != "" {
		at, err := time.Parse(timeLayout, m.ActiveAt)
		if err != nil {
			violations.Add("activeAt", "must be an RFC 3339 timestamp")
		} else {
			def.ActiveAt = at.UTC()
		}
	}
	if m.InactiveAt != "" {
		at, err := time.Parse(timeLayout, m.InactiveAt)
		if err != nil {
			violations.Add("inactiveAt", "must be an RFC 3339 timestamp")
		} else {
			def.InactiveAt = at.UTC()
		}
	}
	for i, xid := range m.DataPoints {
		point, err := points.GetByXID(ctx, xid)
		if err != nil {
			return def, err
		}
		if point == nil {
			violations.Add("dataPoints["+strconv.Itoa(i)+"]", "no data point with xid "+strconv.Quote(xid))
			continue
		}
		def.DataPoints = append(def.DataPoints, point.ID)
	}
	for i, xid := range m.DataSources {
		source, err := sources.GetByXID(ctx, xid)
		if err != nil {
			return def, err
		}
		if source == nil {
			violations.Add("dataSources["+strconv.Itoa(i)+"]", "no data source with xid "+strconv.Quote(xid))
			continue
		}
		def.DataSources = append(def.DataSources, source.ID)
	}
	return def, violations.Err()
}

// fromDomain translates a definition for the wire, mapping linked ids back
// to xids.
func fromDomain(ctx context.Context, def maintenance.MaintenanceEvent, points maintapp.PointReader, sources maintapp.SourceReader) (eventModel, error) {
	m := eventModel{
		XID:            def.XID,
		Name:           def.Name,
		ScheduleType:   string(def.ScheduleType),
		ActiveCron:     def.ActiveCron,
		InactiveCron:   def.InactiveCron,
		ToggleRoles:    auth.RolesToStrings(def.ToggleRoles),
		TimeoutSeconds: int64(def.Timeout / time.Second),
	}
	if !def.ActiveAt.IsZero() {
		m.ActiveAt = def.ActiveAt.UTC().Format(timeLayout)
	}
	if !def.InactiveAt.IsZero() {
		m.InactiveAt = def.InactiveAt.UTC().Format(timeLayout)
	}
	if !def.CreatedAt.IsZero() {
		m.CreatedAt = def.CreatedAt.UTC().Format(timeLayout)
	}
	if !def.UpdatedAt.IsZero() {
		m.UpdatedAt = def.UpdatedAt.UTC().Format(timeLayout)
	}
	if len(def.DataPoints) > 0 {
		resolved, err := points.ListByIDs(ctx, def.DataPoints)
		if err != nil {
			return m, err
		}
		for _, point := range resolved {
			m.DataPoints = append(m.DataPoints, point.XID)
		}
	}
	if len(def.DataSources) > 0 {
		resolved, err := sources.ListByIDs(ctx, def.DataSources)
		if err != nil {
			return m, err
		}
		for _, source := range resolved {
			m.DataSources = append(m.DataSources, source.XID)
		}
	}
	return m, nil
}

// instanceModel is the wire representation of a raised event instance.
type instanceModel struct {
	ID                 int64  `json:"id"`
	MaintenanceEventID int    `json:"maintenanceEventId"`
	Message            string `json:"message"`
	Active             bool   `json:"active"`
	ActiveAt           string `json:"activeAt"`
	ReturnedAt         string `json:"returnedAt,omitempty"`
}
