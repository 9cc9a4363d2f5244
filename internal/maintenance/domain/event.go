package maintenance

import (
	"time"

	"scada-maintenance/internal/auth"
)

// ScheduleType selects how a maintenance event's window is driven.
type ScheduleType string

const (
	// ScheduleCron activates and deactivates on independent cron expressions.
	ScheduleCron ScheduleType = "CRON"
	// ScheduleOnce activates and deactivates at two explicit instants.
	ScheduleOnce ScheduleType = "ONCE"
	// SchedulePermanent is active for as long as the event is loaded.
	SchedulePermanent ScheduleType = "PERMANENT"
)

// ValidScheduleType reports whether the value is a known schedule type.
func ValidScheduleType(value ScheduleType) bool {
	switch value {
	case ScheduleCron, ScheduleOnce, SchedulePermanent:
		return true
	default:
		return false
	}
}

// MaintenanceEvent is the persisted definition of a maintenance window.
// During the window, alarms for the linked data points and data sources are
// suppressed.
type MaintenanceEvent struct {
	ID   int
	XID  string
	Name string

	ScheduleType ScheduleType

	// Cron expressions, used when ScheduleType is CRON.
	ActiveCron   string
	InactiveCron string

	// Explicit window bounds, used when ScheduleType is ONCE.
	ActiveAt   time.Time
	InactiveAt time.Time

	// Linked scope. At least one point or one source is required.
	DataPoints  []int
	DataSources []int

	// ToggleRoles may manually toggle the event without holding edit or
	// read permission over the linked scope.
	ToggleRoles []auth.Role

	// Timeout, when positive, forces a transition back to inactive that
	// long after any activation.
	Timeout time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasScope reports whether the definition references any point or source.
func (e MaintenanceEvent) HasScope() bool {
	return len(e.DataPoints) > 0 || len(e.DataSources) > 0
}

// Copy returns a deep copy of the definition.
func (e MaintenanceEvent) Copy() MaintenanceEvent {
	out := e
	out.DataPoints = append([]int(nil), e.DataPoints...)
	out.DataSources = append([]int(nil), e.DataSources...)
	out.ToggleRoles = append([]auth.Role(nil), e.ToggleRoles...)
	return out
}
