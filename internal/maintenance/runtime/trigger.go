package runtime

import (
	"time"

	"github.com/robfig/cron/v3"

	maintenance "scada-maintenance/internal/maintenance/domain"
)

// cronParser accepts standard five-field expressions with an optional leading
// seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron validates a cron expression and returns its schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Trigger is a fireable schedule edge: either a recurring cron schedule or a
// single absolute instant.
type Trigger struct {
	schedule cron.Schedule
	fireAt   time.Time
}

// Next returns the first fire time strictly after the given instant, or the
// zero time when the trigger will never fire again.
func (t *Trigger) Next(after time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.schedule != nil {
		return t.schedule.Next(after)
	}
	if t.fireAt.After(after) {
		return t.fireAt
	}
	return time.Time{}
}

// Last returns the most recent fire time at or before the given instant.
// For cron schedules it scans forward from progressively wider lookback
// windows, since cron schedules only expose next-fire computation.
func (t *Trigger) Last(before time.Time) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.schedule == nil {
		if !t.fireAt.After(before) {
			return t.fireAt, true
		}
		return time.Time{}, false
	}
	lookbacks := []time.Duration{
		time.Hour,
		24 * time.Hour,
		7 * 24 * time.Hour,
		31 * 24 * time.Hour,
		366 * 24 * time.Hour,
	}
	for _, lookback := range lookbacks {
		cursor := before.Add(-lookback)
		var last time.Time
		for i := 0; i < 100000; i++ {
			next := t.schedule.Next(cursor)
			if next.IsZero() || next.After(before) {
				break
			}
			last = next
			cursor = next
		}
		if !last.IsZero() {
			return last, true
		}
	}
	return time.Time{}, false
}

// BuildTrigger produces the activation or deactivation trigger for a
// definition. A nil trigger with nil error means the schedule needs no timer
// for that edge (PERMANENT). Errors are attributed to the definition field
// that caused them so validation can collect every violation.
func BuildTrigger(def maintenance.MaintenanceEvent, activation bool) (*Trigger, *maintenance.FieldError) {
	switch def.ScheduleType {
	case maintenance.SchedulePermanent:
		return nil, nil
	case maintenance.ScheduleOnce:
		if !def.InactiveAt.After(def.ActiveAt) {
			return nil, &maintenance.FieldError{
				Field:   "scheduleType",
				Message: "inactive time must be after active time",
			}
		}
		if activation {
			return &Trigger{fireAt: def.ActiveAt.UTC()}, nil
		}
		return &Trigger{fireAt: def.InactiveAt.UTC()}, nil
	case maintenance.ScheduleCron:
		expr := def.ActiveCron
		field := "activeCron"
		if !activation {
			expr = def.InactiveCron
			field = "inactiveCron"
		}
		schedule, err := ParseCron(expr)
		if err != nil {
			return nil, &maintenance.FieldError{Field: field, Message: err.Error()}
		}
		return &Trigger{schedule: schedule}, nil
	default:
		return nil, &maintenance.FieldError{
			Field:   "scheduleType",
			Message: "unknown schedule type",
		}
	}
}
