// Package events tracks the alarm-side consequences of maintenance windows:
// raised maintenance event instances and the suppression set consulted by the
// alarm pipeline.
package events

import "time"

// Instance is one raised occurrence of a maintenance event: a row created
// when the window activates and returned-to-normal when it deactivates.
type Instance struct {
	ID                 int64
	MaintenanceEventID int
	Message            string
	Active             bool
	ActiveAt           time.Time
	ReturnedAt         time.Time
	CreatedAt          time.Time
}

// Order selects activation-timestamp ordering for instance queries.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)
