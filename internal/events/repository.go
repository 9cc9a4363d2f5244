package events

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Repository is a Postgres repository for maintenance event instances.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Raise inserts an active instance for a maintenance event.
func (r *Repository) Raise(ctx context.Context, instance *Instance) error {
	if r == nil || r.db == nil {
		return errors.New("event instance repo: nil db")
	}
	if instance == nil {
		return errors.New("event instance repo: nil instance")
	}
	if instance.ActiveAt.IsZero() {
		instance.ActiveAt = time.Now().UTC()
	}
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = instance.ActiveAt
	}
	instance.Active = true
	return r.db.QueryRowContext(ctx, `
INSERT INTO maintenance_event_instances (
	maintenance_event_id, message, active, active_at, created_at
) VALUES (
	$1, $2, TRUE, $3, $4
)
RETURNING id`, instance.MaintenanceEventID, instance.Message, instance.ActiveAt.UTC(),
		instance.CreatedAt.UTC()).Scan(&instance.ID)
}

// ReturnToNormal marks every active instance of the maintenance event as
// returned at the given time.
func (r *Repository) ReturnToNormal(ctx context.Context, maintenanceEventID int, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("event instance repo: nil db")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE maintenance_event_instances
SET active = FALSE, returned_at = $2
WHERE maintenance_event_id = $1 AND active = TRUE`, maintenanceEventID, at.UTC())
	return err
}

// ListForMaintenanceEvents returns instances whose maintenance event id is in
// the given set, optionally filtered by active state, ordered by activation
// timestamp per order (id breaks ties so one query's ordering is stable), and
// capped at limit when positive.
func (r *Repository) ListForMaintenanceEvents(ctx context.Context, eventIDs []int, active *bool, order Order, limit int) ([]Instance, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event instance repo: nil db")
	}
	if len(eventIDs) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`
SELECT id, maintenance_event_id, message, active, active_at, returned_at, created_at
FROM maintenance_event_instances
WHERE maintenance_event_id IN (`)
	args := make([]any, 0, len(eventIDs)+1)
	for i, id := range eventIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, id)
		sb.WriteString("$" + strconv.Itoa(len(args)))
	}
	sb.WriteString(")")
	if active != nil {
		args = append(args, *active)
		sb.WriteString(" AND active = $" + strconv.Itoa(len(args)))
	}
	if order == OrderDesc {
		sb.WriteString(" ORDER BY active_at DESC, id DESC")
	} else {
		sb.WriteString(" ORDER BY active_at ASC, id ASC")
	}
	if limit > 0 {
		args = append(args, limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Instance
	for rows.Next() {
		var instance Instance
		var returnedAt sql.NullTime
		if err := rows.Scan(
			&instance.ID,
			&instance.MaintenanceEventID,
			&instance.Message,
			&instance.Active,
			&instance.ActiveAt,
			&returnedAt,
			&instance.CreatedAt,
		); err != nil {
			return nil, err
		}
		if returnedAt.Valid {
			instance.ReturnedAt = returnedAt.Time.UTC()
		}
		instance.ActiveAt = instance.ActiveAt.UTC()
		instance.CreatedAt = instance.CreatedAt.UTC()
		result = append(result, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
