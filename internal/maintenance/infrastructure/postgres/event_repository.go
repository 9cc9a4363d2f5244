package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"scada-maintenance/internal/auth"
	maintenance "scada-maintenance/internal/maintenance/domain"
)

// EventRepository is the Postgres repository for maintenance event
// definitions and their point/source link tables.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository constructs a repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, xid, name, schedule_type, active_cron, inactive_cron,
	active_at, inactive_at, timeout_seconds, toggle_roles, created_at, updated_at`

// Insert stores a new definition and assigns its id.
func (r *EventRepository) Insert(ctx context.Context, def *maintenance.MaintenanceEvent) error {
	if r == nil || r.db == nil {
		return errors.New("maintenance repo: nil db")
	}
	if def == nil {
		return errors.New("maintenance repo: nil definition")
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	roles, err := encodeRoles(def.ToggleRoles)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
INSERT INTO maintenance_events (
	xid, name, schedule_type, active_cron, inactive_cron,
	active_at, inactive_at, timeout_seconds, toggle_roles, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9, $10, $11
)
RETURNING id`, def.XID, def.Name, string(def.ScheduleType), def.ActiveCron, def.InactiveCron,
		nullTime(def.ActiveAt), nullTime(def.InactiveAt), int64(def.Timeout/time.Second),
		roles, def.CreatedAt, def.UpdatedAt).Scan(&def.ID)
	if err != nil {
		return err
	}
	if err := insertLinks(ctx, tx, def.ID, def.DataPoints, def.DataSources); err != nil {
		return err
	}
	return tx.Commit()
}

// Update rewrites a stored definition and its links. The id and xid are
// immutable.
func (r *EventRepository) Update(ctx context.Context, def *maintenance.MaintenanceEvent) error {
	if r == nil || r.db == nil {
		return errors.New("maintenance repo: nil db")
	}
	if def == nil || def.ID == 0 {
		return errors.New("maintenance repo: definition without id")
	}
	def.UpdatedAt = time.Now().UTC()

	roles, err := encodeRoles(def.ToggleRoles)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
UPDATE maintenance_events
SET name = $2, schedule_type = $3, active_cron = $4, inactive_cron = $5,
	active_at = $6, inactive_at = $7, timeout_seconds = $8, toggle_roles = $9, updated_at = $10
WHERE id = $1`, def.ID, def.Name, string(def.ScheduleType), def.ActiveCron, def.InactiveCron,
		nullTime(def.ActiveAt), nullTime(def.InactiveAt), int64(def.Timeout/time.Second),
		roles, def.UpdatedAt)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return maintenance.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_event_points WHERE event_id = $1`, def.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_event_sources WHERE event_id = $1`, def.ID); err != nil {
		return err
	}
	if err := insertLinks(ctx, tx, def.ID, def.DataPoints, def.DataSources); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a definition and its links.
func (r *EventRepository) Delete(ctx context.Context, id int) error {
	if r == nil || r.db == nil {
		return errors.New("maintenance repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_event_points WHERE event_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_event_sources WHERE event_id = $1`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM maintenance_events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return maintenance.ErrNotFound
	}
	return tx.Commit()
}

// GetByID loads a definition by id. Returns nil when absent.
func (r *EventRepository) GetByID(ctx context.Context, id int) (*maintenance.MaintenanceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("maintenance repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM maintenance_events
WHERE id = $1
LIMIT 1`, id)
	return r.scanWithLinks(ctx, row)
}

// GetByXID loads a definition by external identifier. Returns nil when absent.
func (r *EventRepository) GetByXID(ctx context.Context, xid string) (*maintenance.MaintenanceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("maintenance repo: nil db")
	}
	if xid == "" {
		return nil, errors.New("maintenance repo: empty xid")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM maintenance_events
WHERE xid = $1
LIMIT 1`, xid)
	return r.scanWithLinks(ctx, row)
}

// ListAll returns every stored definition.
func (r *EventRepository) ListAll(ctx context.Context) ([]maintenance.MaintenanceEvent, error) {
	return r.list(ctx, `
SELECT `+eventColumns+`
FROM maintenance_events
ORDER BY id ASC`)
}

// Query returns definitions matching the filter, ordered by id so paging is
// stable.
func (r *EventRepository) Query(ctx context.Context, filter maintenance.Filter) ([]maintenance.MaintenanceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("maintenance repo: nil db")
	}
	var sb strings.Builder
	sb.WriteString(`
SELECT ` + eventColumns + `
FROM maintenance_events`)
	var args []any
	var conds []string
	if filter.XID != "" {
		args = append(args, filter.XID)
		conds = append(conds, "xid = $"+strconv.Itoa(len(args)))
	}
	if filter.Name != "" {
		args = append(args, "%"+filter.Name+"%")
		conds = append(conds, "name ILIKE $"+strconv.Itoa(len(args)))
	}
	if filter.ScheduleType != "" {
		args = append(args, string(filter.ScheduleType))
		conds = append(conds, "schedule_type = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString("\nWHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString("\nORDER BY id ASC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}
	return r.list(ctx, sb.String(), args...)
}

// ForDataPoint returns definitions referencing the point directly or through
// its owning data source.
func (r *EventRepository) ForDataPoint(ctx context.Context, pointID int) ([]maintenance.MaintenanceEvent, error) {
	return r.list(ctx, `
SELECT `+eventColumns+`
FROM maintenance_events
WHERE id IN (
	SELECT event_id FROM maintenance_event_points WHERE point_id = $1
	UNION
	SELECT event_id FROM maintenance_event_sources
	WHERE source_id = (SELECT data_source_id FROM data_points WHERE id = $1)
)
ORDER BY id ASC`, pointID)
}

// ForDataPointXID is ForDataPoint keyed by the point's external identifier.
func (r *EventRepository) ForDataPointXID(ctx context.Context, xid string) ([]maintenance.MaintenanceEvent, error) {
	return r.list(ctx, `
SELECT `+eventColumns+`
FROM maintenance_events
WHERE id IN (
	SELECT mp.event_id FROM maintenance_event_points mp
	JOIN data_points p ON p.id = mp.point_id
	WHERE p.xid = $1
	UNION
	SELECT ms.event_id FROM maintenance_event_sources ms
	WHERE ms.source_id = (SELECT data_source_id FROM data_points WHERE xid = $1)
)
ORDER BY id ASC`, xid)
}

// ForDataSource returns definitions referencing the source.
func (r *EventRepository) ForDataSource(ctx context.Context, sourceID int) ([]maintenance.MaintenanceEvent, error) {
	return r.list(ctx, `
SELECT `+eventColumns+`
FROM maintenance_events
WHERE id IN (
	SELECT event_id FROM maintenance_event_sources WHERE source_id = $1
)
ORDER BY id ASC`, sourceID)
}

// ForDataSourceXID is ForDataSource keyed by the source's external identifier.
func (r *EventRepository) ForDataSourceXID(ctx context.Context, xid string) ([]maintenance.MaintenanceEvent, error) {
	return r.list(ctx, `
SELECT `+eventColumns+`
FROM maintenance_events
WHERE id IN (
	SELECT ms.event_id FROM maintenance_event_sources ms
	JOIN data_sources s ON s.id = ms.source_id
	WHERE s.xid = $1
)
ORDER BY id ASC`, xid)
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]maintenance.MaintenanceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("maintenance repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []maintenance.MaintenanceEvent
	for rows.Next() {
		def, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		if err := r.loadLinks(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *EventRepository) scanWithLinks(ctx context.Context, row *sql.Row) (*maintenance.MaintenanceEvent, error) {
	def, err := scanEvent(row)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}
	if err := r.loadLinks(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (r *EventRepository) loadLinks(ctx context.Context, def *maintenance.MaintenanceEvent) error {
	points, err := r.linkIDs(ctx, `SELECT point_id FROM maintenance_event_points WHERE event_id = $1 ORDER BY point_id ASC`, def.ID)
	if err != nil {
		return err
	}
	sources, err := r.linkIDs(ctx, `SELECT source_id FROM maintenance_event_sources WHERE event_id = $1 ORDER BY source_id ASC`, def.ID)
	if err != nil {
		return err
	}
	def.DataPoints = points
	def.DataSources = sources
	return nil
}

func (r *EventRepository) linkIDs(ctx context.Context, query string, eventID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*maintenance.MaintenanceEvent, error) {
	var def maintenance.MaintenanceEvent
	var scheduleType string
	var activeAt, inactiveAt sql.NullTime
	var timeoutSeconds int64
	var roles []byte
	if err := row.Scan(
		&def.ID,
		&def.XID,
		&def.Name,
		&scheduleType,
		&def.ActiveCron,
		&def.InactiveCron,
		&activeAt,
		&inactiveAt,
		&timeoutSeconds,
		&roles,
		&def.CreatedAt,
		&def.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	def.ScheduleType = maintenance.ScheduleType(scheduleType)
	if activeAt.Valid {
		def.ActiveAt = activeAt.Time.UTC()
	}
	if inactiveAt.Valid {
		def.InactiveAt = inactiveAt.Time.UTC()
	}
	def.Timeout = time.Duration(timeoutSeconds) * time.Second
	def.CreatedAt = def.CreatedAt.UTC()
	def.UpdatedAt = def.UpdatedAt.UTC()

	if len(roles) > 0 {
		var names []string
		if err := json.Unmarshal(roles, &names); err != nil {
			return nil, err
		}
		def.ToggleRoles = auth.RolesFromStrings(names)
	}
	return &def, nil
}

func insertLinks(ctx context.Context, tx *sql.Tx, eventID int, points, sources []int) error {
	for _, pointID := range points {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO maintenance_event_points (event_id, point_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`, eventID, pointID); err != nil {
			return err
		}
	}
	for _, sourceID := range sources {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO maintenance_event_sources (event_id, source_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`, eventID, sourceID); err != nil {
			return err
		}
	}
	return nil
}

func encodeRoles(roles []auth.Role) ([]byte, error) {
	return json.Marshal(auth.RolesToStrings(roles))
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
