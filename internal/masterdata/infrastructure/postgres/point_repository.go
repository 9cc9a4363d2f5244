package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"scada-maintenance/internal/auth"
	masterdata "scada-maintenance/internal/masterdata/domain"
)

// PointRepository is a Postgres repository for data points.
type PointRepository struct {
	db *sql.DB
}

// NewPointRepository constructs a repository.
func NewPointRepository(db *sql.DB) *PointRepository {
	return &PointRepository{db: db}
}

const pointColumns = `id, xid, name, data_source_id, read_roles`

// GetByID loads a point by numeric id. Returns nil when absent.
func (r *PointRepository) GetByID(ctx context.Context, id int) (*masterdata.DataPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+pointColumns+`
FROM data_points
WHERE id = $1
LIMIT 1`, id)
	return scanPoint(row)
}

// GetByXID loads a point by external identifier. Returns nil when absent.
func (r *PointRepository) GetByXID(ctx context.Context, xid string) (*masterdata.DataPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	if xid == "" {
		return nil, errors.New("point repo: empty xid")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+pointColumns+`
FROM data_points
WHERE xid = $1
LIMIT 1`, xid)
	return scanPoint(row)
}

// ListByIDs loads points for the given ids, skipping ids that do not resolve.
func (r *PointRepository) ListByIDs(ctx context.Context, ids []int) ([]masterdata.DataPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("point repo: nil db")
	}
	result := make([]masterdata.DataPoint, 0, len(ids))
	for _, id := range ids {
		point, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if point == nil {
			continue
		}
		result = append(result, *point)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoint(row rowScanner) (*masterdata.DataPoint, error) {
	var point masterdata.DataPoint
	var roles []byte
	if err := row.Scan(&point.ID, &point.XID, &point.Name, &point.DataSourceID, &roles); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	names, err := decodeRoles(roles)
	if err != nil {
		return nil, err
	}
	point.ReadRoles = names
	return &point, nil
}

func decodeRoles(raw []byte) ([]auth.Role, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, err
	}
	return auth.RolesFromStrings(names), nil
}
