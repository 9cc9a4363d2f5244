package postgres

import (
	"context"
	"database/sql"
	"errors"

	masterdata "scada-maintenance/internal/masterdata/domain"
)

// SourceRepository is a Postgres repository for data sources.
type SourceRepository struct {
	db *sql.DB
}

// NewSourceRepository constructs a repository.
func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

const sourceColumns = `id, xid, name, edit_roles`

// GetByID loads a source by numeric id. Returns nil when absent.
func (r *SourceRepository) GetByID(ctx context.Context, id int) (*masterdata.DataSource, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("source repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+sourceColumns+`
FROM data_sources
WHERE id = $1
LIMIT 1`, id)
	return scanSource(row)
}

// GetByXID loads a source by external identifier. Returns nil when absent.
func (r *SourceRepository) GetByXID(ctx context.Context, xid string) (*masterdata.DataSource, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("source repo: nil db")
	}
	if xid == "" {
		return nil, errors.New("source repo: empty xid")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+sourceColumns+`
FROM data_sources
WHERE xid = $1
LIMIT 1`, xid)
	return scanSource(row)
}

// ListByIDs loads sources for the given ids, skipping ids that do not resolve.
func (r *SourceRepository) ListByIDs(ctx context.Context, ids []int) ([]masterdata.DataSource, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("source repo: nil db")
	}
	result := make([]masterdata.DataSource, 0, len(ids))
	for _, id := range ids {
		source, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if source == nil {
			continue
		}
		result = append(result, *source)
	}
	return result, nil
}

func scanSource(row rowScanner) (*masterdata.DataSource, error) {
	var source masterdata.DataSource
	var roles []byte
	if err := row.Scan(&source.ID, &source.XID, &source.Name, &roles); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	names, err := decodeRoles(roles)
	if err != nil {
		return nil, err
	}
	source.EditRoles = names
	return &source, nil
}
