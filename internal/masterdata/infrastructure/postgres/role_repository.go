package postgres

import (
	"context"
	"database/sql"
	"errors"

	"scada-maintenance/internal/auth"
)

// RoleRepository answers role-existence queries against the roles table.
type RoleRepository struct {
	db *sql.DB
}

// NewRoleRepository constructs a repository.
func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Exists reports whether a role is defined.
func (r *RoleRepository) Exists(ctx context.Context, role auth.Role) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("role repo: nil db")
	}
	if role == "" {
		return false, nil
	}
	var one int
	err := r.db.QueryRowContext(ctx, `
SELECT 1
FROM roles
WHERE name = $1
LIMIT 1`, string(role)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
