package masterdata

import "scada-maintenance/internal/auth"

// DataPoint is a monitored point owned by exactly one data source.
type DataPoint struct {
	ID           int
	XID          string
	Name         string
	DataSourceID int
	ReadRoles    []auth.Role
}

// ReadableBy reports whether the identity may read this point. Superadmin
// always may; otherwise the identity needs one of the point's read roles.
func (p DataPoint) ReadableBy(identity auth.Identity) bool {
	if identity.IsAdmin() {
		return true
	}
	return identity.HasAnyRole(p.ReadRoles)
}
