package application

import (
	"context"
	"fmt"

	"scada-maintenance/internal/auth"
	maintenance "scada-maintenance/internal/maintenance/domain"
	masterdata "scada-maintenance/internal/masterdata/domain"
	"scada-maintenance/internal/observability/metrics"
)

// Capability names used in permission denials and metrics.
const (
	CapabilityCreate = "maintenance.create"
	CapabilityEdit   = "maintenance.edit"
	CapabilityToggle = "maintenance.toggle"
	CapabilityRead   = "maintenance.read"
)

// PointReader resolves data points.
type PointReader interface {
	GetByID(ctx context.Context, id int) (*masterdata.DataPoint, error)
	GetByXID(ctx context.Context, xid string) (*masterdata.DataPoint, error)
	ListByIDs(ctx context.Context, ids []int) ([]masterdata.DataPoint, error)
}

// SourceReader resolves data sources.
type SourceReader interface {
	GetByID(ctx context.Context, id int) (*masterdata.DataSource, error)
	GetByXID(ctx context.Context, xid string) (*masterdata.DataSource, error)
	ListByIDs(ctx context.Context, ids []int) ([]masterdata.DataSource, error)
}

// RoleReader checks whether a role is defined in the system.
type RoleReader interface {
	Exists(ctx context.Context, role auth.Role) (bool, error)
}

// Permissions resolves per-event capabilities against the linked scope.
//
// Precedence for every capability: superadmin first, then the system-wide
// data source permission, then the scope checks below. Toggle accepts only
// the definition's toggle roles; scope permissions never grant it.
type Permissions struct {
	points  PointReader
	sources SourceReader
}

// NewPermissions constructs a resolver.
func NewPermissions(points PointReader, sources SourceReader) *Permissions {
	return &Permissions{points: points, sources: sources}
}

// EnsureCreatePermission checks the caller may create maintenance events.
// Creation requires the system-wide data source permission.
func (p *Permissions) EnsureCreatePermission(identity auth.Identity) error {
	if identity.IsAdmin() || identity.HasRole(auth.RoleDataSource) {
		return nil
	}
	metrics.IncPermissionDenial(CapabilityCreate)
	return auth.NewPermissionError(identity.Subject, CapabilityCreate)
}

// EnsureTogglePermission checks the caller may change the event's active
// state. Only the definition's toggle roles admit; edit or read permission
// over the linked scope does not.
func (p *Permissions) EnsureTogglePermission(identity auth.Identity, def maintenance.MaintenanceEvent) error {
	if identity.IsAdmin() || identity.HasRole(auth.RoleDataSource) {
		return nil
	}
	if identity.HasAnyRole(def.ToggleRoles) {
		return nil
	}
	metrics.IncPermissionDenial(CapabilityToggle)
	return auth.NewPermissionError(identity.Subject, CapabilityToggle)
}

// EnsureEditPermission checks the caller may modify or delete the event.
func (p *Permissions) EnsureEditPermission(ctx context.Context, identity auth.Identity, def maintenance.MaintenanceEvent) error {
	if identity.IsAdmin() || identity.HasRole(auth.RoleDataSource) {
		return nil
	}
	edit, err := p.hasScopeEdit(ctx, identity, def)
	if err != nil {
		return err
	}
	if edit {
		return nil
	}
	metrics.IncPermissionDenial(CapabilityEdit)
	return auth.NewPermissionError(identity.Subject, CapabilityEdit)
}

// HasReadPermission reports whether the caller may see the event. Each
// linked point must be readable directly or through edit permission on its
// owning source, and each linked source must be editable.
func (p *Permissions) HasReadPermission(ctx context.Context, identity auth.Identity, def maintenance.MaintenanceEvent) (bool, error) {
	if identity.IsAdmin() || identity.HasRole(auth.RoleDataSource) {
		return true, nil
	}
	owners := make(map[int]*masterdata.DataSource)
	for _, pointID := range def.DataPoints {
		point, err := p.points.GetByID(ctx, pointID)
		if err != nil {
			return false, err
		}
		if point == nil {
			return false, fmt.Errorf("permissions: data point %d not found", pointID)
		}
		if point.ReadableBy(identity) {
			continue
		}
		editable, err := p.ownerEditable(ctx, identity, owners, point.DataSourceID)
		if err != nil {
			return false, err
		}
		if !editable {
			return false, nil
		}
	}
	for _, sourceID := range def.DataSources {
		editable, err := p.ownerEditable(ctx, identity, owners, sourceID)
		if err != nil {
			return false, err
		}
		if !editable {
			return false, nil
		}
	}
	return true, nil
}

// hasScopeEdit reports edit permission over the full linked scope: edit on
// the owning source of every linked point and on every linked source.
func (p *Permissions) hasScopeEdit(ctx context.Context, identity auth.Identity, def maintenance.MaintenanceEvent) (bool, error) {
	owners := make(map[int]*masterdata.DataSource)
	for _, pointID := range def.DataPoints {
		point, err := p.points.GetByID(ctx, pointID)
		if err != nil {
			return false, err
		}
		if point == nil {
			return false, fmt.Errorf("permissions: data point %d not found", pointID)
		}
		editable, err := p.ownerEditable(ctx, identity, owners, point.DataSourceID)
		if err != nil {
			return false, err
		}
		if !editable {
			return false, nil
		}
	}
	for _, sourceID := range def.DataSources {
		editable, err := p.ownerEditable(ctx, identity, owners, sourceID)
		if err != nil {
			return false, err
		}
		if !editable {
			return false, nil
		}
	}
	return true, nil
}

// ownerEditable resolves a source once per call chain and reports whether
// the identity may edit it.
func (p *Permissions) ownerEditable(ctx context.Context, identity auth.Identity, cache map[int]*masterdata.DataSource, sourceID int) (bool, error) {
	source, ok := cache[sourceID]
	if !ok {
		var err error
		source, err = p.sources.GetByID(ctx, sourceID)
		if err != nil {
			return false, err
		}
		cache[sourceID] = source
	}
	if source == nil {
		return false, fmt.Errorf("permissions: data source %d not found", sourceID)
	}
	return source.EditableBy(identity), nil
}
