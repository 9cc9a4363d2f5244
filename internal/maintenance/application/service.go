package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"scada-maintenance/internal/audit"
	"scada-maintenance/internal/auth"
	"scada-maintenance/internal/events"
	maintenance "scada-maintenance/internal/maintenance/domain"
	"scada-maintenance/internal/maintenance/runtime"
	"scada-maintenance/internal/observability/metrics"
	"scada-maintenance/internal/scheduler"
)

// EventStore persists maintenance event definitions.
type EventStore interface {
	Insert(ctx context.Context, def *maintenance.MaintenanceEvent) error
	Update(ctx context.Context, def *maintenance.MaintenanceEvent) error
	Delete(ctx context.Context, id int) error
	GetByID(ctx context.Context, id int) (*maintenance.MaintenanceEvent, error)
	GetByXID(ctx context.Context, xid string) (*maintenance.MaintenanceEvent, error)
	ListAll(ctx context.Context) ([]maintenance.MaintenanceEvent, error)
	Query(ctx context.Context, filter maintenance.Filter) ([]maintenance.MaintenanceEvent, error)
	ForDataPointXID(ctx context.Context, xid string) ([]maintenance.MaintenanceEvent, error)
	ForDataSourceXID(ctx context.Context, xid string) ([]maintenance.MaintenanceEvent, error)
}

// InstanceLister reads raised event instances for maintenance events.
type InstanceLister interface {
	ListForMaintenanceEvents(ctx context.Context, eventIDs []int, active *bool, order events.Order, limit int) ([]events.Instance, error)
}

// Notification describes a definition lifecycle change delivered to
// subscribers.
type Notification struct {
	Action string                       `json:"action"`
	Event  maintenance.MaintenanceEvent `json:"-"`
	XID    string                       `json:"xid"`
	Name   string                       `json:"name"`
	At     time.Time                    `json:"at"`
}

// Lifecycle actions carried in notifications.
const (
	ActionCreated     = "created"
	ActionUpdated     = "updated"
	ActionDeleted     = "deleted"
	ActionActivated   = "activated"
	ActionDeactivated = "deactivated"
)

// Notifier delivers lifecycle notifications. Delivery is best effort;
// failures are logged and never fail the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Service carries the maintenance event use cases: definition CRUD with
// validation and permission gating, manual state changes, and queries.
type Service struct {
	store     EventStore
	points    PointReader
	sources   SourceReader
	roles     RoleReader
	perms     *Permissions
	manager   *runtime.Manager
	instances InstanceLister

	notifier Notifier
	auditor  audit.Logger
	clock    scheduler.Clock
	logger   *log.Logger
}

// Option customizes the Service.
type Option func(*Service)

// WithNotifier attaches a lifecycle notifier.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithAuditLogger attaches an audit logger.
func WithAuditLogger(auditor audit.Logger) Option {
	return func(s *Service) { s.auditor = auditor }
}

// WithClock overrides the wall clock, for tests.
func WithClock(clock scheduler.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService constructs the Service.
func NewService(
	store EventStore,
	points PointReader,
	sources SourceReader,
	roles RoleReader,
	manager *runtime.Manager,
	instances InstanceLister,
	logger *log.Logger,
	opts ...Option,
) (*Service, error) {
	if store == nil {
		return nil, errors.New("maintenance service: nil store")
	}
	if points == nil || sources == nil {
		return nil, errors.New("maintenance service: nil master data readers")
	}
	if roles == nil {
		return nil, errors.New("maintenance service: nil role reader")
	}
	if manager == nil {
		return nil, errors.New("maintenance service: nil runtime manager")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		store:     store,
		points:    points,
		sources:   sources,
		roles:     roles,
		perms:     NewPermissions(points, sources),
		manager:   manager,
		instances: instances,
		clock:     scheduler.SystemClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Insert validates and stores a new definition, starts its runtime, and
// returns the stored copy with id and xid assigned.
func (s *Service) Insert(ctx context.Context, def maintenance.MaintenanceEvent) (*maintenance.MaintenanceEvent, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	if err := s.perms.EnsureCreatePermission(identity); err != nil {
		return nil, err
	}
	if def.XID == "" {
		def.XID = GenerateXID()
	}
	if err := s.validate(ctx, &def); err != nil {
		return nil, err
	}
	def.ID = 0
	if err := s.store.Insert(ctx, &def); err != nil {
		return nil, err
	}
	if err := s.manager.Install(def); err != nil {
		// The definition validated, so install failures are unexpected.
		s.logger.Printf("maintenance: install runtime for %s: %v", def.XID, err)
	}
	s.notify(ctx, ActionCreated, def)
	s.writeAudit(ctx, identity, "maintenance_event.create", def)
	return &def, nil
}

// Update validates and rewrites the definition stored under xid, keeping id
// and xid immutable, and reinstalls its runtime.
func (s *Service) Update(ctx context.Context, xid string, def maintenance.MaintenanceEvent) (*maintenance.MaintenanceEvent, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	existing, err := s.store.GetByXID(ctx, xid)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, maintenance.ErrNotFound
	}
	if err := s.perms.EnsureEditPermission(ctx, identity, *existing); err != nil {
		return nil, err
	}
	def.ID = existing.ID
	def.XID = existing.XID
	def.CreatedAt = existing.CreatedAt
	if err := s.validate(ctx, &def); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, &def); err != nil {
		return nil, err
	}
	if err := s.manager.Install(def); err != nil {
		s.logger.Printf("maintenance: reinstall runtime for %s: %v", def.XID, err)
	}
	s.notify(ctx, ActionUpdated, def)
	s.writeAudit(ctx, identity, "maintenance_event.update", def)
	return &def, nil
}

// Delete removes the definition stored under xid, stopping its runtime
// first. A running event deactivates on the way out.
func (s *Service) Delete(ctx context.Context, xid string) (*maintenance.MaintenanceEvent, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	existing, err := s.store.GetByXID(ctx, xid)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, maintenance.ErrNotFound
	}
	if err := s.perms.EnsureEditPermission(ctx, identity, *existing); err != nil {
		return nil, err
	}
	s.manager.Remove(existing.ID)
	if err := s.store.Delete(ctx, existing.ID); err != nil {
		return nil, err
	}
	s.notify(ctx, ActionDeleted, *existing)
	s.writeAudit(ctx, identity, "maintenance_event.delete", *existing)
	return existing, nil
}

// GetByXID returns the definition stored under xid, subject to read
// permission.
func (s *Service) GetByXID(ctx context.Context, xid string) (*maintenance.MaintenanceEvent, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	def, err := s.store.GetByXID(ctx, xid)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, maintenance.ErrNotFound
	}
	readable, err := s.perms.HasReadPermission(ctx, identity, *def)
	if err != nil {
		return nil, err
	}
	if !readable {
		metrics.IncPermissionDenial(CapabilityRead)
		return nil, auth.NewPermissionError(identity.Subject, CapabilityRead)
	}
	return def, nil
}

// Toggle flips the event's active state and returns the new state.
func (s *Service) Toggle(ctx context.Context, xid string) (bool, error) {
	rt, err := s.getEventRT(ctx, xid)
	if err != nil {
		metrics.IncToggle(err)
		return false, err
	}
	state := rt.Toggle()
	metrics.IncToggle(nil)
	return state, nil
}

// SetState drives the event to the requested state and returns the resulting
// state. Setting the current state is a no-op.
func (s *Service) SetState(ctx context.Context, xid string, active bool) (bool, error) {
	rt, err := s.getEventRT(ctx, xid)
	if err != nil {
		metrics.IncToggle(err)
		return false, err
	}
	state := rt.SetState(active)
	metrics.IncToggle(nil)
	return state, nil
}

// IsEventActive reports whether the event is currently in its maintenance
// window.
func (s *Service) IsEventActive(ctx context.Context, xid string) (bool, error) {
	rt, err := s.getEventRT(ctx, xid)
	if err != nil {
		return false, err
	}
	return rt.IsActive(), nil
}

// getEventRT resolves the live runtime for xid. A stored definition without
// a runtime reports ErrEventDisabled; an unknown xid reports ErrNotFound.
// That precedence distinguishes "never existed" from "exists but disabled".
func (s *Service) getEventRT(ctx context.Context, xid string) (*runtime.EventRuntime, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	def, err := s.store.GetByXID(ctx, xid)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, maintenance.ErrNotFound
	}
	if err := s.perms.EnsureTogglePermission(identity, *def); err != nil {
		return nil, err
	}
	rt, ok := s.manager.Get(def.ID)
	if !ok {
		return nil, maintenance.ErrEventDisabled
	}
	return rt, nil
}

// Query returns definitions matching the filter that the caller may read.
func (s *Service) Query(ctx context.Context, filter maintenance.Filter) ([]maintenance.MaintenanceEvent, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	defs, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.filterReadable(ctx, identity, defs)
}

// ForDataPointXIDs returns definitions whose scope covers any of the given
// points, directly or through the point's owning source. Duplicates across
// points are collapsed.
func (s *Service) ForDataPointXIDs(ctx context.Context, xids []string) ([]maintenance.MaintenanceEvent, error) {
	return s.collect(ctx, xids, s.store.ForDataPointXID)
}

// ForDataSourceXIDs returns definitions whose scope covers any of the given
// sources.
func (s *Service) ForDataSourceXIDs(ctx context.Context, xids []string) ([]maintenance.MaintenanceEvent, error) {
	return s.collect(ctx, xids, s.store.ForDataSourceXID)
}

func (s *Service) collect(ctx context.Context, xids []string, lookup func(context.Context, string) ([]maintenance.MaintenanceEvent, error)) ([]maintenance.MaintenanceEvent, error) {
	if _, ok := auth.IdentityFromContext(ctx); !ok {
		return nil, auth.ErrUnauthorized
	}
	seen := make(map[int]struct{})
	var result []maintenance.MaintenanceEvent
	for _, xid := range xids {
		defs, err := lookup(ctx, xid)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if _, dup := seen[def.ID]; dup {
				continue
			}
			seen[def.ID] = struct{}{}
			result = append(result, def)
		}
	}
	return result, nil
}

// Instances returns raised event instances for the given definitions,
// restricted to definitions the caller may read.
func (s *Service) Instances(ctx context.Context, eventIDs []int, active *bool, order events.Order, limit int) ([]events.Instance, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	if s.instances == nil {
		return nil, errors.New("maintenance service: instance listing not configured")
	}
	readable := make([]int, 0, len(eventIDs))
	for _, id := range eventIDs {
		def, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if def == nil {
			continue
		}
		allowed, err := s.perms.HasReadPermission(ctx, identity, *def)
		if err != nil {
			return nil, err
		}
		if allowed {
			readable = append(readable, id)
		}
	}
	if len(readable) == 0 {
		return nil, nil
	}
	return s.instances.ListForMaintenanceEvents(ctx, readable, active, order, limit)
}

func (s *Service) filterReadable(ctx context.Context, identity auth.Identity, defs []maintenance.MaintenanceEvent) ([]maintenance.MaintenanceEvent, error) {
	if identity.IsAdmin() || identity.HasRole(auth.RoleDataSource) {
		return defs, nil
	}
	result := make([]maintenance.MaintenanceEvent, 0, len(defs))
	for _, def := range defs {
		allowed, err := s.perms.HasReadPermission(ctx, identity, def)
		if err != nil {
			return nil, err
		}
		if allowed {
			result = append(result, def)
		}
	}
	return result, nil
}

// validate collects every violation in the definition. The schedule fields
// are checked by building both triggers, so a definition that validates is
// guaranteed to install.
func (s *Service) validate(ctx context.Context, def *maintenance.MaintenanceEvent) error {
	var violations maintenance.ValidationError
	if def.Name == "" {
		violations.Add("name", "name is required")
	}
	if !maintenance.ValidScheduleType(def.ScheduleType) {
		violations.Add("scheduleType", fmt.Sprintf("unknown schedule type %q", def.ScheduleType))
	} else {
		actErr := checkTrigger(*def, true)
		inactErr := checkTrigger(*def, false)
		if actErr != nil {
			violations.Fields = append(violations.Fields, *actErr)
		}
		// Both edges of an inverted ONCE window report the same violation;
		// list it once.
		if inactErr != nil && (actErr == nil || *inactErr != *actErr) {
			violations.Fields = append(violations.Fields, *inactErr)
		}
	}
	if def.Timeout < 0 {
		violations.Add("timeoutSeconds", "timeout must not be negative")
	}
	if !def.HasScope() {
		violations.Add("dataPoints", "at least one data point or data source is required")
		violations.Add("dataSources", "at least one data point or data source is required")
	}
	for i, pointID := range def.DataPoints {
		point, err := s.points.GetByID(ctx, pointID)
		if err != nil {
			return err
		}
		if point == nil {
			violations.Add("dataPoints["+strconv.Itoa(i)+"]", fmt.Sprintf("data point %d does not exist", pointID))
		}
	}
	for i, sourceID := range def.DataSources {
		source, err := s.sources.GetByID(ctx, sourceID)
		if err != nil {
			return err
		}
		if source == nil {
			violations.Add("dataSources["+strconv.Itoa(i)+"]", fmt.Sprintf("data source %d does not exist", sourceID))
		}
	}
	for _, role := range def.ToggleRoles {
		exists, err := s.roles.Exists(ctx, role)
		if err != nil {
			return err
		}
		if !exists {
			violations.Add("toggleRoles", fmt.Sprintf("role %q does not exist", role))
		}
	}
	return violations.Err()
}

// checkTrigger probes one schedule edge without keeping the trigger.
func checkTrigger(def maintenance.MaintenanceEvent, activation bool) *maintenance.FieldError {
	_, fieldErr := runtime.BuildTrigger(def, activation)
	return fieldErr
}

func (s *Service) notify(ctx context.Context, action string, def maintenance.MaintenanceEvent) {
	if s.notifier == nil {
		return
	}
	notification := Notification{
		Action: action,
		Event:  def,
		XID:    def.XID,
		Name:   def.Name,
		At:     s.clock.Now(),
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger.Printf("maintenance: notify %s for %s: %v", action, def.XID, err)
	}
}

func (s *Service) writeAudit(ctx context.Context, identity auth.Identity, action string, def maintenance.MaintenanceEvent) {
	if s.auditor == nil {
		return
	}
	payload, err := json.Marshal(def)
	if err != nil {
		payload = nil
	}
	entry := audit.Entry{
		ID:            audit.NewID(),
		Actor:         identity.Subject,
		Roles:         auth.RolesToStrings(identity.Roles),
		Action:        action,
		ResourceType:  "maintenance_event",
		ResourceID:    def.XID,
		Metadata:      payload,
		PayloadDigest: audit.DigestJSON(payload),
		CreatedAt:     s.clock.Now(),
	}
	if err := s.auditor.Log(ctx, entry); err != nil {
		s.logger.Printf("maintenance: audit %s for %s: %v", action, def.XID, err)
	}
}

// GenerateXID creates a fresh external identifier for a definition.
func GenerateXID() string {
	return "ME_" + uuid.NewString()
}
