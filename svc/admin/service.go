package admin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/tenantdb/pkg/lifecycle"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/metrics"
	"github.com/dmitrymomot/tenantdb/pkg/relation"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Service keeps the record store and the live router state in step.
type Service struct {
	store     tenant.Store
	lifecycle *lifecycle.Manager
	relations *relation.Resolver
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics counts relation changes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the administrative service.
func NewService(store tenant.Store, lc *lifecycle.Manager, relations *relation.Resolver, opts ...Option) *Service {
	s := &Service{
		store:     store,
		lifecycle: lc,
		relations: relations,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("admin"))
	return s
}

// AddTenant stores rec as active and provisions it. If provisioning fails
// the record is removed again and the error returned. A record flagged
// default becomes the dispatch default once it is provisioned.
func (s *Service) AddTenant(ctx context.Context, rec tenant.Record) (tenant.Record, error) {
	rec.Active = true
	if err := rec.Validate(); err != nil {
		return tenant.Record{}, err
	}

	exists, err := s.store.Exists(ctx, rec.ID)
	if err != nil {
		return tenant.Record{}, err
	}
	if exists {
		return tenant.Record{}, tenant.ErrAlreadyExists
	}
	if err := s.checkDefault(ctx, rec); err != nil {
		return tenant.Record{}, err
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		return tenant.Record{}, err
	}

	if err := s.lifecycle.Provision(ctx, rec); err != nil {
		if _, delErr := s.relations.RemoveTenant(ctx, rec.ID); delErr != nil {
			return tenant.Record{}, errors.Join(err, ErrRollbackFailed, delErr)
		}
		return tenant.Record{}, err
	}
	if rec.Default {
		s.lifecycle.ElectDefault(rec.ID)
	}

	s.logger.InfoContext(ctx, "tenant added", logger.TenantID(rec.ID), logger.Kind(rec.Kind.String()))
	return s.store.Get(ctx, rec.ID)
}

// RemoveTenant decommissions the tenant and deletes its record together with
// every relation that references it, so no relation resolves to it afterwards.
func (s *Service) RemoveTenant(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if err := s.decommission(ctx, id); err != nil {
		return err
	}

	removed, err := s.relations.RemoveTenant(ctx, id)
	for range removed {
		s.metrics.RelationChanged("remove")
	}
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "tenant removed", logger.TenantID(id), logger.Count(len(removed)))
	return nil
}

// SetTenantActive flips the active flag. Activating provisions the tenant;
// if that fails the flag is reverted. Deactivating decommissions it.
func (s *Service) SetTenantActive(ctx context.Context, id string, active bool) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}

	if !active {
		return s.decommission(ctx, id)
	}

	rec.Active = true
	if err := s.lifecycle.Provision(ctx, rec); err != nil {
		if revertErr := s.store.SetActive(ctx, id, false); revertErr != nil {
			return errors.Join(err, ErrRollbackFailed, revertErr)
		}
		return err
	}
	return nil
}

// UpdateTenant replaces the record. A provisioned tenant is decommissioned
// first; an active record is then provisioned from the new parameters. If
// that fails the previous record is written back and, if it was live,
// provisioned again. A record flagged default becomes the dispatch default
// once it is provisioned.
func (s *Service) UpdateTenant(ctx context.Context, rec tenant.Record) (tenant.Record, error) {
	if err := rec.Validate(); err != nil {
		return tenant.Record{}, err
	}
	prev, err := s.store.Get(ctx, rec.ID)
	if err != nil {
		return tenant.Record{}, err
	}
	if err := s.checkDefault(ctx, rec); err != nil {
		return tenant.Record{}, err
	}
	if err := s.store.Update(ctx, rec); err != nil {
		return tenant.Record{}, err
	}

	wasLive := s.lifecycle.State(rec.ID) == lifecycle.StateActive
	if wasLive {
		if err := s.decommission(ctx, rec.ID); err != nil {
			return tenant.Record{}, s.restore(ctx, prev, false, err)
		}
	}
	if rec.Active {
		if err := s.lifecycle.Provision(ctx, rec); err != nil {
			return tenant.Record{}, s.restore(ctx, prev, wasLive, err)
		}
		if rec.Default {
			s.lifecycle.ElectDefault(rec.ID)
		}
	}
	return s.store.Get(ctx, rec.ID)
}

// restore writes prev back after a failed update and, when reprovision is
// set, provisions it again. It returns cause, joined with ErrRollbackFailed
// and the rollback errors if restoring failed too.
func (s *Service) restore(ctx context.Context, prev tenant.Record, reprovision bool, cause error) error {
	var errs []error
	if err := s.store.Update(ctx, prev); err != nil {
		errs = append(errs, err)
	}
	if reprovision && prev.Active && len(errs) == 0 {
		if err := s.lifecycle.Provision(ctx, prev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.logger.ErrorContext(ctx, "tenant update rollback failed",
			logger.TenantID(prev.ID),
			logger.Error(errors.Join(errs...)),
		)
		return errors.Join(append([]error{cause, ErrRollbackFailed}, errs...)...)
	}

	s.logger.WarnContext(ctx, "tenant update rolled back", logger.TenantID(prev.ID), logger.Error(cause))
	return cause
}

// checkDefault refuses a second active default tenant.
func (s *Service) checkDefault(ctx context.Context, rec tenant.Record) error {
	if !rec.Default || !rec.Active {
		return nil
	}
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}
	records := []tenant.Record{rec}
	for _, r := range active {
		if r.ID != rec.ID {
			records = append(records, r)
		}
	}
	_, err = tenant.ValidateDefaults(records)
	return err
}

// GetTenant returns one record.
func (s *Service) GetTenant(ctx context.Context, id string) (tenant.Record, error) {
	return s.store.Get(ctx, id)
}

// ListTenants returns records matching f.
func (s *Service) ListTenants(ctx context.Context, f tenant.Filter) ([]tenant.Record, error) {
	return s.store.Find(ctx, f)
}

// AddRelation stores and indexes a relation.
func (s *Service) AddRelation(ctx context.Context, rel tenant.Relation) (tenant.Relation, error) {
	out, err := s.relations.AddRelation(ctx, rel)
	if err != nil {
		return tenant.Relation{}, err
	}
	s.metrics.RelationChanged("add")
	return out, nil
}

// RemoveRelation deletes a relation by its surrogate id.
func (s *Service) RemoveRelation(ctx context.Context, id int64) error {
	if err := s.relations.RemoveRelation(ctx, id); err != nil {
		return err
	}
	s.metrics.RelationChanged("remove")
	return nil
}

// UpdateRelation replaces a relation; the old key stops resolving at the moment the new one starts.
func (s *Service) UpdateRelation(ctx context.Context, rel tenant.Relation) (tenant.Relation, error) {
	if err := s.relations.UpdateRelation(ctx, rel); err != nil {
		return tenant.Relation{}, err
	}
	s.metrics.RelationChanged("update")
	return s.store.GetRelation(ctx, rel.ID)
}

// ListRelations returns relations matching f.
func (s *Service) ListRelations(ctx context.Context, f tenant.RelationFilter) ([]tenant.Relation, error) {
	return s.store.FindRelations(ctx, f)
}

// Reload re-provisions every active record and rebuilds the relation index.
// Tenants that fail are reported in the joined error; the rest keep serving.
func (s *Service) Reload(ctx context.Context) error {
	return s.lifecycle.Reload(ctx)
}

// ProvisionPending provisions active records that are not registered yet.
func (s *Service) ProvisionPending(ctx context.Context) (int, error) {
	return s.lifecycle.ProvisionPending(ctx)
}

// Stats returns the live state of every registered tenant.
func (s *Service) Stats() map[string]lifecycle.TenantStats {
	return s.lifecycle.Stats()
}

// decommission tolerates tenants that were never provisioned.
func (s *Service) decommission(ctx context.Context, id string) error {
	err := s.lifecycle.Decommission(ctx, id)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil
	}
	return err
}
