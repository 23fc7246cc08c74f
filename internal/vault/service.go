// Package vault resolves per-tenant remote store credentials.
//
// Two resolution modes exist: strict (tenant-scoped only, for request paths
// where a fallback credential could leak one tenant's data into another's
// context) and permissive (tenant first, then the environment-level fallback
// used by background jobs against the master store).
package vault

import (
	"context"
	"errors"
	"log/slog"

	"concilia/internal/audit"
	"concilia/internal/platform/metrics"
	id "concilia/pkg/domain"
	dErrors "concilia/pkg/domain-errors"
	"concilia/pkg/platform/sentinel"
	"concilia/pkg/requestcontext"
)

// Store persists credential records with sealed secrets.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	FindByTenantAndRole(ctx context.Context, tenantID id.TenantID, role Role) (*Record, error)
	Delete(ctx context.Context, tenantID id.TenantID, role Role) error
	ListTenants(ctx context.Context) ([]id.TenantID, error)
}

// HandleEvictor evicts cached remote store handles when a tenant's
// credentials change. Implemented by the remote handle cache.
type HandleEvictor interface {
	Evict(url string)
}

// AuditPublisher records fallback credential usage.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Fallback is the environment-level credential used by permissive
// resolution. Zero value means no fallback is configured.
type Fallback struct {
	URL       string
	SecretKey string
}

func (f Fallback) configured() bool { return f.URL != "" && f.SecretKey != "" }

// Service is the credential vault.
type Service struct {
	store    Store
	fallback Fallback
	evictor  HandleEvictor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithHandleEvictor(e HandleEvictor) Option {
	return func(s *Service) { s.evictor = e }
}

func WithAuditPublisher(a AuditPublisher) Option {
	return func(s *Service) { s.auditor = a }
}

// New constructs a vault service. fallback may be the zero value when the
// deployment has no environment-level master credential.
func New(store Store, fallback Fallback, opts ...Option) *Service {
	s := &Service{store: store, fallback: fallback, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveStrict returns the tenant's own credential for a role, or a
// CodeNotConfigured error when absent. It never consults the environment
// fallback: absence is a valid steady state, not a fault.
func (s *Service) ResolveStrict(ctx context.Context, tenantID id.TenantID, role Role) (*Record, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown store role")
	}

	rec, err := s.store.FindByTenantAndRole(ctx, tenantID, role)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.countResolution("none")
			return nil, dErrors.New(dErrors.CodeNotConfigured, "no credential configured for tenant")
		}
		if errors.Is(err, sentinel.ErrDecryptFailed) {
			return nil, dErrors.Wrap(err, dErrors.CodeDecryptionFailure, "credential could not be decrypted")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}

	rec.Source = SourceConfigured
	s.diagnoseKey(rec)
	s.countResolution("tenant")
	return rec, nil
}

// ResolvePermissive tries the tenant's credential first, then the
// environment-level fallback. Only background jobs may use it; the resolved
// path is logged because both paths matter when debugging tenant issues.
func (s *Service) ResolvePermissive(ctx context.Context, tenantID id.TenantID, role Role) (*Record, error) {
	if !tenantID.IsNil() {
		rec, err := s.ResolveStrict(ctx, tenantID, role)
		if err == nil {
			s.logger.Debug("credential resolved from tenant configuration",
				"tenant_id", tenantID.String(), "role", string(role))
			return rec, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeNotConfigured) {
			return nil, err
		}
	}

	if !s.fallback.configured() {
		s.countResolution("none")
		return nil, dErrors.New(dErrors.CodeNotConfigured, "no tenant credential and no environment fallback")
	}

	s.logger.Info("credential resolved from environment fallback",
		"tenant_id", tenantID.String(), "role", string(role))
	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Kind:      audit.KindCredentialFallback,
			TenantID:  tenantID,
			Timestamp: requestcontext.Now(ctx),
			Details:   map[string]any{"role": string(role)},
		})
	}
	rec := &Record{
		TenantID:  tenantID,
		Role:      role,
		URL:       s.fallback.URL,
		SecretKey: s.fallback.SecretKey,
		Source:    SourceEnvironmentFallback,
	}
	s.diagnoseKey(rec)
	s.countResolution("fallback")
	return rec, nil
}

// Configure upserts a tenant credential and evicts any cached handle built
// from the previous secret.
func (s *Service) Configure(ctx context.Context, rec Record) error {
	if rec.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if !rec.Role.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown store role")
	}
	if rec.URL == "" || rec.SecretKey == "" {
		return dErrors.New(dErrors.CodeValidation, "url and secret key are required")
	}

	prev, err := s.store.FindByTenantAndRole(ctx, rec.TenantID, rec.Role)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) && !errors.Is(err, sentinel.ErrDecryptFailed) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}

	if err := s.store.Upsert(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "credential upsert failed")
	}

	if s.evictor != nil {
		if prev != nil {
			s.evictor.Evict(prev.URL)
		}
		s.evictor.Evict(rec.URL)
	}
	return nil
}

// Invalidate evicts cached handles for a tenant's configured stores so a
// reconfigured credential takes effect on the next resolution instead of
// reusing a stale handle.
func (s *Service) Invalidate(ctx context.Context, tenantID id.TenantID) {
	if s.evictor == nil {
		return
	}
	for _, role := range []Role{RoleMaster, RoleClient} {
		rec, err := s.store.FindByTenantAndRole(ctx, tenantID, role)
		if err != nil {
			continue
		}
		s.evictor.Evict(rec.URL)
	}
}

// ListTenants exposes the configured tenant population for the scheduler.
func (s *Service) ListTenants(ctx context.Context) ([]id.TenantID, error) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list tenants failed")
	}
	return tenants, nil
}

// diagnoseKey flags wrong-privilege keys at resolution time. The call is
// still attempted with the key: under row-level protection a write with an
// anon key fails silently, which downstream is indistinguishable from "not
// configured" without this diagnostic.
func (s *Service) diagnoseKey(rec *Record) {
	switch ClassifyKey(rec.SecretKey) {
	case KeyClassElevated:
		// expected
	case KeyClassAnon:
		s.logger.Warn("credential carries anon-class key, writes will likely be rejected",
			"tenant_id", rec.TenantID.String(), "role", string(rec.Role), "source", string(rec.Source))
	case KeyClassUnknown:
		s.logger.Warn("credential key is not a parseable token",
			"tenant_id", rec.TenantID.String(), "role", string(rec.Role), "source", string(rec.Source))
	}
}

func (s *Service) countResolution(path string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CredentialResolutions.WithLabelValues(path).Inc()
}
