// Package provision drains the per-tenant queue of provisioning events and
// performs the downstream reseller account creation idempotently.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"concilia/internal/audit"
	"concilia/internal/platform/metrics"
	"concilia/internal/remote"
	"concilia/internal/vault"
	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
	"concilia/pkg/requestcontext"
)

// EntityTypeReseller is the queue entity type this processor consumes.
const EntityTypeReseller = "reseller_account"

// DefaultBatchSize bounds one drain so a single cycle stays fast.
const DefaultBatchSize = 50

// CredentialResolver supplies the tenant credential propagated into newly
// created accounts. Strict resolution only: propagation must never hand one
// tenant's credential to another tenant's account.
type CredentialResolver interface {
	ResolveStrict(ctx context.Context, tenantID id.TenantID, role vault.Role) (*vault.Record, error)
}

// AuditPublisher records processed and failed events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// accountPayload is the decoded shape of a provisioning event payload.
type accountPayload struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	NationalID string `json:"cpf"`
	Phone      string `json:"telefone"`
	PlanCode   string `json:"plan_code"`
}

// Processor consumes provisioning events exactly once per attempt outcome.
//
// Failed events are marked error and are NOT retried by this component; an
// operator or a separate remediation path requeues them. Automatic retry
// here would let a systemic failure loop silently.
type Processor struct {
	resolver  CredentialResolver
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditor   AuditPublisher
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func WithAuditPublisher(a AuditPublisher) Option {
	return func(p *Processor) { p.auditor = a }
}

func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func New(resolver CredentialResolver, opts ...Option) *Processor {
	p := &Processor{
		resolver:  resolver,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process drains one batch of pending events for a tenant. One malformed or
// failing event never stops the batch; the returned count is the number of
// events that reached the processed status.
func (p *Processor) Process(ctx context.Context, tenantID id.TenantID, store remote.Store) (int, error) {
	events, err := store.ListPendingEvents(ctx, EntityTypeReseller, p.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, event := range events {
		if err := p.processOne(ctx, tenantID, store, event); err != nil {
			p.logger.Warn("provisioning event failed",
				"tenant_id", tenantID.String(), "event_id", int64(event.ID), "error", err)
			p.markEvent(ctx, tenantID, store, event.ID, remote.EventStatusError)
			continue
		}
		if p.markEvent(ctx, tenantID, store, event.ID, remote.EventStatusProcessed) {
			processed++
		}
	}
	return processed, nil
}

func (p *Processor) processOne(ctx context.Context, tenantID id.TenantID, store remote.Store, event remote.QueueEvent) error {
	var payload accountPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return errors.Join(errors.New("malformed payload"), err)
	}
	if payload.Email == "" && payload.NationalID == "" {
		return errors.New("payload has no uniqueness key (email or national id)")
	}

	account := remote.NewAccount{
		Name:       payload.Name,
		Email:      payload.Email,
		NationalID: id.NormalizeNationalID(payload.NationalID).String(),
		Phone:      id.NormalizePhone(payload.Phone).String(),
		PlanCode:   payload.PlanCode,
	}

	accountRef, err := store.CreateAccount(ctx, account)
	switch {
	case err == nil:
		p.propagateCredential(ctx, tenantID, store, accountRef)
	case errors.Is(err, sentinel.ErrConflict):
		// account already exists by uniqueness key: success, no duplicate
		p.logger.Debug("downstream account already exists",
			"tenant_id", tenantID.String(), "event_id", int64(event.ID))
	default:
		return err
	}
	return nil
}

// propagateCredential copies the tenant's client-store credential into the
// new account's scope. Best-effort: a failure here is logged and never fails
// the event.
func (p *Processor) propagateCredential(ctx context.Context, tenantID id.TenantID, store remote.Store, accountRef string) {
	rec, err := p.resolver.ResolveStrict(ctx, tenantID, vault.RoleClient)
	if err != nil {
		p.logger.Debug("no tenant credential to propagate",
			"tenant_id", tenantID.String(), "error", err)
		return
	}
	cred := remote.AccountCredential{URL: rec.URL, SecretKey: rec.SecretKey}
	if err := store.UpsertAccountCredential(ctx, accountRef, cred); err != nil {
		p.logger.Warn("credential propagation failed",
			"tenant_id", tenantID.String(), "account_ref", accountRef, "error", err)
	}
}

func (p *Processor) markEvent(ctx context.Context, tenantID id.TenantID, store remote.Store, eventID id.EventID, status remote.EventStatus) bool {
	if err := store.MarkEvent(ctx, eventID, status); err != nil {
		p.logger.Warn("event status transition failed",
			"tenant_id", tenantID.String(), "event_id", int64(eventID),
			"status", string(status), "error", err)
		return false
	}
	p.record(ctx, tenantID, eventID, status)
	return true
}

func (p *Processor) record(ctx context.Context, tenantID id.TenantID, eventID id.EventID, status remote.EventStatus) {
	if p.metrics != nil {
		if status == remote.EventStatusProcessed {
			p.metrics.EventsProcessed.Inc()
		} else {
			p.metrics.EventsFailed.Inc()
		}
	}
	if p.auditor != nil {
		kind := audit.KindEventProvisioned
		if status == remote.EventStatusError {
			kind = audit.KindEventFailed
		}
		p.auditor.Emit(ctx, audit.Event{
			Kind:      kind,
			TenantID:  tenantID,
			Timestamp: requestcontext.Now(ctx),
			Details:   map[string]any{"event_id": int64(eventID)},
		})
	}
}
