// Package scheduler drives the poll loop: one timer per process, iterating
// every configured tenant and invoking the provisioning processor and the
// compliance reconciler.
//
// This design assumes a single active scheduler instance per tenant
// population. Safety relies on the in-process running guard plus per-record
// idempotency; running two replicas against the same tenants would need an
// external lease, which this engine deliberately does not implement.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"concilia/internal/platform/metrics"
	"concilia/internal/reconcile"
	"concilia/internal/remote"
	"concilia/internal/vault"
	id "concilia/pkg/domain"
	dErrors "concilia/pkg/domain-errors"
	"concilia/pkg/requestcontext"
)

// CredentialVault is the slice of the vault the scheduler needs.
type CredentialVault interface {
	ResolveStrict(ctx context.Context, tenantID id.TenantID, role vault.Role) (*vault.Record, error)
	ResolvePermissive(ctx context.Context, tenantID id.TenantID, role vault.Role) (*vault.Record, error)
	ListTenants(ctx context.Context) ([]id.TenantID, error)
}

// HandleProvider turns resolved credentials into store handles.
type HandleProvider interface {
	Handle(ctx context.Context, url, secretKey string) (remote.Store, error)
}

// EventProcessor drains one tenant's provisioning queue.
type EventProcessor interface {
	Process(ctx context.Context, tenantID id.TenantID, store remote.Store) (int, error)
}

// Reconciler runs the two-pass compliance reconciliation for one tenant.
type Reconciler interface {
	Reconcile(ctx context.Context, tenantID id.TenantID, clientStore, masterStore remote.Store) (reconcile.Result, error)
}

// Scheduler owns the timer, the running guard, and the persisted state
// document. All mutable poller state lives here so multiple schedulers can
// coexist in tests without interference.
type Scheduler struct {
	vault      CredentialVault
	handles    HandleProvider
	processor  EventProcessor
	reconciler Reconciler
	state      StateStore

	interval     time.Duration
	initialDelay time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics

	running atomic.Bool

	mu     sync.Mutex
	ticker *time.Ticker
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.initialDelay = d
		}
	}
}

func New(cv CredentialVault, handles HandleProvider, processor EventProcessor, reconciler Reconciler, state StateStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		vault:        cv,
		handles:      handles,
		processor:    processor,
		reconciler:   reconciler,
		state:        state,
		interval:     30 * time.Second,
		initialDelay: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the repeating timer and schedules one immediate first run after
// the initial delay. Idempotent: a second Start while armed is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})

	go s.loop(ctx, s.ticker.C, s.done)
	s.logger.Info("poll scheduler started",
		"interval", s.interval.String(), "initial_delay", s.initialDelay.String())
}

// Stop disarms the timer. An in-flight tick finishes naturally; its guard
// is simply not re-armed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	ticker, cancel, done := s.ticker, s.cancel, s.done
	s.ticker, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	cancel()
	<-done
	s.logger.Info("poll scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, ticks <-chan time.Time, done chan struct{}) {
	defer close(done)

	initial := time.NewTimer(s.initialDelay)
	defer initial.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initial.C:
			s.tick(ctx)
		case <-ticks:
			s.tick(ctx)
		}
	}
}

// tick runs one full pass over all tenants. Overlapping runs are skipped
// entirely, never queued.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("tick skipped, prior cycle still running")
		if s.metrics != nil {
			s.metrics.TicksSkipped.Inc()
		}
		return
	}
	defer s.running.Store(false)

	if s.metrics != nil {
		s.metrics.TicksRun.Inc()
	}

	now := time.Now()
	ctx = requestcontext.WithTime(ctx, now)
	ctx = requestcontext.WithCycleID(ctx, uuid.NewString())

	tenants, err := s.vault.ListTenants(ctx)
	if err != nil {
		s.logger.Error("listing tenants failed, tick aborted", "error", err)
		s.saveState(now, 0, 1, err)
		return
	}

	var processed, failures int64
	var lastErr error
	for _, tenantID := range tenants {
		n, err := s.runTenant(ctx, tenantID)
		processed += int64(n)
		if err != nil {
			// one tenant's outage never prevents the others from running
			failures++
			lastErr = err
			s.logger.Warn("tenant cycle failed",
				"tenant_id", tenantID.String(), "error", err)
		}
	}

	s.saveState(now, processed, failures, lastErr)
}

// Trigger runs the per-tenant logic once, outside the timer, sharing the
// running guard so it can never race a scheduled tick. Returns a conflict
// error when a cycle is already in flight.
func (s *Scheduler) Trigger(ctx context.Context, tenantID id.TenantID) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, dErrors.New(dErrors.CodeConflict, "a poll cycle is already running")
	}
	defer s.running.Store(false)

	ctx = requestcontext.WithTime(ctx, time.Now())
	ctx = requestcontext.WithCycleID(ctx, uuid.NewString())
	return s.runTenant(ctx, tenantID)
}

// runTenant resolves the tenant's store handles and runs both processors.
// Tenants are processed sequentially within a tick; remote calls carry their
// own bounded timeouts so a slow store cannot stall the loop indefinitely.
func (s *Scheduler) runTenant(ctx context.Context, tenantID id.TenantID) (int, error) {
	clientStore := s.resolveHandle(ctx, tenantID, vault.RoleClient, false)
	masterStore := s.resolveHandle(ctx, tenantID, vault.RoleMaster, true)
	if clientStore == nil && masterStore == nil {
		// no credential yet is a valid steady state
		return 0, nil
	}

	total := 0
	var firstErr error

	if clientStore != nil {
		n, err := s.processor.Process(ctx, tenantID, clientStore)
		total += n
		if err != nil {
			firstErr = err
		}
	}

	res, err := s.reconciler.Reconcile(ctx, tenantID, clientStore, masterStore)
	total += res.Processed
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return total, firstErr
}

// resolveHandle turns a credential into a store handle, or nil when the
// tenant has none (and, for the master role, no environment fallback).
func (s *Scheduler) resolveHandle(ctx context.Context, tenantID id.TenantID, role vault.Role, permissive bool) remote.Store {
	var (
		rec *vault.Record
		err error
	)
	if permissive {
		rec, err = s.vault.ResolvePermissive(ctx, tenantID, role)
	} else {
		rec, err = s.vault.ResolveStrict(ctx, tenantID, role)
	}
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotConfigured) {
			s.logger.Warn("credential resolution failed",
				"tenant_id", tenantID.String(), "role", string(role), "error", err)
		}
		return nil
	}

	handle, err := s.handles.Handle(ctx, rec.URL, rec.SecretKey)
	if err != nil {
		s.logger.Warn("remote handle build failed",
			"tenant_id", tenantID.String(), "role", string(role), "error", err)
		return nil
	}
	return handle
}

func (s *Scheduler) saveState(polledAt time.Time, processed, failures int64, lastErr error) {
	prev, err := s.state.Load()
	if err != nil {
		s.logger.Warn("state load failed", "error", err)
	}
	next := State{
		LastPolledAt:   polledAt,
		TotalProcessed: prev.TotalProcessed + processed,
		TotalErrors:    prev.TotalErrors + failures,
		LastError:      prev.LastError,
	}
	if lastErr != nil {
		next.LastError = lastErr.Error()
	}
	if err := s.state.Save(next); err != nil {
		s.logger.Warn("state save failed", "error", err)
	}
}

// Status returns the persisted state document for the operational surface.
func (s *Scheduler) Status() (State, error) {
	return s.state.Load()
}

// Running reports whether a cycle is currently in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}
