// Package reconcile detects compliance checks that reached a terminal
// status in a remote store and propagates their effect into local lead
// records exactly once.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"concilia/internal/audit"
	"concilia/internal/leads"
	"concilia/internal/platform/metrics"
	"concilia/internal/processedset"
	"concilia/internal/remote"
	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
	"concilia/pkg/requestcontext"
)

// DefaultBatchSize bounds one pass over a store.
const DefaultBatchSize = 50

// DefaultMasterWindow is how far back the master pass looks.
const DefaultMasterWindow = 24 * time.Hour

// LeadStore is the slice of the local lead store the reconciler mutates.
type LeadStore interface {
	LeadFinder
	UpdateCompliance(ctx context.Context, leadID id.LeadID, update leads.ComplianceUpdate) error
}

// Decryptor opens sealed subject ids. Implemented by the vault sealer.
type Decryptor interface {
	Open(sealed string) (string, error)
}

// AuditPublisher records reconciliation outcomes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Result summarizes one reconcile run.
type Result struct {
	Processed int
	Skipped   int
}

// Reconciler runs the two-pass reconciliation for one tenant.
type Reconciler struct {
	leads        LeadStore
	processed    processedset.Set
	labeler      leads.StageLabeler
	decryptor    Decryptor
	matchers     []Matcher
	batchSize    int
	masterWindow time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	auditor      AuditPublisher
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithAuditPublisher(a AuditPublisher) Option {
	return func(r *Reconciler) { r.auditor = a }
}

func WithBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithMasterWindow(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.masterWindow = d
		}
	}
}

func WithStageLabeler(l leads.StageLabeler) Option {
	return func(r *Reconciler) { r.labeler = l }
}

// WithMatchers overrides the default strategy chain. Tests use it to pin
// chain order.
func WithMatchers(matchers []Matcher) Option {
	return func(r *Reconciler) { r.matchers = matchers }
}

func New(leadStore LeadStore, processed processedset.Set, decryptor Decryptor, opts ...Option) *Reconciler {
	r := &Reconciler{
		leads:        leadStore,
		processed:    processed,
		decryptor:    decryptor,
		labeler:      leads.StaticStageLabels{},
		batchSize:    DefaultBatchSize,
		masterWindow: DefaultMasterWindow,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.matchers == nil {
		r.matchers = defaultMatchers(leadStore, r.logger)
	}
	return r
}

// Reconcile runs Pass A against the tenant's client store and, only when
// Pass A processed zero records, Pass B against the master store. Either
// store handle may be nil (not configured); both nil is a no-op. The order
// preserves precedence for the richer phone-direct tenant path.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID id.TenantID, clientStore, masterStore remote.Store) (Result, error) {
	var total Result

	if clientStore != nil {
		res, err := r.reconcileClient(ctx, tenantID, clientStore)
		total.Processed += res.Processed
		total.Skipped += res.Skipped
		if err != nil {
			return total, err
		}
	}

	if total.Processed == 0 && masterStore != nil {
		res, err := r.reconcileMaster(ctx, tenantID, masterStore)
		total.Processed += res.Processed
		total.Skipped += res.Skipped
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// reconcileClient is Pass A: the full query first, then the minimal shape
// when the store lacks the optional columns.
func (r *Reconciler) reconcileClient(ctx context.Context, tenantID id.TenantID, store remote.Store) (Result, error) {
	rows, err := store.ListUnprocessedChecks(ctx, r.batchSize)
	if err == nil {
		return r.processRows(ctx, tenantID, store, rows, "client")
	}
	if !errors.Is(err, sentinel.ErrSchemaMismatch) {
		return Result{}, err
	}

	// Minimal fallback: guaranteed fields only. Already-handled ids are
	// filtered through the local processed set, and phones are best-effort
	// recovered from the submissions collection during matching.
	r.logger.Debug("full query rejected, using minimal shape",
		"tenant_id", tenantID.String())
	rows, err = store.ListChecksMinimal(ctx, r.batchSize)
	if err != nil {
		return Result{}, err
	}
	rows, err = r.filterHandled(ctx, rows)
	if err != nil {
		return Result{}, err
	}
	return r.processRows(ctx, tenantID, store, rows, "client_minimal")
}

// reconcileMaster is Pass B: terminal checks from the shared registry over
// the trailing window.
func (r *Reconciler) reconcileMaster(ctx context.Context, tenantID id.TenantID, store remote.Store) (Result, error) {
	since := requestcontext.Now(ctx).Add(-r.masterWindow)
	rows, err := store.ListTerminalChecksSince(ctx, since, r.batchSize)
	if err != nil {
		return Result{}, err
	}
	rows, err = r.filterHandled(ctx, rows)
	if err != nil {
		return Result{}, err
	}
	return r.processRows(ctx, tenantID, store, rows, "master")
}

// filterHandled drops rows the store itself marks processed and rows the
// local processed set already recorded.
func (r *Reconciler) filterHandled(ctx context.Context, rows []remote.CheckRow) ([]remote.CheckRow, error) {
	out := rows[:0]
	for _, row := range rows {
		if row.Processed != nil && *row.Processed {
			continue
		}
		handled, err := r.processed.Contains(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		if handled {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *Reconciler) processRows(ctx context.Context, tenantID id.TenantID, store remote.Store, rows []remote.CheckRow, source string) (Result, error) {
	var res Result
	for _, row := range rows {
		if !row.Status.Terminal() {
			continue
		}
		check, err := r.resolveCheck(row)
		if err != nil {
			// decryption failures skip the record without marking it, so it
			// is retried once the underlying cause is fixed
			r.logger.Error("check subject id could not be decrypted",
				"tenant_id", tenantID.String(), "check_id", int64(row.ID), "error", err)
			res.Skipped++
			continue
		}

		if check.Phone.IsEmpty() && check.NationalID.IsEmpty() && row.SubmissionID == "" {
			// nothing to match on; mark processed to avoid refetching forever
			r.logger.Info("check has no natural keys, marking processed",
				"tenant_id", tenantID.String(), "check_id", int64(row.ID))
			if r.markProcessed(ctx, store, row.ID) {
				res.Processed++
			}
			continue
		}

		matched, matcherName, err := r.match(ctx, store, check)
		if err != nil {
			r.logger.Warn("matching failed, record will be retried",
				"tenant_id", tenantID.String(), "check_id", int64(row.ID), "error", err)
			res.Skipped++
			continue
		}

		if len(matched) == 0 {
			// forward progress: unmatched checks are still marked processed
			r.logger.Info("no lead matches check",
				"tenant_id", tenantID.String(), "check_id", int64(row.ID))
			if r.markProcessed(ctx, store, row.ID) {
				res.Processed++
			}
			continue
		}

		if r.updateLeads(ctx, tenantID, check, matched, matcherName) {
			if r.markProcessed(ctx, store, row.ID) {
				res.Processed++
				if r.metrics != nil {
					r.metrics.ChecksReconciled.WithLabelValues(source).Inc()
				}
				if r.auditor != nil {
					r.auditor.Emit(ctx, audit.Event{
						Kind:      audit.KindCheckReconciled,
						TenantID:  tenantID,
						Timestamp: requestcontext.Now(ctx),
						Details: map[string]any{
							"check_id": int64(row.ID),
							"matcher":  matcherName,
							"leads":    len(matched),
						},
					})
				}
			}
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

// resolveCheck normalizes the row's natural keys, decrypting the subject id
// when it arrived sealed.
func (r *Reconciler) resolveCheck(row remote.CheckRow) (ResolvedCheck, error) {
	check := ResolvedCheck{Row: row, Phone: id.NormalizePhone(row.Phone)}

	switch {
	case row.NationalID != "":
		check.NationalID = id.NormalizeNationalID(row.NationalID)
	case row.NationalIDSealed != "":
		plain, err := r.decryptor.Open(row.NationalIDSealed)
		if err != nil {
			return ResolvedCheck{}, err
		}
		check.NationalID = id.NormalizeNationalID(plain)
	}

	if row.ID.IsZero() {
		check.Ref = id.SyntheticRef(row.ID)
	} else {
		check.Ref = id.GenuineRef(row.ID)
	}
	return check, nil
}

// match walks the strategy chain until one matcher returns candidates.
func (r *Reconciler) match(ctx context.Context, store remote.Store, check ResolvedCheck) ([]leads.Lead, string, error) {
	for _, matcher := range r.matchers {
		candidates, err := matcher.Match(ctx, store, check)
		if err != nil {
			return nil, matcher.Name(), err
		}
		if len(candidates) > 0 {
			return candidates, matcher.Name(), nil
		}
	}
	return nil, "", nil
}

// updateLeads mutates every matched lead. Returns true only if every update
// succeeded, which is the precondition for marking the check processed.
func (r *Reconciler) updateLeads(ctx context.Context, tenantID id.TenantID, check ResolvedCheck, matched []leads.Lead, matcherName string) bool {
	status := string(check.Row.Status)
	update := leads.ComplianceUpdate{
		Status:        status,
		PipelineStage: leads.StageForStatus(status),
		CheckRef:      check.Ref,
		StageLabelID:  r.labeler.ResolveStageLabel(status),
		CheckedAt:     requestcontext.Now(ctx),
	}

	allOK := true
	for _, lead := range matched {
		if err := r.leads.UpdateCompliance(ctx, lead.ID, update); err != nil {
			r.logger.Warn("lead compliance update failed",
				"tenant_id", tenantID.String(), "lead_id", lead.ID.String(),
				"check_id", int64(check.Row.ID), "error", err)
			allOK = false
			continue
		}
		if r.metrics != nil {
			r.metrics.LeadsUpdated.Inc()
		}
		if r.auditor != nil {
			r.auditor.Emit(ctx, audit.Event{
				Kind:      audit.KindLeadUpdated,
				TenantID:  tenantID,
				Timestamp: update.CheckedAt,
				Details: map[string]any{
					"lead_id": lead.ID.String(),
					"status":  status,
					"matcher": matcherName,
				},
			})
		}
	}
	return allOK
}

// markProcessed prefers the store's native flag; stores without one fall
// back to the local processed set, persisted immediately.
func (r *Reconciler) markProcessed(ctx context.Context, store remote.Store, checkID id.CheckID) bool {
	if store.Capabilities().HasProcessedFlag {
		if err := store.MarkCheckProcessed(ctx, checkID); err == nil {
			return true
		} else if !errors.Is(err, sentinel.ErrSchemaMismatch) {
			r.logger.Warn("marking check processed failed", "check_id", int64(checkID), "error", err)
			return false
		}
	}
	if err := r.processed.Add(ctx, checkID); err != nil {
		r.logger.Warn("processed set append failed", "check_id", int64(checkID), "error", err)
		return false
	}
	return true
}
