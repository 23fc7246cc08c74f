package audit

import (
	"time"

	id "concilia/pkg/domain"
)

// Kind classifies an engine audit event.
type Kind string

const (
	KindCredentialFallback Kind = "credential.fallback_used"
	KindEventProvisioned   Kind = "provisioning.event_processed"
	KindEventFailed        Kind = "provisioning.event_failed"
	KindCheckReconciled    Kind = "compliance.check_reconciled"
	KindLeadUpdated        Kind = "compliance.lead_updated"
)

// Event is one structured audit record. Payload values must already be
// redacted; secret material never enters an event.
type Event struct {
	Kind      Kind           `json:"kind"`
	TenantID  id.TenantID    `json:"tenant_id"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}
