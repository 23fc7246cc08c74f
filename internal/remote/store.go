// Package remote provides handles to the tenant-scoped and master remote
// stores. A handle is built from a resolved credential and cached while the
// (url, secret) pair is unchanged.
package remote

import (
	"context"
	"encoding/json"
	"time"

	id "concilia/pkg/domain"
)

// EventStatus is the lifecycle state of a queued provisioning event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusProcessed EventStatus = "processed"
	EventStatusError     EventStatus = "error"
)

// CheckStatus is the outcome of an external identity verification.
type CheckStatus string

const (
	CheckStatusPending      CheckStatus = "pending"
	CheckStatusApproved     CheckStatus = "approved"
	CheckStatusRejected     CheckStatus = "rejected"
	CheckStatusManualReview CheckStatus = "manual_review"
	CheckStatusError        CheckStatus = "error"
)

// Terminal reports whether the status will never change again, which is the
// precondition for reconciling the check into a lead.
func (s CheckStatus) Terminal() bool {
	switch s {
	case CheckStatusApproved, CheckStatusRejected, CheckStatusManualReview, CheckStatusError:
		return true
	}
	return false
}

// QueueEvent is a row of the remote provisioning queue collection.
type QueueEvent struct {
	ID         id.EventID      `json:"id"`
	EntityType string          `json:"entity_type"`
	Payload    json.RawMessage `json:"payload"`
	Status     EventStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CheckRow is a row of a remote compliance results collection. Optional
// columns stay zero-valued when the store does not carry them; Processed is
// nil when the store has no processed flag at all.
type CheckRow struct {
	ID               id.CheckID  `json:"id"`
	NationalIDSealed string      `json:"cpf_encrypted"`
	NationalID       string      `json:"cpf"`
	Phone            string      `json:"telefone"`
	Status           CheckStatus `json:"status"`
	SubmissionID     string      `json:"check_id"`
	ConsultedAt      time.Time   `json:"data_consulta"`
	Processed        *bool       `json:"processado"`
}

// SubmissionRow is a row of the verification submissions collection, used to
// recover a phone number for checks whose own phone column is absent.
type SubmissionRow struct {
	SubmissionID string `json:"check_id"`
	NationalID   string `json:"cpf"`
	Phone        string `json:"telefone"`
}

// NewAccount is the payload for creating a downstream reseller account.
type NewAccount struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	NationalID string `json:"cpf"`
	Phone      string `json:"telefone"`
	PlanCode   string `json:"plan_code,omitempty"`
}

// AccountCredential is a tenant connection credential copied into a newly
// created account's scope.
type AccountCredential struct {
	URL       string `json:"url"`
	SecretKey string `json:"secret_key"`
}

// Capabilities describes which optional columns the store's compliance
// collection carries. Probed once per handle and cached, replacing
// error-text sniffing with an explicit contract.
type Capabilities struct {
	HasProcessedFlag bool
	HasPhoneColumn   bool
}

// Store is a handle to one remote store. All calls run under the handle's
// bounded per-call timeout; a slow or down store must not stall other
// tenants beyond that timeout.
type Store interface {
	// Provisioning queue.
	ListPendingEvents(ctx context.Context, entityType string, limit int) ([]QueueEvent, error)
	MarkEvent(ctx context.Context, eventID id.EventID, status EventStatus) error

	// Downstream accounts. CreateAccount returns sentinel.ErrConflict when
	// an account with the same uniqueness key already exists.
	CreateAccount(ctx context.Context, acc NewAccount) (string, error)
	UpsertAccountCredential(ctx context.Context, accountRef string, cred AccountCredential) error

	// Compliance results. ListUnprocessedChecks is the full query shape and
	// returns sentinel.ErrSchemaMismatch when the store lacks the optional
	// columns; ListChecksMinimal selects only guaranteed fields.
	ListUnprocessedChecks(ctx context.Context, limit int) ([]CheckRow, error)
	ListChecksMinimal(ctx context.Context, limit int) ([]CheckRow, error)
	ListTerminalChecksSince(ctx context.Context, since time.Time, limit int) ([]CheckRow, error)
	MarkCheckProcessed(ctx context.Context, checkID id.CheckID) error

	FindSubmissionByNationalID(ctx context.Context, nationalID id.NationalID) (*SubmissionRow, error)

	Capabilities() Capabilities
}
