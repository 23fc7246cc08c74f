// Package leads owns the local lead records whose compliance fields the
// sync engine mutates. Every other field of a lead belongs to unrelated
// flows and is never touched here.
package leads

import (
	"time"

	id "concilia/pkg/domain"
)

// Lead is the local record matched against remote compliance checks.
type Lead struct {
	ID         id.LeadID
	TenantID   id.TenantID
	Name       string
	Phone      id.Phone
	NationalID id.NationalID
	// SubmissionID links the lead to the verification submission that was
	// opened for it, when known.
	SubmissionID string

	ComplianceStatus string
	PipelineStage    string
	LinkedCheckID    *id.CheckID
	StageLabelID     string
	CheckedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComplianceUpdate is the only mutation the engine applies to a lead.
type ComplianceUpdate struct {
	Status        string
	PipelineStage string
	CheckRef      id.CheckRef
	StageLabelID  string
	CheckedAt     time.Time
}

// StageForStatus maps a terminal check status onto the pipeline stage label
// the lead moves to.
func StageForStatus(status string) string {
	switch status {
	case "approved":
		return "compliance_approved"
	case "rejected":
		return "compliance_rejected"
	case "manual_review":
		return "compliance_review"
	default:
		return "compliance_error"
	}
}

// StageLabeler resolves the presentation label id attached to a pipeline
// stage, when the tenant has one configured. A nil-equivalent empty return
// means no label is attached.
type StageLabeler interface {
	ResolveStageLabel(statusKey string) string
}

// StaticStageLabels is a config-backed StageLabeler.
type StaticStageLabels map[string]string

func (m StaticStageLabels) ResolveStageLabel(statusKey string) string {
	return m[statusKey]
}
