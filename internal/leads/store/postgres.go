package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"concilia/internal/leads"
	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
)

// Postgres persists leads locally. Phone matching uses the trailing nine
// digits so stored country/area-code variance does not defeat the match.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const leadColumns = `
	id, tenant_id, name, phone_normalized, national_id_normalized,
	submission_id, compliance_status, pipeline_stage, linked_check_id,
	stage_label_id, checked_at, created_at, updated_at`

func (s *Postgres) Save(ctx context.Context, lead leads.Lead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone_normalized = EXCLUDED.phone_normalized,
			national_id_normalized = EXCLUDED.national_id_normalized,
			submission_id = EXCLUDED.submission_id,
			updated_at = EXCLUDED.updated_at`,
		lead.ID.String(), lead.TenantID.String(), lead.Name,
		lead.Phone.String(), lead.NationalID.String(), nullString(lead.SubmissionID),
		nullString(lead.ComplianceStatus), nullString(lead.PipelineStage),
		nullCheckID(lead.LinkedCheckID), nullString(lead.StageLabelID),
		lead.CheckedAt, lead.CreatedAt, lead.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, leadID id.LeadID) (*leads.Lead, error) {
	rows, err := s.query(ctx, `WHERE id = $1`, leadID.String())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Postgres) FindByNationalID(ctx context.Context, nationalID id.NationalID) ([]leads.Lead, error) {
	if nationalID.IsEmpty() {
		return nil, nil
	}
	return s.query(ctx, `WHERE national_id_normalized = $1`, nationalID.String())
}

func (s *Postgres) FindBySubmissionID(ctx context.Context, submissionID string) ([]leads.Lead, error) {
	if submissionID == "" {
		return nil, nil
	}
	return s.query(ctx, `WHERE submission_id = $1`, submissionID)
}

func (s *Postgres) FindByPhone(ctx context.Context, phone id.Phone) ([]leads.Lead, error) {
	if phone.IsEmpty() {
		return nil, nil
	}
	return s.query(ctx, `WHERE right(phone_normalized, 9) = $1`, phone.Last9())
}

func (s *Postgres) UpdateCompliance(ctx context.Context, leadID id.LeadID, update leads.ComplianceUpdate) error {
	var linked any
	if update.CheckRef.Linkable() {
		linked = int64(update.CheckRef.ID)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE leads SET
			compliance_status = $2,
			pipeline_stage = $3,
			stage_label_id = NULLIF($4, ''),
			linked_check_id = COALESCE($5, linked_check_id),
			checked_at = $6,
			updated_at = $6
		WHERE id = $1`,
		leadID.String(), update.Status, update.PipelineStage,
		update.StageLabelID, linked, update.CheckedAt)
	if err != nil {
		return fmt.Errorf("update lead compliance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lead compliance: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) query(ctx context.Context, where string, args ...any) ([]leads.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var out []leads.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

func scanLead(rows *sql.Rows) (leads.Lead, error) {
	var (
		lead       leads.Lead
		rawID      string
		rawTenant  string
		phone      string
		nationalID string
		submission sql.NullString
		status     sql.NullString
		stage      sql.NullString
		linked     sql.NullInt64
		label      sql.NullString
		checkedAt  sql.NullTime
	)
	err := rows.Scan(&rawID, &rawTenant, &lead.Name, &phone, &nationalID,
		&submission, &status, &stage, &linked, &label, &checkedAt,
		&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return leads.Lead{}, fmt.Errorf("scan lead: %w", err)
	}
	leadUUID, err := uuid.Parse(rawID)
	if err != nil {
		return leads.Lead{}, fmt.Errorf("parse lead id: %w", err)
	}
	tenantUUID, err := uuid.Parse(rawTenant)
	if err != nil {
		return leads.Lead{}, fmt.Errorf("parse tenant id: %w", err)
	}
	lead.ID = id.LeadID(leadUUID)
	lead.TenantID = id.TenantID(tenantUUID)
	lead.Phone = id.Phone(phone)
	lead.NationalID = id.NationalID(nationalID)
	lead.SubmissionID = submission.String
	lead.ComplianceStatus = status.String
	lead.PipelineStage = stage.String
	lead.StageLabelID = label.String
	if linked.Valid {
		checkID := id.CheckID(linked.Int64)
		lead.LinkedCheckID = &checkID
	}
	if checkedAt.Valid {
		t := checkedAt.Time
		lead.CheckedAt = &t
	}
	return lead, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullCheckID(checkID *id.CheckID) any {
	if checkID == nil {
		return nil
	}
	return int64(*checkID)
}
