package store

import (
	"context"
	"sync"

	"concilia/internal/leads"
	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
)

// Memory keeps leads in a map. It intentionally favors clarity over
// performance.
type Memory struct {
	mu    sync.RWMutex
	leads map[string]leads.Lead
}

func NewMemory() *Memory {
	return &Memory{leads: make(map[string]leads.Lead)}
}

func (s *Memory) Save(_ context.Context, lead leads.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ID.String()] = lead
	return nil
}

func (s *Memory) FindByID(_ context.Context, leadID id.LeadID) (*leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lead, ok := s.leads[leadID.String()]; ok {
		return &lead, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *Memory) FindByNationalID(_ context.Context, nationalID id.NationalID) ([]leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leads.Lead
	for _, lead := range s.leads {
		if lead.NationalID.Equal(nationalID) {
			out = append(out, lead)
		}
	}
	return out, nil
}

func (s *Memory) FindBySubmissionID(_ context.Context, submissionID string) ([]leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leads.Lead
	if submissionID == "" {
		return out, nil
	}
	for _, lead := range s.leads {
		if lead.SubmissionID == submissionID {
			out = append(out, lead)
		}
	}
	return out, nil
}

func (s *Memory) FindByPhone(_ context.Context, phone id.Phone) ([]leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leads.Lead
	for _, lead := range s.leads {
		if lead.Phone.Matches(phone) {
			out = append(out, lead)
		}
	}
	return out, nil
}

func (s *Memory) UpdateCompliance(_ context.Context, leadID id.LeadID, update leads.ComplianceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID.String()]
	if !ok {
		return sentinel.ErrNotFound
	}
	lead.ComplianceStatus = update.Status
	lead.PipelineStage = update.PipelineStage
	lead.StageLabelID = update.StageLabelID
	checkedAt := update.CheckedAt
	lead.CheckedAt = &checkedAt
	if update.CheckRef.Linkable() {
		checkID := update.CheckRef.ID
		lead.LinkedCheckID = &checkID
	}
	lead.UpdatedAt = update.CheckedAt
	s.leads[leadID.String()] = lead
	return nil
}
