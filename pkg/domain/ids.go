package domain

import (
	"github.com/google/uuid"
)

// Typed identifiers keep tenant, lead, check and event IDs from being mixed
// up at call sites. They wrap uuid.UUID and marshal as canonical strings.

type TenantID uuid.UUID

func (id TenantID) String() string { return uuid.UUID(id).String() }
func (id TenantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// ParseTenantID validates and returns a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

type LeadID uuid.UUID

func (id LeadID) String() string { return uuid.UUID(id).String() }
func (id LeadID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

type EventID int64

type AccountID uuid.UUID

func (id AccountID) String() string { return uuid.UUID(id).String() }
