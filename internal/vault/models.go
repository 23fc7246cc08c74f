package vault

import (
	"time"

	id "concilia/pkg/domain"
)

// Role selects which remote store a credential reaches.
type Role string

const (
	// RoleMaster is the shared registry holding cross-tenant data.
	RoleMaster Role = "master"
	// RoleClient is a store scoped to a single tenant.
	RoleClient Role = "client"
)

func (r Role) IsValid() bool {
	return r == RoleMaster || r == RoleClient
}

// Source records which resolution path produced a credential. Both paths
// matter when debugging multi-tenant issues, so services log it.
type Source string

const (
	SourceConfigured          Source = "configured"
	SourceEnvironmentFallback Source = "environment_fallback"
)

// Record is a resolved connection credential for one tenant and store role.
//
// Invariants:
//   - A strict resolution for tenant T returns only T's record or nothing,
//     never another tenant's.
//   - SecretKey is plaintext only in memory; stores hold it sealed.
type Record struct {
	TenantID  id.TenantID
	Role      Role
	URL       string
	SecretKey string
	Source    Source
	UpdatedAt time.Time
}

// KeyClass classifies the privilege level a secret key structurally claims.
type KeyClass string

const (
	// KeyClassElevated keys carry the service-level role claim and bypass
	// row-level protection on the remote store.
	KeyClassElevated KeyClass = "elevated"
	// KeyClassAnon keys are publishable client keys; writes under row-level
	// protection silently fail with them, which is why resolution flags
	// them instead of waiting for the downstream error.
	KeyClassAnon KeyClass = "anon"
	// KeyClassUnknown keys are not parseable as tokens at all.
	KeyClassUnknown KeyClass = "unknown"
)
