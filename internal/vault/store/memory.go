package store

import (
	"context"
	"sync"

	"concilia/internal/vault"
	"concilia/internal/vault/crypto"
	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
)

type memoryKey struct {
	tenant string
	role   vault.Role
}

// Memory keeps credentials in a map. Secrets are sealed exactly as in the
// Postgres store so tests exercise the same decrypt path.
type Memory struct {
	mu     sync.RWMutex
	sealer *crypto.Sealer
	byKey  map[memoryKey]vault.Record // SecretKey field holds sealed material
}

func NewMemory(sealer *crypto.Sealer) *Memory {
	return &Memory{sealer: sealer, byKey: make(map[memoryKey]vault.Record)}
}

func (s *Memory) Upsert(_ context.Context, rec vault.Record) error {
	sealed, err := s.sealer.Seal(rec.SecretKey)
	if err != nil {
		return err
	}
	rec.SecretKey = sealed
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[memoryKey{tenant: rec.TenantID.String(), role: rec.Role}] = rec
	return nil
}

func (s *Memory) FindByTenantAndRole(_ context.Context, tenantID id.TenantID, role vault.Role) (*vault.Record, error) {
	s.mu.RLock()
	rec, ok := s.byKey[memoryKey{tenant: tenantID.String(), role: role}]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	plain, err := s.sealer.Open(rec.SecretKey)
	if err != nil {
		return nil, err
	}
	rec.SecretKey = plain
	return &rec, nil
}

func (s *Memory) Delete(_ context.Context, tenantID id.TenantID, role vault.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, memoryKey{tenant: tenantID.String(), role: role})
	return nil
}

func (s *Memory) ListTenants(_ context.Context) ([]id.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]id.TenantID)
	for k, rec := range s.byKey {
		seen[k.tenant] = rec.TenantID
	}
	tenants := make([]id.TenantID, 0, len(seen))
	for _, t := range seen {
		tenants = append(tenants, t)
	}
	return tenants, nil
}
