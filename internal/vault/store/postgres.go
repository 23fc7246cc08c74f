package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"concilia/internal/vault"
	"concilia/internal/vault/crypto"
	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
)

// Postgres persists tenant credentials with sealed secret material.
type Postgres struct {
	db     *sql.DB
	sealer *crypto.Sealer
}

func NewPostgres(db *sql.DB, sealer *crypto.Sealer) *Postgres {
	return &Postgres{db: db, sealer: sealer}
}

func (s *Postgres) Upsert(ctx context.Context, rec vault.Record) error {
	sealed, err := s.sealer.Seal(rec.SecretKey)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_credentials (tenant_id, store_role, url, secret_sealed, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, store_role)
		DO UPDATE SET url = EXCLUDED.url, secret_sealed = EXCLUDED.secret_sealed, updated_at = now()`,
		rec.TenantID.String(), string(rec.Role), rec.URL, sealed)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (s *Postgres) FindByTenantAndRole(ctx context.Context, tenantID id.TenantID, role vault.Role) (*vault.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, store_role, url, secret_sealed, updated_at
		FROM tenant_credentials
		WHERE tenant_id = $1 AND store_role = $2`,
		tenantID.String(), string(role))

	var (
		rawTenant string
		rawRole   string
		rec       vault.Record
		sealed    string
	)
	if err := row.Scan(&rawTenant, &rawRole, &rec.URL, &sealed, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	tenantUUID, err := uuid.Parse(rawTenant)
	if err != nil {
		return nil, fmt.Errorf("parse tenant id: %w", err)
	}
	rec.TenantID = id.TenantID(tenantUUID)
	rec.Role = vault.Role(rawRole)
	rec.SecretKey, err = s.sealer.Open(sealed)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Postgres) Delete(ctx context.Context, tenantID id.TenantID, role vault.Role) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tenant_credentials WHERE tenant_id = $1 AND store_role = $2`,
		tenantID.String(), string(role))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// ListTenants returns every tenant that has at least one credential
// configured. The scheduler iterates this set each tick.
func (s *Postgres) ListTenants(ctx context.Context) ([]id.TenantID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM tenant_credentials ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []id.TenantID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse tenant id: %w", err)
		}
		tenants = append(tenants, id.TenantID(u))
	}
	return tenants, rows.Err()
}
