package provision

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concilia/internal/remote"
	"concilia/internal/vault"
	id "concilia/pkg/domain"
	domainerrors "concilia/pkg/domain-errors"
)

type stubResolver struct {
	rec *vault.Record
}

func (r *stubResolver) ResolveStrict(_ context.Context, tenantID id.TenantID, role vault.Role) (*vault.Record, error) {
	if r.rec == nil {
		return nil, domainerrors.New(domainerrors.CodeNotConfigured, "tenant has no credential")
	}
	return r.rec, nil
}

func seedPending(store *remote.Memory, eventID int64, payload string, at time.Time) {
	store.SeedEvent(remote.QueueEvent{
		ID:         id.EventID(eventID),
		EntityType: EntityTypeReseller,
		Payload:    json.RawMessage(payload),
		Status:     remote.EventStatusPending,
		CreatedAt:  at,
	})
}

func TestProcessor_CreatesAccountAndMarksProcessed(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemory()
	tenantID := id.TenantID(uuid.New())
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	seedPending(store, 1, `{"name":"Ana","email":"ana@example.com","cpf":"123.456.789-09","telefone":"5511987654321"}`, base)

	p := New(&stubResolver{})
	processed, err := p.Process(ctx, tenantID, store)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	ev, ok := store.Event(id.EventID(1))
	require.True(t, ok)
	assert.Equal(t, remote.EventStatusProcessed, ev.Status)

	accounts := store.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "12345678909", accounts[0].NationalID)
	assert.Equal(t, "5511987654321", accounts[0].Phone)
}

func TestProcessor_MalformedEventDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemory()
	tenantID := id.TenantID(uuid.New())
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	seedPending(store, 1, `{not json`, base)
	seedPending(store, 2, `{}`, base.Add(time.Second)) // no uniqueness key
	seedPending(store, 3, `{"name":"Bia","email":"bia@example.com"}`, base.Add(2*time.Second))

	p := New(&stubResolver{})
	processed, err := p.Process(ctx, tenantID, store)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	ev, _ := store.Event(id.EventID(1))
	assert.Equal(t, remote.EventStatusError, ev.Status)
	ev, _ = store.Event(id.EventID(2))
	assert.Equal(t, remote.EventStatusError, ev.Status)
	ev, _ = store.Event(id.EventID(3))
	assert.Equal(t, remote.EventStatusProcessed, ev.Status)
}

func TestProcessor_DuplicateAccountIsSuccess(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemory()
	tenantID := id.TenantID(uuid.New())
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	// two events for the same person, e.g. a double-submitted form
	seedPending(store, 1, `{"name":"Ana","email":"ana@example.com"}`, base)
	seedPending(store, 2, `{"name":"Ana","email":"ana@example.com"}`, base.Add(time.Second))

	p := New(&stubResolver{})
	processed, err := p.Process(ctx, tenantID, store)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Len(t, store.Accounts(), 1)
}

func TestProcessor_FailedEventsAreNotRetried(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemory()
	tenantID := id.TenantID(uuid.New())

	seedPending(store, 1, `{broken`, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))

	p := New(&stubResolver{})
	_, err := p.Process(ctx, tenantID, store)
	require.NoError(t, err)

	// second drain sees no pending work: error events stay parked
	processed, err := p.Process(ctx, tenantID, store)
	require.NoError(t, err)
	assert.Zero(t, processed)
	ev, _ := store.Event(id.EventID(1))
	assert.Equal(t, remote.EventStatusError, ev.Status)
}

func TestProcessor_PropagatesTenantCredential(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemory()
	tenantID := id.TenantID(uuid.New())

	seedPending(store, 1, `{"name":"Ana","email":"ana@example.com"}`, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))

	resolver := &stubResolver{rec: &vault.Record{
		TenantID:  tenantID,
		Role:      vault.RoleClient,
		URL:       "https://client.store.example",
		SecretKey: "client-secret",
	}}
	p := New(resolver)
	processed, err := p.Process(ctx, tenantID, store)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	creds := store.AccountCredentials()
	require.Len(t, creds, 1)
	for _, cred := range creds {
		assert.Equal(t, "https://client.store.example", cred.URL)
		assert.Equal(t, "client-secret", cred.SecretKey)
	}
}

func TestProcessor_MissingCredentialDoesNotFailEvent(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemory()

	seedPending(store, 1, `{"name":"Ana","email":"ana@example.com"}`, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))

	p := New(&stubResolver{}) // resolver has nothing configured
	processed, err := p.Process(ctx, id.TenantID(uuid.New()), store)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Empty(t, store.AccountCredentials())
}

func TestProcessor_BatchSizeBoundsDrain(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemory()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		seedPending(store, i, `{"name":"N","email":"n@example.com"}`, base.Add(time.Duration(i)*time.Second))
	}

	p := New(&stubResolver{}, WithBatchSize(2))
	processed, err := p.Process(ctx, id.TenantID(uuid.New()), store)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
}
