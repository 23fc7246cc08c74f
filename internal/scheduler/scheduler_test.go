package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concilia/internal/provision"
	"concilia/internal/reconcile"
	"concilia/internal/remote"
	"concilia/internal/vault"
	id "concilia/pkg/domain"
	dErrors "concilia/pkg/domain-errors"
)

type fakeVault struct {
	mu      sync.Mutex
	tenants []id.TenantID
	records map[string]*vault.Record // key: tenant|role
}

func newFakeVault() *fakeVault {
	return &fakeVault{records: make(map[string]*vault.Record)}
}

func (v *fakeVault) add(tenantID id.TenantID, role vault.Role, url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	found := false
	for _, t := range v.tenants {
		if t == tenantID {
			found = true
		}
	}
	if !found {
		v.tenants = append(v.tenants, tenantID)
	}
	v.records[tenantID.String()+"|"+string(role)] = &vault.Record{
		TenantID: tenantID, Role: role, URL: url, SecretKey: "sk-" + url,
	}
}

func (v *fakeVault) ResolveStrict(_ context.Context, tenantID id.TenantID, role vault.Role) (*vault.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if rec, ok := v.records[tenantID.String()+"|"+string(role)]; ok {
		return rec, nil
	}
	return nil, dErrors.New(dErrors.CodeNotConfigured, "no credential")
}

func (v *fakeVault) ResolvePermissive(ctx context.Context, tenantID id.TenantID, role vault.Role) (*vault.Record, error) {
	return v.ResolveStrict(ctx, tenantID, role)
}

func (v *fakeVault) ListTenants(_ context.Context) ([]id.TenantID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]id.TenantID(nil), v.tenants...), nil
}

type fakeHandles struct{}

func (fakeHandles) Handle(_ context.Context, url, _ string) (remote.Store, error) {
	return remote.NewMemory(), nil
}

// mappedHandles routes each store URL to a dedicated in-memory store so a
// test can give different tenants stores with different behavior.
type mappedHandles map[string]remote.Store

func (h mappedHandles) Handle(_ context.Context, url, _ string) (remote.Store, error) {
	return h[url], nil
}

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []id.TenantID
	failFor map[string]error
	block   chan struct{} // when set, Process blocks until closed
	started chan struct{}
}

func (p *fakeProcessor) Process(_ context.Context, tenantID id.TenantID, _ remote.Store) (int, error) {
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, tenantID)
	if err, ok := p.failFor[tenantID.String()]; ok {
		return 0, err
	}
	return 1, nil
}

func (p *fakeProcessor) tenantsSeen() []id.TenantID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]id.TenantID(nil), p.calls...)
}

type fakeReconciler struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeReconciler) Reconcile(_ context.Context, _ id.TenantID, _, _ remote.Store) (reconcile.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return reconcile.Result{}, nil
}

func (r *fakeReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestScheduler_TriggerRunsOneTenant(t *testing.T) {
	tenantID := id.TenantID(uuid.New())
	cv := newFakeVault()
	cv.add(tenantID, vault.RoleClient, "https://client.example")

	proc := &fakeProcessor{}
	rec := &fakeReconciler{}
	s := New(cv, fakeHandles{}, proc, rec, NewMemoryStateStore())

	n, err := s.Trigger(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []id.TenantID{tenantID}, proc.tenantsSeen())
	assert.Equal(t, 1, rec.count())
	assert.False(t, s.Running())
}

func TestScheduler_TriggerConflictsWithRunningCycle(t *testing.T) {
	tenantID := id.TenantID(uuid.New())
	cv := newFakeVault()
	cv.add(tenantID, vault.RoleClient, "https://client.example")

	proc := &fakeProcessor{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := New(cv, fakeHandles{}, proc, &fakeReconciler{}, NewMemoryStateStore())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background(), tenantID)
		errc <- err
	}()
	<-proc.started
	require.True(t, s.Running())

	_, err := s.Trigger(context.Background(), tenantID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	close(proc.block)
	require.NoError(t, <-errc)
}

func TestScheduler_TenantWithoutCredentialsIsNoop(t *testing.T) {
	cv := newFakeVault()
	proc := &fakeProcessor{}
	s := New(cv, fakeHandles{}, proc, &fakeReconciler{}, NewMemoryStateStore())

	n, err := s.Trigger(context.Background(), id.TenantID(uuid.New()))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, proc.tenantsSeen())
}

// One tenant's failure must not keep the remaining tenants from running.
func TestScheduler_TickContinuesPastFailingTenant(t *testing.T) {
	bad := id.TenantID(uuid.New())
	good := id.TenantID(uuid.New())
	cv := newFakeVault()
	cv.add(bad, vault.RoleClient, "https://bad.example")
	cv.add(good, vault.RoleClient, "https://good.example")

	proc := &fakeProcessor{failFor: map[string]error{
		bad.String(): errors.New("store is down"),
	}}
	rec := &fakeReconciler{}
	state := NewMemoryStateStore()
	s := New(cv, fakeHandles{}, proc, rec, state)

	s.tick(context.Background())

	assert.ElementsMatch(t, []id.TenantID{bad, good}, proc.tenantsSeen())
	assert.Equal(t, 2, rec.count())

	saved, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.TotalErrors)
	assert.Contains(t, saved.LastError, "store is down")
	assert.False(t, saved.LastPolledAt.IsZero())
}

// A store that hangs past the call deadline must not stall the loop: the
// bounded call fails for that tenant only and the remaining tenants still
// run within the same tick.
func TestScheduler_SlowStoreTimeoutDoesNotBlockOtherTenants(t *testing.T) {
	slow := id.TenantID(uuid.New())
	fast := id.TenantID(uuid.New())
	cv := newFakeVault()
	cv.add(slow, vault.RoleClient, "https://slow.example")
	cv.add(fast, vault.RoleClient, "https://fast.example")

	slowStore := remote.NewMemory()
	slowStore.SetCallDelay(time.Minute)
	fastStore := remote.NewMemory()
	fastStore.SeedEvent(remote.QueueEvent{
		ID:         41,
		EntityType: provision.EntityTypeReseller,
		Payload:    json.RawMessage(`{"name":"Acme","email":"ops@acme.example","plan_code":"pro"}`),
		Status:     remote.EventStatusPending,
		CreatedAt:  time.Now(),
	})

	handles := mappedHandles{
		"https://slow.example": slowStore,
		"https://fast.example": fastStore,
	}
	state := NewMemoryStateStore()
	s := New(cv, handles, provision.New(cv), &fakeReconciler{}, state)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	begin := time.Now()
	s.tick(ctx)
	elapsed := time.Since(begin)

	// the slow tenant's call was cut off at the deadline, not waited out
	assert.Less(t, elapsed, 10*time.Second)

	saved, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.TotalProcessed)
	assert.Equal(t, int64(1), saved.TotalErrors)
	assert.Contains(t, saved.LastError, "context deadline exceeded")

	ev, ok := fastStore.Event(41)
	require.True(t, ok)
	assert.Equal(t, remote.EventStatusProcessed, ev.Status)
}

func TestScheduler_StateAccumulatesAcrossTicks(t *testing.T) {
	tenantID := id.TenantID(uuid.New())
	cv := newFakeVault()
	cv.add(tenantID, vault.RoleClient, "https://client.example")

	state := NewMemoryStateStore()
	s := New(cv, fakeHandles{}, &fakeProcessor{}, &fakeReconciler{}, state)

	s.tick(context.Background())
	s.tick(context.Background())

	saved, err := state.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.TotalProcessed)
	assert.Zero(t, saved.TotalErrors)
}

func TestScheduler_StartIsIdempotentAndStopIsSafe(t *testing.T) {
	tenantID := id.TenantID(uuid.New())
	cv := newFakeVault()
	cv.add(tenantID, vault.RoleClient, "https://client.example")

	proc := &fakeProcessor{}
	state := NewMemoryStateStore()
	s := New(cv, fakeHandles{}, proc, &fakeReconciler{}, state,
		WithInterval(time.Hour), WithInitialDelay(time.Millisecond))

	s.Start()
	s.Start() // second arm is a no-op

	require.Eventually(t, func() bool {
		return len(proc.tenantsSeen()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop() // stopping a stopped scheduler is a no-op

	// the timer is disarmed: no further cycles run
	seen := len(proc.tenantsSeen())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, len(proc.tenantsSeen()))
}

func TestScheduler_StatusReflectsPersistedState(t *testing.T) {
	state := NewMemoryStateStore()
	require.NoError(t, state.Save(State{TotalProcessed: 7}))

	s := New(newFakeVault(), fakeHandles{}, &fakeProcessor{}, &fakeReconciler{}, state)
	got, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.TotalProcessed)
}
