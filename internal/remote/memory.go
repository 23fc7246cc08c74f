package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
)

// Memory is an in-memory Store used by unit tests and local development.
// It intentionally favors clarity over performance and can simulate a store
// that lacks the optional compliance columns or is unreachable.
type Memory struct {
	mu sync.Mutex

	events      map[id.EventID]QueueEvent
	checks      map[id.CheckID]CheckRow
	submissions []SubmissionRow
	accounts    map[string]NewAccount // key: account id
	accountCred map[string]AccountCredential

	caps        Capabilities
	unavailable bool
	callDelay   time.Duration
}

func NewMemory() *Memory {
	return &Memory{
		events:      make(map[id.EventID]QueueEvent),
		checks:      make(map[id.CheckID]CheckRow),
		accounts:    make(map[string]NewAccount),
		accountCred: make(map[string]AccountCredential),
		caps:        Capabilities{HasProcessedFlag: true, HasPhoneColumn: true},
	}
}

// SetCapabilities simulates a store missing optional columns.
func (m *Memory) SetCapabilities(caps Capabilities) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps = caps
}

// SetUnavailable makes every call fail with sentinel.ErrUnavailable.
func (m *Memory) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

// SetCallDelay makes every call block for d first, for timeout tests.
func (m *Memory) SetCallDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callDelay = d
}

func (m *Memory) SeedEvent(ev QueueEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev
}

func (m *Memory) SeedCheck(row CheckRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[row.ID] = row
}

func (m *Memory) SeedSubmission(row SubmissionRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, row)
}

func (m *Memory) Event(eventID id.EventID) (QueueEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	return ev, ok
}

func (m *Memory) Check(checkID id.CheckID) (CheckRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.checks[checkID]
	return row, ok
}

func (m *Memory) Accounts() []NewAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NewAccount, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, acc)
	}
	return out
}

func (m *Memory) AccountCredentials() map[string]AccountCredential {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]AccountCredential, len(m.accountCred))
	for k, v := range m.accountCred {
		out[k] = v
	}
	return out
}

func (m *Memory) gate(ctx context.Context) error {
	m.mu.Lock()
	down, delay := m.unavailable, m.callDelay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, ctx.Err())
		}
	}
	if down {
		return fmt.Errorf("%w: store is down", sentinel.ErrUnavailable)
	}
	return nil
}

func (m *Memory) ListPendingEvents(ctx context.Context, entityType string, limit int) ([]QueueEvent, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []QueueEvent
	for _, ev := range m.events {
		if ev.Status == EventStatusPending && ev.EntityType == entityType {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkEvent(ctx context.Context, eventID id.EventID, status EventStatus) error {
	if err := m.gate(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	ev.Status = status
	m.events[eventID] = ev
	return nil
}

func (m *Memory) CreateAccount(ctx context.Context, acc NewAccount) (string, error) {
	if err := m.gate(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if (acc.NationalID != "" && existing.NationalID == acc.NationalID) ||
			(acc.Email != "" && existing.Email == acc.Email) {
			return "", fmt.Errorf("%w: account already exists", sentinel.ErrConflict)
		}
	}
	accountID := uuid.NewString()
	m.accounts[accountID] = acc
	return accountID, nil
}

func (m *Memory) UpsertAccountCredential(ctx context.Context, accountRef string, cred AccountCredential) error {
	if err := m.gate(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountCred[accountRef] = cred
	return nil
}

func (m *Memory) ListUnprocessedChecks(ctx context.Context, limit int) ([]CheckRow, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.caps.HasProcessedFlag || !m.caps.HasPhoneColumn {
		return nil, fmt.Errorf("%w: optional columns absent", sentinel.ErrSchemaMismatch)
	}
	var out []CheckRow
	for _, row := range m.checks {
		if row.Status.Terminal() && (row.Processed == nil || !*row.Processed) && row.Phone != "" {
			out = append(out, row)
		}
	}
	sortChecks(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListChecksMinimal(ctx context.Context, limit int) ([]CheckRow, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CheckRow
	for _, row := range m.checks {
		if !row.Status.Terminal() {
			continue
		}
		// minimal shape: optional columns are not selected
		row.Phone = ""
		row.Processed = nil
		out = append(out, row)
	}
	sortChecks(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListTerminalChecksSince(ctx context.Context, since time.Time, limit int) ([]CheckRow, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CheckRow
	for _, row := range m.checks {
		if row.Status.Terminal() && !row.ConsultedAt.Before(since) {
			out = append(out, row)
		}
	}
	sortChecks(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkCheckProcessed(ctx context.Context, checkID id.CheckID) error {
	if err := m.gate(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.caps.HasProcessedFlag {
		return fmt.Errorf("%w: no processed flag", sentinel.ErrSchemaMismatch)
	}
	row, ok := m.checks[checkID]
	if !ok {
		return sentinel.ErrNotFound
	}
	processed := true
	row.Processed = &processed
	m.checks[checkID] = row
	return nil
}

func (m *Memory) FindSubmissionByNationalID(ctx context.Context, nationalID id.NationalID) (*SubmissionRow, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.submissions) - 1; i >= 0; i-- {
		if id.NormalizeNationalID(m.submissions[i].NationalID) == nationalID {
			row := m.submissions[i]
			return &row, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *Memory) Capabilities() Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

func sortChecks(rows []CheckRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ConsultedAt.Equal(rows[j].ConsultedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].ConsultedAt.Before(rows[j].ConsultedAt)
	})
}
