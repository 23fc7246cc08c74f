package processedset

import (
	"context"
	"sync"

	id "concilia/pkg/domain"
)

// Memory is the in-process Set used by tests.
type Memory struct {
	mu  sync.Mutex
	ids map[id.CheckID]struct{}
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[id.CheckID]struct{})}
}

func (m *Memory) Contains(_ context.Context, checkID id.CheckID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[checkID]
	return ok, nil
}

func (m *Memory) Add(_ context.Context, checkID id.CheckID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[checkID] = struct{}{}
	return nil
}

func (m *Memory) Load(_ context.Context) ([]id.CheckID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]id.CheckID, 0, len(m.ids))
	for checkID := range m.ids {
		out = append(out, checkID)
	}
	return out, nil
}
