package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State is the small persisted summary of the poll loop. Safe to delete:
// the engine recreates it and simply loses the counters.
type State struct {
	LastPolledAt   time.Time `json:"last_polled_at"`
	TotalProcessed int64     `json:"total_processed"`
	TotalErrors    int64     `json:"total_errors"`
	LastError      string    `json:"last_error,omitempty"`
}

// StateStore persists the engine state document.
type StateStore interface {
	Load() (State, error)
	Save(state State) error
}

// FileStateStore keeps the state as one JSON document on disk, replaced
// atomically on save.
type FileStateStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStateStore(path string) (*FileStateStore, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStateStore{path: path}, nil
}

func (s *FileStateStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		// corrupt state resets counters rather than failing boot
		return State{}, nil
	}
	return state, nil
}

func (s *FileStateStore) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// MemoryStateStore is the test double.
type MemoryStateStore struct {
	mu    sync.Mutex
	state State
}

func NewMemoryStateStore() *MemoryStateStore { return &MemoryStateStore{} }

func (s *MemoryStateStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *MemoryStateStore) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}
