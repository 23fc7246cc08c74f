package processedset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	id "concilia/pkg/domain"
)

// File keeps the set as a flat JSON array of numeric check ids. Each Add
// rewrites the file through a rename so a crash never leaves a torn file.
type File struct {
	path string
	mu   sync.Mutex
	ids  map[id.CheckID]struct{}
}

// NewFile loads (or lazily creates) the backing file. A missing file is an
// empty set, not an error.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	f := &File{path: path, ids: make(map[id.CheckID]struct{})}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read processed set: %w", err)
	}
	var ids []id.CheckID
	if err := json.Unmarshal(data, &ids); err != nil {
		// corrupt file degrades to re-check-once rather than failing boot
		return f, nil
	}
	for _, checkID := range ids {
		f.ids[checkID] = struct{}{}
	}
	return f, nil
}

func (f *File) Contains(_ context.Context, checkID id.CheckID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[checkID]
	return ok, nil
}

func (f *File) Add(_ context.Context, checkID id.CheckID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[checkID]; ok {
		return nil
	}
	f.ids[checkID] = struct{}{}
	return f.persistLocked()
}

func (f *File) Load(_ context.Context) ([]id.CheckID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]id.CheckID, 0, len(f.ids))
	for checkID := range f.ids {
		out = append(out, checkID)
	}
	return out, nil
}

func (f *File) persistLocked() error {
	ids := make([]id.CheckID, 0, len(f.ids))
	for checkID := range f.ids {
		ids = append(ids, checkID)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode processed set: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write processed set: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace processed set: %w", err)
	}
	return nil
}
