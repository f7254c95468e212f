package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/firedesk/firedesk/internal/shared/types"
)

// Store is the durable, insertion-ordered collection of instance records.
//
// The whole collection is persisted as a single JSON array. Every mutation
// rewrites the array to a temporary file in the same directory and commits
// it with an atomic rename, so a crash mid-write leaves either the old or
// the new snapshot on disk, never a mix. Writers are serialized; readers
// only contend on the brief in-memory swap.
type Store struct {
	path string

	fileMu sync.Mutex   // serializes writers end to end
	mu     sync.RWMutex // guards items
	items  []*types.Instance
}

// Open loads the persisted collection from path. A missing file yields an
// empty store (the file is created on first write); a corrupt file is a
// StoreError so an operator can intervene instead of silently losing records.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, &types.StoreError{Op: "open", Err: err}
	}

	var items []*types.Instance
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &types.StoreError{Op: "open", Err: fmt.Errorf("corrupt instance file %s: %w", path, err)}
	}
	s.items = items
	return s, nil
}

// List returns all instances in insertion order.
func (s *Store) List() []*types.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Instance, len(s.items))
	for i, inst := range s.items {
		out[i] = inst.Clone()
	}
	return out
}

// Get returns the instance with the given id.
func (s *Store) Get(id string) (*types.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.items {
		if inst.ID == id {
			return inst.Clone(), nil
		}
	}
	return nil, types.ErrNotFound
}

// Create appends a new record and persists the collection.
func (s *Store) Create(inst *types.Instance) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	next := s.snapshot()
	for _, existing := range next {
		if existing.ID == inst.ID {
			return fmt.Errorf("id %s already exists: %w", inst.ID, types.ErrConflict)
		}
	}
	next = append(next, inst.Clone())

	return s.commit(next)
}

// Update applies mutate to a copy of the record and persists the result.
// The stored record is untouched if mutate or the write fails.
func (s *Store) Update(id string, mutate func(*types.Instance) error) (*types.Instance, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	next := s.snapshot()
	var updated *types.Instance
	for i, inst := range next {
		if inst.ID == id {
			candidate := inst.Clone()
			if err := mutate(candidate); err != nil {
				return nil, err
			}
			next[i] = candidate
			updated = candidate
			break
		}
	}
	if updated == nil {
		return nil, types.ErrNotFound
	}

	if err := s.commit(next); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Delete removes a record and persists the collection. Deleting a record
// whose observed state is not stopped or crashed is a conflict; the
// controller stops the process first.
func (s *Store) Delete(id string) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	next := s.snapshot()
	found := -1
	for i, inst := range next {
		if inst.ID == id {
			found = i
			break
		}
	}
	if found == -1 {
		return types.ErrNotFound
	}
	switch next[found].ObservedState {
	case types.StateStopped, types.StateCrashed, "":
	default:
		return fmt.Errorf("instance %s is %s: %w", id, next[found].ObservedState, types.ErrConflict)
	}

	next = append(next[:found], next[found+1:]...)
	return s.commit(next)
}

// snapshot copies the current slice (records themselves are shared until
// replaced; mutation always goes through Clone).
func (s *Store) snapshot() []*types.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := make([]*types.Instance, len(s.items))
	copy(next, s.items)
	return next
}

// commit writes the collection to disk atomically, then swaps it in memory.
// Callers hold fileMu.
func (s *Store) commit(next []*types.Instance) error {
	if err := s.writeFile(next); err != nil {
		return err
	}

	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
	return nil
}

func (s *Store) writeFile(items []*types.Instance) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return &types.StoreError{Op: "marshal", Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &types.StoreError{Op: "write", Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &types.StoreError{Op: "write", Err: err}
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return &types.StoreError{Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &types.StoreError{Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &types.StoreError{Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &types.StoreError{Op: "write", Err: err}
	}
	return nil
}
