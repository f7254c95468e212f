package instance

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firedesk/firedesk/internal/shared/types"
)

func testInstance(id, name string) *types.Instance {
	now := time.Now().UTC()
	return &types.Instance{
		ID:            id,
		Name:          name,
		ProfilePath:   "/data/profiles/" + id,
		Version:       1,
		DesiredState:  types.DesiredStopped,
		ObservedState: types.StateStopped,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instances.json")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestOpenMissingFile(t *testing.T) {
	s, path := openTestStore(t)
	assert.Empty(t, s.List())

	// No file is created until the first write.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.json")
	require.NoError(t, os.WriteFile(path, []byte("[{truncated"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	var serr *types.StoreError
	assert.True(t, errors.As(err, &serr))
}

func TestCreateGetList(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.Create(testInstance("inst_a", "alpha")))
	require.NoError(t, s.Create(testInstance("inst_b", "beta")))

	got, err := s.Get("inst_a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)

	_, err = s.Get("inst_missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Insertion order preserved.
	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "inst_a", list[0].ID)
	assert.Equal(t, "inst_b", list[1].ID)
}

func TestCreateDuplicateID(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Create(testInstance("inst_a", "alpha")))

	err := s.Create(testInstance("inst_a", "other"))
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Len(t, s.List(), 1)
}

func TestUpdate(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Create(testInstance("inst_a", "alpha")))

	updated, err := s.Update("inst_a", func(inst *types.Instance) error {
		inst.Name = "renamed"
		inst.Version++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 2, updated.Version)

	got, err := s.Get("inst_a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}

func TestUpdateMutateErrorLeavesRecordUntouched(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Create(testInstance("inst_a", "alpha")))

	boom := errors.New("boom")
	_, err := s.Update("inst_a", func(inst *types.Instance) error {
		inst.Name = "mutated"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Get("inst_a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
}

func TestDelete(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Create(testInstance("inst_a", "alpha")))

	require.NoError(t, s.Delete("inst_a"))
	_, err := s.Get("inst_a")
	assert.ErrorIs(t, err, types.ErrNotFound)

	assert.ErrorIs(t, s.Delete("inst_a"), types.ErrNotFound)
}

func TestStoreDeleteRunningConflicts(t *testing.T) {
	s, _ := openTestStore(t)
	inst := testInstance("inst_a", "alpha")
	inst.ObservedState = types.StateRunning
	require.NoError(t, s.Create(inst))

	assert.ErrorIs(t, s.Delete("inst_a"), types.ErrConflict)
}

func TestReopenReproducesCollection(t *testing.T) {
	s, path := openTestStore(t)
	require.NoError(t, s.Create(testInstance("inst_a", "alpha")))
	require.NoError(t, s.Create(testInstance("inst_b", "beta")))
	_, err := s.Update("inst_b", func(inst *types.Instance) error {
		inst.AutoStart = true
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Delete("inst_a"))

	reopened, err := Open(path)
	require.NoError(t, err)

	list := reopened.List()
	require.Len(t, list, 1)
	assert.Equal(t, "inst_b", list[0].ID)
	assert.True(t, list[0].AutoStart)
}

func TestNoPartialWritesOnDisk(t *testing.T) {
	s, path := openTestStore(t)
	require.NoError(t, s.Create(testInstance("inst_a", "alpha")))

	// Whatever is on disk must always parse as a complete collection.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var items []*types.Instance
	require.NoError(t, json.Unmarshal(data, &items))

	// Temp files are cleaned up after the rename.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := openTestStore(t)
	inst := testInstance("inst_a", "alpha")
	inst.Proxy = &types.Proxy{Type: types.ProxyHTTP, Host: "proxy", Port: 8080}
	require.NoError(t, s.Create(inst))

	got, err := s.Get("inst_a")
	require.NoError(t, err)
	got.Name = "scribbled"
	got.Proxy.Host = "scribbled"

	fresh, err := s.Get("inst_a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", fresh.Name)
	assert.Equal(t, "proxy", fresh.Proxy.Host)
}

func TestConcurrentWriters(t *testing.T) {
	s, path := openTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			_ = s.Create(testInstance("inst_"+id, "worker"))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.List(), 10)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 10)
}
