package persist

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name   string            `json:"name"`
	Counts map[string]uint64 `json:"counts"`
	Tags   []string          `json:"tags"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	want := doc{Name: "registry", Counts: map[string]uint64{"a": 1, "b": 18446744073709551615}, Tags: []string{"x", "y"}}

	require.NoError(t, Save(path, want))
	got := Load(path, doc{})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveReplacesAndLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, Save(path, doc{Name: "first"}))
	require.NoError(t, Save(path, doc{Name: "second"}))
	assert.Equal(t, "second", Load(path, doc{}).Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestSaveConcurrentWritersLeaveValidDocument(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, Save(path, doc{Name: strings.Repeat("n", i+1)}))
		}(i)
	}
	wg.Wait()

	var got doc
	require.NoError(t, LoadInto(path, &got))
	assert.NotEmpty(t, got.Name)
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "absent.json")
	def := doc{Name: "default"}
	assert.Equal(t, def, Load(path, def))

	var v doc
	assert.ErrorIs(t, LoadInto(path, &v), ErrNotExist)
}

func TestLoadCorruptReturnsDefault(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "trunc`), 0o644))

	def := doc{Name: "default"}
	assert.Equal(t, def, Load(path, def))

	var v doc
	assert.ErrorIs(t, LoadInto(path, &v), ErrCorrupt)
}

func TestSaveUnencodable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.json")
	err := Save(path, map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
