package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	_, ok, err := s.Get("palmastro_token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("palmastro_token", "abc"))
	require.NoError(t, s.Set("palmastro_user", `{"id":"1"}`))
	require.NoError(t, s.Set("palmastro_token", "def"))

	v, ok, err := s.Get("palmastro_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", v)

	require.NoError(t, s.Clear("palmastro_token", "missing"))

	_, ok, err = s.Get("palmastro_token")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err = s.Get("palmastro_user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, v)

	assert.ErrorIs(t, s.Set("", "x"), ErrEmptyKey)
	_, _, err = s.Get("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.yaml")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	v, ok, err := reopened.Get("palmastro_user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, _, err = s.Get("palmastro_token")
	assert.Error(t, err)
}
