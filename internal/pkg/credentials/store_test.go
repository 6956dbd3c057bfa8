package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)

	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.Set("session-token"))

	token, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "session-token", token)

	// A second process reading the same file sees the same credential
	token, err = NewFileStore(path).Get()
	require.NoError(t, err)
	assert.Equal(t, "session-token", token)
}

func TestFileStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)

	require.NoError(t, store.Set("session-token"))
	require.NoError(t, store.Clear())

	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNoCredential)

	// Clearing an already empty store is fine
	assert.NoError(t, store.Clear())
}

func TestFileStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "credentials.json")
	store := NewFileStore(path)

	require.NoError(t, store.Set("session-token"))

	token, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "session-token", token)
}

func TestFileStore_RestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, NewFileStore(path).Set("session-token"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewFileStore(path).Get()
	assert.Error(t, err)
}

func TestFileStore_EmptyToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":""}`), 0o600))

	_, err := NewFileStore(path).Get()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestExpired(t *testing.T) {
	// Opaque strings are not treated as expired; the backend decides
	assert.False(t, expired("not-a-jwt"))

	// exp in 2020, long past
	past := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
		"eyJleHAiOjE1Nzc4MzY4MDB9." +
		"3Kz1Yo0sZfYDmJ9DqyySaPp1fQzrXYhgWBIyCLKaQ5o"
	assert.True(t, expired(past))
}
