package token

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileBackend(t *testing.T, pass string) *FileBackend {
	t.Helper()
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "cinesync", "credentials.enc"), []byte(pass))
	require.NoError(t, err)
	return b
}

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	b := newTestFileBackend(t, "secret")

	v, ok, err := b.Get(keyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	b := newTestFileBackend(t, "secret")

	require.NoError(t, b.Set(map[string]string{keyAccessToken: "t1", keyRefreshToken: "r1"}))
	require.NoError(t, b.Delete(keyRefreshToken))

	reopened, err := NewFileBackend(b.Path(), []byte("secret"))
	require.NoError(t, err)

	v, ok, err := reopened.Get(keyAccessToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t1", v)

	_, ok, err = reopened.Get(keyRefreshToken)
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := os.Stat(b.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileBackend_ValuesAreNotPlaintext(t *testing.T) {
	b := newTestFileBackend(t, "secret")
	require.NoError(t, b.Set(map[string]string{keyAccessToken: "very-recognisable-token"}))

	raw, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("very-recognisable-token")))
}

func TestFileBackend_WrongPassphrase(t *testing.T) {
	b := newTestFileBackend(t, "secret")
	require.NoError(t, b.Set(map[string]string{keyAccessToken: "t1"}))

	other, err := NewFileBackend(b.Path(), []byte("not-the-secret"))
	require.NoError(t, err)

	_, _, err = other.Get(keyAccessToken)
	assert.True(t, errors.Is(err, ErrDecrypt))

	// a store on top treats it as logged out
	s := NewStore()
	require.NoError(t, s.Init(other))
	assert.Empty(t, s.Token())

	// writing with the new passphrase replaces the unreadable file
	require.NoError(t, s.SaveCredential("t2", "", 0))
	assert.Equal(t, "t2", s.Token())
}

func TestFileBackend_ConcurrentWrites(t *testing.T) {
	b := newTestFileBackend(t, "secret")

	const goroutines = 8
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", id)
			if err := b.Set(map[string]string{key: fmt.Sprintf("v%d", id)}); err != nil {
				t.Errorf("goroutine %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		v, ok, err := b.Get(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("v%d", i), v)
	}

	_, err := os.Stat(b.Path() + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file left behind")
}

func TestFileBackend_WithStore(t *testing.T) {
	b := newTestFileBackend(t, "secret")
	s := NewStore()
	require.NoError(t, s.Init(b))

	require.NoError(t, s.SaveCredential("t1", "r1", time.Hour))

	again := NewStore()
	reopened, err := NewFileBackend(b.Path(), []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, again.Init(reopened))

	assert.Equal(t, "t1", again.Token())
	assert.Equal(t, "r1", again.RefreshToken())
	assert.True(t, again.HasValidCredential())
}

func TestNewFileBackend_Validation(t *testing.T) {
	_, err := NewFileBackend("", []byte("x"))
	assert.Error(t, err)

	_, err = NewFileBackend(filepath.Join(t.TempDir(), "c.enc"), nil)
	assert.Error(t, err)
}

func TestFileBackend_UnreadableFileIsNotOverwritten(t *testing.T) {
	b := newTestFileBackend(t, "secret")
	data := []byte(`{"version":99}`)
	require.NoError(t, os.WriteFile(b.Path(), data, 0o600))

	err := b.Set(map[string]string{keyAccessToken: "t1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDecrypt))

	err = b.Delete(keyRefreshToken)
	require.Error(t, err)

	got, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got), "credential file was rewritten")
}
