package auth

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(account string) *Session {
	return &Session{Account: account, SessionID: "123%3Aabcdefgh%3A1", CSRFToken: "csrf0123456789abcdef0123456789ab"}
}

func TestSessionValidate(t *testing.T) {
	assert.NoError(t, session("a").Validate())
	assert.ErrorIs(t, (*Session)(nil).Validate(), ErrInvalidCredentials)
	assert.Error(t, (&Session{Account: "a", CSRFToken: "x"}).Validate())
	assert.Error(t, (&Session{Account: "a", SessionID: "x"}).Validate())
}

func TestManagerFallsThroughStores(t *testing.T) {
	broken := NewMemoryStore()
	broken.SaveErr = errors.New("locked")
	backup := NewMemoryStore()
	m := NewManagerWithStores(broken, backup)

	require.NoError(t, m.Save(session("club_ff")))

	got, err := backup.Load("club_ff")
	require.NoError(t, err)
	assert.False(t, got.SavedAt.IsZero())

	loaded, err := m.Load("club_ff")
	require.NoError(t, err)
	assert.Equal(t, "club_ff", loaded.Account)
}

func TestManagerResolve(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	m := NewManagerWithStores(store)

	_, err := m.Resolve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	m.now = func() time.Time { return base }
	require.NoError(t, m.Save(session("older")))
	m.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, m.Save(session("newer")))

	s, err := m.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "newer", s.Account)

	s, err = m.Resolve("older")
	require.NoError(t, err)
	assert.Equal(t, "older", s.Account)

	_, err = m.Resolve("missing")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerDelete(t *testing.T) {
	m := NewManagerWithStores(NewMemoryStore(session("a")))
	require.NoError(t, m.Delete("a"))
	assert.ErrorIs(t, m.Delete("a"), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.enc")
	store, err := NewEncryptedFileStore(path, "passphrase")
	require.NoError(t, err)

	require.NoError(t, store.Save(session("b")))
	require.NoError(t, store.Save(session("a")))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Account)
	assert.Equal(t, "b", list[1].Account)

	reopened, err := NewEncryptedFileStore(path, "passphrase")
	require.NoError(t, err)
	got, err := reopened.Load("b")
	require.NoError(t, err)
	assert.Equal(t, session("b").SessionID, got.SessionID)

	wrong, err := NewEncryptedFileStore(path, "other")
	require.NoError(t, err)
	_, err = wrong.Load("b")
	assert.Error(t, err)

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("b"))
	assert.NoFileExists(t, path)
	_, err = store.Load("a")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv("IGEVENTS_PASSPHRASE", "")
	dir := t.TempDir()
	_, err := NewEncryptedFileStore(filepath.Join(dir, "sessions.enc"), "")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, ".passphrase"))
}

func TestEnvironmentStore(t *testing.T) {
	env := map[string]string{}
	store := &EnvironmentStore{getenv: func(k string) string { return env[k] }}

	_, err := store.Load("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	env["IGEVENTS_SESSION_ID"] = "sid"
	env["IGEVENTS_CSRF_TOKEN"] = "csrf"
	s, err := store.Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", s.Account)
	assert.Equal(t, "sid", s.SessionID)

	assert.ErrorIs(t, store.Save(s), ErrStoreUnavailable)
}

func TestMasked(t *testing.T) {
	m := session("a").Masked()
	assert.Equal(t, "123%", m.SessionID[:4])
	assert.Contains(t, m.SessionID, "...")
	assert.Equal(t, "********", (&Session{SessionID: "short"}).Masked().SessionID)
}

func TestWriteLoginGuide(t *testing.T) {
	var buf bytes.Buffer
	WriteLoginGuide(&buf)
	assert.Contains(t, buf.String(), "sessionid")
	assert.Contains(t, buf.String(), "IGEVENTS_SESSION_ID")
}
