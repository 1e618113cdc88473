package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LSIM_HOME", dir)

	_, err := LoadSession()
	require.Error(t, err)

	require.NoError(t, SaveSession(Session{AccessToken: "tok", Email: "sam@example.com"}))
	info, err := os.Stat(filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	s, err := LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "tok", s.AccessToken)

	require.NoError(t, ClearSession())
	require.NoError(t, ClearSession())
	_, err = LoadSession()
	assert.Error(t, err)
}

func TestLoadSessionRequiresToken(t *testing.T) {
	t.Setenv("LSIM_HOME", t.TempDir())
	require.NoError(t, SaveSession(Session{Email: "sam@example.com"}))
	_, err := LoadSession()
	assert.Error(t, err)
}

func TestLoadSessionExpired(t *testing.T) {
	t.Setenv("LSIM_HOME", t.TempDir())
	require.NoError(t, SaveSession(Session{AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Minute)}))
	_, err := LoadSession()
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, SaveSession(Session{AccessToken: "tok", ExpiresAt: ExpiryFromNow(3600)}))
	s, err := LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "tok", s.AccessToken)
}

func TestExpiryFromNow(t *testing.T) {
	assert.True(t, ExpiryFromNow(0).IsZero())
	got := ExpiryFromNow(60)
	assert.WithinDuration(t, time.Now().Add(time.Minute), got, 5*time.Second)
}
