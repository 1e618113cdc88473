package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVerifier struct {
	calls map[string]int
}

func (v *countingVerifier) VerifyAccessToken(_ context.Context, token string) (SupabaseUser, error) {
	v.calls[token]++
	if token == "bad" {
		return SupabaseUser{}, ErrInvalidToken
	}
	return SupabaseUser{ID: "user-" + token}, nil
}

func TestCachedVerifierCachesUntilExpiry(t *testing.T) {
	inner := &countingVerifier{calls: map[string]int{}}
	v := NewCachedVerifier(inner, 8, time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		u, err := v.VerifyAccessToken(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, "user-a", u.ID)
	}
	assert.Equal(t, 1, inner.calls["a"])

	now = now.Add(2 * time.Minute)
	_, err := v.VerifyAccessToken(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls["a"])
}

func TestCachedVerifierDoesNotCacheFailures(t *testing.T) {
	inner := &countingVerifier{calls: map[string]int{}}
	v := NewCachedVerifier(inner, 8, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := v.VerifyAccessToken(context.Background(), "bad")
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, 2, inner.calls["bad"])
}

func TestCachedVerifierEvictsLeastRecent(t *testing.T) {
	inner := &countingVerifier{calls: map[string]int{}}
	v := NewCachedVerifier(inner, 2, time.Hour)
	ctx := context.Background()

	for _, tok := range []string{"a", "b", "c", "a"} {
		_, err := v.VerifyAccessToken(ctx, tok)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.calls["a"])
	assert.Equal(t, 1, inner.calls["b"])
}
