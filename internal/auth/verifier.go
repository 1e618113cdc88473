package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type Verifier interface {
	VerifyAccessToken(ctx context.Context, accessToken string) (SupabaseUser, error)
}

type cachedUser struct {
	user    SupabaseUser
	expires time.Time
}

// CachedVerifier remembers successful verifications for ttl so each request
// does not round-trip to the auth server. Failures are never cached.
type CachedVerifier struct {
	next  Verifier
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewCachedVerifier(next Verifier, size int, ttl time.Duration) *CachedVerifier {
	if size <= 0 {
		size = 1024
	}
	cache, _ := lru.New(size)
	return &CachedVerifier{next: next, cache: cache, ttl: ttl, now: time.Now}
}

func (v *CachedVerifier) VerifyAccessToken(ctx context.Context, accessToken string) (SupabaseUser, error) {
	key := tokenKey(accessToken)
	if e, ok := v.cache.Get(key); ok {
		entry := e.(cachedUser)
		if v.now().Before(entry.expires) {
			return entry.user, nil
		}
		v.cache.Remove(key)
	}
	user, err := v.next.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return SupabaseUser{}, err
	}
	if v.ttl > 0 {
		v.cache.Add(key, cachedUser{user: user, expires: v.now().Add(v.ttl)})
	}
	return user, nil
}

// tokenKey hashes the token so raw bearer tokens are not kept in memory.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
