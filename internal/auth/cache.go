package auth

import (
	"context"
	"crypto/sha256"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type cachedClaims struct {
	claims *Claims
	until  time.Time
}

// CachingValidator remembers successfully validated tokens so repeated
// requests with the same session skip signature checks. Entries never outlive
// the token's own expiry. Failures are not cached.
type CachingValidator struct {
	next   TokenValidator
	cache  *lru.Cache
	maxAge time.Duration
	now    func() time.Time
}

// NewCachingValidator wraps next with an LRU of size entries, each kept for at
// most maxAge.
func NewCachingValidator(next TokenValidator, size int, maxAge time.Duration) (*CachingValidator, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachingValidator{next: next, cache: cache, maxAge: maxAge, now: time.Now}, nil
}

func (c *CachingValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	key := sha256.Sum256([]byte(token))
	now := c.now()

	if v, ok := c.cache.Get(key); ok {
		entry := v.(cachedClaims)
		if now.Before(entry.until) {
			return entry.claims, nil
		}
		c.cache.Remove(key)
	}

	claims, err := c.next.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	until := now.Add(c.maxAge)
	if exp := claims.ExpiresAtTime(); !exp.IsZero() && exp.Before(until) {
		until = exp
	}
	c.cache.Add(key, cachedClaims{claims: claims, until: until})
	return claims, nil
}
