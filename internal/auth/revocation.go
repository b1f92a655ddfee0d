package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList answers whether a token id has been revoked.
type RevocationList interface {
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisConfig controls the revocation client.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// RedisRevocations stores revoked token ids as expiring keys.
type RedisRevocations struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRevocations(rdb redis.UniversalClient, prefix string) *RedisRevocations {
	if prefix == "" {
		prefix = "portalguard:revoked:"
	}
	return &RedisRevocations{rdb: rdb, prefix: prefix}
}

// Revoke marks tokenID as revoked for ttl, which should cover the token's
// remaining lifetime.
func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return fmt.Errorf("token id is required")
	}
	if err := r.rdb.Set(ctx, r.prefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (r *RedisRevocations) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return n > 0, nil
}

// RevocationValidator rejects tokens whose id is on the revocation list. A
// lookup failure rejects the token too.
type RevocationValidator struct {
	next TokenValidator
	list RevocationList
}

func NewRevocationValidator(next TokenValidator, list RevocationList) *RevocationValidator {
	return &RevocationValidator{next: next, list: list}
}

func (v *RevocationValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := v.next.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return claims, nil
	}
	revoked, err := v.list.Revoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: %s", ErrTokenRevoked, claims.ID)
	}
	return claims, nil
}
