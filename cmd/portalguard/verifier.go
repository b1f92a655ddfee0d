package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/portalguard/portalguard/internal/auth"
	"github.com/portalguard/portalguard/internal/platform/config"
	"github.com/portalguard/portalguard/internal/rbac"
)

// buildVerifier assembles the credential chain: session tokens and JWKS
// tokens, then the verified-token cache, then the revocation check, then the
// dev identity. The returned cleanup closes the Redis client when one was
// opened.
func buildVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, func(), error) {
	cleanup := func() {}

	var validators auth.AnyValidator
	if cfg.Auth.JWT.SigningKey != "" {
		validators = append(validators, auth.NewTokenService(
			cfg.Auth.JWT.SigningKey,
			cfg.Auth.JWT.Issuer,
			time.Duration(cfg.Auth.JWT.ExpiryHours)*time.Hour,
		))
	}
	if cfg.Auth.JWKS.URL != "" {
		keys := auth.NewJWKSClient(cfg.Auth.JWKS.URL, cfg.Auth.JWKS.RefreshInterval)
		validators = append(validators, auth.NewJWKSValidator(keys, cfg.Auth.JWKS.Issuer, cfg.Auth.JWKS.Audience))
	}

	var verifier auth.Verifier
	if len(validators) > 0 {
		var v auth.TokenValidator = validators
		if len(validators) == 1 {
			v = validators[0]
		}

		if cfg.Auth.Cache.Enabled {
			cached, err := auth.NewCachingValidator(v, cfg.Auth.Cache.Size, cfg.Auth.Cache.MaxAge)
			if err != nil {
				return nil, cleanup, fmt.Errorf("creating token cache: %w", err)
			}
			v = cached
		}

		if cfg.Auth.Revocation.Enabled {
			rdb, err := auth.OpenRedis(ctx, auth.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				PoolSize: cfg.Redis.PoolSize,
			})
			if err != nil {
				return nil, cleanup, err
			}
			cleanup = func() { _ = rdb.Close() }
			v = auth.NewRevocationValidator(v, auth.NewRedisRevocations(rdb, cfg.Auth.Revocation.Prefix))
			slog.Info("token revocation enabled", "redis", cfg.Redis.Addr)
		}

		verifier = auth.NewTokenVerifier(v, cfg.Auth.CookieName)
	}

	if cfg.Auth.DevMode {
		slog.Warn("running in dev mode, 'Bearer dev' authenticates as the dev principal", "role", cfg.Auth.DevRole)
		verifier = auth.NewDevVerifier(&rbac.Principal{
			ID:    "dev-user",
			Email: "dev@localhost",
			Role:  rbac.Role(cfg.Auth.DevRole),
		}, verifier)
	}

	if verifier == nil {
		return nil, cleanup, fmt.Errorf("no credential source configured")
	}
	return verifier, cleanup, nil
}
