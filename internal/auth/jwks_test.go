package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper: build a minimal JWKS JSON from an RSA public key
func buildJWKS(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	b, err := json.Marshal(jwks)
	require.NoError(t, err)
	return b
}

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buildJWKS(t, kid, pub))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSClient_GetKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	kid := "test-key-1"
	var calls atomic.Int32
	srv := jwksServer(t, kid, &priv.PublicKey, &calls)

	client := NewJWKSClient(srv.URL, 1*time.Hour)
	ctx := context.Background()

	t.Run("fetches key on first call", func(t *testing.T) {
		key, err := client.GetKey(ctx, kid)
		require.NoError(t, err)
		assert.NotNil(t, key)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("returns cached key on second call", func(t *testing.T) {
		key, err := client.GetKey(ctx, kid)
		require.NoError(t, err)
		assert.NotNil(t, key)
		assert.Equal(t, int32(1), calls.Load(), "should not re-fetch")
	})

	t.Run("unknown kid triggers refresh", func(t *testing.T) {
		_, err := client.GetKey(ctx, "unknown-kid")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, int32(2), calls.Load(), "should have re-fetched once")
	})
}

func TestJWKSClient_CacheExpiry(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	kid := "test-key-1"
	var calls atomic.Int32
	srv := jwksServer(t, kid, &priv.PublicKey, &calls)

	// Very short TTL to test expiry
	client := NewJWKSClient(srv.URL, 1*time.Millisecond)

	_, err = client.GetKey(context.Background(), kid)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	time.Sleep(5 * time.Millisecond)

	_, err = client.GetKey(context.Background(), kid)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "should re-fetch after TTL expiry")
}

func TestJWKSClient_BreakerOpensOnRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewJWKSClient(srv.URL, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.GetKey(ctx, "k")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.GetKey(ctx, "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not hit the endpoint")
}

func signRS256(t *testing.T, priv *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(priv)
	require.NoError(t, err)
	return s
}

func TestJWKSValidator(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var calls atomic.Int32
	srv := jwksServer(t, "k1", &priv.PublicKey, &calls)
	v := NewJWKSValidator(NewJWKSClient(srv.URL, time.Hour), "https://id.example.com", "portal")
	ctx := context.Background()

	good := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://id.example.com",
			Subject:   "user-9",
			Audience:  jwt.ClaimStrings{"portal"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "moderator",
	}

	t.Run("valid", func(t *testing.T) {
		claims, err := v.ValidateToken(ctx, signRS256(t, priv, "k1", good))
		require.NoError(t, err)
		assert.Equal(t, "user-9", claims.Subject)
		assert.Equal(t, "moderator", claims.Role)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := good
		c.Audience = jwt.ClaimStrings{"storefront"}
		_, err := v.ValidateToken(ctx, signRS256(t, priv, "k1", c))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := v.ValidateToken(ctx, signRS256(t, priv, "k2", good))
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("signed by another key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = v.ValidateToken(ctx, signRS256(t, other, "k1", good))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("hs256 rejected", func(t *testing.T) {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, good).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = v.ValidateToken(ctx, s)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
