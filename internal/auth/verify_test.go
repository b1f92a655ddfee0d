package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portalguard/portalguard/internal/auth"
	"github.com/portalguard/portalguard/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWithin_ReturnsPrincipal(t *testing.T) {
	v := auth.VerifierFunc(func(context.Context, *http.Request) (*rbac.Principal, error) {
		return &rbac.Principal{ID: "u", Role: rbac.RoleUser}, nil
	})

	p, err := auth.VerifyWithin(context.Background(), v, httptest.NewRequest(http.MethodGet, "/", nil), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "u", p.ID)
}

func TestVerifyWithin_PassesVerifierError(t *testing.T) {
	v := auth.VerifierFunc(func(context.Context, *http.Request) (*rbac.Principal, error) {
		return nil, auth.ErrTokenExpired
	})

	_, err := auth.VerifyWithin(context.Background(), v, httptest.NewRequest(http.MethodGet, "/", nil), time.Second)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestVerifyWithin_Timeout(t *testing.T) {
	v := auth.VerifierFunc(func(ctx context.Context, _ *http.Request) (*rbac.Principal, error) {
		<-ctx.Done()
		return &rbac.Principal{ID: "late", Role: rbac.RoleAdmin}, nil
	})

	p, err := auth.VerifyWithin(context.Background(), v, httptest.NewRequest(http.MethodGet, "/", nil), 10*time.Millisecond)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, auth.ErrVerifyUnfinished)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerifyWithin_CallerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := auth.VerifierFunc(func(ctx context.Context, _ *http.Request) (*rbac.Principal, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := auth.VerifyWithin(ctx, v, httptest.NewRequest(http.MethodGet, "/", nil), time.Second)
	assert.ErrorIs(t, err, auth.ErrVerifyUnfinished)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyWithin_RecoversPanic(t *testing.T) {
	v := auth.VerifierFunc(func(context.Context, *http.Request) (*rbac.Principal, error) {
		panic("bad token")
	})

	p, err := auth.VerifyWithin(context.Background(), v, httptest.NewRequest(http.MethodGet, "/", nil), time.Second)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, auth.ErrVerifierPanicked))
	assert.Contains(t, err.Error(), "bad token")
}
