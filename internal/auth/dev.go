package auth

import (
	"context"
	"net/http"

	"github.com/portalguard/portalguard/internal/rbac"
)

// DevVerifier accepts "Bearer dev" as the fixed dev principal and hands
// everything else to next. Only wire it when dev mode is on.
type DevVerifier struct {
	principal *rbac.Principal
	next      Verifier
}

func NewDevVerifier(principal *rbac.Principal, next Verifier) *DevVerifier {
	return &DevVerifier{principal: principal, next: next}
}

func (d *DevVerifier) Verify(ctx context.Context, r *http.Request) (*rbac.Principal, error) {
	if r.Header.Get("Authorization") == "Bearer dev" && d.principal != nil {
		return d.principal, nil
	}
	if d.next == nil {
		return nil, ErrNoCredentials
	}
	return d.next.Verify(ctx, r)
}
