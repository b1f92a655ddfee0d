// Package auth turns request credentials into a verified rbac.Principal. It
// only verifies; sessions are issued by the identity provider in front of the
// platform.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/portalguard/portalguard/internal/rbac"
)

var (
	ErrNoCredentials = errors.New("no credentials")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenRevoked  = errors.New("token revoked")
	ErrKeyNotFound   = errors.New("signing key not found")
)

// Verifier resolves the principal behind a request. ErrNoCredentials means
// the request is anonymous; any other error means the credential was present
// but could not be trusted.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request) (*rbac.Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, r *http.Request) (*rbac.Principal, error)

func (f VerifierFunc) Verify(ctx context.Context, r *http.Request) (*rbac.Principal, error) {
	return f(ctx, r)
}

// TokenValidator checks a raw token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Claims is the session token payload shared by the HS256 and RS256 paths.
type Claims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"perms,omitempty"`
}

// Principal converts the claims. A token with only a role list gets its first
// entry as primary role; a token with no role at all is invalid.
func (c *Claims) Principal() (*rbac.Principal, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	primary := strings.TrimSpace(c.Role)
	if primary == "" && len(c.Roles) > 0 {
		primary = strings.TrimSpace(c.Roles[0])
	}
	if primary == "" {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}

	p := &rbac.Principal{
		ID:      c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		Role:    rbac.Role(primary),
		TokenID: c.ID,
	}
	for _, r := range c.Roles {
		if r = strings.TrimSpace(r); r != "" && r != primary {
			p.Roles = append(p.Roles, rbac.Role(r))
		}
	}
	for _, perm := range c.Permissions {
		p.Permissions = append(p.Permissions, rbac.Permission(perm))
	}
	return p, nil
}

// ExpiresAtTime returns the token expiry, or the zero time when the token has
// none.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	if errors.Is(err, ErrKeyNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
}

// Credential extracts the raw token: a Bearer Authorization header first,
// then the named session cookie.
func Credential(r *http.Request, cookieName string) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", fmt.Errorf("%w: malformed authorization header", ErrTokenInvalid)
		}
		return strings.TrimSpace(token), nil
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrNoCredentials
}

// TokenVerifier verifies request credentials with a TokenValidator.
type TokenVerifier struct {
	validator  TokenValidator
	cookieName string
}

func NewTokenVerifier(validator TokenValidator, cookieName string) *TokenVerifier {
	return &TokenVerifier{validator: validator, cookieName: cookieName}
}

func (v *TokenVerifier) Verify(ctx context.Context, r *http.Request) (*rbac.Principal, error) {
	token, err := Credential(r, v.cookieName)
	if err != nil {
		return nil, err
	}
	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return claims.Principal()
}

// AnyValidator tries validators in order and returns the first success. When
// all fail, the first error is returned.
type AnyValidator []TokenValidator

func (a AnyValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	var first error
	for _, v := range a {
		claims, err := v.ValidateToken(ctx, token)
		if err == nil {
			return claims, nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = fmt.Errorf("%w: no validator configured", ErrTokenInvalid)
	}
	return nil, first
}
