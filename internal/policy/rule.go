// Package policy holds the route policy table: which paths are public, which
// need a signed-in principal, and which roles or permissions they require.
//
// A table is assembled with a Builder and frozen by Build. Resolution picks
// the rule with the longest pattern; equal lengths go to the rule declared
// first. Registering the same pattern twice is a configuration error, so two
// rules never compete on identical specificity.
package policy

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/portalguard/portalguard/internal/rbac"
)

var (
	ErrDuplicatePattern      = errors.New("duplicate route pattern")
	ErrInvalidPattern        = errors.New("invalid route pattern")
	ErrInvalidClass          = errors.New("invalid route class")
	ErrPublicWithRequirement = errors.New("public route cannot require roles or permissions")
)

// Class decides how the gateway answers a denial: pages redirect, APIs get
// JSON status codes.
type Class string

const (
	ClassPublic Class = "public"
	ClassPage   Class = "page"
	ClassAPI    Class = "api"
)

// Rule is a normalized, validated route rule.
type Rule struct {
	Pattern      string
	Class        Class
	Exact        bool
	RequireAuth  bool
	AllowedRoles []rbac.Role
	MinimumRole  rbac.Role
	Permissions  []rbac.Permission

	seq int
}

// Public reports whether the rule lets anonymous requests through.
func (r Rule) Public() bool {
	return r.Class == ClassPublic || !r.RequireAuth
}

func (r Rule) matches(p string) bool {
	if r.Exact {
		return p == r.Pattern
	}
	if r.Pattern == "/" {
		return true
	}
	return p == r.Pattern || strings.HasPrefix(p, r.Pattern+"/")
}

// RuleDef is the configuration shape of a rule. RequireAuth defaults to true
// unless the class is public.
type RuleDef struct {
	Pattern      string   `koanf:"pattern" json:"pattern"`
	Class        string   `koanf:"class" json:"class"`
	Exact        bool     `koanf:"exact" json:"exact"`
	RequireAuth  *bool    `koanf:"require_auth" json:"require_auth"`
	AllowedRoles []string `koanf:"allowed_roles" json:"allowed_roles"`
	MinimumRole  string   `koanf:"minimum_role" json:"minimum_role"`
	Permissions  []string `koanf:"permissions" json:"permissions"`
}

// Rule converts the definition into a normalized Rule.
func (d RuleDef) Rule() (Rule, error) {
	pattern, err := NormalizePattern(d.Pattern)
	if err != nil {
		return Rule{}, err
	}

	r := Rule{
		Pattern:     pattern,
		Class:       Class(strings.ToLower(strings.TrimSpace(d.Class))),
		Exact:       d.Exact,
		MinimumRole: rbac.Role(strings.TrimSpace(d.MinimumRole)),
	}
	for _, role := range d.AllowedRoles {
		r.AllowedRoles = append(r.AllowedRoles, rbac.Role(strings.TrimSpace(role)))
	}
	for _, perm := range d.Permissions {
		r.Permissions = append(r.Permissions, rbac.Permission(strings.TrimSpace(perm)))
	}

	switch {
	case d.RequireAuth != nil:
		r.RequireAuth = *d.RequireAuth
	default:
		r.RequireAuth = r.Class != ClassPublic
	}

	switch r.Class {
	case "":
		r.Class = deriveClass(r)
	case ClassPublic, ClassPage, ClassAPI:
	default:
		return Rule{}, fmt.Errorf("%w: %q for %s", ErrInvalidClass, d.Class, pattern)
	}

	if r.Class == ClassPublic {
		r.RequireAuth = false
	}
	if !r.RequireAuth && (len(r.AllowedRoles) > 0 || r.MinimumRole != "" || len(r.Permissions) > 0) {
		return Rule{}, fmt.Errorf("%w: %s", ErrPublicWithRequirement, pattern)
	}
	return r, nil
}

func deriveClass(r Rule) Class {
	switch {
	case !r.RequireAuth:
		return ClassPublic
	case r.Pattern == "/api" || strings.HasPrefix(r.Pattern, "/api/"):
		return ClassAPI
	default:
		return ClassPage
	}
}

// NormalizePattern returns the canonical form of a route pattern: one leading
// slash, no trailing slash, no dot segments.
func NormalizePattern(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.ContainsAny(p, "?#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPattern, p)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p), nil
}

// IsAPIPath reports whether a request path belongs to the API surface.
func IsAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}
