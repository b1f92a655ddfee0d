package policy

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/portalguard/portalguard/internal/rbac"
)

// Document is the full authorization configuration: the role hierarchy, the
// route rules in declaration order and the infrastructure exclusions.
type Document struct {
	Roles      []rbac.RoleDef `koanf:"roles" json:"roles"`
	Rules      []RuleDef      `koanf:"rules" json:"rules"`
	Exclusions ExclusionDef   `koanf:"exclusions" json:"exclusions"`
}

// Loader produces a policy Document from some source.
type Loader interface {
	Load(ctx context.Context) (Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Document, error)

func (f LoaderFunc) Load(ctx context.Context) (Document, error) { return f(ctx) }

func boolPtr(b bool) *bool { return &b }

// DefaultDocument is the built-in policy for the portal and the storefront.
func DefaultDocument() Document {
	everyone := []string{"viewer", "user", "moderator", "admin"}
	customers := []string{"user", "moderator", "admin"}
	staff := []string{"moderator", "admin"}

	return Document{
		Roles: rbac.DefaultRoles(),
		Rules: []RuleDef{
			{Pattern: "/", Exact: true, Class: "public"},
			{Pattern: "/products", Class: "public"},
			{Pattern: "/auth", Class: "public"},
			{Pattern: "/unauthorized", Class: "public"},
			{Pattern: "/api/products", Class: "public"},

			// portal
			{Pattern: "/dashboard", AllowedRoles: everyone},
			{Pattern: "/profile", MinimumRole: "viewer"},
			{Pattern: "/settings", MinimumRole: "user"},
			{Pattern: "/moderation", AllowedRoles: staff},
			{Pattern: "/admin", AllowedRoles: []string{"admin"}},

			// storefront
			{Pattern: "/account", AllowedRoles: customers},
			{Pattern: "/orders", AllowedRoles: customers},
			{Pattern: "/checkout", AllowedRoles: customers, Permissions: []string{"cart:write"}},
			{Pattern: "/wishlist", AllowedRoles: customers},

			{Pattern: "/api/admin", AllowedRoles: []string{"admin"}},
			{Pattern: "/api/moderation", AllowedRoles: staff},
			{Pattern: "/api/user", MinimumRole: "viewer"},
			{Pattern: "/api/orders", AllowedRoles: customers, Permissions: []string{"orders:read"}},
			{Pattern: "/api/cart", MinimumRole: "user", Permissions: []string{"cart:write"}},
			{Pattern: "/api/health", Class: "public", RequireAuth: boolPtr(false)},
		},
		Exclusions: DefaultExclusions(),
	}
}

// LoadFile reads a YAML policy document. Missing sections fall back to the
// defaults: no roles means the default hierarchy, no exclusions means the
// default matcher.
func LoadFile(path string) (Document, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Document{}, fmt.Errorf("reading policy file %s: %w", path, err)
	}

	var doc Document
	if err := k.Unmarshal("", &doc); err != nil {
		return Document{}, fmt.Errorf("decoding policy file %s: %w", path, err)
	}

	if len(doc.Roles) == 0 {
		doc.Roles = rbac.DefaultRoles()
	}
	if !k.Exists("exclusions") {
		doc.Exclusions = DefaultExclusions()
	}
	return doc, nil
}

// FileLoader loads a YAML document on every call.
func FileLoader(path string) Loader {
	return LoaderFunc(func(context.Context) (Document, error) {
		return LoadFile(path)
	})
}

// StaticLoader always returns doc.
func StaticLoader(doc Document) Loader {
	return LoaderFunc(func(context.Context) (Document, error) {
		return doc, nil
	})
}
