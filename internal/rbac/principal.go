package rbac

import "context"

// Principal is the verified identity attached to a single request. It always
// carries a canonical primary role; Roles holds additional flat memberships.
// A Principal is built once per request and never mutated.
type Principal struct {
	ID          string       `json:"id"`
	Email       string       `json:"email,omitempty"`
	Name        string       `json:"name,omitempty"`
	Role        Role         `json:"role"`
	Roles       []Role       `json:"roles,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	TokenID     string       `json:"-"`
}

// HeldRoles returns the primary role followed by the flat roles, without
// duplicates.
func (p *Principal) HeldRoles() []Role {
	if p == nil {
		return nil
	}
	held := make([]Role, 0, 1+len(p.Roles))
	seen := make(map[Role]struct{}, 1+len(p.Roles))
	for _, r := range append([]Role{p.Role}, p.Roles...) {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		held = append(held, r)
	}
	return held
}

type principalContextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFrom retrieves the request principal, or nil when the request is
// anonymous.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
