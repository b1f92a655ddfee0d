package rbac

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// RoleDef declares one role: its own permissions and the roles it inherits
// from. The position of a RoleDef in the list passed to NewModel is its rank.
type RoleDef struct {
	Name        string   `koanf:"name" json:"name"`
	Permissions []string `koanf:"permissions" json:"permissions"`
	Inherits    []string `koanf:"inherits" json:"inherits"`
}

type permissionSet map[Permission]struct{}

// Model is the immutable role hierarchy. Ranks follow declaration order and
// effective permissions are resolved once, at construction.
type Model struct {
	order     []Role
	rank      map[Role]int
	effective map[Role]permissionSet
}

// DefaultRoles is the stock viewer < user < moderator < admin hierarchy.
func DefaultRoles() []RoleDef {
	return []RoleDef{
		{Name: string(RoleViewer), Permissions: []string{"profile:read", "catalog:read"}},
		{Name: string(RoleUser), Permissions: []string{"profile:write", "orders:read", "orders:write", "cart:write"}, Inherits: []string{string(RoleViewer)}},
		{Name: string(RoleModerator), Permissions: []string{"user:read", "reviews:moderate"}, Inherits: []string{string(RoleUser)}},
		{Name: string(RoleAdmin), Permissions: []string{"*"}, Inherits: []string{string(RoleModerator)}},
	}
}

// NewModel validates defs and builds the model. Duplicate names, references
// to undeclared roles and inheritance cycles are reported as *ConfigError.
func NewModel(defs []RoleDef) (*Model, error) {
	if len(defs) == 0 {
		return nil, &ConfigError{Op: "roles", Err: ErrEmptyRoleSet}
	}

	m := &Model{
		order:     make([]Role, 0, len(defs)),
		rank:      make(map[Role]int, len(defs)),
		effective: make(map[Role]permissionSet, len(defs)),
	}
	own := make(map[Role][]Permission, len(defs))
	parents := make(map[Role][]Role, len(defs))

	for i, d := range defs {
		name := Role(strings.TrimSpace(d.Name))
		if name == "" {
			return nil, &ConfigError{Op: "roles", Err: fmt.Errorf("role at position %d has no name", i)}
		}
		if _, dup := m.rank[name]; dup {
			return nil, &ConfigError{Op: "roles", Err: fmt.Errorf("%w: %s", ErrDuplicateRole, name)}
		}
		m.rank[name] = i
		m.order = append(m.order, name)
		for _, p := range d.Permissions {
			own[name] = append(own[name], Permission(p))
		}
	}

	for _, d := range defs {
		name := Role(strings.TrimSpace(d.Name))
		for _, in := range d.Inherits {
			parent := Role(strings.TrimSpace(in))
			if _, ok := m.rank[parent]; !ok {
				return nil, &ConfigError{Op: "roles", Err: fmt.Errorf("%w: %s inherits %q", ErrUnknownRole, name, parent)}
			}
			parents[name] = append(parents[name], parent)
		}
	}

	order, err := topoSort(m.order, parents)
	if err != nil {
		return nil, &ConfigError{Op: "roles", Err: err}
	}

	// Parents come first in order, so their sets are complete when read.
	for _, r := range order {
		set := make(permissionSet, len(own[r]))
		for _, p := range own[r] {
			set[p] = struct{}{}
		}
		for _, parent := range parents[r] {
			for p := range m.effective[parent] {
				set[p] = struct{}{}
			}
		}
		m.effective[r] = set
	}

	return m, nil
}

// topoSort orders roles so every role follows the roles it inherits from
// (Kahn's algorithm). Leftover nodes form at least one cycle.
func topoSort(roles []Role, parents map[Role][]Role) ([]Role, error) {
	pending := make(map[Role]int, len(roles))
	children := make(map[Role][]Role, len(roles))
	for _, r := range roles {
		pending[r] = len(parents[r])
		for _, p := range parents[r] {
			children[p] = append(children[p], r)
		}
	}

	var queue []Role
	for _, r := range roles {
		if pending[r] == 0 {
			queue = append(queue, r)
		}
	}

	order := make([]Role, 0, len(roles))
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		order = append(order, r)
		for _, c := range children[r] {
			pending[c]--
			if pending[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(order) < len(roles) {
		var stuck []string
		for _, r := range roles {
			if pending[r] > 0 {
				stuck = append(stuck, string(r))
			}
		}
		return nil, fmt.Errorf("%w among roles %s", ErrCyclicInheritance, strings.Join(stuck, ", "))
	}
	return order, nil
}

// Roles returns the role set, lowest rank first.
func (m *Model) Roles() []Role {
	return slices.Clone(m.order)
}

// Known reports whether role belongs to the closed set.
func (m *Model) Known(role Role) bool {
	_, ok := m.rank[role]
	return ok
}

func (m *Model) Rank(role Role) (int, error) {
	r, ok := m.rank[role]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return r, nil
}

// EffectivePermissions returns the role's own permissions plus everything it
// inherits, sorted.
func (m *Model) EffectivePermissions(role Role) ([]Permission, error) {
	set, ok := m.effective[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms, nil
}

// HasMinimumRole compares the principal's primary role against minimum. An
// absent principal or an unknown role ranks below everything.
func (m *Model) HasMinimumRole(p *Principal, minimum Role) bool {
	if p == nil {
		return false
	}
	want, err := m.Rank(minimum)
	if err != nil {
		return false
	}
	have, err := m.Rank(p.Role)
	if err != nil {
		return false
	}
	return have >= want
}

// HasAnyRole reports whether the primary role or any flat role is one of
// candidates.
func (m *Model) HasAnyRole(p *Principal, candidates []Role) bool {
	if p == nil || len(candidates) == 0 {
		return false
	}
	for _, held := range p.HeldRoles() {
		if !m.Known(held) {
			continue
		}
		if slices.Contains(candidates, held) {
			return true
		}
	}
	return false
}

// HasPermission checks the effective permissions of every held role and the
// permissions carried directly on the principal.
func (m *Model) HasPermission(p *Principal, perm Permission) bool {
	if p == nil {
		return false
	}
	for _, held := range p.HeldRoles() {
		for granted := range m.effective[held] {
			if grants(granted, perm) {
				return true
			}
		}
	}
	for _, granted := range p.Permissions {
		if grants(granted, perm) {
			return true
		}
	}
	return false
}

func grants(granted, want Permission) bool {
	if granted == Wildcard || granted == want {
		return true
	}
	resource, ok := strings.CutSuffix(string(granted), ":*")
	return ok && strings.HasPrefix(string(want), resource+":")
}
