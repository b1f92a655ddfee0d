package policy

import (
	"fmt"
	"slices"
	"sort"

	"github.com/portalguard/portalguard/internal/rbac"
)

// Builder collects rules before the table is frozen. It is not safe for
// concurrent use.
type Builder struct {
	rules []Rule
	seen  map[string]struct{}
}

func NewBuilder() *Builder {
	return &Builder{seen: make(map[string]struct{})}
}

// Register adds a rule. A pattern that normalizes to one already registered
// is rejected, whatever its match mode.
func (b *Builder) Register(r Rule) error {
	pattern, err := NormalizePattern(r.Pattern)
	if err != nil {
		return &rbac.ConfigError{Op: "policy", Err: err}
	}
	r.Pattern = pattern

	if _, dup := b.seen[pattern]; dup {
		return &rbac.ConfigError{Op: "policy", Err: fmt.Errorf("%w: %s", ErrDuplicatePattern, pattern)}
	}
	if r.Class == "" {
		r.Class = deriveClass(r)
	}
	if r.Public() && (len(r.AllowedRoles) > 0 || r.MinimumRole != "" || len(r.Permissions) > 0) {
		return &rbac.ConfigError{Op: "policy", Err: fmt.Errorf("%w: %s", ErrPublicWithRequirement, pattern)}
	}

	r.seq = len(b.rules)
	r.AllowedRoles = slices.Clone(r.AllowedRoles)
	r.Permissions = slices.Clone(r.Permissions)
	b.seen[pattern] = struct{}{}
	b.rules = append(b.rules, r)
	return nil
}

// RegisterDef converts and registers a configuration rule.
func (b *Builder) RegisterDef(d RuleDef) error {
	r, err := d.Rule()
	if err != nil {
		return &rbac.ConfigError{Op: "policy", Err: err}
	}
	return b.Register(r)
}

// Build freezes the collected rules into a Table. The builder may be
// discarded afterwards; the table shares nothing with it.
func (b *Builder) Build() *Table {
	byPriority := slices.Clone(b.rules)
	sort.SliceStable(byPriority, func(i, j int) bool {
		li, lj := len(byPriority[i].Pattern), len(byPriority[j].Pattern)
		if li != lj {
			return li > lj
		}
		return byPriority[i].seq < byPriority[j].seq
	})
	return &Table{
		declared:   slices.Clone(b.rules),
		byPriority: byPriority,
	}
}

// Table is an immutable route policy table.
type Table struct {
	declared   []Rule
	byPriority []Rule // longest pattern first, then declaration order
}

// Resolve returns the most specific rule matching p. A false result means the
// path is unrestricted.
func (t *Table) Resolve(p string) (Rule, bool) {
	for _, r := range t.byPriority {
		if r.matches(p) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns the rules in declaration order.
func (t *Table) Rules() []Rule {
	return slices.Clone(t.declared)
}

func (t *Table) Len() int { return len(t.declared) }
