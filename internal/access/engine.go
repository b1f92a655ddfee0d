// Package access turns a request target and an optional principal into a
// Verdict. The engine is pure: it does no I/O and holds no mutable state, so
// one instance serves any number of concurrent requests.
package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/portalguard/portalguard/internal/policy"
	"github.com/portalguard/portalguard/internal/rbac"
)

// Engine combines a role model, a frozen policy table and the exclusion
// matcher. Build one with Build; never modify it afterwards.
type Engine struct {
	model      *rbac.Model
	table      *policy.Table
	exclusions *policy.Exclusions
}

// New assembles an engine from already validated parts.
func New(model *rbac.Model, table *policy.Table, exclusions *policy.Exclusions) *Engine {
	if exclusions == nil {
		exclusions = policy.NewExclusions(policy.ExclusionDef{})
	}
	return &Engine{model: model, table: table, exclusions: exclusions}
}

// Build validates doc and compiles it into an Engine. Every problem found is
// returned, joined, as *rbac.ConfigError values; the process must not serve
// traffic with a document that fails here.
func Build(doc policy.Document) (*Engine, error) {
	model, err := rbac.NewModel(doc.Roles)
	if err != nil {
		return nil, err
	}

	var errs []error
	b := policy.NewBuilder()
	for _, d := range doc.Rules {
		r, err := d.Rule()
		if err != nil {
			errs = append(errs, &rbac.ConfigError{Op: "policy", Err: err})
			continue
		}
		if err := checkRoles(model, r); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := b.Register(r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return New(model, b.Build(), policy.NewExclusions(doc.Exclusions)), nil
}

func checkRoles(model *rbac.Model, r policy.Rule) error {
	var unknown []string
	for _, role := range r.AllowedRoles {
		if !model.Known(role) {
			unknown = append(unknown, string(role))
		}
	}
	if r.MinimumRole != "" && !model.Known(r.MinimumRole) {
		unknown = append(unknown, string(r.MinimumRole))
	}
	if len(unknown) == 0 {
		return nil
	}
	return &rbac.ConfigError{
		Op:  "policy",
		Err: fmt.Errorf("%w: rule %s references %s", rbac.ErrUnknownRole, r.Pattern, strings.Join(unknown, ", ")),
	}
}

func (e *Engine) Model() *rbac.Model {
	return e.model
}

func (e *Engine) Table() *policy.Table {
	return e.table
}

func (e *Engine) Exclusions() *policy.Exclusions {
	return e.exclusions
}

// Decide computes the verdict for target, the request path with its query
// string. The path part must already be normalized. A principal whose role is
// not in the model counts as absent.
func (e *Engine) Decide(target string, principal *rbac.Principal) Verdict {
	p, _, _ := strings.Cut(target, "?")

	if e.exclusions.Match(p) {
		return Verdict{Kind: Passthrough, Reason: "excluded"}
	}

	rule, ok := e.table.Resolve(p)
	if !ok {
		return Verdict{Kind: Passthrough, Reason: "no matching rule"}
	}
	if rule.Public() {
		return Verdict{Kind: Passthrough, Class: rule.Class, Pattern: rule.Pattern, Reason: "public"}
	}

	v := e.Authorize(rule, principal)
	if v.Kind == RedirectToSignIn {
		v.CallbackURL = target
	}
	return v
}

// Authorize checks principal against a single rule. It never returns
// Passthrough for a protected rule and never fills CallbackURL.
func (e *Engine) Authorize(rule policy.Rule, principal *rbac.Principal) Verdict {
	v := Verdict{Class: rule.Class, Pattern: rule.Pattern}

	if rule.Public() {
		v.Kind = Allow
		v.Reason = "public"
		return v
	}

	if principal == nil || !e.model.Known(principal.Role) {
		v.Kind = RedirectToSignIn
		v.Reason = "authentication required"
		return v
	}

	if !e.satisfiesRoles(rule, principal) {
		v.Kind = RedirectToUnauthorized
		v.Reason = "role not allowed"
		return v
	}

	for _, perm := range rule.Permissions {
		if !e.model.HasPermission(principal, perm) {
			v.Kind = RedirectToUnauthorized
			v.Reason = "missing permission " + string(perm)
			return v
		}
	}

	v.Kind = Allow
	return v
}

// satisfiesRoles passes when the rule names no roles, when the principal holds
// one of the allowed roles, or when it meets the minimum role.
func (e *Engine) satisfiesRoles(rule policy.Rule, principal *rbac.Principal) bool {
	if len(rule.AllowedRoles) == 0 && rule.MinimumRole == "" {
		return true
	}
	if e.model.HasAnyRole(principal, rule.AllowedRoles) {
		return true
	}
	return rule.MinimumRole != "" && e.model.HasMinimumRole(principal, rule.MinimumRole)
}
