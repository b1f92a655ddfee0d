// Package guard is the advisory, client-facing mirror of the gateway's
// decision. It answers "should this UI fragment render for this principal"
// using the same access.Engine, so the two never drift. It is never an
// enforcement point.
package guard

import (
	"github.com/portalguard/portalguard/internal/access"
	"github.com/portalguard/portalguard/internal/policy"
	"github.com/portalguard/portalguard/internal/rbac"
)

// Outcome tells a client what to show in place of guarded content.
type Outcome string

const (
	OutcomeLoading  Outcome = "loading"
	OutcomeRender   Outcome = "render"
	OutcomeSignIn   Outcome = "signin"
	OutcomeFallback Outcome = "fallback"
)

// Snapshot is the principal as the client currently knows it. Loading is set
// while the session is still being fetched.
type Snapshot struct {
	Principal *rbac.Principal
	Loading   bool
}

// Requirement is an inline rule attached to a UI fragment rather than a
// route. A requirement with roles or permissions always needs a principal.
type Requirement struct {
	AllowedRoles []rbac.Role
	MinimumRole  rbac.Role
	Permissions  []rbac.Permission
	RequireAuth  bool
}

func (req Requirement) rule() policy.Rule {
	protected := req.RequireAuth || len(req.AllowedRoles) > 0 || req.MinimumRole != "" || len(req.Permissions) > 0
	class := policy.ClassPage
	if !protected {
		class = policy.ClassPublic
	}
	return policy.Rule{
		Class:        class,
		RequireAuth:  protected,
		AllowedRoles: req.AllowedRoles,
		MinimumRole:  req.MinimumRole,
		Permissions:  req.Permissions,
	}
}

// Evaluate decides what to show for req given the snapshot. A nil engine
// never renders guarded content.
func Evaluate(engine *access.Engine, s Snapshot, req Requirement) Outcome {
	if s.Loading {
		return OutcomeLoading
	}
	if engine == nil {
		return OutcomeFallback
	}
	return outcomeOf(engine.Authorize(req.rule(), s.Principal))
}

func outcomeOf(v access.Verdict) Outcome {
	switch v.Kind {
	case access.Allow, access.Passthrough:
		return OutcomeRender
	case access.RedirectToSignIn:
		return OutcomeSignIn
	default:
		return OutcomeFallback
	}
}
