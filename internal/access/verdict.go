package access

import "github.com/portalguard/portalguard/internal/policy"

// Kind is the outcome of an access decision.
type Kind string

const (
	Allow                  Kind = "allow"
	RedirectToSignIn       Kind = "signin"
	RedirectToUnauthorized Kind = "unauthorized"
	Passthrough            Kind = "passthrough"
)

// Verdict is produced once per request and consumed by the gateway.
// CallbackURL is only set for RedirectToSignIn. Class and Pattern describe
// the rule that produced the verdict and are empty for unmatched or excluded
// paths.
type Verdict struct {
	Kind        Kind
	CallbackURL string
	Class       policy.Class
	Pattern     string
	Reason      string
}

// IsAPI reports whether the denial should be answered with a status code
// rather than a redirect.
func (v Verdict) IsAPI() bool {
	return v.Class == policy.ClassAPI
}
