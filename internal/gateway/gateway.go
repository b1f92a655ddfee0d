// Package gateway is the HTTP boundary of the authorization engine. It
// resolves the principal through an auth.Verifier, asks the current
// access.Engine for a verdict and turns the verdict into a forwarded request,
// a redirect or a JSON status.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/portalguard/portalguard/internal/access"
	"github.com/portalguard/portalguard/internal/audit"
	"github.com/portalguard/portalguard/internal/auth"
	"github.com/portalguard/portalguard/internal/policy"
	"github.com/portalguard/portalguard/internal/rbac"
)

// Config holds the gateway's routing targets and limits.
type Config struct {
	SignInPath       string
	UnauthorizedPath string
	VerifyTimeout    time.Duration
	Locales          []string
}

func (c Config) withDefaults() Config {
	if c.SignInPath == "" {
		c.SignInPath = "/auth/signin"
	}
	if c.UnauthorizedPath == "" {
		c.UnauthorizedPath = "/unauthorized"
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = auth.DefaultVerifyTimeout
	}
	return c
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAuditLogger sends denials and failures to l.
func WithAuditLogger(l audit.Logger) Option {
	return func(g *Gateway) { g.audit = l }
}

// WithMetrics records verdicts and verification failures in m.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// Gateway enforces the current policy on every request.
type Gateway struct {
	engines  *access.Holder
	verifier auth.Verifier
	cfg      Config
	locales  policy.Locales
	audit    audit.Logger
	metrics  *Metrics
	logger   *slog.Logger
}

func New(engines *access.Holder, verifier auth.Verifier, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		engines:  engines,
		verifier: verifier,
		cfg:      cfg.withDefaults(),
		audit:    audit.NopLogger{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.locales = policy.NewLocales(g.cfg.Locales)
	return g
}

type evaluation struct {
	verdict   access.Verdict
	principal *rbac.Principal
}

// Middleware wraps next, which receives only allowed and passthrough
// requests.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripPrincipalHeaders(r.Header)

		start := time.Now()
		ev, err := g.evaluate(r)
		g.metrics.observe(time.Since(start))
		if err != nil {
			g.failClosed(w, r, err)
			return
		}
		g.dispatch(w, r, next, ev)
	})
}

// evaluate never lets a panic escape: any failure before a verdict exists is
// returned as an error and answered with a sign-in.
func (g *Gateway) evaluate(r *http.Request) (ev evaluation, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("authorization panicked: %v", rec)
		}
	}()

	engine := g.engines.Engine()
	if engine == nil {
		return evaluation{}, errors.New("no policy engine loaded")
	}

	p := policy.NormalizeRequestPath(r.URL.Path, g.locales)
	if engine.Exclusions().Match(p) {
		return evaluation{verdict: access.Verdict{Kind: access.Passthrough, Reason: "excluded"}}, nil
	}

	principal := g.verify(r)
	if principal != nil && !engine.Model().Known(principal.Role) {
		g.logger.Warn("principal has unknown role",
			"principal_id", principal.ID, "role", principal.Role, "path", r.URL.Path)
		g.metrics.verificationFailure("unknown_role")
		g.record(r, audit.ActionUnknownRole, principal, access.Verdict{}, nil)
		principal = nil
	}

	target := p
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	v := engine.Decide(target, principal)
	if v.Kind == access.RedirectToSignIn {
		v.CallbackURL = r.URL.RequestURI()
	}
	return evaluation{verdict: v, principal: principal}, nil
}

// verify resolves the principal within the configured timeout. Errors, panics
// and timeouts all yield nil.
func (g *Gateway) verify(r *http.Request) *rbac.Principal {
	if g.verifier == nil {
		return nil
	}

	p, err := auth.VerifyWithin(r.Context(), g.verifier, r, g.cfg.VerifyTimeout)
	switch {
	case errors.Is(err, auth.ErrVerifyUnfinished):
		g.unfinished(r)
		return nil
	case err != nil:
		g.rejected(r, err)
		return nil
	}
	return p
}

// unfinished records a verification cut short by the timeout or by the
// client going away.
func (g *Gateway) unfinished(r *http.Request) {
	reason := "timeout"
	if r.Context().Err() != nil {
		reason = "canceled"
	}
	g.metrics.verificationFailure(reason)
	g.logger.Warn("principal verification did not finish",
		"reason", reason, "path", r.URL.Path, "timeout", g.cfg.VerifyTimeout)
}

func (g *Gateway) rejected(r *http.Request, err error) {
	var reason string
	switch {
	case errors.Is(err, auth.ErrNoCredentials):
		return
	case errors.Is(err, auth.ErrTokenExpired):
		reason = "expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		reason = "revoked"
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrKeyNotFound):
		reason = "invalid"
	default:
		reason = "error"
	}
	g.metrics.verificationFailure(reason)

	level := slog.LevelDebug
	if reason == "error" {
		level = slog.LevelWarn
	}
	g.logger.Log(r.Context(), level, "credential rejected", "reason", reason, "path", r.URL.Path, "error", err)
}

func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request, next http.Handler, ev evaluation) {
	v := ev.verdict
	w.Header().Set(VerdictHeader, string(v.Kind))
	g.metrics.verdict(string(v.Kind), string(v.Class))

	switch v.Kind {
	case access.Allow:
		setPrincipalHeaders(r.Header, ev.principal)
		next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), ev.principal)))

	case access.Passthrough:
		if ev.principal != nil {
			r = r.WithContext(rbac.WithPrincipal(r.Context(), ev.principal))
		}
		next.ServeHTTP(w, r)

	case access.RedirectToSignIn:
		g.record(r, audit.ActionSignInRequired, nil, v, nil)
		if v.IsAPI() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication_required"})
			return
		}
		redirect(w, signInURL(g.cfg.SignInPath, v.CallbackURL))

	case access.RedirectToUnauthorized:
		g.record(r, audit.ActionAccessDenied, ev.principal, v, nil)
		if v.IsAPI() {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient_permissions"})
			return
		}
		redirect(w, g.cfg.UnauthorizedPath)

	default:
		g.failClosed(w, r, fmt.Errorf("unexpected verdict %q", v.Kind))
	}
}

// failClosed answers as if the request were anonymous on a protected route.
func (g *Gateway) failClosed(w http.ResponseWriter, r *http.Request, cause error) {
	g.metrics.failClosed()
	g.metrics.verdict(string(access.RedirectToSignIn), "")
	g.logger.Error("authorization failed closed", "path", r.URL.Path, "error", cause)
	g.record(r, audit.ActionFailClosed, nil, access.Verdict{Kind: access.RedirectToSignIn},
		map[string]any{audit.MetadataReason: cause.Error()})

	w.Header().Set(VerdictHeader, string(access.RedirectToSignIn))
	if policy.IsAPIPath(policy.NormalizeRequestPath(r.URL.Path, g.locales)) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication_required"})
		return
	}
	redirect(w, signInURL(g.cfg.SignInPath, r.URL.RequestURI()))
}
