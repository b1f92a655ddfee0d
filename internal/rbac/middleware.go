package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/portalguard/portalguard/internal/audit"
)

// MiddlewareOption configures RBAC middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	audit  audit.Logger
	logger *slog.Logger
}

// WithAuditLogger attaches an audit logger to log RBAC denials.
func WithAuditLogger(logger audit.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.audit = logger
	}
}

// WithLogger sets the logger for failed checks. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logger = logger
	}
}

// RequirePermission returns middleware that checks if the request principal
// has the specified permission. It is meant for API handlers and always
// answers with JSON. A principal whose role is unknown to the model is
// treated as absent.
func RequirePermission(engine PolicyEngine, permission Permission, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := middlewareConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFrom(r.Context())
			if principal == nil {
				writeError(w, http.StatusUnauthorized, map[string]string{
					"error": "authentication_required",
				})
				return
			}

			decision, err := engine.Authorize(r.Context(), principal, permission)
			if errors.Is(err, ErrUnknownRole) {
				mc.logger.Warn("principal has unknown role",
					"principal_id", principal.ID, "role", principal.Role, "path", r.URL.Path)
				if mc.audit != nil {
					mc.audit.Log(r.Context(), audit.Event{
						PrincipalID: principal.ID,
						Role:        string(principal.Role),
						Action:      audit.ActionUnknownRole,
						Method:      r.Method,
						Path:        r.URL.Path,
						Source:      audit.SourceAPI,
					})
				}
				writeError(w, http.StatusUnauthorized, map[string]string{
					"error": "authentication_required",
				})
				return
			}
			if err != nil {
				// Fail closed: a broken check is a denial, never a pass.
				mc.logger.Error("permission check failed", "permission", permission, "path", r.URL.Path, "error", err)
				writeError(w, http.StatusForbidden, map[string]string{
					"error": "insufficient_permissions",
				})
				return
			}

			if !decision.Allowed {
				if mc.audit != nil {
					mc.audit.Log(r.Context(), audit.Event{
						PrincipalID: principal.ID,
						Role:        string(principal.Role),
						Action:      audit.ActionPermissionDenied,
						Method:      r.Method,
						Path:        r.URL.Path,
						Metadata: map[string]any{
							audit.MetadataPermission: string(permission),
							audit.MetadataReason:     decision.Reason,
						},
						Source: audit.SourceAPI,
					})
				}
				mc.logger.Debug("permission denied",
					"principal_id", principal.ID, "permission", permission, "reason", decision.Reason)
				writeError(w, http.StatusForbidden, map[string]string{
					"error": "insufficient_permissions",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
