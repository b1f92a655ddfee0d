package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/portalguard/portalguard/internal/rbac"
)

// Middleware attaches the verified principal to the request context when the
// request carries a valid credential. Verification is bounded by timeout.
// Requests without a credential, or whose credential fails, times out or
// panics the verifier, continue anonymously; enforcement is left to
// rbac.RequirePermission or the gateway.
func Middleware(v Verifier, timeout time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := VerifyWithin(r.Context(), v, r, timeout)
			switch {
			case errors.Is(err, ErrNoCredentials):
			case errors.Is(err, ErrVerifyUnfinished), errors.Is(err, ErrVerifierPanicked):
				logger.Warn("principal verification failed", "path", r.URL.Path, "error", err)
			case err != nil:
				logger.Debug("credential rejected", "path", r.URL.Path, "error", err)
			}
			if err != nil || principal == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), principal)))
		})
	}
}
