package guard

import (
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/portalguard/portalguard/internal/access"
	"github.com/portalguard/portalguard/internal/policy"
	"github.com/portalguard/portalguard/internal/rbac"
)

// Handler serves advisory route checks for the caller's own principal. The
// principal must already be on the request context (auth.Middleware).
type Handler struct {
	engines *access.Holder
	locales policy.Locales
}

// NewHandler takes the same locale list as the gateway so both match the
// same path.
func NewHandler(engines *access.Holder, locales []string) *Handler {
	return &Handler{engines: engines, locales: policy.NewLocales(locales)}
}

type checkResponse struct {
	Path    string `json:"path"`
	Verdict string `json:"verdict"`
	Outcome string `json:"outcome"`
	Render  bool   `json:"render"`
	Pattern string `json:"pattern,omitempty"`
}

// HandleCheck reports what the gateway would do with path for the caller.
// GET /_authz/check?path=/admin/users
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("path")
	if target == "" || !strings.HasPrefix(target, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path must be an absolute request path"})
		return
	}

	engine := h.engines.Engine()
	if engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "policy not loaded"})
		return
	}

	p, query, _ := strings.Cut(target, "?")
	p = policy.NormalizeRequestPath(p, h.locales)
	if query != "" {
		p += "?" + query
	}

	v := engine.Decide(p, rbac.PrincipalFrom(r.Context()))
	out := outcomeOf(v)
	writeJSON(w, http.StatusOK, checkResponse{
		Path:    p,
		Verdict: string(v.Kind),
		Outcome: string(out),
		Render:  out == OutcomeRender,
		Pattern: v.Pattern,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
