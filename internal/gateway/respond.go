package gateway

import (
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/portalguard/portalguard/internal/access"
	"github.com/portalguard/portalguard/internal/audit"
	"github.com/portalguard/portalguard/internal/platform/middleware"
	"github.com/portalguard/portalguard/internal/rbac"
)

// VerdictHeader reports the verdict kind on every gated response.
const VerdictHeader = "X-Authz-Verdict"

// Headers set on allowed requests for the upstream. Inbound copies are
// always removed.
const (
	principalHeaderPrefix = "X-Principal-"
	HeaderPrincipalID     = "X-Principal-Id"
	HeaderPrincipalRole   = "X-Principal-Role"
	HeaderPrincipalRoles  = "X-Principal-Roles"
	HeaderPrincipalEmail  = "X-Principal-Email"
)

func stripPrincipalHeaders(h http.Header) {
	for k := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), principalHeaderPrefix) {
			delete(h, k)
		}
	}
}

func setPrincipalHeaders(h http.Header, p *rbac.Principal) {
	if p == nil {
		return
	}
	h.Set(HeaderPrincipalID, p.ID)
	h.Set(HeaderPrincipalRole, string(p.Role))
	held := p.HeldRoles()
	roles := make([]string, 0, len(held))
	for _, r := range held {
		roles = append(roles, string(r))
	}
	h.Set(HeaderPrincipalRoles, strings.Join(roles, ","))
	if p.Email != "" {
		h.Set(HeaderPrincipalEmail, p.Email)
	}
}

func signInURL(signInPath, callback string) string {
	sep := "?"
	if strings.Contains(signInPath, "?") {
		sep = "&"
	}
	return signInPath + sep + "callbackUrl=" + url.QueryEscape(callback)
}

func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) record(r *http.Request, action string, p *rbac.Principal, v access.Verdict, extra map[string]any) {
	meta := map[string]any{}
	if v.Kind != "" {
		meta[audit.MetadataVerdict] = string(v.Kind)
	}
	if v.Class != "" {
		meta[audit.MetadataClass] = string(v.Class)
	}
	if v.Reason != "" {
		meta[audit.MetadataReason] = v.Reason
	}
	for k, val := range extra {
		meta[k] = val
	}

	e := audit.Event{
		Action:    action,
		Method:    r.Method,
		Path:      r.URL.Path,
		Pattern:   v.Pattern,
		RequestID: middleware.GetRequestID(r.Context()),
		Metadata:  meta,
		Source:    audit.SourceGateway,
	}
	if p != nil {
		e.PrincipalID = p.ID
		e.Role = string(p.Role)
	}
	g.audit.Log(r.Context(), e)
}
