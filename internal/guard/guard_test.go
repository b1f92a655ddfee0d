package guard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portalguard/portalguard/internal/access"
	"github.com/portalguard/portalguard/internal/auth"
	"github.com/portalguard/portalguard/internal/gateway"
	"github.com/portalguard/portalguard/internal/guard"
	"github.com/portalguard/portalguard/internal/platform/telemetry"
	"github.com/portalguard/portalguard/internal/policy"
	"github.com/portalguard/portalguard/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultEngine(t *testing.T) *access.Engine {
	t.Helper()
	e, err := access.Build(policy.DefaultDocument())
	require.NoError(t, err)
	return e
}

func principal(role rbac.Role, extra ...rbac.Role) *rbac.Principal {
	return &rbac.Principal{ID: "p1", Role: role, Roles: extra}
}

func TestEvaluate(t *testing.T) {
	engine := defaultEngine(t)

	tests := []struct {
		name string
		snap guard.Snapshot
		req  guard.Requirement
		want guard.Outcome
	}{
		{"loading wins", guard.Snapshot{Loading: true, Principal: principal(rbac.RoleAdmin)}, guard.Requirement{RequireAuth: true}, guard.OutcomeLoading},
		{"open fragment anonymous", guard.Snapshot{}, guard.Requirement{}, guard.OutcomeRender},
		{"auth only anonymous", guard.Snapshot{}, guard.Requirement{RequireAuth: true}, guard.OutcomeSignIn},
		{"auth only signed in", guard.Snapshot{Principal: principal(rbac.RoleViewer)}, guard.Requirement{RequireAuth: true}, guard.OutcomeRender},
		{"roles imply auth", guard.Snapshot{}, guard.Requirement{AllowedRoles: []rbac.Role{rbac.RoleAdmin}}, guard.OutcomeSignIn},
		{"allowed role", guard.Snapshot{Principal: principal(rbac.RoleModerator)}, guard.Requirement{AllowedRoles: []rbac.Role{rbac.RoleModerator, rbac.RoleAdmin}}, guard.OutcomeRender},
		{"flat role", guard.Snapshot{Principal: principal(rbac.RoleUser, rbac.RoleModerator)}, guard.Requirement{AllowedRoles: []rbac.Role{rbac.RoleModerator}}, guard.OutcomeRender},
		{"role not allowed", guard.Snapshot{Principal: principal(rbac.RoleUser)}, guard.Requirement{AllowedRoles: []rbac.Role{rbac.RoleAdmin}}, guard.OutcomeFallback},
		{"minimum met", guard.Snapshot{Principal: principal(rbac.RoleAdmin)}, guard.Requirement{MinimumRole: rbac.RoleUser}, guard.OutcomeRender},
		{"minimum not met", guard.Snapshot{Principal: principal(rbac.RoleViewer)}, guard.Requirement{MinimumRole: rbac.RoleUser}, guard.OutcomeFallback},
		{"minimum overrides allowed list", guard.Snapshot{Principal: principal(rbac.RoleAdmin)}, guard.Requirement{AllowedRoles: []rbac.Role{rbac.RoleModerator}, MinimumRole: rbac.RoleUser}, guard.OutcomeRender},
		{"permission held", guard.Snapshot{Principal: principal(rbac.RoleUser)}, guard.Requirement{Permissions: []rbac.Permission{"cart:write"}}, guard.OutcomeRender},
		{"permission missing", guard.Snapshot{Principal: principal(rbac.RoleViewer)}, guard.Requirement{Permissions: []rbac.Permission{"cart:write"}}, guard.OutcomeFallback},
		{"unknown role is anonymous", guard.Snapshot{Principal: principal("root")}, guard.Requirement{RequireAuth: true}, guard.OutcomeSignIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.Evaluate(engine, tt.snap, tt.req))
		})
	}
}

func TestEvaluate_NilEngine(t *testing.T) {
	got := guard.Evaluate(nil, guard.Snapshot{Principal: principal(rbac.RoleAdmin)}, guard.Requirement{})
	assert.Equal(t, guard.OutcomeFallback, got)
}

func TestEvaluate_AgreesWithGateway(t *testing.T) {
	engine := defaultEngine(t)

	// The /admin route and its inline equivalent must agree for every role.
	req := guard.Requirement{AllowedRoles: []rbac.Role{rbac.RoleAdmin}}
	for _, role := range engine.Model().Roles() {
		p := principal(role)
		v := engine.Decide("/admin", p)
		inline := guard.Evaluate(engine, guard.Snapshot{Principal: p}, req)
		assert.Equal(t, v.Kind == access.Allow, inline == guard.OutcomeRender, string(role))
	}
}

func TestHandleCheck_AgreesWithGatewayOnLocalizedPaths(t *testing.T) {
	engine := defaultEngine(t)
	locales := []string{"de"}
	h := guard.NewHandler(access.NewHolder(engine), locales)

	verifier := auth.VerifierFunc(func(_ context.Context, r *http.Request) (*rbac.Principal, error) {
		if role := r.Header.Get("X-Test-Role"); role != "" {
			return principal(rbac.Role(role)), nil
		}
		return nil, auth.ErrNoCredentials
	})
	gw := gateway.New(access.NewHolder(engine), verifier, gateway.Config{Locales: locales},
		gateway.WithLogger(telemetry.Discard()))
	gated := gw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	roles := append([]rbac.Role{""}, engine.Model().Roles()...)
	for _, role := range roles {
		for _, target := range []string{"/de/admin", "/de/admin/users/", "/de//moderation", "/de/products", "/de/dashboard"} {
			req := httptest.NewRequest(http.MethodGet, target, nil)
			var p *rbac.Principal
			if role != "" {
				req.Header.Set("X-Test-Role", string(role))
				p = principal(role)
			}
			w := httptest.NewRecorder()
			gated.ServeHTTP(w, req)

			_, body := check(t, h, "/_authz/check?path="+target, p)
			assert.Equal(t, w.Header().Get(gateway.VerdictHeader), body["verdict"], "%s %s", role, target)
		}
	}
}

func check(t *testing.T, h *guard.Handler, target string, p *rbac.Principal) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if p != nil {
		req = req.WithContext(rbac.WithPrincipal(req.Context(), p))
	}
	w := httptest.NewRecorder()
	h.HandleCheck(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHandleCheck(t *testing.T) {
	h := guard.NewHandler(access.NewHolder(defaultEngine(t)), nil)

	w, body := check(t, h, "/_authz/check?path=/admin/users", principal(rbac.RoleUser))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unauthorized", body["verdict"])
	assert.Equal(t, false, body["render"])
	assert.Equal(t, "/admin", body["pattern"])

	_, body = check(t, h, "/_authz/check?path=/admin/users", principal(rbac.RoleAdmin))
	assert.Equal(t, "allow", body["verdict"])
	assert.Equal(t, true, body["render"])

	_, body = check(t, h, "/_authz/check?path=/dashboard", nil)
	assert.Equal(t, "signin", body["verdict"])
	assert.Equal(t, "signin", body["outcome"])

	_, body = check(t, h, "/_authz/check?path=/products/42", nil)
	assert.Equal(t, "passthrough", body["verdict"])
	assert.Equal(t, true, body["render"])
}

func TestHandleCheck_CleansPath(t *testing.T) {
	h := guard.NewHandler(access.NewHolder(defaultEngine(t)), nil)

	_, body := check(t, h, "/_authz/check?path=/products/../admin/", principal(rbac.RoleViewer))
	assert.Equal(t, "/admin", body["path"])
	assert.Equal(t, "unauthorized", body["verdict"])
}

func TestHandleCheck_BadPath(t *testing.T) {
	h := guard.NewHandler(access.NewHolder(defaultEngine(t)), nil)

	for _, target := range []string{"/_authz/check", "/_authz/check?path=admin"} {
		w, _ := check(t, h, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestHandleCheck_NoEngine(t *testing.T) {
	h := guard.NewHandler(access.NewHolder(nil), nil)

	w, body := check(t, h, "/_authz/check?path=/admin", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "policy not loaded", body["error"])
}
