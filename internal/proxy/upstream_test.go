package proxy_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portalguard/portalguard/internal/platform/telemetry"
	"github.com/portalguard/portalguard/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ForwardsPrincipalHeaders(t *testing.T) {
	var got *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		w.Header().Set("X-Upstream", "web")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer upstream.Close()

	rp, err := proxy.New(proxy.Config{URL: upstream.URL}, telemetry.Discard())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://portal.example.com/dashboard?tab=2", nil)
	req.Header.Set("X-Principal-Id", "u1")
	w := httptest.NewRecorder()
	rp.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "web", w.Header().Get("X-Upstream"))
	require.NotNil(t, got)
	assert.Equal(t, "/dashboard", got.URL.Path)
	assert.Equal(t, "tab=2", got.URL.RawQuery)
	assert.Equal(t, "u1", got.Header.Get("X-Principal-Id"))
	assert.Equal(t, "portal.example.com", got.Host)
	assert.Equal(t, "portal.example.com", got.Header.Get("X-Forwarded-Host"))
}

func TestNew_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	rp, err := proxy.New(proxy.Config{URL: url, DialTimeout: 200 * time.Millisecond}, telemetry.Discard())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	rp.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"upstream_unavailable"}`, w.Body.String())
}

func TestNew_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:3000", "://bad"} {
		_, err := proxy.New(proxy.Config{URL: u}, nil)
		assert.Error(t, err, u)
	}
}
