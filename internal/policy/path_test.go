package policy_test

import (
	"testing"

	"github.com/portalguard/portalguard/internal/policy"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":                "/",
		"/":               "/",
		"admin":           "/admin",
		"//admin//users/": "/admin/users",
		"/a/./b/../c":     "/a/c",
		"/../../etc":      "/etc",
	}
	for in, want := range cases {
		assert.Equal(t, want, policy.NormalizePath(in), in)
	}
}

func TestLocales_Strip(t *testing.T) {
	locales := policy.NewLocales([]string{"en", "DE"})

	assert.Equal(t, "/dashboard", locales.Strip("/de/dashboard"))
	assert.Equal(t, "/", locales.Strip("/en"))
	assert.Equal(t, "/admin/users", locales.Strip("/EN/admin/users"))
	assert.Equal(t, "/fr/dashboard", locales.Strip("/fr/dashboard"))
	assert.Equal(t, "/dashboard", policy.Locales(nil).Strip("/dashboard"))
}

func TestNormalizeRequestPath(t *testing.T) {
	locales := policy.NewLocales([]string{"de"})

	assert.Equal(t, "/admin", policy.NormalizeRequestPath("/de//admin/", locales))
	assert.Equal(t, "/api/admin", policy.NormalizeRequestPath("/de/api/./admin", locales))
	assert.Equal(t, "/de", policy.NormalizeRequestPath("/x/../de/", nil))
}
