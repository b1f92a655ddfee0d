package policy_test

import (
	"testing"

	"github.com/portalguard/portalguard/internal/policy"
	"github.com/stretchr/testify/assert"
)

func TestExclusions_Defaults(t *testing.T) {
	ex := policy.NewExclusions(policy.DefaultExclusions())

	excluded := []string{
		"/_next/static/chunk.js",
		"/_next/image",
		"/api/auth/callback/github",
		"/api/auth",
		"/favicon.ico",
		"/robots.txt",
		"/fonts/inter.woff2",
		"/admin/logo.PNG",
		"/static/app.css",
	}
	for _, p := range excluded {
		assert.True(t, ex.Match(p), p)
	}

	included := []string{
		"/",
		"/dashboard",
		"/admin",
		"/api/admin/reports",
		"/api/authors",
		"/_nextjs",
		"/docs/v1.2/intro",
		"/export.csv",
	}
	for _, p := range included {
		assert.False(t, ex.Match(p), p)
	}
}

func TestExclusions_NormalizesDefinition(t *testing.T) {
	ex := policy.NewExclusions(policy.ExclusionDef{
		Prefixes:   []string{"/assets/", " "},
		Extensions: []string{"PDF", ""},
	})

	assert.True(t, ex.Match("/assets/a"))
	assert.True(t, ex.Match("/assets"))
	assert.True(t, ex.Match("/docs/manual.pdf"))
	assert.False(t, ex.Match("/assetsx"))
}
