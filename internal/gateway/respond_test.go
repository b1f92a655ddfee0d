package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignInURL(t *testing.T) {
	assert.Equal(t, "/auth/signin?callbackUrl=%2Fa%3Fb%3D1", signInURL("/auth/signin", "/a?b=1"))
	assert.Equal(t, "/login?next=x&callbackUrl=%2F", signInURL("/login?next=x", "/"))
}
