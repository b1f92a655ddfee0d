package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/portalguard/portalguard/internal/rbac"
)

// DefaultVerifyTimeout bounds a verification when no timeout is configured.
const DefaultVerifyTimeout = 2 * time.Second

var (
	// ErrVerifyUnfinished means the verification was cut short by the timeout
	// or by the caller going away. It wraps the context error.
	ErrVerifyUnfinished = errors.New("verification did not finish")
	ErrVerifierPanicked = errors.New("verifier panicked")
)

type verifyResult struct {
	principal *rbac.Principal
	err       error
}

// VerifyWithin runs v against r with a deadline of timeout. A panic in v is
// returned as ErrVerifierPanicked. A verifier that ignores its context keeps
// running in the background and its late result is dropped.
func VerifyWithin(ctx context.Context, v Verifier, r *http.Request, timeout time.Duration) (*rbac.Principal, error) {
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	vr := r.Clone(ctx)

	ch := make(chan verifyResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- verifyResult{err: fmt.Errorf("%w: %v", ErrVerifierPanicked, rec)}
			}
		}()
		p, err := v.Verify(ctx, vr)
		ch <- verifyResult{principal: p, err: err}
	}()

	select {
	case res := <-ch:
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrVerifyUnfinished, err)
		}
		return res.principal, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrVerifyUnfinished, ctx.Err())
	}
}
