package access

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/portalguard/portalguard/internal/policy"
)

// Holder publishes the current engine. Readers always see a complete engine;
// reconfiguration builds a new one and swaps the pointer.
type Holder struct {
	current atomic.Pointer[Engine]
}

func NewHolder(e *Engine) *Holder {
	h := &Holder{}
	h.current.Store(e)
	return h
}

// Engine returns the engine in force.
func (h *Holder) Engine() *Engine {
	return h.current.Load()
}

// Reload loads a document and swaps in the engine built from it. On any
// error the engine in force is kept.
func (h *Holder) Reload(ctx context.Context, loader policy.Loader) (*Engine, error) {
	doc, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	e, err := Build(doc)
	if err != nil {
		return nil, err
	}
	h.current.Store(e)
	return e, nil
}
