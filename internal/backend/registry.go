package backend

import (
	"sync"

	"github.com/wasmchat/edgechat/internal/chaterrors"
)

// Registry is the process-wide {model_name -> handle} map described in
// spec.md §5. A chat request acquires the returned handle's lock for the
// entire prompt-build + inference window, serializing concurrent chat
// requests against the same model: the backend holds mutable KV-cache
// state between ComputeSingle calls, so interleaving is never safe.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*lockedHandle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*lockedHandle)}
}

// Register associates a model name with a handle. Re-registering a name
// replaces its handle.
func (r *Registry) Register(model string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[model] = &lockedHandle{Handle: h}
}

// Acquire locks and returns the handle for model. The caller must call the
// returned release func exactly once, typically via defer.
func (r *Registry) Acquire(model string) (Handle, func(), error) {
	r.mu.Lock()
	lh, ok := r.handles[model]
	r.mu.Unlock()
	if !ok {
		return nil, nil, chaterrors.Operation("no backend handle registered for model "+model, nil)
	}
	lh.mu.Lock()
	return lh.Handle, lh.mu.Unlock, nil
}

// lockedHandle pairs a Handle with the mutex that serializes access to it.
type lockedHandle struct {
	mu sync.Mutex
	Handle
}
