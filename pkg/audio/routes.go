package audio

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotAttached is returned when connecting a node that was never attached.
var ErrNotAttached = errors.New("audio: node not attached")

// Route is a single connection recorded by [Routes].
type Route struct {
	Dst    string
	Format Format
}

// Routes tracks attached nodes and their outgoing connections. Graph
// backends share it so they apply the same attach/connect rules.
// The zero value is ready to use.
type Routes struct {
	mu       sync.RWMutex
	attached map[string]struct{}
	out      map[string]Route
}

// Attach registers id. Attaching twice is a no-op.
func (r *Routes) Attach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attached == nil {
		r.attached = make(map[string]struct{})
	}
	r.attached[id] = struct{}{}
}

// Connect records a route from src to dst, replacing any existing route out
// of src. Both nodes must be attached.
func (r *Routes) Connect(src, dst string, f Format) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("audio: connect %s: %w", src, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range []string{src, dst} {
		if _, ok := r.attached[id]; !ok {
			return fmt.Errorf("%w: %s", ErrNotAttached, id)
		}
	}
	if r.out == nil {
		r.out = make(map[string]Route)
	}
	r.out[src] = Route{Dst: dst, Format: f}
	return nil
}

// Disconnect removes the route out of src, if any.
func (r *Routes) Disconnect(src string) {
	r.mu.Lock()
	delete(r.out, src)
	r.mu.Unlock()
}

// Lookup returns the route out of src.
func (r *Routes) Lookup(src string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.out[src]
	return rt, ok
}

// IsAttached reports whether id has been attached.
func (r *Routes) IsAttached(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.attached[id]
	return ok
}
