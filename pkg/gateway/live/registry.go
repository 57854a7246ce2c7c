package live

import (
	"context"
	"sync"
)

// Registry tracks open bridges so shutdown can warn, close and wait for
// them.
type Registry struct {
	mu      sync.Mutex
	bridges map[*Bridge]struct{}
	wg      sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{bridges: make(map[*Bridge]struct{})}
}

// Add registers b. The returned func removes it and is safe to call more
// than once.
func (r *Registry) Add(b *Bridge) (remove func()) {
	if r == nil {
		return func() {}
	}
	r.mu.Lock()
	r.bridges[b] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.bridges, b)
			r.mu.Unlock()
			r.wg.Done()
		})
	}
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bridges)
}

func (r *Registry) snapshot() []*Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Bridge, 0, len(r.bridges))
	for b := range r.bridges {
		out = append(out, b)
	}
	return out
}

// WarnAll queues a warning on every bridge, best effort.
func (r *Registry) WarnAll(code, message string) (sent int) {
	if r == nil {
		return 0
	}
	for _, b := range r.snapshot() {
		if b.Warn(code, message) == nil {
			sent++
		}
	}
	return sent
}

// CloseAll closes every bridge with cause.
func (r *Registry) CloseAll(cause error) (closed int) {
	if r == nil {
		return 0
	}
	for _, b := range r.snapshot() {
		b.Close(cause)
		closed++
	}
	return closed
}

// Wait blocks until every bridge is removed or ctx ends. It reports whether
// all bridges finished.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
