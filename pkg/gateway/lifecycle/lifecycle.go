// Package lifecycle holds process state shared by handlers during graceful
// shutdown.
package lifecycle

import (
	"sync"
	"sync/atomic"
)

// Lifecycle flips once from serving to draining. Readiness reports 503 and
// new live sessions are refused after that.
type Lifecycle struct {
	draining atomic.Bool
	once     sync.Once
	drained  chan struct{}
}

func New() *Lifecycle {
	return &Lifecycle{drained: make(chan struct{})}
}

// StartDraining marks the process as draining and closes Draining(). Later
// calls do nothing.
func (l *Lifecycle) StartDraining() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.draining.Store(true)
		if l.drained != nil {
			close(l.drained)
		}
	})
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// Draining is closed when draining starts. It is nil for a zero Lifecycle.
func (l *Lifecycle) Draining() <-chan struct{} {
	if l == nil {
		return nil
	}
	return l.drained
}
