package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vango-go/vai-tutor/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-tutor/pkg/store"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports 503 while draining or when the store cannot be
// reached.
type ReadyHandler struct {
	Store     store.Store
	Lifecycle *lifecycle.Lifecycle
	Timeout   time.Duration
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	var issues []string
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "server is draining")
	}
	if h.Store == nil {
		issues = append(issues, "store not configured")
	} else if p, ok := h.Store.(store.Pinger); ok {
		timeout := h.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			issues = append(issues, "store unreachable")
		}
	}

	status := http.StatusOK
	if len(issues) > 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{OK: len(issues) == 0, Draining: draining, Issues: issues})
}
