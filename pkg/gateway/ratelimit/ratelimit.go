// Package ratelimit bounds how hard one client can drive the paid speech and
// model providers: a token bucket on the stage routes plus concurrency caps
// on in-flight stage requests and live sessions.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config disables a limit when its value is zero.
type Config struct {
	RPS   float64
	Burst int

	MaxConcurrentRequests int
	MaxLiveSessions       int

	// Bounds on the in-memory client map (single process only).
	MaxEntries int
	EntryTTL   time.Duration
}

// Enabled reports whether any limit is set.
func (c Config) Enabled() bool {
	return (c.RPS > 0 && c.Burst > 0) || c.MaxConcurrentRequests > 0 || c.MaxLiveSessions > 0
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*clientLimiter
}

type clientLimiter struct {
	mu sync.Mutex

	tb tokenBucket

	reqSem  chan struct{}
	liveSem chan struct{}

	lastSeen time.Time
}

type tokenBucket struct {
	capacity float64
	tokens   float64
	last     time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*clientLimiter),
	}
}

// ClientKey identifies the caller by remote IP. The gateway is expected to
// sit directly behind its listener or a proxy that rewrites RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil || host == "" {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		return "anonymous"
	}
	return "ip_" + host
}

type Permit struct {
	release func()
}

// Release is idempotent and nil-safe.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed bool
	// RetryAfter is in whole seconds.
	RetryAfter int
	Permit     *Permit
}

var allowAll = Decision{Allowed: true, Permit: &Permit{release: func() {}}}

// AcquireRequest charges one token and takes a request slot. A nil limiter
// allows everything.
func (l *Limiter) AcquireRequest(client string, now time.Time) Decision {
	if l == nil {
		return allowAll
	}
	cl := l.getOrCreate(client, now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		if ok, retryAfter := cl.allowToken(now, l.cfg.RPS, l.cfg.Burst); !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}
	if l.cfg.MaxConcurrentRequests > 0 {
		return acquire(cl.reqSem)
	}
	return allowAll
}

// AcquireLive takes a live-session slot. Live sessions are not charged
// tokens; each turn inside one is bounded by the session itself.
func (l *Limiter) AcquireLive(client string, now time.Time) Decision {
	if l == nil {
		return allowAll
	}
	cl := l.getOrCreate(client, now)
	if l.cfg.MaxLiveSessions > 0 {
		return acquire(cl.liveSem)
	}
	return allowAll
}

func acquire(sem chan struct{}) Decision {
	select {
	case sem <- struct{}{}:
		return Decision{Allowed: true, Permit: &Permit{release: func() { <-sem }}}
	default:
		return Decision{Allowed: false, RetryAfter: 1}
	}
}

// Len reports how many clients are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) getOrCreate(client string, now time.Time) *clientLimiter {
	if client == "" {
		client = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.m[client]; ok {
		cl.lastSeen = now
		return cl
	}
	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// Still full: evict an idle entry rather than grow.
		if len(l.m) >= l.cfg.MaxEntries {
			for k, v := range l.m {
				if len(v.reqSem) == 0 && len(v.liveSem) == 0 {
					delete(l.m, k)
					break
				}
			}
		}
	}

	cl := &clientLimiter{
		reqSem:   make(chan struct{}, max(1, l.cfg.MaxConcurrentRequests)),
		liveSem:  make(chan struct{}, max(1, l.cfg.MaxLiveSessions)),
		lastSeen: now,
	}
	l.m[client] = cl
	return cl
}

// gcLocked drops entries idle for longer than EntryTTL with nothing in
// flight.
func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL && len(v.reqSem) == 0 && len(v.liveSem) == 0 {
			delete(l.m, k)
		}
	}
}

func (cl *clientLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	capacity := float64(burst)
	if cl.tb.capacity == 0 {
		cl.tb = tokenBucket{capacity: capacity, tokens: capacity, last: now}
	}
	cl.tb.capacity = capacity

	if elapsed := now.Sub(cl.tb.last).Seconds(); elapsed > 0 {
		cl.tb.tokens = math.Min(cl.tb.capacity, cl.tb.tokens+elapsed*rps)
		cl.tb.last = now
	}
	if cl.tb.tokens >= 1 {
		cl.tb.tokens--
		return true, 0
	}

	retryAfter := int(math.Ceil((1 - cl.tb.tokens) / rps))
	return false, max(retryAfter, 1)
}
