package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/gateway/ratelimit"
)

// RateLimit guards a provider-backed route with the client's token bucket
// and request slots. A nil limiter disables it.
func RateLimit(l *ratelimit.Limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := l.AcquireRequest(ratelimit.ClientKey(r), time.Now())
		if !d.Allowed {
			WriteRateLimited(w, r, d.RetryAfter, "too many requests")
			return
		}
		defer d.Permit.Release()
		next.ServeHTTP(w, r)
	})
}

// WriteRateLimited writes a 429 with Retry-After.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, retryAfter int, message string) {
	reqID, _ := RequestIDFrom(r.Context())
	w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
	writeJSONError(w, http.StatusTooManyRequests, &core.Error{
		Type:      core.ErrRateLimit,
		Message:   message,
		RequestID: reqID,
	})
}
