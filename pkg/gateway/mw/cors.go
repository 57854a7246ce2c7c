package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/core"
)

const (
	corsMaxAge         = "600"
	corsAllowMethods   = "GET, POST, OPTIONS"
	corsAllowHeaders   = "Content-Type, X-Request-ID"
	corsExposedHeaders = "X-Request-ID, Content-Length, Retry-After"
)

// CORS lets browser pages on the allowlisted origins call the API. With an
// empty allowlist no CORS headers are sent and every preflight is refused.
//
// The live WebSocket is not covered: browsers do not preflight upgrades, so
// /v1/live checks Origin itself.
func CORS(allowed map[string]struct{}, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		ok := OriginAllowed(allowed, origin)

		if isPreflight(r) {
			if !ok {
				reqID, _ := RequestIDFrom(r.Context())
				writeJSONError(w, http.StatusForbidden, &core.Error{
					Type:      core.ErrInvalidRequest,
					Message:   "cors preflight not allowed for origin " + quoteOrigin(origin),
					Param:     "Origin",
					RequestID: reqID,
				})
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if ok {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
		}
		next.ServeHTTP(w, r)
	})
}

// OriginAllowed reports whether origin is in the allowlist. An empty origin
// never matches.
func OriginAllowed(allowed map[string]struct{}, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return false
	}
	_, ok := allowed[origin]
	return ok
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != ""
}

func quoteOrigin(origin string) string {
	if origin == "" {
		return "(none)"
	}
	return origin
}
