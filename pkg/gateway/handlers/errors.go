package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/gateway/apierror"
	"github.com/vango-go/vai-tutor/pkg/gateway/mw"
)

// writeError maps err onto the JSON error envelope. Server-side failures are
// logged with the request id; client errors are not.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	coreErr, status := apierror.FromError(err, reqID)
	if status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", "request_id", reqID, "status", status, "error", err)
	}
	writeCoreErrorJSON(w, coreErr, status)
}

func writeCoreErrorJSON(w http.ResponseWriter, coreErr *core.Error, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: coreErr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON object of at most maxBytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return core.NewInvalidRequestErrorWithParam("content type must be application/json", "Content-Type")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return core.NewInvalidRequestError("request body too large")
		case errors.Is(err, io.EOF):
			return core.NewInvalidRequestError("request body is empty")
		default:
			return core.NewInvalidRequestError("invalid json: " + err.Error())
		}
	}
	if dec.More() {
		return core.NewInvalidRequestError("request body must contain a single json object")
	}
	return nil
}
