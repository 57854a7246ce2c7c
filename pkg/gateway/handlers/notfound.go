package handlers

import (
	"net/http"

	"github.com/vango-go/vai-tutor/pkg/core"
)

// NotFoundHandler is the catch-all route. It also absorbs method mismatches
// on known paths, which the tutor API reports as 404 rather than 405.
type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, nil, core.NewNotFoundError("no route for "+r.Method+" "+r.URL.Path))
}
