/*
Package httpapi implements the §6 HTTP surface over a *core.Core: GET
/healthz, CORS preflight, GET /peer/generate/{space-id}, POST /delegate,
POST /invoke. It owns every HTTP-specific concern core deliberately has
none of — header parsing, response shaping, and mapping a returned
*tcerr.Error to a status code via tcerr.Kind.HTTPStatus().

Grounded on the teacher's pkg/api/health.go handler shape (plain
http.Handler, one struct wrapping the collaborator it serves) and
go-chi/chi + go-chi/cors for routing and preflight, both already part of
this module's dependency graph.
*/
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/core"
)

// NewRouter builds the complete §6 HTTP surface over c.
func NewRouter(c *core.Core) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	h := &handler{core: c}
	r.Get("/healthz", h.healthz)
	r.Get("/peer/generate/{spaceID}", h.generatePeer)
	r.Post("/delegate", h.delegate)
	r.Post("/invoke", h.invoke)
	return r
}

type handler struct {
	core *core.Core
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.core.Healthy(ctx); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
