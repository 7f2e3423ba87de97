// Package introspect exposes a read-only debug server over a Registry's
// current state (SPEC_FULL.md §4 "Optional introspection HTTP server"), grounded on
// internal/api/router.go's chi + go-chi/cors wiring — trimmed to the
// handful of routes a stub registry needs instead of a full API surface.
package introspect

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/patchwire/intercept/internal/registry"
)

// NewRouter builds the introspection HTTP handler for reg. It is
// entirely optional: nothing in the dispatch path depends on it, and a
// host that never mounts it loses no functionality (spec.md §1 "no
// implicit network surface").
func NewRouter(reg *registry.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(traceRequests)
	r.Use(accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/health", healthHandler)
	r.Get("/recipes", recipesHandler(reg))
	r.Get("/recent", recentHandler(reg))
	r.Get("/verify", verifyHandler(reg))

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func recipesHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.Snapshot())
	}
}

func recentHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.Recent())
	}
}

func verifyHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Verify(); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
