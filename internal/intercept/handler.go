package intercept

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler returns the full HTTP surface: the control endpoints under
// /__intercept/ plus the catch-all interception path for everything else.
func (i *Interceptor) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/__intercept", func(r chi.Router) {
		r.Post("/skip-waiting", i.handleSkipWaiting)
		r.Get("/cache-status", i.handleCacheStatus)
		r.Post("/clear-cache", i.handleClearCache)
	})

	r.NotFound(i.serve)
	return r
}

// serve classifies one request and applies the matching strategy. Until
// activation completes, and for anything but GET, traffic is proxied
// untouched.
func (i *Interceptor) serve(w http.ResponseWriter, r *http.Request) {
	target := i.resolveTarget(r)

	if i.State() != StateActive || r.Method != http.MethodGet {
		i.servePassThrough(w, r, target)
		return
	}

	switch i.classify(r, target) {
	case classStatic:
		i.serveStatic(w, r, target)
	case classAPI:
		i.serveAPI(w, r, target)
	case classImage:
		i.serveImage(w, r, target)
	case classDevBypass:
		i.serveDevBypass(w, r, target)
	default:
		i.servePassThrough(w, r, target)
	}
}

func (i *Interceptor) handleSkipWaiting(w http.ResponseWriter, r *http.Request) {
	if err := i.SkipWaiting(r.Context()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": i.State().String()})
}

func (i *Interceptor) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	status, err := i.CacheContents(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (i *Interceptor) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := i.ClearCache(r.Context()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": i.State().String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
