// Package server assembles the HTTP route table.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homeonmap/backend/internal/auth"
	"github.com/homeonmap/backend/internal/enhance"
	"github.com/homeonmap/backend/internal/listing"
	"github.com/homeonmap/backend/internal/middleware"
)

// Handlers are the route targets. Enhance may be nil.
type Handlers struct {
	Auth     *auth.Handler
	Listings *listing.Handler
	Enhance  *enhance.Handler
}

// Options tune the router.
type Options struct {
	Sessions       middleware.SessionReader
	AllowedOrigins []string
	// WriteLimit is the per-IP budget for uploads and creates per
	// WriteWindow. Zero disables the limit.
	WriteLimit  int
	WriteWindow time.Duration
}

func writeLimiter(o Options) func(http.Handler) http.Handler {
	if o.WriteLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := o.WriteWindow
	if window == 0 {
		window = time.Minute
	}
	return httprate.Limit(o.WriteLimit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			middleware.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "too many requests, slow down",
				"code":  "RATE_LIMITED",
			})
		}),
	)
}

// NewRouter returns the API handler.
func NewRouter(h Handlers, o Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := middleware.RequireAuth(o.Sessions)
	limited := writeLimiter(o)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Auth routes (public)
	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", h.Auth.Login)
		r.Get("/callback", h.Auth.Callback)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/me", h.Auth.Me)
	})

	r.Route("/api/listings", func(r chi.Router) {
		r.Get("/", h.Listings.List)
		r.With(requireAuth).Get("/mine", h.Listings.Mine)
		r.Get("/{id}", h.Listings.Get)
		r.With(requireAuth, limited).Post("/", h.Listings.Create)
		r.With(requireAuth).Delete("/{id}", h.Listings.Delete)
	})

	r.With(requireAuth, limited).Post("/api/uploads", h.Listings.Upload)
	r.With(requireAuth).Get("/api/admin/events", h.Listings.Events)

	if h.Enhance != nil {
		r.With(requireAuth, limited).Post("/api/enhance", h.Enhance.Enhance)
	}

	return r
}
