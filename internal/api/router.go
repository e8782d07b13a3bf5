package api

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rkm/stac-catalog/internal/audit"
	"github.com/rkm/stac-catalog/internal/auth"
	"github.com/rkm/stac-catalog/internal/metrics"
	"github.com/rkm/stac-catalog/internal/ratelimit"
	"github.com/rkm/stac-catalog/internal/stac"
)

// RouterOptions carries the optional collaborators of the middleware stack.
// Nil fields switch the corresponding middleware off.
type RouterOptions struct {
	Verifier        *auth.Verifier
	PublicPaths     []string
	Limiter         *ratelimit.Limiter
	TrustedProxies  []netip.Prefix
	Audit           *audit.Log
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, opts RouterOptions, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(Peer)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(Metrics)
	if opts.Audit != nil {
		r.Use(Audit(opts.Audit))
	}
	r.Use(middleware.Compress(5, stac.MediaTypeJSON, stac.MediaTypeGeoJSON))
	r.Use(ContentTypeJSON)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", RequestIDHeader, CacheHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(Authenticate(opts.Verifier, opts.PublicPaths, logger))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route(APIPrefix, func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(RateLimit(opts.Limiter, opts.TrustedProxies, logger))
		}

		r.Group(func(r chi.Router) {
			r.Use(Deadline(opts.RequestTimeout))

			r.Get("/", h.LandingPage)
			r.Get("/conformance", h.Conformance)
			r.Get("/collections", h.Collections)
			r.Get("/collections/{collectionId}", h.Collection)
			r.Get("/search", h.Search)
			r.Get("/collections/{collectionId}/items", h.Items)
			r.Get("/collections/{collectionId}/items/{itemId}", h.Item)
		})

		r.With(Deadline(opts.DownloadTimeout)).
			Get("/collections/{collectionId}/items/{itemId}/download", h.Download)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	return r
}
