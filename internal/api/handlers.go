package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rkm/stac-catalog/internal/assets"
	"github.com/rkm/stac-catalog/internal/cache"
	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/internal/metrics"
	"github.com/rkm/stac-catalog/internal/search"
	"github.com/rkm/stac-catalog/internal/stac"
)

// APIPrefix is the path every STAC route is mounted under.
const APIPrefix = "/v1"

// CacheHeader reports whether a response was served from the page cache.
const CacheHeader = "X-Cache"

// Handlers contains all HTTP handlers for the STAC API.
type Handlers struct {
	cfg         *config.Config
	collections *config.CollectionRegistry
	search      *search.Service
	assets      assets.Store
	cache       cache.Cache
	logger      *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(
	cfg *config.Config,
	collections *config.CollectionRegistry,
	svc *search.Service,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		cfg:         cfg,
		collections: collections,
		search:      svc,
		logger:      logger,
	}
}

// WithAssets sets the object store downloads are read from.
func (h *Handlers) WithAssets(store assets.Store) *Handlers {
	h.assets = store
	return h
}

// WithCache enables the response cache for search, listing and item routes.
func (h *Handlers) WithCache(c cache.Cache) *Handlers {
	h.cache = c
	return h
}

// LandingPage returns the STAC API landing page (root catalog).
// GET /v1/
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	landing := stac.NewLandingPage(
		h.cfg.STAC.ID,
		h.cfg.STAC.Title,
		h.cfg.STAC.Description,
		h.cfg.STAC.Version,
		h.links(r),
	)
	WriteJSON(w, http.StatusOK, landing)
}

// Conformance returns the conformance classes supported by this API.
// GET /v1/conformance
func (h *Handlers) Conformance(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, &stac.Conformance{ConformsTo: stac.DefaultConformance()})
}

// Collections returns the list of all available collections.
// GET /v1/collections
func (h *Handlers) Collections(w http.ResponseWriter, r *http.Request) {
	list := stac.RenderCollections(h.collections.All(), h.search.Snapshot(), h.links(r), h.cfg.STAC.Version)
	WriteJSON(w, http.StatusOK, list)
}

// Collection returns a single collection by ID.
// GET /v1/collections/{collectionId}
func (h *Handlers) Collection(w http.ResponseWriter, r *http.Request) {
	cfg := h.collections.Get(pathParam(r, "collectionId"))
	if cfg == nil {
		WriteNotFound(w, "collection not found")
		return
	}

	var extent *index.Extent
	if e, ok := h.search.Snapshot().Extent(cfg.ID); ok {
		extent = &e
	}
	WriteJSON(w, http.StatusOK, stac.RenderCollection(cfg, extent, h.links(r), h.cfg.STAC.Version))
}

// Search performs a cross-collection search. Unknown collection ids simply
// match nothing.
// GET /v1/search
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	req, err := search.ParseParams(values, search.Limits{
		Default: h.cfg.Search.DefaultLimit,
		Max:     h.cfg.Search.MaxLimit,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	links := h.links(r)
	h.serveCached(w, r, links, func(ctx context.Context) (any, string, error) {
		return h.page(ctx, req, stac.PageLinks{Links: links, Self: links.Search(), Params: values})
	})
}

// Items returns items from a specific collection.
// GET /v1/collections/{collectionId}/items
func (h *Handlers) Items(w http.ResponseWriter, r *http.Request) {
	collectionID := pathParam(r, "collectionId")
	if !h.collections.Has(collectionID) {
		WriteNotFound(w, "collection not found")
		return
	}

	values := r.URL.Query()
	req, err := search.ParseParams(values, search.Limits{
		Default: h.cfg.Search.ItemsDefaultLimit,
		Max:     h.cfg.Search.ItemsMaxLimit,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	req.Query.Collections = []string{collectionID}

	links := h.links(r)
	h.serveCached(w, r, links, func(ctx context.Context) (any, string, error) {
		return h.page(ctx, req, stac.PageLinks{
			Links:      links,
			Self:       links.Items(collectionID),
			Params:     values,
			Collection: collectionID,
		})
	})
}

func (h *Handlers) page(ctx context.Context, req *search.Request, pl stac.PageLinks) (any, string, error) {
	res, err := h.search.Search(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return stac.RenderPage(res.Items, res.Total, search.EncodeCursor(res.Next), pl, h.cfg.STAC.Version), res.Generation, nil
}

// Item returns a single item by ID from a collection.
// GET /v1/collections/{collectionId}/items/{itemId}
func (h *Handlers) Item(w http.ResponseWriter, r *http.Request) {
	key := catalog.Key{Collection: pathParam(r, "collectionId"), ID: pathParam(r, "itemId")}
	if !h.collections.Has(key.Collection) {
		WriteNotFound(w, "collection not found")
		return
	}

	links := h.links(r)
	h.serveCached(w, r, links, func(ctx context.Context) (any, string, error) {
		generation := h.search.Snapshot().Generation()
		it, err := h.search.Item(ctx, key)
		if err != nil {
			return nil, "", err
		}
		return stac.RenderItem(it, links, h.cfg.STAC.Version), generation, nil
	})
}

// Download streams a zip of the item's stored assets.
// GET /v1/collections/{collectionId}/items/{itemId}/download
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	key := catalog.Key{Collection: pathParam(r, "collectionId"), ID: pathParam(r, "itemId")}
	if !h.collections.Has(key.Collection) {
		WriteNotFound(w, "collection not found")
		return
	}
	if h.assets == nil {
		WriteNotFound(w, "downloads are not available")
		return
	}

	ctx := r.Context()
	it, err := h.search.Item(ctx, key)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	archive, err := assets.OpenArchive(ctx, h.assets, it)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", stac.MediaTypeZip)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": assets.ArchiveName(it),
	}))
	if n := archive.Size(); n >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(n, 10))
	}
	w.WriteHeader(http.StatusOK)

	// headers are gone; a failure now can only be logged
	if n, err := archive.WriteTo(w); err != nil {
		h.logger.Warn("download interrupted",
			slog.String("request_id", GetRequestID(ctx)),
			slog.String("item", key.String()),
			slog.Int64("bytes", n),
			slog.String("error", err.Error()),
		)
	}
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.search.Snapshot()
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"items":       snap.Len(),
		"snapshot":    snap.Version(),
		"collections": h.collections.Count(),
	})
}

type renderFunc func(ctx context.Context) (body any, generation string, err error)

// serveCached answers from the page cache when it holds the response for
// the current snapshot, and otherwise renders and stores it. Entries are
// keyed by the snapshot generation the body was computed from, so an ingest
// invalidates them without any explicit purge.
func (h *Handlers) serveCached(w http.ResponseWriter, r *http.Request, links stac.Links, render renderFunc) {
	ctx := r.Context()
	query := r.URL.Query()

	if h.cache != nil {
		key := cache.Key(r.URL.Path, query, links.Base, h.search.Snapshot().Generation())
		body, ok, err := h.cache.Get(ctx, key)
		if err != nil {
			h.logger.Warn("cache lookup failed",
				slog.String("request_id", GetRequestID(ctx)),
				slog.String("error", err.Error()),
			)
		}
		if ok {
			metrics.IncCacheHit()
			w.Header().Set(CacheHeader, "HIT")
			writeBody(w, body)
			return
		}
		metrics.IncCacheMiss()
	}

	v, generation, err := render(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	body = append(body, '\n')

	if h.cache != nil {
		if err := h.cache.Set(ctx, cache.Key(r.URL.Path, query, links.Base, generation), body); err != nil {
			h.logger.Warn("cache store failed",
				slog.String("request_id", GetRequestID(ctx)),
				slog.String("error", err.Error()),
			)
		}
		w.Header().Set(CacheHeader, "MISS")
	}
	writeBody(w, body)
}

func writeBody(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", stac.MediaTypeGeoJSON)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// links returns the URL builder for this request. The configured base URL
// wins; otherwise the request's own scheme and host are used.
func (h *Handlers) links(r *http.Request) stac.Links {
	base := h.cfg.STAC.BaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
			scheme = strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0]))
		}
		base = scheme + "://" + r.Host
	}
	return stac.NewLinks(strings.TrimRight(base, "/") + APIPrefix)
}

// pathParam returns a decoded route parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if s, err := url.PathUnescape(raw); err == nil {
		return s
	}
	return raw
}
