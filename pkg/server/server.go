// Package server provides a public API for embedding the STAC catalog.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rkm/stac-catalog/internal/api"
	"github.com/rkm/stac-catalog/internal/assets"
	"github.com/rkm/stac-catalog/internal/audit"
	"github.com/rkm/stac-catalog/internal/auth"
	"github.com/rkm/stac-catalog/internal/cache"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/internal/ingest"
	"github.com/rkm/stac-catalog/internal/ratelimit"
	"github.com/rkm/stac-catalog/internal/search"
	"github.com/rkm/stac-catalog/internal/store"
)

// Options configures the catalog server.
type Options struct {
	// Config is the service configuration.
	// Default: config.Load()
	Config *config.Config

	// Collections overrides the registry loaded from Config.STAC.CollectionsDir.
	Collections *config.CollectionRegistry

	// Store overrides the item store selected by Config.Store.
	// The server closes it.
	Store store.Store

	// Assets overrides the object store selected by Config.Assets.
	Assets assets.Store

	// Cache overrides the response cache selected by Config.Cache.
	// The server closes it.
	Cache cache.Cache

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a STAC catalog that can be embedded in another application.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	router   chi.Router
	store    store.Store
	writer   *ingest.Writer
	seeder   *ingest.Seeder
	consumer *ingest.Consumer
	cache    cache.Cache
	audit    *audit.Log
}

// New builds the catalog, loads the stored and seeded items, and wires the
// HTTP router. Background ingestion only starts with Run.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger

	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(); err != nil {
			return nil, err
		}
	}

	collections := opts.Collections
	if collections == nil {
		var err error
		collections, err = config.LoadCollections(cfg.STAC.CollectionsDir)
		if err != nil {
			logger.Warn("failed to load collections, using empty registry",
				"dir", cfg.STAC.CollectionsDir,
				"error", err,
			)
			collections = config.NewCollectionRegistry()
		}
	}
	logger.Info("loaded collections", "count", collections.Count())

	s := &Server{cfg: cfg, logger: logger, store: opts.Store, cache: opts.Cache}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	if s.store == nil {
		st, err := store.New(ctx, cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		s.store = st
	}

	holder := index.NewHolder()
	s.writer = ingest.NewWriter(s.store, holder, collections, logger)
	if err := s.writer.Load(ctx); err != nil {
		return nil, err
	}
	if cfg.Store.SeedDir != "" {
		s.seeder = ingest.NewSeeder(cfg.Store.SeedDir, s.writer, logger)
		if err := s.seeder.LoadAll(ctx); err != nil {
			return nil, err
		}
	}
	logger.Info("catalog ready",
		"items", holder.Load().Len(),
		"snapshot", holder.Load().Version(),
		"store", cfg.Store.Driver,
	)

	handlers := api.NewHandlers(cfg, collections, search.NewService(holder, s.store, logger), logger)

	objects := opts.Assets
	if objects == nil {
		var err error
		if objects, err = assets.New(ctx, cfg.Assets); err != nil {
			return nil, fmt.Errorf("failed to open asset store: %w", err)
		}
	}
	handlers.WithAssets(objects)

	if s.cache == nil && cfg.Cache.Driver != cache.DriverNone {
		c, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		s.cache = c
	}
	if s.cache != nil {
		handlers.WithCache(s.cache)
		logger.Info("response cache enabled", "driver", cfg.Cache.Driver, "ttl", cfg.Cache.TTL)
	}

	verifier, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		return nil, err
	}
	if verifier == nil {
		logger.Warn("authentication disabled")
	}

	ro := api.RouterOptions{
		Verifier:        verifier,
		PublicPaths:     cfg.Auth.PublicPaths,
		RequestTimeout:  cfg.Server.RequestTimeout,
		DownloadTimeout: cfg.Server.DownloadTimeout,
	}
	if cfg.RateLimit.Enabled {
		ro.Limiter = ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.MaxClients)
		if ro.TrustedProxies, err = ratelimit.ParseProxies(cfg.RateLimit.TrustedProxies); err != nil {
			return nil, err
		}
	}
	if cfg.Audit.Enabled {
		if s.audit, err = audit.Open(ctx, cfg.Audit.Path, cfg.Audit.Buffer, logger); err != nil {
			return nil, err
		}
		ro.Audit = s.audit
	}
	s.router = api.NewRouter(handlers, ro, logger)

	if cfg.Kafka.Enabled {
		s.consumer = ingest.NewConsumer(cfg.Kafka, s.writer, logger)
	}

	ok = true
	return s, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Writer returns the ingest path, for applications that feed items
// themselves.
func (s *Server) Writer() *ingest.Writer {
	return s.writer
}

// Run runs the background ingesters the configuration enables (the seed
// directory watcher and the Kafka consumer) until ctx is done or one of
// them fails. It returns immediately when none is enabled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var jobs []func(context.Context) error
	if s.seeder != nil && s.cfg.Store.Watch {
		jobs = append(jobs, func(ctx context.Context) error {
			return s.seeder.Watch(ctx, s.cfg.Store.WatchDebounce)
		})
	}
	if s.consumer != nil {
		jobs = append(jobs, s.consumer.Start)
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := job(ctx); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// Close releases the audit log, the cache and the store.
func (s *Server) Close() error {
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
