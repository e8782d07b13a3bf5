package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/internal/metrics"
)

// ItemReader hydrates full item records.
type ItemReader interface {
	// GetItems returns the items found among keys. Missing keys are simply
	// absent from the result.
	GetItems(ctx context.Context, keys []catalog.Key) (map[catalog.Key]*catalog.Item, error)
	GetItem(ctx context.Context, key catalog.Key) (*catalog.Item, error)
}

// Result is a hydrated page.
type Result struct {
	Total int
	Items []*catalog.Item
	Next  *Cursor
	// Version and Generation of the snapshot the page was computed from.
	Version    uint64
	Generation string
}

// Service runs searches against the current snapshot.
type Service struct {
	holder *index.Holder
	items  ItemReader
	logger *slog.Logger
}

// NewService creates a search service.
func NewService(holder *index.Holder, items ItemReader, logger *slog.Logger) *Service {
	return &Service{holder: holder, items: items, logger: logger}
}

// Snapshot returns the snapshot new searches run against.
func (s *Service) Snapshot() *index.Snapshot {
	return s.holder.Load()
}

// Search evaluates req and hydrates the selected page. Items the store
// cannot return are dropped from the page and counted; Total still counts
// every match.
func (s *Service) Search(ctx context.Context, req *Request) (*Result, error) {
	snap := s.holder.Load()
	matches := Compose(snap, req.Query)
	page := Paginate(snap, matches, req.PageRequest())
	metrics.ObserveSearch(page.Total)

	res := &Result{Total: page.Total, Next: page.Next, Version: snap.Version(), Generation: snap.Generation(), Items: []*catalog.Item{}}
	if len(page.Positions) == 0 {
		return res, nil
	}

	keys := make([]catalog.Key, len(page.Positions))
	for i, pos := range page.Positions {
		keys[i] = snap.Record(pos).Key
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := s.items.GetItems(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate page: %w", err)
	}

	res.Items = make([]*catalog.Item, 0, len(keys))
	for _, k := range keys {
		it, ok := found[k]
		if !ok {
			metrics.HydrationDropped.Inc()
			s.logger.Warn("item missing from store, dropped from page",
				slog.String("collection", k.Collection),
				slog.String("item_id", k.ID),
				slog.Uint64("snapshot", snap.Version()),
			)
			continue
		}
		res.Items = append(res.Items, it)
	}
	return res, nil
}

// Item returns one item by key. Items absent from the current snapshot are
// reported as not found even if the store still holds them.
func (s *Service) Item(ctx context.Context, key catalog.Key) (*catalog.Item, error) {
	if _, ok := s.holder.Load().Lookup(key); !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrItemNotFound, key)
	}
	it, err := s.items.GetItem(ctx, key)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load item %s: %w", key, err)
	}
	return it, nil
}
