// Package ingest applies catalog mutations from seed files, the Kafka item
// stream and the seed directory watcher. Every mutation is written to the
// store first and then published as a new index snapshot.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/internal/metrics"
	"github.com/rkm/stac-catalog/internal/store"
)

// Sources reported in metrics and logs.
const (
	SourceSeed  = "seed"
	SourceKafka = "kafka"
	SourceWatch = "watch"
)

// CollectionSet reports whether a collection is defined.
type CollectionSet interface {
	Has(id string) bool
}

// Result counts the effect of one Apply call.
type Result struct {
	Upserted int
	Deleted  int
	Rejected int
	// Accepted holds the keys of the upserts that were stored.
	Accepted []catalog.Key
}

// Applier is implemented by Writer.
type Applier interface {
	Apply(ctx context.Context, source string, upserts []*catalog.Item, deletes []catalog.Key) (Result, error)
}

// Writer is the single path through which the catalog changes.
type Writer struct {
	mu          sync.Mutex
	store       store.Store
	holder      *index.Holder
	collections CollectionSet
	logger      *slog.Logger
}

func NewWriter(st store.Store, holder *index.Holder, collections CollectionSet, logger *slog.Logger) *Writer {
	return &Writer{store: st, holder: holder, collections: collections, logger: logger}
}

// Load publishes a snapshot of everything currently in the store.
func (w *Writer) Load(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var records []index.Record
	err := w.store.Scan(ctx, func(it *catalog.Item) error {
		if !w.collections.Has(it.Collection) {
			w.logger.Warn("stored item names an unknown collection, skipped",
				slog.String("collection", it.Collection),
				slog.String("item_id", it.ID),
			)
			return nil
		}
		records = append(records, index.RecordOf(it))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan store: %w", err)
	}
	snap := w.holder.Replace(records)
	metrics.SetSnapshot(snap.Len(), snap.Version())
	w.logger.Info("catalog loaded",
		slog.Int("items", snap.Len()),
		slog.Uint64("snapshot", snap.Version()),
	)
	return nil
}

// Apply validates upserts, writes them and the deletes to the store, and
// publishes the new snapshot. Items naming an unknown collection or failing
// validation are rejected individually; the rest are applied.
func (w *Writer) Apply(ctx context.Context, source string, upserts []*catalog.Item, deletes []catalog.Key) (Result, error) {
	var res Result
	accepted := make([]*catalog.Item, 0, len(upserts))
	for _, it := range upserts {
		if err := w.check(it); err != nil {
			res.Rejected++
			metrics.ObserveIngest(source, "rejected")
			w.logger.Warn("item rejected",
				slog.String("source", source),
				slog.String("collection", it.Collection),
				slog.String("item_id", it.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		accepted = append(accepted, it)
	}
	if len(accepted) == 0 && len(deletes) == 0 {
		return res, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(accepted) > 0 {
		if err := w.store.Upsert(ctx, accepted...); err != nil {
			metrics.ObserveIngest(source, "error")
			return res, fmt.Errorf("failed to store %d items: %w", len(accepted), err)
		}
	}
	if len(deletes) > 0 {
		if err := w.store.Delete(ctx, deletes...); err != nil {
			metrics.ObserveIngest(source, "error")
			return res, fmt.Errorf("failed to delete %d items: %w", len(deletes), err)
		}
	}

	records := make([]index.Record, len(accepted))
	for i, it := range accepted {
		records[i] = index.RecordOf(it)
	}
	snap := w.holder.Apply(records, deletes)
	metrics.SetSnapshot(snap.Len(), snap.Version())

	res.Upserted = len(accepted)
	res.Accepted = make([]catalog.Key, len(accepted))
	for i, it := range accepted {
		res.Accepted[i] = it.Key()
	}
	res.Deleted = len(deletes)
	for range accepted {
		metrics.ObserveIngest(source, "upserted")
	}
	for range deletes {
		metrics.ObserveIngest(source, "deleted")
	}
	w.logger.Debug("catalog updated",
		slog.String("source", source),
		slog.Int("upserted", res.Upserted),
		slog.Int("deleted", res.Deleted),
		slog.Uint64("snapshot", snap.Version()),
	)
	return res, nil
}

func (w *Writer) check(it *catalog.Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	if !w.collections.Has(it.Collection) {
		return fmt.Errorf("%w: %s", catalog.ErrCollectionNotFound, it.Collection)
	}
	return nil
}
