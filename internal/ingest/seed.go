package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rkm/stac-catalog/internal/catalog"
)

// Seeder keeps the catalog in line with a directory of seed files. It
// remembers which file each item came from, so editing or removing a file
// deletes the items it no longer lists.
type Seeder struct {
	dir    string
	writer Applier
	logger *slog.Logger

	mu    sync.Mutex
	files map[string][]catalog.Key
	owner map[catalog.Key]string
}

func NewSeeder(dir string, writer Applier, logger *slog.Logger) *Seeder {
	return &Seeder{
		dir:    dir,
		writer: writer,
		logger: logger,
		files:  make(map[string][]catalog.Key),
		owner:  make(map[catalog.Key]string),
	}
}

// LoadAll applies every seed file in the directory, in name order.
func (s *Seeder) LoadAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read seed directory %q: %w", s.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !catalog.IsSeedFile(entry.Name()) {
			continue
		}
		if err := s.SyncFile(ctx, filepath.Join(s.dir, entry.Name()), SourceSeed); err != nil {
			return err
		}
	}
	return nil
}

// SyncFile applies the current content of path. A missing file deletes
// every item it contributed.
func (s *Seeder) SyncFile(ctx context.Context, path, source string) error {
	var items []*catalog.Item
	if _, err := os.Stat(path); err == nil {
		items, err = catalog.LoadFile(path)
		if err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat %q: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	listed := make(map[catalog.Key]struct{}, len(items))
	for _, it := range items {
		listed[it.Key()] = struct{}{}
	}
	var stale, kept []catalog.Key
	for _, k := range s.files[path] {
		if s.owner[k] != path {
			continue
		}
		if _, ok := listed[k]; ok {
			kept = append(kept, k)
		} else {
			stale = append(stale, k)
		}
	}

	res, err := s.writer.Apply(ctx, source, items, stale)
	if err != nil {
		return fmt.Errorf("failed to apply %q: %w", path, err)
	}

	for _, k := range stale {
		delete(s.owner, k)
	}
	// A listed item that is now rejected keeps its stored copy, so the
	// file still owns it.
	owned := make(map[catalog.Key]struct{}, len(res.Accepted)+len(kept))
	for _, k := range kept {
		owned[k] = struct{}{}
	}
	for _, k := range res.Accepted {
		owned[k] = struct{}{}
		s.owner[k] = path
	}
	if len(owned) == 0 {
		delete(s.files, path)
	} else {
		keys := make([]catalog.Key, 0, len(owned))
		for k := range owned {
			keys = append(keys, k)
		}
		s.files[path] = keys
	}

	s.logger.Info("seed file applied",
		slog.String("file", path),
		slog.String("source", source),
		slog.Int("upserted", res.Upserted),
		slog.Int("deleted", res.Deleted),
		slog.Int("rejected", res.Rejected),
	)
	return nil
}

// Watch applies seed files as they change until ctx is done. Bursts of
// events for one file are collapsed into a single sync once the file has
// been quiet for debounce.
func (s *Seeder) Watch(ctx context.Context, debounce time.Duration) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", s.dir, err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	s.logger.Info("watching seed directory", slog.String("dir", s.dir))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !catalog.IsSeedFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) < debounce {
					continue
				}
				delete(pending, file)
				if err := s.SyncFile(ctx, file, SourceWatch); err != nil {
					s.logger.Warn("failed to apply seed file",
						slog.String("file", file),
						slog.String("error", err.Error()),
					)
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("seed watcher error", slog.String("error", err.Error()))
		}
	}
}
