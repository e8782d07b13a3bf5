package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/rkm/stac-catalog/internal/catalog"
)

// Memory keeps items in a map. Items are immutable, so pointers are shared
// with callers.
type Memory struct {
	mu    sync.RWMutex
	items map[catalog.Key]*catalog.Item
}

func NewMemory() *Memory {
	return &Memory{items: make(map[catalog.Key]*catalog.Item)}
}

func (m *Memory) GetItems(ctx context.Context, keys []catalog.Key) (map[catalog.Key]*catalog.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[catalog.Key]*catalog.Item, len(keys))
	for _, k := range keys {
		if it, ok := m.items[k]; ok {
			out[k] = it
		}
	}
	return out, nil
}

func (m *Memory) GetItem(ctx context.Context, key catalog.Key) (*catalog.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrItemNotFound, key)
	}
	return it, nil
}

// Scan visits a point-in-time copy of the contents, so fn may call back into
// the store.
func (m *Memory) Scan(ctx context.Context, fn func(*catalog.Item) error) error {
	m.mu.RLock()
	items := make([]*catalog.Item, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	m.mu.RUnlock()

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, items ...*catalog.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[it.Key()] = it
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, keys ...catalog.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *Memory) Close() error { return nil }
