// Package cache stores rendered response bodies. Keys embed the snapshot
// generation, so every catalog mutation leaves old entries unreachable and
// they age out through the TTL. Generations are unique per process, which
// keeps replicas and restarts sharing one Redis from serving each other's
// pages.
package cache

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rkm/stac-catalog/internal/config"
)

// Drivers accepted by New.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Cache is a byte store with a fixed TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Close() error
}

// Key derives a cache key for a response. Query parameters are put in a
// canonical order so equivalent URLs share an entry.
func Key(route string, query url.Values, baseURL, generation string) string {
	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteByte('\n')
	b.WriteString(canonicalQuery(query))
	return fmt.Sprintf("%s:g%s:%016x", route, generation, xxhash.Sum64String(b.String()))
}

func canonicalQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(strings.TrimSpace(v)))
		}
	}
	return b.String()
}

// New builds the cache selected by cfg.
func New(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case DriverNone, "":
		return Noop{}, nil
	case DriverMemory:
		return NewMemory(cfg.Size, cfg.TTL), nil
	case DriverRedis:
		return NewRedis(ctx, cfg.RedisAddr, cfg.TTL,
			WithPassword(cfg.RedisPassword),
			WithDB(cfg.RedisDB),
			WithKeyPrefix(cfg.KeyPrefix),
		)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Close() error                                      { return nil }

// Memory is an in-process LRU whose entries expire after the TTL.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates a cache holding at most size entries.
func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	m.lru.Add(key, val)
	return nil
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
