// Package ratelimit keeps one token bucket per client. Buckets live in a
// bounded LRU so a flood of distinct addresses cannot grow memory without
// limit; an evicted client simply starts again with a full bucket.
package ratelimit

import (
	"fmt"
	"math"
	"net/netip"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Limit is the number of requests allowed per window.
	Limit     int
	Remaining int
	// RetryAfter is set when the request was rejected.
	RetryAfter time.Duration
}

// Limiter hands out per-key token buckets refilled at perMinute requests
// per minute.
type Limiter struct {
	mu        sync.Mutex
	clients   *lru.Cache[string, *rate.Limiter]
	perMinute int
	burst     int
	now       func() time.Time
}

// New creates a limiter tracking at most maxClients keys.
func New(perMinute, burst, maxClients int) *Limiter {
	if maxClients <= 0 {
		maxClients = 10000
	}
	if burst <= 0 {
		burst = perMinute
	}
	c, _ := lru.New[string, *rate.Limiter](maxClients)
	return &Limiter{clients: c, perMinute: perMinute, burst: burst, now: time.Now}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.clients.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.burst)
	l.clients.Add(key, b)
	return b
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) Decision {
	b := l.bucket(key)
	now := l.now()
	d := Decision{Limit: l.perMinute}

	if b.AllowN(now, 1) {
		d.Allowed = true
		d.Remaining = max(0, int(math.Floor(b.TokensAt(now))))
		return d
	}

	missing := 1 - b.TokensAt(now)
	d.RetryAfter = time.Duration(missing / float64(b.Limit()) * float64(time.Second))
	return d
}

// Clients returns the number of tracked keys.
func (l *Limiter) Clients() int {
	return l.clients.Len()
}

// ParseProxies parses addresses and CIDR ranges of trusted proxies. Blank
// entries are ignored.
func ParseProxies(list []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// Trusted reports whether addr falls in one of the prefixes.
func Trusted(addr netip.Addr, prefixes []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
