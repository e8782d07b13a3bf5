// Package search turns request parameters into an ordered, paginated set of
// catalog items. Predicates are evaluated against an index snapshot and only
// the selected page is hydrated from the store.
package search

import (
	"slices"

	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// Query is the filter part of a search. Validation happens when parsing, so
// the values here are always well formed.
type Query struct {
	// Collections restricts the scope; empty means the whole catalog.
	Collections []string
	BBox        *geojson.BBox
	Window      Window
}

// Matches is the ordered result of a query: snapshot positions in result
// order. When no predicate applies it covers the whole snapshot without
// materializing the positions.
type Matches struct {
	all       bool
	n         int
	positions []int32
}

// Len returns the total count of matching items.
func (m Matches) Len() int {
	if m.all {
		return m.n
	}
	return len(m.positions)
}

// At returns the snapshot position of the i-th match.
func (m Matches) At(i int) int32 {
	if m.all {
		return int32(i)
	}
	return m.positions[i]
}

// seek returns the index of the first match sorting strictly after key.
func (m Matches) seek(snap *index.Snapshot, key index.SortKey) int {
	if m.all {
		return snap.Rank(key)
	}
	return snap.SearchFrom(m.positions, key)
}

// Compose evaluates q against snap. The collection scope is resolved first,
// then intersected with the spatial index result, then narrowed by the time
// window. Positions in a snapshot are ranks, so keeping lists sorted keeps
// them in result order.
func Compose(snap *index.Snapshot, q Query) Matches {
	scope, scoped := collectionScope(snap, q.Collections)

	var candidates []int32
	switch {
	case q.BBox != nil:
		hits := snap.Intersecting(*q.BBox)
		if scoped {
			hits = intersectSorted(scope, hits)
		}
		candidates = hits
	case scoped:
		candidates = scope
	case q.Window.IsZero():
		return Matches{all: true, n: snap.Len()}
	default:
		candidates = make([]int32, snap.Len())
		for i := range candidates {
			candidates[i] = int32(i)
		}
	}

	if !q.Window.IsZero() {
		kept := make([]int32, 0, len(candidates))
		for _, pos := range candidates {
			if q.Window.Overlaps(snap.Record(pos).Acquisition) {
				kept = append(kept, pos)
			}
		}
		candidates = kept
	}
	return Matches{positions: candidates}
}

// collectionScope returns the sorted positions of the named collections and
// whether a scope applies at all. Unknown collections contribute nothing.
func collectionScope(snap *index.Snapshot, collections []string) ([]int32, bool) {
	if len(collections) == 0 {
		return nil, false
	}
	if len(collections) == 1 {
		return snap.Collection(collections[0]), true
	}

	seen := make(map[string]bool, len(collections))
	var merged []int32
	for _, c := range collections {
		if seen[c] {
			continue
		}
		seen[c] = true
		merged = append(merged, snap.Collection(c)...)
	}
	slices.Sort(merged)
	return merged, true
}

// intersectSorted returns the values present in both ascending lists.
func intersectSorted(a, b []int32) []int32 {
	out := make([]int32, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
