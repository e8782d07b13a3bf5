// Package index holds the in-memory search structures: a packed R-tree over
// item bounding boxes and the immutable catalog snapshot built around it.
package index

import (
	"math"
	"slices"

	"github.com/rkm/stac-catalog/pkg/geojson"
)

// nodeCapacity is the fan-out of every tree node.
const nodeCapacity = 16

// Entry is one indexed box. ID is opaque to the tree.
type Entry struct {
	BBox geojson.BBox
	ID   int32
}

type node struct {
	box   geojson.BBox
	start int32 // first child in the level below, or first entry for leaves
	count int32
}

// Tree is a static R-tree packed with the Sort-Tile-Recursive algorithm. It
// is never modified after Build, so any number of goroutines may query it.
type Tree struct {
	entries []Entry
	// levels[0] holds leaves over entries; the last level is the top.
	levels [][]node
}

// Build packs entries into a tree. The slice is copied.
func Build(entries []Entry) *Tree {
	t := &Tree{entries: slices.Clone(entries)}
	if len(t.entries) == 0 {
		return t
	}

	boxes := make([]geojson.BBox, len(t.entries))
	strSort(t.entries, func(e Entry) geojson.BBox { return e.BBox })
	for i, e := range t.entries {
		boxes[i] = e.BBox
	}
	level := group(boxes)
	t.levels = append(t.levels, level)

	for len(level) > nodeCapacity {
		strSort(level, func(n node) geojson.BBox { return n.box })
		boxes = boxes[:0]
		for _, n := range level {
			boxes = append(boxes, n.box)
		}
		level = group(boxes)
		t.levels = append(t.levels, level)
	}
	return t
}

// group covers consecutive runs of nodeCapacity boxes with one node each.
func group(boxes []geojson.BBox) []node {
	out := make([]node, 0, (len(boxes)+nodeCapacity-1)/nodeCapacity)
	for start := 0; start < len(boxes); start += nodeCapacity {
		end := min(start+nodeCapacity, len(boxes))
		box := boxes[start]
		for _, b := range boxes[start+1 : end] {
			box = box.Union(b)
		}
		out = append(out, node{box: box, start: int32(start), count: int32(end - start)})
	}
	return out
}

// strSort orders items so that consecutive runs of nodeCapacity form compact
// tiles: vertical slabs by center longitude, each slab sorted by latitude.
func strSort[T any](items []T, boxOf func(T) geojson.BBox) {
	centerX := func(v T) float64 { b := boxOf(v); return (b[0] + b[2]) / 2 }
	centerY := func(v T) float64 { b := boxOf(v); return (b[1] + b[3]) / 2 }

	slices.SortFunc(items, func(a, b T) int { return cmpFloat(centerX(a), centerX(b)) })

	leaves := (len(items) + nodeCapacity - 1) / nodeCapacity
	slabs := int(math.Ceil(math.Sqrt(float64(leaves))))
	slabSize := slabs * nodeCapacity
	for start := 0; start < len(items); start += slabSize {
		end := min(start+slabSize, len(items))
		slices.SortFunc(items[start:end], func(a, b T) int { return cmpFloat(centerY(a), centerY(b)) })
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Len returns the number of indexed entries.
func (t *Tree) Len() int {
	return len(t.entries)
}

// Search calls fn for every entry whose box intersects q (edges inclusive)
// until fn returns false.
func (t *Tree) Search(q geojson.BBox, fn func(id int32) bool) {
	if len(t.levels) == 0 {
		return
	}

	type frame struct {
		level int
		idx   int32
	}
	top := len(t.levels) - 1
	stack := make([]frame, 0, 64)
	for i := range t.levels[top] {
		stack = append(stack, frame{level: top, idx: int32(i)})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.levels[f.level][f.idx]
		if !n.box.Intersects(q) {
			continue
		}
		if f.level == 0 {
			for _, e := range t.entries[n.start : n.start+n.count] {
				if e.BBox.Intersects(q) && !fn(e.ID) {
					return
				}
			}
			continue
		}
		for c := n.start; c < n.start+n.count; c++ {
			stack = append(stack, frame{level: f.level - 1, idx: c})
		}
	}
}

// Query returns the ids of all entries intersecting q, in no particular order.
func (t *Tree) Query(q geojson.BBox) []int32 {
	var ids []int32
	t.Search(q, func(id int32) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}
