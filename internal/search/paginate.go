package search

import "github.com/rkm/stac-catalog/internal/index"

// PageRequest selects a page. After, when set, wins over Offset: the page
// starts at the first match sorting after that key, which stays exact when
// items are inserted or removed between requests.
type PageRequest struct {
	Limit  int
	Offset int
	After  *index.SortKey
}

// Page is one slice of a result set.
type Page struct {
	// Total counts every match, not just this page.
	Total int
	// Offset is the index of the first position within the full result.
	Offset    int
	Positions []int32
	// Next is nil on the last page.
	Next *Cursor
}

// Paginate slices matches into the requested page. An offset at or beyond
// the end yields an empty page without a next cursor. Limit must be positive.
func Paginate(snap *index.Snapshot, m Matches, req PageRequest) Page {
	total := m.Len()
	start := req.Offset
	if req.After != nil {
		start = m.seek(snap, *req.After)
	}

	page := Page{Total: total, Offset: start}
	if start >= total {
		page.Positions = []int32{}
		return page
	}

	end := min(start+req.Limit, total)
	page.Positions = make([]int32, 0, end-start)
	for i := start; i < end; i++ {
		page.Positions = append(page.Positions, m.At(i))
	}
	if end < total {
		last := snap.Record(page.Positions[len(page.Positions)-1])
		page.Next = cursorAfter(end, last.SortKey())
	}
	return page
}
