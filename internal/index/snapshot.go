package index

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// Record is the part of an item the search path needs. Full items are
// hydrated from the store only for the page being returned.
type Record struct {
	Key         catalog.Key
	BBox        geojson.BBox
	Acquisition catalog.Interval
}

// RecordOf extracts the indexed fields of an item.
func RecordOf(it *catalog.Item) Record {
	return Record{Key: it.Key(), BBox: it.BBox, Acquisition: it.Acquisition}
}

// SortKey is the total order of search results: acquisition start, most
// recent first, then collection id and item id ascending.
type SortKey struct {
	Start      time.Time
	Collection string
	ID         string
}

// Compare returns a negative number when a sorts before b.
func (a SortKey) Compare(b SortKey) int {
	if c := b.Start.Compare(a.Start); c != 0 {
		return c
	}
	if c := strings.Compare(a.Collection, b.Collection); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortKey returns the record's position in the result order.
func (r Record) SortKey() SortKey {
	return SortKey{Start: r.Acquisition.Start, Collection: r.Key.Collection, ID: r.Key.ID}
}

// Extent is the aggregate coverage of a collection's items.
type Extent struct {
	BBox  geojson.BBox
	Start time.Time
	End   time.Time
	Count int
}

func (e Extent) widen(r Record) Extent {
	if e.Count == 0 {
		return Extent{BBox: r.BBox, Start: r.Acquisition.Start, End: r.Acquisition.End, Count: 1}
	}
	e.BBox = e.BBox.Union(r.BBox)
	if r.Acquisition.Start.Before(e.Start) {
		e.Start = r.Acquisition.Start
	}
	if r.Acquisition.End.After(e.End) {
		e.End = r.Acquisition.End
	}
	e.Count++
	return e
}

// Snapshot is an immutable view of the catalog. Records are stored in result
// order, so a record's position doubles as its rank and every position list
// sorted ascending is already in result order.
type Snapshot struct {
	epoch        string
	version      uint64
	records      []Record
	tree         *Tree
	positions    map[catalog.Key]int32
	byCollection map[string][]int32
	extents      map[string]Extent
}

// NewSnapshot builds a snapshot over records. Later duplicates of a key win.
func NewSnapshot(version uint64, records []Record) *Snapshot {
	recs := dedup(records)
	slices.SortFunc(recs, compareRecords)
	return build(version, recs)
}

func compareRecords(a, b Record) int { return a.SortKey().Compare(b.SortKey()) }

// dedup returns records with one entry per key, the last one given.
func dedup(records []Record) []Record {
	seen := make(map[catalog.Key]int, len(records))
	recs := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := seen[r.Key]; ok {
			recs[i] = r
			continue
		}
		seen[r.Key] = len(recs)
		recs = append(recs, r)
	}
	return recs
}

// build indexes records that are already unique and in result order.
func build(version uint64, recs []Record) *Snapshot {
	s := &Snapshot{
		version:      version,
		records:      recs,
		positions:    make(map[catalog.Key]int32, len(recs)),
		byCollection: make(map[string][]int32),
		extents:      make(map[string]Extent),
	}
	entries := make([]Entry, len(recs))
	for i, r := range recs {
		pos := int32(i)
		entries[i] = Entry{BBox: r.BBox, ID: pos}
		s.positions[r.Key] = pos
		s.byCollection[r.Key.Collection] = append(s.byCollection[r.Key.Collection], pos)
		s.extents[r.Key.Collection] = s.extents[r.Key.Collection].widen(r)
	}
	s.tree = Build(entries)
	return s
}

// Version increases with every mutation applied through a Holder.
func (s *Snapshot) Version() uint64 { return s.version }

// Generation identifies the snapshot across processes: the holder's epoch
// followed by the version. Versions restart at zero in every process, so
// anything shared between processes must be keyed on this instead.
func (s *Snapshot) Generation() string {
	if s.epoch == "" {
		return strconv.FormatUint(s.version, 10)
	}
	return s.epoch + "." + strconv.FormatUint(s.version, 10)
}

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.records) }

// Record returns the record at a position.
func (s *Snapshot) Record(pos int32) Record { return s.records[pos] }

// Lookup finds a record by key.
func (s *Snapshot) Lookup(key catalog.Key) (Record, bool) {
	pos, ok := s.positions[key]
	if !ok {
		return Record{}, false
	}
	return s.records[pos], true
}

// Collection returns the positions of a collection's records in result
// order. The slice must not be modified.
func (s *Snapshot) Collection(id string) []int32 {
	return s.byCollection[id]
}

// Extent returns the aggregate extent of a collection's records.
func (s *Snapshot) Extent(collection string) (Extent, bool) {
	e, ok := s.extents[collection]
	return e, ok
}

// Intersecting returns the positions of records whose bbox intersects q,
// sorted ascending.
func (s *Snapshot) Intersecting(q geojson.BBox) []int32 {
	ids := s.tree.Query(q)
	slices.Sort(ids)
	return ids
}

// SearchFrom returns the index of the first position in sorted whose record
// sorts strictly after key.
func (s *Snapshot) SearchFrom(sorted []int32, key SortKey) int {
	i, _ := slices.BinarySearchFunc(sorted, key, func(pos int32, k SortKey) int {
		if s.records[pos].SortKey().Compare(k) <= 0 {
			return -1
		}
		return 1
	})
	return i
}

// Rank returns the position of the first record sorting strictly after key.
func (s *Snapshot) Rank(key SortKey) int {
	i, _ := slices.BinarySearchFunc(s.records, key, func(r Record, k SortKey) int {
		if r.SortKey().Compare(k) <= 0 {
			return -1
		}
		return 1
	})
	return i
}

// Records returns a copy of all records.
func (s *Snapshot) Records() []Record {
	return slices.Clone(s.records)
}

// Holder publishes snapshots to readers. Readers call Load and never block;
// writers are serialized and each builds a fresh snapshot from the previous
// one (copy on write), so in-flight queries keep a consistent view.
type Holder struct {
	mu    sync.Mutex
	epoch string
	cur   atomic.Pointer[Snapshot]
}

// NewHolder returns a holder publishing an empty snapshot. Each holder draws
// a random epoch that tags every snapshot it publishes.
func NewHolder() *Holder {
	h := &Holder{epoch: newEpoch()}
	h.publish(NewSnapshot(0, nil))
	return h
}

func newEpoch() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Epoch returns the random tag of this holder's snapshots.
func (h *Holder) Epoch() string { return h.epoch }

func (h *Holder) publish(s *Snapshot) *Snapshot {
	s.epoch = h.epoch
	h.cur.Store(s)
	return s
}

// Load returns the current snapshot.
func (h *Holder) Load() *Snapshot {
	return h.cur.Load()
}

// Replace publishes a snapshot containing exactly records.
func (h *Holder) Replace(records []Record) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.publish(NewSnapshot(h.cur.Load().version+1, records))
}

// Apply publishes a snapshot with upserts added or replaced and deletes
// removed. Deleting an unknown key is a no-op. The previous records are
// already ordered, so only the upserts are sorted and then merged in.
func (h *Holder) Apply(upserts []Record, deletes []catalog.Key) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.cur.Load()
	drop := make(map[catalog.Key]struct{}, len(deletes)+len(upserts))
	for _, k := range deletes {
		drop[k] = struct{}{}
	}
	for _, r := range upserts {
		drop[r.Key] = struct{}{}
	}
	added := dedup(upserts)
	slices.SortFunc(added, compareRecords)

	records := make([]Record, 0, len(prev.records)+len(added))
	i := 0
	for _, r := range prev.records {
		if _, gone := drop[r.Key]; gone {
			continue
		}
		for i < len(added) && compareRecords(added[i], r) < 0 {
			records = append(records, added[i])
			i++
		}
		records = append(records, r)
	}
	records = append(records, added[i:]...)

	return h.publish(build(prev.version+1, records))
}
