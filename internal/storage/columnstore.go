package storage

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/AryanB1/SmartQuery/pkg/types"
)

// Equality is a segment-pruning hint: a conjunct of the residual predicate
// that every matching row must satisfy. Segments whose bloom filter excludes
// the value are skipped entirely.
type Equality struct {
	Column string
	Value  string
}

// FlushedSegment describes one segment produced by an AppendBatch call.
type FlushedSegment struct {
	Table   string
	Segment *Segment
}

// tablePartition holds one table's segments. The mutex guards the segment
// slice; scanners snapshot it and iterate without the lock.
type tablePartition struct {
	mu       sync.Mutex
	segments []*Segment
}

func (t *tablePartition) snapshot() []*Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	segs := make([]*Segment, len(t.segments))
	copy(segs, t.segments)
	return segs
}

// ColumnStore is the authoritative in-memory record of all ingested events,
// partitioned by table. Appends are atomic per table with respect to
// concurrent readers.
type ColumnStore struct {
	mu     sync.RWMutex
	tables map[string]*tablePartition

	totalEvents  atomic.Int64
	totalBatches atomic.Int64
}

// NewColumnStore creates an empty store.
func NewColumnStore() *ColumnStore {
	return &ColumnStore{tables: make(map[string]*tablePartition)}
}

// AppendBatch groups the events by table (substituting the default table for
// events without one) and appends each group as a new sealed segment, in
// submission order. It returns a descriptor per produced segment so the
// ingest path can notify the index layer.
func (cs *ColumnStore) AppendBatch(events []*types.Event) []FlushedSegment {
	if len(events) == 0 {
		return nil
	}

	byTable := make(map[string][]*types.Event)
	var order []string
	for _, e := range events {
		table := e.Table
		if table == "" {
			table = types.DefaultTable
			e.Table = table
		}
		if _, seen := byTable[table]; !seen {
			order = append(order, table)
		}
		byTable[table] = append(byTable[table], e)
	}

	flushed := make([]FlushedSegment, 0, len(byTable))
	for _, table := range order {
		seg := newSegment(byTable[table])
		part := cs.partition(table)
		part.mu.Lock()
		part.segments = append(part.segments, seg)
		part.mu.Unlock()
		flushed = append(flushed, FlushedSegment{Table: table, Segment: seg})
	}

	cs.totalEvents.Add(int64(len(events)))
	cs.totalBatches.Add(1)
	return flushed
}

// Scan returns the rows of a table whose timestamp lies in the inclusive
// range [fromTS, toTS] and for which the optional filter returns true, in
// insertion order. Unknown tables yield no rows.
func (cs *ColumnStore) Scan(table string, fromTS, toTS int64, filter func(Row) bool) []Row {
	return cs.scan(table, fromTS, toTS, nil, filter)
}

// ScanPruned behaves like Scan but additionally skips segments whose bloom
// filters prove the equality hint cannot match.
func (cs *ColumnStore) ScanPruned(table string, fromTS, toTS int64, eq *Equality, filter func(Row) bool) []Row {
	return cs.scan(table, fromTS, toTS, eq, filter)
}

func (cs *ColumnStore) scan(table string, fromTS, toTS int64, eq *Equality, filter func(Row) bool) []Row {
	part := cs.lookupPartition(table)
	if part == nil {
		return nil
	}

	var rows []Row
	for _, seg := range part.snapshot() {
		if !seg.overlaps(fromTS, toTS) {
			continue
		}
		if eq != nil && !seg.mightContain(eq.Column, eq.Value) {
			continue
		}
		for _, e := range seg.events {
			if e.TS < fromTS || e.TS > toTS {
				continue
			}
			row := NewRow(e)
			if filter == nil || filter(row) {
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// SegmentRows returns all row views of one segment, or nil when the table or
// segment is unknown.
func (cs *ColumnStore) SegmentRows(table, segmentID string) []Row {
	part := cs.lookupPartition(table)
	if part == nil {
		return nil
	}
	for _, seg := range part.snapshot() {
		if seg.ID == segmentID {
			return seg.Rows()
		}
	}
	return nil
}

// CollectMatches resolves index lookup results (segment id → segment-local
// row positions) to row views, preserving segment insertion order and
// position order within each segment.
func (cs *ColumnStore) CollectMatches(table string, matches map[string][]int) []Row {
	part := cs.lookupPartition(table)
	if part == nil || len(matches) == 0 {
		return nil
	}

	var rows []Row
	for _, seg := range part.snapshot() {
		positions, ok := matches[seg.ID]
		if !ok {
			continue
		}
		sorted := make([]int, len(positions))
		copy(sorted, positions)
		sort.Ints(sorted)
		for _, pos := range sorted {
			if row, ok := seg.Row(pos); ok {
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// Stats returns store totals plus per-table row counts.
func (cs *ColumnStore) Stats() map[string]any {
	cs.mu.RLock()
	tableSizes := make(map[string]int, len(cs.tables))
	segmentCounts := make(map[string]int, len(cs.tables))
	for name, part := range cs.tables {
		count := 0
		segs := part.snapshot()
		for _, seg := range segs {
			count += seg.RowCount()
		}
		tableSizes[name] = count
		segmentCounts[name] = len(segs)
	}
	tableCount := len(cs.tables)
	cs.mu.RUnlock()

	return map[string]any{
		"totalEvents":   cs.totalEvents.Load(),
		"totalBatches":  cs.totalBatches.Load(),
		"tablesCount":   tableCount,
		"tableSizes":    tableSizes,
		"segmentCounts": segmentCounts,
	}
}

// Size returns the total number of events across all tables.
func (cs *ColumnStore) Size() int64 {
	return cs.totalEvents.Load()
}

// TableNames returns the names of all tables with at least one segment.
func (cs *ColumnStore) TableNames() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	names := make([]string, 0, len(cs.tables))
	for name := range cs.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes all data.
func (cs *ColumnStore) Clear() {
	cs.mu.Lock()
	cs.tables = make(map[string]*tablePartition)
	cs.mu.Unlock()
	cs.totalEvents.Store(0)
	cs.totalBatches.Store(0)
}

// partition returns the table's partition, creating it if needed.
func (cs *ColumnStore) partition(table string) *tablePartition {
	cs.mu.RLock()
	part, ok := cs.tables[table]
	cs.mu.RUnlock()
	if ok {
		return part
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if part, ok = cs.tables[table]; ok {
		return part
	}
	part = &tablePartition{}
	cs.tables[table] = part
	return part
}

// lookupPartition returns the table's partition, or nil when unknown.
func (cs *ColumnStore) lookupPartition(table string) *tablePartition {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.tables[table]
}
