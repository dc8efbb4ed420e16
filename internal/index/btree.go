package index

import (
	"sort"
	"strconv"

	"github.com/AryanB1/SmartQuery/internal/storage"
)

// btreeEntry is one (value, position) pair in the sorted entry array.
type btreeEntry struct {
	value float64
	pos   int
}

// BTreeIndex indexes a numeric column as a value-sorted entry array, serving
// range and equality lookups by linear interval scan. Rows whose value is
// missing or non-numeric are skipped at build time; non-numeric lookup values
// yield empty results.
type BTreeIndex struct {
	table     string
	column    string
	segmentID string

	entries []btreeEntry
}

// NewBTreeIndex creates an empty btree index for one (table, column,
// segment) triple.
func NewBTreeIndex(table, column, segmentID string) *BTreeIndex {
	return &BTreeIndex{table: table, column: column, segmentID: segmentID}
}

func (ix *BTreeIndex) Table() string     { return ix.table }
func (ix *BTreeIndex) Column() string    { return ix.column }
func (ix *BTreeIndex) SegmentID() string { return ix.segmentID }

// Build collects (value, position) pairs and sorts them by value ascending.
func (ix *BTreeIndex) Build(rows []storage.Row) error {
	ix.entries = ix.entries[:0]

	for pos, row := range rows {
		value, ok := numericValue(row, ix.column)
		if !ok {
			continue
		}
		ix.entries = append(ix.entries, btreeEntry{value: value, pos: pos})
	}

	sort.Slice(ix.entries, func(i, j int) bool {
		return ix.entries[i].value < ix.entries[j].value
	})
	return nil
}

// LookupEquals maps an equality lookup to the degenerate inclusive range.
func (ix *BTreeIndex) LookupEquals(value string) IntSet {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return EmptySet()
	}
	result, _ := ix.LookupRange(v, true, v, true)
	return result
}

// LookupIn unions the per-value equality results.
func (ix *BTreeIndex) LookupIn(values []string) IntSet {
	result := NewArraySet()
	for _, value := range values {
		result.Union(ix.LookupEquals(value))
	}
	return result
}

// LookupRange emits the positions whose value lies in the requested
// open/closed interval.
func (ix *BTreeIndex) LookupRange(lo float64, includeLo bool, hi float64, includeHi bool) (IntSet, error) {
	result := NewArraySet()
	for _, entry := range ix.entries {
		if entry.value < lo || (entry.value == lo && !includeLo) {
			continue
		}
		if entry.value > hi || (entry.value == hi && !includeHi) {
			// Entries are sorted; nothing further can match.
			break
		}
		result.Add(entry.pos)
	}
	return result, nil
}

// MemoryBytes approximates the in-memory size of the index.
func (ix *BTreeIndex) MemoryBytes() int64 {
	return int64(len(ix.entries))*16 + 64
}

// Stats returns descriptive statistics for monitoring.
func (ix *BTreeIndex) Stats() map[string]any {
	return map[string]any{
		"type":        "btree",
		"table":       ix.table,
		"column":      ix.column,
		"segmentId":   ix.segmentID,
		"entryCount":  len(ix.entries),
		"memoryBytes": ix.MemoryBytes(),
	}
}
