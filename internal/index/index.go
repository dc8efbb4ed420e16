package index

import (
	"errors"
	"strconv"
	"strings"

	"github.com/AryanB1/SmartQuery/internal/storage"
)

// ErrRangeUnsupported is returned by index kinds that cannot answer range
// lookups; the caller falls back to a scan.
var ErrRangeUnsupported = errors.New("index: range lookup not supported")

// SecondaryIndex is the contract shared by all per-segment index kinds.
// An index is built once off the query path and read-only afterwards.
type SecondaryIndex interface {
	Table() string
	Column() string
	SegmentID() string

	// Build populates the index from the segment's rows in position order.
	Build(rows []storage.Row) error

	LookupEquals(value string) IntSet
	LookupIn(values []string) IntSet
	LookupRange(lo float64, includeLo bool, hi float64, includeHi bool) (IntSet, error)

	MemoryBytes() int64
	Stats() map[string]any
}

// numericColumnFragments marks property columns heuristically treated as
// numeric and therefore indexed with a BTree.
var numericColumnFragments = []string{"price", "amount", "count", "size"}

// LooksNumeric reports whether a column should get a BTree index: the ts
// column, or a props column whose name suggests numeric content.
func LooksNumeric(column string) bool {
	if strings.EqualFold(column, "ts") {
		return true
	}
	if !strings.HasPrefix(strings.ToLower(column), storage.PropsPrefix) {
		return false
	}
	lower := strings.ToLower(column)
	for _, fragment := range numericColumnFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// NewIndexFor creates the appropriate index variant for a column.
func NewIndexFor(table, column, segmentID string) SecondaryIndex {
	if LooksNumeric(column) {
		return NewBTreeIndex(table, column, segmentID)
	}
	return NewBitmapIndex(table, column, segmentID)
}

// numericValue resolves a row's column to a float64 for BTree indexing.
func numericValue(row storage.Row, column string) (float64, bool) {
	s, ok := row.StringValue(column)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
