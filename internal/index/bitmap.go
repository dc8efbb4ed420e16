package index

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/AryanB1/SmartQuery/internal/storage"
)

// BitmapIndex maps each distinct string value of a column to the compressed
// bitmap of segment-local row positions holding it. Suited to low-to-medium
// cardinality columns; range lookups are unsupported.
type BitmapIndex struct {
	table     string
	column    string
	segmentID string

	values   map[string]*roaring.Bitmap
	rowCount int
}

// NewBitmapIndex creates an empty bitmap index for one (table, column,
// segment) triple.
func NewBitmapIndex(table, column, segmentID string) *BitmapIndex {
	return &BitmapIndex{
		table:     table,
		column:    column,
		segmentID: segmentID,
		values:    make(map[string]*roaring.Bitmap),
	}
}

func (ix *BitmapIndex) Table() string     { return ix.table }
func (ix *BitmapIndex) Column() string    { return ix.column }
func (ix *BitmapIndex) SegmentID() string { return ix.segmentID }

// Build scans the segment in order and records each row's string value.
// Rows without a value for the column are skipped.
func (ix *BitmapIndex) Build(rows []storage.Row) error {
	ix.values = make(map[string]*roaring.Bitmap)
	ix.rowCount = len(rows)

	for pos, row := range rows {
		value, ok := row.StringValue(ix.column)
		if !ok {
			continue
		}
		bm, exists := ix.values[value]
		if !exists {
			bm = roaring.New()
			ix.values[value] = bm
		}
		bm.Add(uint32(pos))
	}
	return nil
}

// LookupEquals returns the positions holding the value, or an empty set.
func (ix *BitmapIndex) LookupEquals(value string) IntSet {
	bm, ok := ix.values[value]
	if !ok {
		return EmptySet()
	}
	return FromBitmap(bm.Clone())
}

// LookupIn ORs the bitmaps of all requested values.
func (ix *BitmapIndex) LookupIn(values []string) IntSet {
	result := roaring.New()
	for _, value := range values {
		if bm, ok := ix.values[value]; ok {
			result.Or(bm)
		}
	}
	return FromBitmap(result)
}

// LookupRange is undefined for string-keyed bitmaps.
func (ix *BitmapIndex) LookupRange(lo float64, includeLo bool, hi float64, includeHi bool) (IntSet, error) {
	return nil, ErrRangeUnsupported
}

// MemoryBytes approximates the in-memory size of the index.
func (ix *BitmapIndex) MemoryBytes() int64 {
	var total int64
	for value, bm := range ix.values {
		total += int64(len(value)) + int64(bm.GetSizeInBytes())
	}
	return total + 64
}

// Stats returns descriptive statistics for monitoring.
func (ix *BitmapIndex) Stats() map[string]any {
	return map[string]any{
		"type":           "bitmap",
		"table":          ix.table,
		"column":         ix.column,
		"segmentId":      ix.segmentID,
		"distinctValues": len(ix.values),
		"rowCount":       ix.rowCount,
		"memoryBytes":    ix.MemoryBytes(),
	}
}
