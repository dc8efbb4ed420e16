package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/AryanB1/SmartQuery/internal/bloom"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

// bloomColumns are the columns a segment builds membership filters for.
// Equality predicates on these columns can skip whole segments during scans.
var bloomColumns = []string{"event", "user_id"}

const bloomTargetFPR = 0.01

// Segment is a contiguous, immutable block of events flushed in one batch.
// Row positions are local to the segment, in insertion order. The segment is
// the unit of secondary index granularity.
type Segment struct {
	// ID uniquely identifies the segment within its table
	ID string

	// CreatedAt is the segment creation time in milliseconds since epoch
	CreatedAt int64

	events []*types.Event

	// Zone map over the ts column, used to skip segments during scans
	minTS, maxTS int64

	blooms map[string]*bloom.Filter
}

// newSegment seals a batch of events into an immutable segment, computing the
// ts zone map and per-column bloom filters.
func newSegment(events []*types.Event) *Segment {
	s := &Segment{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UnixMilli(),
		events:    events,
		blooms:    make(map[string]*bloom.Filter, len(bloomColumns)),
	}

	for _, col := range bloomColumns {
		s.blooms[col] = bloom.NewWithEstimates(len(events), bloomTargetFPR)
	}

	for i, e := range events {
		if i == 0 || e.TS < s.minTS {
			s.minTS = e.TS
		}
		if i == 0 || e.TS > s.maxTS {
			s.maxTS = e.TS
		}
		if e.Name != "" {
			s.blooms["event"].AddString(e.Name)
		}
		if e.UserID != "" {
			s.blooms["user_id"].AddString(e.UserID)
		}
	}

	return s
}

// RowCount returns the number of rows in the segment.
func (s *Segment) RowCount() int {
	return len(s.events)
}

// MinTS returns the smallest event timestamp in the segment.
func (s *Segment) MinTS() int64 {
	return s.minTS
}

// MaxTS returns the largest event timestamp in the segment.
func (s *Segment) MaxTS() int64 {
	return s.maxTS
}

// Rows returns row views over every event in the segment, in insertion order.
func (s *Segment) Rows() []Row {
	rows := make([]Row, len(s.events))
	for i, e := range s.events {
		rows[i] = NewRow(e)
	}
	return rows
}

// Row returns the row view at a segment-local position.
func (s *Segment) Row(pos int) (Row, bool) {
	if pos < 0 || pos >= len(s.events) {
		return Row{}, false
	}
	return NewRow(s.events[pos]), true
}

// overlaps reports whether the segment's ts range intersects [fromTS, toTS].
func (s *Segment) overlaps(fromTS, toTS int64) bool {
	if len(s.events) == 0 {
		return false
	}
	return s.minTS <= toTS && s.maxTS >= fromTS
}

// mightContain reports whether the segment might hold the given value in the
// given column. Columns without a bloom filter always report true.
func (s *Segment) mightContain(column, value string) bool {
	f, ok := s.blooms[normalizeBloomColumn(column)]
	if !ok {
		return true
	}
	return f.ContainsString(value)
}

func normalizeBloomColumn(column string) string {
	switch column {
	case "userId", "userid", "user_id":
		return "user_id"
	default:
		return column
	}
}
