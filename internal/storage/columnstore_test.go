package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AryanB1/SmartQuery/pkg/types"
)

func seedEvents() []*types.Event {
	return []*types.Event{
		{TS: 1000, Table: "events", UserID: "u1", Name: "click", Props: map[string]string{"region": "us", "price": "10"}},
		{TS: 2000, Table: "events", UserID: "u2", Name: "purchase", Props: map[string]string{"region": "eu", "price": "25"}},
		{TS: 3000, Table: "events", UserID: "u1", Name: "click", Props: map[string]string{"region": "us", "price": "15"}},
		{TS: 4000, Table: "events", UserID: "u3", Name: "click", Props: map[string]string{"region": "apac", "price": "5"}},
	}
}

func TestAppendBatchGroupsByTable(t *testing.T) {
	cs := NewColumnStore()

	flushed := cs.AppendBatch([]*types.Event{
		{TS: 1, Table: "clicks", Name: "a"},
		{TS: 2, Table: "views", Name: "b"},
		{TS: 3, Table: "clicks", Name: "c"},
	})

	require.Len(t, flushed, 2)
	assert.Equal(t, int64(3), cs.Size())
	assert.ElementsMatch(t, []string{"clicks", "views"}, cs.TableNames())

	rows := cs.Scan("clicks", 0, 10, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Event())
	assert.Equal(t, "c", rows[1].Event())
}

func TestAppendBatchDefaultsTable(t *testing.T) {
	cs := NewColumnStore()
	cs.AppendBatch([]*types.Event{{TS: 1, Name: "orphan"}})

	rows := cs.Scan(types.DefaultTable, 0, 10, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, types.DefaultTable, rows[0].Table())
}

func TestScanTimeWindowInclusive(t *testing.T) {
	cs := NewColumnStore()
	cs.AppendBatch(seedEvents())

	rows := cs.Scan("events", 2000, 3000, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2000), rows[0].Timestamp())
	assert.Equal(t, int64(3000), rows[1].Timestamp())
}

func TestScanFilterAndUnknownTable(t *testing.T) {
	cs := NewColumnStore()
	cs.AppendBatch(seedEvents())

	rows := cs.Scan("events", 0, 10_000, func(r Row) bool {
		return r.UserID() == "u1"
	})
	assert.Len(t, rows, 2)

	assert.Empty(t, cs.Scan("nope", 0, 10_000, nil))
}

func TestScanSkipsNonOverlappingSegments(t *testing.T) {
	cs := NewColumnStore()
	cs.AppendBatch([]*types.Event{{TS: 1000, Table: "events", Name: "old"}})
	cs.AppendBatch([]*types.Event{{TS: 9000, Table: "events", Name: "new"}})

	rows := cs.Scan("events", 8000, 10_000, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].Event())
}

func TestScanPrunedSkipsSegmentsByBloom(t *testing.T) {
	cs := NewColumnStore()
	cs.AppendBatch([]*types.Event{{TS: 1000, Table: "events", UserID: "alice", Name: "click"}})
	cs.AppendBatch([]*types.Event{{TS: 1000, Table: "events", UserID: "bob", Name: "click"}})

	rows := cs.ScanPruned("events", 0, 10_000, &Equality{Column: "userId", Value: "alice"}, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].UserID())

	// Pruning must never lose rows the filter would admit.
	all := cs.ScanPruned("events", 0, 10_000, &Equality{Column: "event", Value: "click"}, nil)
	assert.Len(t, all, 2)
}

func TestRowValueResolution(t *testing.T) {
	e := &types.Event{TS: 42, Table: "events", UserID: "u1", Name: "click",
		Props: map[string]string{"region": "us"}}
	row := NewRow(e)

	assert.Equal(t, int64(42), row.Value("TS"))
	assert.Equal(t, int64(42), row.Value("timestamp"))
	assert.Equal(t, "events", row.Value("Table"))
	assert.Equal(t, "u1", row.Value("userId"))
	assert.Equal(t, "u1", row.Value("user_id"))
	assert.Equal(t, "click", row.Value("EVENT"))
	assert.Equal(t, "us", row.Value("region"))
	assert.Equal(t, "us", row.Value("props.region"))
	assert.Nil(t, row.Value("missing"))
}

func TestRowValueEmptyUserIDIsNull(t *testing.T) {
	row := NewRow(&types.Event{TS: 1, Table: "events", Name: "click"})
	assert.Nil(t, row.Value("userId"))
}

func TestCollectMatches(t *testing.T) {
	cs := NewColumnStore()
	flushed := cs.AppendBatch(seedEvents())
	require.Len(t, flushed, 1)
	segID := flushed[0].Segment.ID

	rows := cs.CollectMatches("events", map[string][]int{segID: {2, 0}})
	require.Len(t, rows, 2)
	// Positions resolve in ascending order within the segment.
	assert.Equal(t, int64(1000), rows[0].Timestamp())
	assert.Equal(t, int64(3000), rows[1].Timestamp())

	assert.Empty(t, cs.CollectMatches("events", map[string][]int{"unknown": {0}}))
}

func TestStatsAndClear(t *testing.T) {
	cs := NewColumnStore()
	cs.AppendBatch(seedEvents())
	cs.AppendBatch([]*types.Event{{TS: 5, Table: "other", Name: "x"}})

	stats := cs.Stats()
	assert.Equal(t, int64(5), stats["totalEvents"])
	assert.Equal(t, int64(2), stats["totalBatches"])
	assert.Equal(t, 2, stats["tablesCount"])
	assert.Equal(t, 4, stats["tableSizes"].(map[string]int)["events"])

	cs.Clear()
	assert.Equal(t, int64(0), cs.Size())
	assert.Empty(t, cs.TableNames())
}

func TestConcurrentAppendersAndScanners(t *testing.T) {
	cs := NewColumnStore()
	const writers = 8
	const batches = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for b := 0; b < batches; b++ {
				cs.AppendBatch([]*types.Event{
					{TS: int64(b), Table: "events", Name: fmt.Sprintf("w%d-b%d", w, b)},
				})
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			cs.Scan("events", 0, int64(batches), nil)
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, int64(writers*batches), cs.Size())
}
