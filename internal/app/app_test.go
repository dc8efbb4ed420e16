package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AryanB1/SmartQuery/internal/config"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Ingest.BatchSize = 100
	cfg.Ingest.FlushMillis = 10
	cfg.Index.AdaptiveTickSeconds = 3600

	engine, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(engine.Shutdown)
	return engine
}

func TestEndToEndIngestAndQuery(t *testing.T) {
	engine := newTestApp(t)

	accepted := engine.Ingest.Submit([]*types.Event{
		{TS: 1000, Table: "events", UserID: "u1", Name: "click", Props: map[string]string{"region": "us", "price": "10"}},
		{TS: 2000, Table: "events", UserID: "u2", Name: "purchase", Props: map[string]string{"region": "eu", "price": "25"}},
		{TS: 3000, Table: "events", UserID: "u1", Name: "click", Props: map[string]string{"region": "us", "price": "15"}},
		{TS: 4000, Table: "events", UserID: "u3", Name: "click", Props: map[string]string{"region": "apac", "price": "5"}},
	})
	require.Equal(t, 4, accepted)
	engine.Ingest.Flush()

	// Ingest accounting: every accepted event reaches the store.
	assert.Equal(t, int64(4), engine.Store.Size())

	result, err := engine.Query.Execute(&types.QueryRequest{
		SQL: "SELECT region, COUNT(*) AS c FROM events GROUP BY region ORDER BY c DESC",
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, []any{"us", int64(2)}, result.Rows[0])
}

func TestFlushFeedsIndexManager(t *testing.T) {
	engine := newTestApp(t)

	// Desired before the first flush, so the segment build picks it up.
	engine.Indexes.EnsureIndex("events", "region")

	engine.Ingest.Submit([]*types.Event{
		{TS: 1000, Table: "events", UserID: "u1", Name: "click", Props: map[string]string{"region": "us"}},
		{TS: 2000, Table: "events", UserID: "u2", Name: "click", Props: map[string]string{"region": "eu"}},
	})
	engine.Ingest.Flush()

	require.Eventually(t, func() bool {
		return engine.Indexes.EnsureIndex("events", "region")
	}, 2*time.Second, 5*time.Millisecond, "flushed segment never produced an index")

	stats := engine.Indexes.Stats()
	assert.Equal(t, 1, stats["totalSegments"])
}

func TestShutdownFlushesBufferedEvents(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.FlushMillis = time.Hour.Milliseconds()
	cfg.Index.AdaptiveTickSeconds = 3600

	engine, err := New(cfg)
	require.NoError(t, err)

	engine.Ingest.Submit([]*types.Event{{TS: 1, Table: "events", Name: "click"}})
	engine.Shutdown()

	assert.Equal(t, int64(1), engine.Store.Size())
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.BatchSize = -1
	_, err := New(cfg)
	assert.Error(t, err)
}
