package index

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AryanB1/SmartQuery/internal/storage"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

// failingIndex is a SecondaryIndex whose build always fails.
type failingIndex struct {
	*BitmapIndex
}

func (f *failingIndex) Build(rows []storage.Row) error {
	return errors.New("synthetic build failure")
}

func buildRows(n int) []storage.Row {
	rows := make([]storage.Row, n)
	for i := range rows {
		rows[i] = storage.NewRow(&types.Event{TS: int64(i), Table: "events", Name: "click"})
	}
	return rows
}

func TestSubmitBuildCompletesIndex(t *testing.T) {
	b := NewBuilder(2, nil)
	defer b.Shutdown()

	ix := NewBitmapIndex("events", "event", "seg-1")
	future := b.SubmitBuild(ix, buildRows(10))
	require.NoError(t, future.Wait())

	assert.Equal(t, 10, ix.LookupEquals("click").Size())
}

func TestSubmitBuildPropagatesError(t *testing.T) {
	b := NewBuilder(1, nil)
	defer b.Shutdown()

	future := b.SubmitBuild(&failingIndex{NewBitmapIndex("events", "event", "seg-1")}, buildRows(1))
	assert.Error(t, future.Wait())
}

func TestSubmitBuildsJoinsAll(t *testing.T) {
	b := NewBuilder(4, nil)
	defer b.Shutdown()

	tasks := []BuildTask{
		{Index: NewBitmapIndex("events", "event", "seg-1"), Rows: buildRows(5)},
		{Index: NewBitmapIndex("events", "userId", "seg-1"), Rows: buildRows(5)},
		{Index: NewBTreeIndex("events", "ts", "seg-1"), Rows: buildRows(5)},
	}
	require.NoError(t, b.SubmitBuilds(tasks).Wait())

	for _, task := range tasks {
		assert.Positive(t, task.Index.MemoryBytes())
	}
}

func TestSubmitMaintenance(t *testing.T) {
	b := NewBuilder(1, nil)
	defer b.Shutdown()

	var ran atomic.Bool
	require.NoError(t, b.SubmitMaintenance(func() { ran.Store(true) }).Wait())
	assert.True(t, ran.Load())
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	b := NewBuilder(1, nil)
	b.Shutdown()

	future := b.SubmitBuild(NewBitmapIndex("events", "event", "seg-1"), buildRows(1))
	assert.ErrorIs(t, future.Wait(), ErrBuilderShutdown)
}

func TestShutdownIsIdempotent(t *testing.T) {
	b := NewBuilder(1, nil)
	b.Shutdown()
	b.Shutdown()
	b.ShutdownNow()
}

func TestShutdownNowCancelsQueuedWork(t *testing.T) {
	b := NewBuilder(1, nil)

	// Occupy the single worker so further tasks stay queued.
	blocker := make(chan struct{})
	started := make(chan struct{})
	first := b.SubmitMaintenance(func() { close(started); <-blocker })
	<-started

	var ran atomic.Bool
	queued := b.SubmitMaintenance(func() { ran.Store(true) })

	b.ShutdownNow()
	close(blocker)

	require.NoError(t, first.Wait())
	assert.ErrorIs(t, queued.Wait(), ErrBuildCanceled)
	assert.False(t, ran.Load())
}

func TestActiveTasksGauge(t *testing.T) {
	b := NewBuilder(1, nil)
	defer b.Shutdown()

	blocker := make(chan struct{})
	future := b.SubmitMaintenance(func() { <-blocker })

	assert.Eventually(t, func() bool { return b.ActiveTasks() == 1 }, time.Second, time.Millisecond)
	close(blocker)
	require.NoError(t, future.Wait())
	assert.Eventually(t, func() bool { return b.ActiveTasks() == 0 }, time.Second, time.Millisecond)
}

func TestDefaultWorkerCount(t *testing.T) {
	b := NewBuilder(0, nil)
	defer b.Shutdown()

	require.NoError(t, b.SubmitMaintenance(func() {}).Wait())
	stats := b.Stats()
	assert.Equal(t, false, stats["isShutdown"])
}
