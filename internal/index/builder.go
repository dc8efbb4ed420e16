package index

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AryanB1/SmartQuery/internal/observability"
	"github.com/AryanB1/SmartQuery/internal/storage"
)

// ErrBuilderShutdown is returned for work submitted after shutdown.
var ErrBuilderShutdown = errors.New("index: builder is shut down")

// ErrBuildCanceled is returned for queued work discarded by ShutdownNow.
var ErrBuildCanceled = errors.New("index: build canceled")

// shutdownGrace bounds how long Shutdown waits for in-flight work.
const shutdownGrace = 5 * time.Second

// BuildFuture resolves when a submitted task has finished.
type BuildFuture struct {
	done chan struct{}
	err  error
}

func newBuildFuture() *BuildFuture {
	return &BuildFuture{done: make(chan struct{})}
}

func failedFuture(err error) *BuildFuture {
	f := newBuildFuture()
	f.complete(err)
	return f
}

func (f *BuildFuture) complete(err error) {
	f.err = err
	close(f.done)
}

// Done returns a channel closed when the task has finished.
func (f *BuildFuture) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task has finished and returns its error.
func (f *BuildFuture) Wait() error {
	<-f.done
	return f.err
}

// Err returns the task error; only meaningful after Done is closed.
func (f *BuildFuture) Err() error {
	return f.err
}

// BuildTask pairs an index with the segment rows to build it from.
type BuildTask struct {
	Index SecondaryIndex
	Rows  []storage.Row
}

// Builder runs index construction and maintenance off the query path on a
// fixed worker pool.
type Builder struct {
	tasks   chan func()
	wg      sync.WaitGroup
	metrics *observability.Metrics

	mu       sync.Mutex
	closed   bool
	dropping atomic.Bool
	active   atomic.Int32
}

// NewBuilder creates a builder with the given parallelism. Zero or negative
// workers defaults to half the CPU count, minimum one.
func NewBuilder(workers int, metrics *observability.Metrics) *Builder {
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}

	b := &Builder{
		tasks:   make(chan func(), 1024),
		metrics: metrics,
	}
	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go b.worker()
	}
	return b
}

func (b *Builder) worker() {
	defer b.wg.Done()
	for task := range b.tasks {
		task()
	}
}

// submit enqueues a task that resolves the returned future.
func (b *Builder) submit(run func() error) *BuildFuture {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return failedFuture(ErrBuilderShutdown)
	}

	future := newBuildFuture()
	b.active.Add(1)
	b.updateActiveGauge()
	b.tasks <- func() {
		defer func() {
			b.active.Add(-1)
			b.updateActiveGauge()
		}()
		if b.dropping.Load() {
			future.complete(ErrBuildCanceled)
			return
		}
		future.complete(run())
	}
	b.mu.Unlock()
	return future
}

// SubmitBuild schedules one index build. The future resolves after the
// index's Build call has returned.
func (b *Builder) SubmitBuild(ix SecondaryIndex, rows []storage.Row) *BuildFuture {
	return b.submit(func() error {
		return ix.Build(rows)
	})
}

// SubmitBuilds schedules several builds and returns a future that joins on
// all of them, resolving with the first error encountered.
func (b *Builder) SubmitBuilds(builds []BuildTask) *BuildFuture {
	futures := make([]*BuildFuture, len(builds))
	for i, task := range builds {
		futures[i] = b.SubmitBuild(task.Index, task.Rows)
	}

	joined := newBuildFuture()
	go func() {
		var firstErr error
		for _, f := range futures {
			if err := f.Wait(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		joined.complete(firstErr)
	}()
	return joined
}

// SubmitMaintenance schedules an arbitrary maintenance task.
func (b *Builder) SubmitMaintenance(task func()) *BuildFuture {
	return b.submit(func() error {
		task()
		return nil
	})
}

// ActiveTasks returns the number of queued or running tasks.
func (b *Builder) ActiveTasks() int {
	return int(b.active.Load())
}

// Shutdown stops accepting new work and waits up to the grace period for
// outstanding tasks to finish.
func (b *Builder) Shutdown() {
	if !b.close() {
		return
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		b.dropping.Store(true)
	}
}

// ShutdownNow stops accepting new work and cancels queued tasks.
func (b *Builder) ShutdownNow() {
	b.dropping.Store(true)
	b.close()
}

// close marks the builder closed and closes the task channel exactly once.
// Returns false when already closed.
func (b *Builder) close() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.closed = true
	close(b.tasks)
	return true
}

func (b *Builder) updateActiveGauge() {
	if b.metrics != nil {
		b.metrics.ActiveBuildTasks.Set(float64(b.active.Load()))
	}
}

// Stats returns builder execution statistics.
func (b *Builder) Stats() map[string]any {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	return map[string]any{
		"activeTasks": b.ActiveTasks(),
		"isShutdown":  closed,
	}
}
