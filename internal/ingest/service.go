// Package ingest provides the buffered ingest service that stages events and
// flushes them into the column store in batches.
package ingest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/AryanB1/SmartQuery/internal/observability"
	"github.com/AryanB1/SmartQuery/internal/storage"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

// Overloaded is returned by Submit when the batch was dropped due to
// backpressure.
const Overloaded = -1

// SegmentSink is notified as flushed batches become segments. *index.Manager
// satisfies it.
type SegmentSink interface {
	RegisterSegment(table, segmentID string, rowCount int)
	OnSegmentFlushed(table, segmentID string, rows []storage.Row)
}

// Config holds the ingest buffer tunables.
type Config struct {
	// BatchSize is the desired number of events per flush
	BatchSize int

	// FlushInterval bounds the age of buffered events
	FlushInterval time.Duration
}

// DefaultConfig returns the ingest defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 10_000, FlushInterval: 500 * time.Millisecond}
}

// Service coalesces event submissions into batches for the column store and
// applies soft backpressure under overload. A background flusher drains the
// buffer every FlushInterval.
type Service struct {
	store   *storage.ColumnStore
	sink    SegmentSink // may be nil
	metrics *observability.Metrics
	cfg     Config

	mu     sync.Mutex
	buffer []*types.Event

	dropped atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewService creates the service and starts its flush scheduler.
func NewService(store *storage.ColumnStore, sink SegmentSink, metrics *observability.Metrics, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	s := &Service{
		store:   store,
		sink:    sink,
		metrics: metrics,
		cfg:     cfg,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

func (s *Service) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Submit accepts a batch of events and returns the accepted count, or
// Overloaded when the staging buffer exceeds twice the batch size; an
// overloaded batch is dropped whole and counted. A buffer at batch size is
// flushed synchronously.
func (s *Service) Submit(events []*types.Event) int {
	if len(events) == 0 {
		return 0
	}

	s.mu.Lock()
	if len(s.buffer) > 2*s.cfg.BatchSize {
		s.mu.Unlock()
		s.dropped.Add(int64(len(events)))
		if s.metrics != nil {
			s.metrics.EventsDropped.Add(float64(len(events)))
		}
		return Overloaded
	}

	s.buffer = append(s.buffer, events...)
	var batch []*types.Event
	if len(s.buffer) >= s.cfg.BatchSize {
		batch = s.buffer
		s.buffer = nil
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.EventsAccepted.Add(float64(len(events)))
	}
	if batch != nil {
		s.deliver(batch)
	}
	return len(events)
}

// Flush drains whatever is buffered. Safe to call concurrently with Submit.
func (s *Service) Flush() {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) > 0 {
		s.deliver(batch)
	}
}

// deliver hands a batch to the store and notifies the index layer of the
// segments it produced. Runs outside the buffer lock.
func (s *Service) deliver(batch []*types.Event) {
	flushed := s.store.AppendBatch(batch)
	if s.metrics != nil {
		s.metrics.BatchesFlushed.Inc()
	}
	if s.sink == nil {
		return
	}
	for _, f := range flushed {
		s.sink.RegisterSegment(f.Table, f.Segment.ID, f.Segment.RowCount())
		s.sink.OnSegmentFlushed(f.Table, f.Segment.ID, f.Segment.Rows())
	}
}

// Stop cancels the scheduler and performs a final flush.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	s.Flush()
}

// Dropped returns the number of events dropped due to overload.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Scan passes a filtered time-bounded scan through to the store.
func (s *Service) Scan(table string, fromTS, toTS int64, filter func(storage.Row) bool) []storage.Row {
	return s.store.Scan(table, fromTS, toTS, filter)
}

// QueryEvents returns the raw events of a table within a time range.
func (s *Service) QueryEvents(table string, fromTS, toTS int64) []*types.Event {
	rows := s.store.Scan(table, fromTS, toTS, nil)
	events := make([]*types.Event, len(rows))
	for i, row := range rows {
		events[i] = row.Source()
	}
	return events
}

// Stats returns buffer counters merged with store statistics.
func (s *Service) Stats() map[string]any {
	s.mu.Lock()
	bufferSize := len(s.buffer)
	s.mu.Unlock()

	return map[string]any{
		"bufferSize":  bufferSize,
		"dropped":     s.dropped.Load(),
		"batchSize":   s.cfg.BatchSize,
		"flushMillis": s.cfg.FlushInterval.Milliseconds(),
		"store":       s.store.Stats(),
	}
}
