package index

import (
	"log"
	"sync"
	"time"

	"github.com/AryanB1/SmartQuery/internal/observability"
	"github.com/AryanB1/SmartQuery/internal/storage"
)

// Config holds the index manager's tunables.
type Config struct {
	// MemoryBudgetMB caps the estimated memory of recommended indexes
	MemoryBudgetMB int64

	// MaxNewPerTick caps index builds recommended per adaptive tick
	MaxNewPerTick int

	// StaleDrop is how long an unused column survives before being dropped
	StaleDrop time.Duration

	// AdaptiveTick is the interval between adaptive evaluations
	AdaptiveTick time.Duration

	// BuildWorkers sizes the background builder pool (0 = cores/2)
	BuildWorkers int
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		MemoryBudgetMB: 256,
		MaxNewPerTick:  2,
		StaleDrop:      7 * 24 * time.Hour,
		AdaptiveTick:   60 * time.Second,
	}
}

// QueryKind identifies the shape of an index lookup.
type QueryKind int

const (
	QueryEquals QueryKind = iota
	QueryIn
	QueryRange
)

// Query is an index lookup specification.
type Query struct {
	Kind   QueryKind
	Values []string

	Lo, Hi               float64
	IncludeLo, IncludeHi bool
}

// EqualsQuery matches rows whose column equals the value.
func EqualsQuery(value string) Query {
	return Query{Kind: QueryEquals, Values: []string{value}}
}

// InQuery matches rows whose column equals any of the values.
func InQuery(values []string) Query {
	return Query{Kind: QueryIn, Values: values}
}

// RangeQuery matches rows whose numeric column lies in the interval.
func RangeQuery(lo float64, includeLo bool, hi float64, includeHi bool) Query {
	return Query{Kind: QueryRange, Lo: lo, IncludeLo: includeLo, Hi: hi, IncludeHi: includeHi}
}

// LookupResult is the outcome of a cross-segment index lookup.
type LookupResult struct {
	// Matches maps segment id to the matching segment-local row positions
	Matches map[string]IntSet

	// Exact is true when the result is precise and complete: every segment
	// of the table is covered by an index and no lookup fell back
	Exact bool

	// RowsConsidered counts matched positions, for diagnostics
	RowsConsidered int64
}

// segmentInfo is the registered metadata of one segment.
type segmentInfo struct {
	rowCount  int
	createdAt int64
}

// Manager owns the per-segment secondary indexes, their catalog, the
// adaptive policy, and the background builder, and drives the periodic
// adaptive tick.
type Manager struct {
	cfg     Config
	metrics *observability.Metrics

	catalog *Catalog
	policy  *AdaptivePolicy
	builder *Builder

	// mu guards indexes and segments
	mu       sync.RWMutex
	indexes  map[string]map[string]map[string]SecondaryIndex // table → column → segment
	segments map[string]map[string]segmentInfo               // table → segment

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager and starts its adaptive tick loop.
func NewManager(cfg Config, metrics *observability.Metrics) *Manager {
	if cfg.AdaptiveTick <= 0 {
		cfg.AdaptiveTick = 60 * time.Second
	}

	m := &Manager{
		cfg:      cfg,
		metrics:  metrics,
		catalog:  NewCatalog(),
		policy:   NewAdaptivePolicy(),
		builder:  NewBuilder(cfg.BuildWorkers, metrics),
		indexes:  make(map[string]map[string]map[string]SecondaryIndex),
		segments: make(map[string]map[string]segmentInfo),
		stop:     make(chan struct{}),
	}

	go m.tickLoop()
	return m
}

func (m *Manager) tickLoop() {
	ticker := time.NewTicker(m.cfg.AdaptiveTick)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.AdaptiveTick()
		}
	}
}

// Catalog returns the index catalog.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Policy returns the adaptive policy.
func (m *Manager) Policy() *AdaptivePolicy {
	return m.policy
}

// RegisterSegment records a newly flushed segment.
func (m *Manager) RegisterSegment(table, segmentID string, rowCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tableSegments, ok := m.segments[table]
	if !ok {
		tableSegments = make(map[string]segmentInfo)
		m.segments[table] = tableSegments
	}
	tableSegments[segmentID] = segmentInfo{rowCount: rowCount, createdAt: time.Now().UnixMilli()}
}

// UnregisterSegment removes a segment's metadata and every index keyed by it.
func (m *Manager) UnregisterSegment(table, segmentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tableSegments, ok := m.segments[table]; ok {
		delete(tableSegments, segmentID)
	}
	if tableIndexes, ok := m.indexes[table]; ok {
		for _, columnIndexes := range tableIndexes {
			delete(columnIndexes, segmentID)
		}
	}
}

// OnSegmentFlushed builds indexes for every column currently marked desired
// on the table. Builds run on the background pool; each index is installed
// under the write lock only after its build succeeded. Failed builds are
// logged and skipped, leaving queries on the scan path.
func (m *Manager) OnSegmentFlushed(table, segmentID string, rows []storage.Row) {
	if len(rows) == 0 {
		return
	}

	for _, spec := range m.catalog.ListAll() {
		if spec.Table != table {
			continue
		}
		column := spec.Column
		ix := NewIndexFor(table, column, segmentID)
		started := time.Now()
		future := m.builder.SubmitBuild(ix, rows)

		go func() {
			if err := future.Wait(); err != nil {
				log.Printf("index manager: build failed for %s.%s segment %s: %v", table, column, segmentID, err)
				if m.metrics != nil {
					m.metrics.IndexBuildFailures.Inc()
				}
				return
			}
			m.install(ix)
			m.catalog.RecordBuildCost(table, column, time.Since(started))
			if m.metrics != nil {
				m.metrics.IndexBuilds.Inc()
			}
		}()
	}
}

// install stores a built index under the write lock.
func (m *Manager) install(ix SecondaryIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableIndexes, ok := m.indexes[ix.Table()]
	if !ok {
		tableIndexes = make(map[string]map[string]SecondaryIndex)
		m.indexes[ix.Table()] = tableIndexes
	}
	columnIndexes, ok := tableIndexes[ix.Column()]
	if !ok {
		columnIndexes = make(map[string]SecondaryIndex)
		tableIndexes[ix.Column()] = columnIndexes
	}
	columnIndexes[ix.SegmentID()] = ix
}

// EnsureIndex marks a (table, column) desired and reports whether an index
// is already present. Indexes for pre-existing segments are not built
// retroactively; they appear as later segments flush.
func (m *Manager) EnsureIndex(table, column string) bool {
	m.catalog.MarkDesired(table, column)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if tableIndexes, ok := m.indexes[table]; ok {
		if columnIndexes, ok := tableIndexes[column]; ok {
			return len(columnIndexes) > 0
		}
	}
	return false
}

// DropIndex unmarks the column and removes every per-segment index for it.
func (m *Manager) DropIndex(table, column string) {
	m.catalog.UnmarkDesired(table, column)

	m.mu.Lock()
	defer m.mu.Unlock()
	if tableIndexes, ok := m.indexes[table]; ok {
		delete(tableIndexes, column)
	}
}

// Lookup unions the query's matches across all of the column's segment
// indexes and records a catalog hit. A missing table or column yields an
// empty, inexact result. The result is exact only when every registered
// segment of the table is covered and no segment lookup fell back.
func (m *Manager) Lookup(table, column string, query Query) LookupResult {
	matches := make(map[string]IntSet)
	exact := true
	var rowsConsidered int64

	m.mu.RLock()
	tableIndexes, ok := m.indexes[table]
	if !ok {
		m.mu.RUnlock()
		return LookupResult{Matches: matches, Exact: false}
	}
	columnIndexes, ok := tableIndexes[column]
	if !ok || len(columnIndexes) == 0 {
		m.mu.RUnlock()
		return LookupResult{Matches: matches, Exact: false}
	}

	for segmentID, ix := range columnIndexes {
		result, err := m.dispatch(ix, query)
		if err != nil {
			exact = false
			continue
		}
		if !result.Empty() {
			matches[segmentID] = result
			rowsConsidered += int64(result.Size())
		}
	}

	// Segments flushed before the column became desired have no index;
	// their rows are invisible here, so the result cannot be exact.
	for segmentID := range m.segments[table] {
		if _, covered := columnIndexes[segmentID]; !covered {
			exact = false
			break
		}
	}
	m.mu.RUnlock()

	m.catalog.RecordHit(table, column)
	if m.metrics != nil {
		m.metrics.IndexLookups.Inc()
	}

	return LookupResult{Matches: matches, Exact: exact, RowsConsidered: rowsConsidered}
}

// dispatch routes a query to the matching index operation.
func (m *Manager) dispatch(ix SecondaryIndex, query Query) (IntSet, error) {
	switch query.Kind {
	case QueryEquals:
		if len(query.Values) == 0 {
			return EmptySet(), nil
		}
		return ix.LookupEquals(query.Values[0]), nil
	case QueryIn:
		return ix.LookupIn(query.Values), nil
	case QueryRange:
		return ix.LookupRange(query.Lo, query.IncludeLo, query.Hi, query.IncludeHi)
	default:
		return EmptySet(), nil
	}
}

// RecordQueryUsage feeds a planner predicate sighting into the adaptive
// policy. The selectivity estimate is a fixed moderate value; the planner
// has no cardinality statistics to do better with.
func (m *Manager) RecordQueryUsage(table, column string) {
	m.policy.Observe(table, column, false, 0.1)
}

// AdaptiveTick consults the policy for every known table and applies its
// build and drop recommendations.
func (m *Manager) AdaptiveTick() {
	tables := make(map[string]bool)
	m.mu.RLock()
	for table := range m.segments {
		tables[table] = true
	}
	for table := range m.indexes {
		tables[table] = true
	}
	m.mu.RUnlock()

	for table := range tables {
		m.adaptiveTickForTable(table)
	}
}

func (m *Manager) adaptiveTickForTable(table string) {
	budgetBytes := m.cfg.MemoryBudgetMB * 1024 * 1024

	toBuild := m.policy.RecommendBuild(table, budgetBytes, m.cfg.MaxNewPerTick)
	toDrop := m.policy.RecommendDrop(table, m.cfg.MaxNewPerTick, m.cfg.StaleDrop)

	for _, column := range toBuild {
		m.EnsureIndex(table, column)
	}
	for _, column := range toDrop {
		m.DropIndex(table, column)
	}
}

// Stats returns manager-wide statistics.
func (m *Manager) Stats() map[string]any {
	var totalIndexes int
	var totalMemory int64
	var totalSegments int

	m.mu.RLock()
	for _, tableIndexes := range m.indexes {
		for _, columnIndexes := range tableIndexes {
			totalIndexes += len(columnIndexes)
			for _, ix := range columnIndexes {
				totalMemory += ix.MemoryBytes()
			}
		}
	}
	for _, tableSegments := range m.segments {
		totalSegments += len(tableSegments)
	}
	m.mu.RUnlock()

	return map[string]any{
		"totalIndexes":   totalIndexes,
		"memoryBytes":    totalMemory,
		"memoryMB":       totalMemory / (1024 * 1024),
		"memoryBudgetMB": m.cfg.MemoryBudgetMB,
		"totalSegments":  totalSegments,
		"builder":        m.builder.Stats(),
		"catalog":        m.catalog.Stats(),
		"policy":         m.policy.Stats(),
	}
}

// Shutdown cancels the adaptive tick loop and shuts the builder down.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.builder.Shutdown()
}
