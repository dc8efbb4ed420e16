package index

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Spec is a catalog entry describing a desired (table, column) index and its
// usage statistics. The (Table, Column) pair is the identity.
type Spec struct {
	Table     string
	Column    string
	CreatedAt int64

	lastUsedAt      atomic.Int64
	hitCount        atomic.Int64
	buildCostMillis atomic.Int64
}

// LastUsedAt returns the timestamp of the last recorded hit, in milliseconds.
func (s *Spec) LastUsedAt() int64 {
	return s.lastUsedAt.Load()
}

// HitCount returns the number of recorded lookups.
func (s *Spec) HitCount() int64 {
	return s.hitCount.Load()
}

// BuildCostMillis returns the most recently recorded build duration.
func (s *Spec) BuildCostMillis() int64 {
	return s.buildCostMillis.Load()
}

// String returns a human-readable representation of the spec.
func (s *Spec) String() string {
	return fmt.Sprintf("Spec{table=%s, column=%s, hits=%d, buildCost=%dms}",
		s.Table, s.Column, s.HitCount(), s.BuildCostMillis())
}

// Catalog is the thread-safe registry of desired indexes and their usage
// statistics.
type Catalog struct {
	specs *xsync.MapOf[string, *Spec]
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{specs: xsync.NewMapOf[string, *Spec]()}
}

// MarkDesired records that a (table, column) index is wanted.
func (c *Catalog) MarkDesired(table, column string) {
	now := time.Now().UnixMilli()
	spec := &Spec{Table: table, Column: column, CreatedAt: now}
	spec.lastUsedAt.Store(now)
	c.specs.LoadOrStore(specKey(table, column), spec)
}

// UnmarkDesired removes the desired status for an index.
func (c *Catalog) UnmarkDesired(table, column string) {
	c.specs.Delete(specKey(table, column))
}

// IsDesired reports whether a (table, column) index is wanted.
func (c *Catalog) IsDesired(table, column string) bool {
	_, ok := c.specs.Load(specKey(table, column))
	return ok
}

// ListAll returns all specs in the catalog.
func (c *Catalog) ListAll() []*Spec {
	var specs []*Spec
	c.specs.Range(func(_ string, spec *Spec) bool {
		specs = append(specs, spec)
		return true
	})
	return specs
}

// GetSpec returns the spec for a (table, column), or nil.
func (c *Catalog) GetSpec(table, column string) *Spec {
	spec, _ := c.specs.Load(specKey(table, column))
	return spec
}

// RecordHit bumps the hit counter and last-used timestamp of an index.
func (c *Catalog) RecordHit(table, column string) {
	if spec, ok := c.specs.Load(specKey(table, column)); ok {
		spec.hitCount.Add(1)
		spec.lastUsedAt.Store(time.Now().UnixMilli())
	}
}

// RecordBuildCost stores the latest build duration for an index.
func (c *Catalog) RecordBuildCost(table, column string, buildTime time.Duration) {
	if spec, ok := c.specs.Load(specKey(table, column)); ok {
		spec.buildCostMillis.Store(buildTime.Milliseconds())
	}
}

// Stale returns specs whose last use is older than now minus the threshold.
func (c *Catalog) Stale(threshold time.Duration) []*Spec {
	cutoff := time.Now().Add(-threshold).UnixMilli()
	var stale []*Spec
	c.specs.Range(func(_ string, spec *Spec) bool {
		if spec.LastUsedAt() < cutoff {
			stale = append(stale, spec)
		}
		return true
	})
	return stale
}

// Stats returns catalog-level statistics.
func (c *Catalog) Stats() map[string]any {
	var total int
	var totalHits, totalBuildCost int64
	var oldest, newest int64

	c.specs.Range(func(_ string, spec *Spec) bool {
		if total == 0 || spec.CreatedAt < oldest {
			oldest = spec.CreatedAt
		}
		if total == 0 || spec.CreatedAt > newest {
			newest = spec.CreatedAt
		}
		total++
		totalHits += spec.HitCount()
		totalBuildCost += spec.BuildCostMillis()
		return true
	})

	stats := map[string]any{
		"totalIndexes":   total,
		"totalHits":      totalHits,
		"totalBuildCost": totalBuildCost,
	}
	if total > 0 {
		stats["oldestCreated"] = oldest
		stats["newestCreated"] = newest
	}
	return stats
}

// Clear removes all specs.
func (c *Catalog) Clear() {
	c.specs.Clear()
}

func specKey(table, column string) string {
	return table + ":" + column
}
