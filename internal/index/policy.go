package index

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Scoring weights and estimation constants for the adaptive heuristic.
const (
	weightQPS         = 1.0 // queries per second
	weightSelectivity = 2.0 // reward for selective predicates (1 - selectivity)
	weightEquals      = 1.5 // reward for equality predicates
	weightRange       = 2.0 // reward for range predicates
	weightCardinality = 0.5 // penalty for high estimated cardinality

	defaultWindow          = 60 * time.Second
	defaultMaxObservations = 1000

	btreeBytesPerObservation = 20
	bitmapBytesPerValue      = 100
)

// Observation is one predicate sighting on a column.
type Observation struct {
	Timestamp   int64
	IsRange     bool
	Selectivity float64
}

// columnHistory holds the rolling observation window for one (table, column).
// The per-column mutex keeps appends independent of the top-level map.
type columnHistory struct {
	mu  sync.Mutex
	obs []Observation
}

// snapshot returns a copy of the current observations.
func (h *columnHistory) snapshot() []Observation {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Observation, len(h.obs))
	copy(out, h.obs)
	return out
}

// AdaptivePolicy ranks (table, column) pairs as index build candidates from a
// rolling window of observed predicates, and flags unused columns for drops.
type AdaptivePolicy struct {
	window          time.Duration
	maxObservations int

	columns *xsync.MapOf[string, *columnHistory]
}

// NewAdaptivePolicy creates a policy with the default window and cap.
func NewAdaptivePolicy() *AdaptivePolicy {
	return &AdaptivePolicy{
		window:          defaultWindow,
		maxObservations: defaultMaxObservations,
		columns:         xsync.NewMapOf[string, *columnHistory](),
	}
}

// Observe records a predicate sighting. Entries older than the window are
// pruned and the history is truncated to the observation cap.
func (p *AdaptivePolicy) Observe(table, column string, isRange bool, selectivity float64) {
	if selectivity < 0 {
		selectivity = 0
	} else if selectivity > 1 {
		selectivity = 1
	}
	now := time.Now().UnixMilli()

	history, _ := p.columns.LoadOrStore(observationKey(table, column), &columnHistory{})
	history.mu.Lock()
	defer history.mu.Unlock()

	history.obs = append(history.obs, Observation{Timestamp: now, IsRange: isRange, Selectivity: selectivity})

	cutoff := now - p.window.Milliseconds()
	firstLive := 0
	for firstLive < len(history.obs) && history.obs[firstLive].Timestamp < cutoff {
		firstLive++
	}
	if firstLive > 0 {
		history.obs = history.obs[firstLive:]
	}
	if len(history.obs) > p.maxObservations {
		history.obs = history.obs[len(history.obs)-p.maxObservations:]
	}
}

// columnScore ranks one candidate column.
type columnScore struct {
	column          string
	score           float64
	estimatedMemory int64
}

// RecommendBuild ranks the table's observed columns by score and greedily
// packs up to maxNew candidates whose estimated index memory fits the budget.
func (p *AdaptivePolicy) RecommendBuild(table string, memBudgetBytes int64, maxNew int) []string {
	var scores []columnScore

	p.forEachColumn(table, func(column string, history *columnHistory) {
		obs := history.snapshot()
		if len(obs) == 0 {
			return
		}
		scores = append(scores, columnScore{
			column:          column,
			score:           p.score(obs),
			estimatedMemory: p.estimateIndexMemory(column, obs),
		})
	})

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].column < scores[j].column
	})

	var recommendations []string
	var usedMemory int64
	for _, cs := range scores {
		if len(recommendations) >= maxNew {
			break
		}
		if usedMemory+cs.estimatedMemory <= memBudgetBytes {
			recommendations = append(recommendations, cs.column)
			usedMemory += cs.estimatedMemory
		}
	}
	return recommendations
}

// RecommendDrop returns up to maxDrop columns whose newest observation is
// older than the stale threshold, or which have no observations at all.
func (p *AdaptivePolicy) RecommendDrop(table string, maxDrop int, stale time.Duration) []string {
	cutoff := time.Now().UnixMilli() - stale.Milliseconds()
	var recommendations []string

	p.forEachColumn(table, func(column string, history *columnHistory) {
		if len(recommendations) >= maxDrop {
			return
		}
		obs := history.snapshot()
		if len(obs) == 0 {
			recommendations = append(recommendations, column)
			return
		}
		newest := int64(0)
		for _, o := range obs {
			if o.Timestamp > newest {
				newest = o.Timestamp
			}
		}
		if newest < cutoff {
			recommendations = append(recommendations, column)
		}
	})

	return recommendations
}

// score applies the heuristic ranking formula to one column's observations.
func (p *AdaptivePolicy) score(obs []Observation) float64 {
	qps := p.qps(obs)
	avgSelectivity := avgSelectivity(obs)
	equalsRatio, rangeRatio := predicateRatios(obs)
	cardinality := estimateCardinality(obs)

	score := weightQPS*qps +
		weightSelectivity*(1.0-avgSelectivity) +
		weightEquals*equalsRatio +
		weightRange*rangeRatio -
		weightCardinality*math.Log10(math.Max(1.0, cardinality))

	return math.Max(0.0, score)
}

// qps estimates the column's query rate over the elapsed window.
func (p *AdaptivePolicy) qps(obs []Observation) float64 {
	if len(obs) == 0 {
		return 0
	}
	elapsed := time.Now().UnixMilli() - obs[0].Timestamp
	windowMillis := p.window.Milliseconds()
	if elapsed < windowMillis {
		windowMillis = elapsed
	}
	return float64(len(obs)) * 1000.0 / math.Max(1.0, float64(windowMillis))
}

func avgSelectivity(obs []Observation) float64 {
	if len(obs) == 0 {
		return 1.0
	}
	var sum float64
	for _, o := range obs {
		sum += o.Selectivity
	}
	return sum / float64(len(obs))
}

func predicateRatios(obs []Observation) (equalsRatio, rangeRatio float64) {
	if len(obs) == 0 {
		return 0, 0
	}
	ranges := 0
	for _, o := range obs {
		if o.IsRange {
			ranges++
		}
	}
	rangeRatio = float64(ranges) / float64(len(obs))
	return 1 - rangeRatio, rangeRatio
}

// estimateCardinality derives a distinct-value estimate from selectivity:
// highly selective predicates imply many distinct values.
func estimateCardinality(obs []Observation) float64 {
	return math.Max(1.0, 1.0/math.Max(0.001, avgSelectivity(obs)))
}

// estimateIndexMemory predicts the index footprint for a column: BTree shape
// for numeric columns under range observation, bitmap shape otherwise.
func (p *AdaptivePolicy) estimateIndexMemory(column string, obs []Observation) int64 {
	numeric := strings.EqualFold(column, "ts") || (isPropsColumn(column) && anyRange(obs))
	if numeric {
		return int64(len(obs)) * btreeBytesPerObservation
	}
	return int64(estimateCardinality(obs) * bitmapBytesPerValue)
}

func anyRange(obs []Observation) bool {
	for _, o := range obs {
		if o.IsRange {
			return true
		}
	}
	return false
}

func isPropsColumn(column string) bool {
	return strings.HasPrefix(strings.ToLower(column), "props.")
}

// forEachColumn visits every tracked column of one table.
func (p *AdaptivePolicy) forEachColumn(table string, fn func(column string, history *columnHistory)) {
	prefix := table + ":"
	p.columns.Range(func(key string, history *columnHistory) bool {
		if strings.HasPrefix(key, prefix) {
			fn(key[len(prefix):], history)
		}
		return true
	})
}

// Stats returns observation statistics across all tracked columns.
func (p *AdaptivePolicy) Stats() map[string]any {
	tracked := 0
	total := 0
	var totalQPS float64
	p.columns.Range(func(_ string, history *columnHistory) bool {
		obs := history.snapshot()
		tracked++
		total += len(obs)
		totalQPS += p.qps(obs)
		return true
	})
	return map[string]any{
		"trackedColumns":    tracked,
		"totalObservations": total,
		"totalQps":          totalQPS,
	}
}

// Clear removes all observations.
func (p *AdaptivePolicy) Clear() {
	p.columns.Clear()
}

func observationKey(table, column string) string {
	return table + ":" + column
}
