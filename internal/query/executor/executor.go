package executor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	qerrors "github.com/AryanB1/SmartQuery/internal/errors"
	"github.com/AryanB1/SmartQuery/internal/index"
	"github.com/AryanB1/SmartQuery/internal/query/parser"
	"github.com/AryanB1/SmartQuery/internal/query/planner"
	"github.com/AryanB1/SmartQuery/internal/storage"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

// scanColumns are the base columns materialized by every scan. Property
// columns are not materialized; downstream projection resolves them to null.
var scanColumns = []string{"ts", "table", "userId", "event"}

// nullGroupSentinel keeps null group-by values distinct from the string "NULL".
const nullGroupSentinel = "\x00null\x00"

// IndexProber answers index lookups for scan acceleration. *index.Manager
// satisfies it.
type IndexProber interface {
	Lookup(table, column string, query index.Query) index.LookupResult
}

// execContext carries the mutable state threaded through the operator
// pipeline.
type execContext struct {
	columns []string
	rows    [][]any

	// rawRows mirrors rows positionally until aggregation consumes it
	rawRows []storage.Row

	scanned int64
	matched int64
}

// Executor runs physical plans against a column store.
type Executor struct {
	store  *storage.ColumnStore
	prober IndexProber
}

// New creates an executor. The prober is optional; without it every scan
// reads from storage directly.
func New(store *storage.ColumnStore, prober IndexProber) *Executor {
	return &Executor{store: store, prober: prober}
}

// Execute runs the plan's operators in sequence and assembles the result.
func (e *Executor) Execute(plan *planner.PhysicalPlan) (*types.QueryResult, error) {
	started := time.Now()
	ctx := &execContext{}

	for _, op := range plan.Operators {
		var err error
		switch operator := op.(type) {
		case *planner.Scan:
			err = e.execScan(operator, ctx)
		case *planner.Aggregate:
			err = e.execAggregate(operator, ctx)
		case *planner.Project:
			err = e.execProject(operator, ctx)
		case *planner.OrderBy:
			err = e.execOrderBy(operator, ctx)
		case *planner.Limit:
			e.execLimit(operator, ctx)
		default:
			err = qerrors.NewExecutionError(qerrors.CodeUnknownOperator,
				fmt.Sprintf("unsupported operator %T", op))
		}
		if err != nil {
			return nil, err
		}
	}

	return &types.QueryResult{
		Columns:       ctx.columns,
		Rows:          ctx.rows,
		ScannedRows:   ctx.scanned,
		MatchedRows:   ctx.matched,
		ElapsedMillis: time.Since(started).Milliseconds(),
	}, nil
}

// execScan reads the table's rows, applies the residual predicate, and
// materializes base-column tuples. An exact index lookup replaces the
// filtered scan; a bloom equality hint prunes segments the value cannot be
// in.
func (e *Executor) execScan(scan *planner.Scan, ctx *execContext) error {
	ctx.columns = append([]string(nil), scanColumns...)

	if rows, ok := e.indexScan(scan); ok {
		for _, row := range rows {
			ctx.scanned++
			ctx.matched++
			ctx.rows = append(ctx.rows, materializeRow(row))
			ctx.rawRows = append(ctx.rawRows, row)
		}
		return nil
	}

	var scanned []storage.Row
	if scan.Equality != nil {
		eq := &storage.Equality{Column: scan.Equality.Column, Value: scan.Equality.Value}
		scanned = e.store.ScanPruned(scan.Table, scan.FromTS, scan.ToTS, eq, nil)
	} else {
		scanned = e.store.Scan(scan.Table, scan.FromTS, scan.ToTS, nil)
	}

	for _, row := range scanned {
		ctx.scanned++
		if scan.Residual != nil {
			ok, err := EvalPredicate(scan.Residual, row)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		ctx.matched++
		ctx.rows = append(ctx.rows, materializeRow(row))
		ctx.rawRows = append(ctx.rawRows, row)
	}
	return nil
}

// indexScan resolves the scan through a secondary index when the plan carries
// a hint, the prober is wired, and the lookup is exact. The residual is
// implied by the hint in that case, so only the time window is re-checked.
func (e *Executor) indexScan(scan *planner.Scan) ([]storage.Row, bool) {
	if e.prober == nil || scan.IndexHint == nil {
		return nil, false
	}

	hint := scan.IndexHint
	var query index.Query
	switch hint.Kind {
	case planner.HintEquals:
		query = index.EqualsQuery(hint.Values[0])
	case planner.HintIn:
		query = index.InQuery(hint.Values)
	case planner.HintRange:
		query = index.RangeQuery(hint.Lo, hint.IncludeLo, hint.Hi, hint.IncludeHi)
	default:
		return nil, false
	}

	result := e.prober.Lookup(scan.Table, hint.Column, query)
	if !result.Exact {
		return nil, false
	}

	matches := make(map[string][]int, len(result.Matches))
	for segmentID, set := range result.Matches {
		matches[segmentID] = set.Positions()
	}

	candidates := e.store.CollectMatches(scan.Table, matches)
	rows := candidates[:0]
	for _, row := range candidates {
		if row.Timestamp() >= scan.FromTS && row.Timestamp() <= scan.ToTS {
			rows = append(rows, row)
		}
	}
	return rows, true
}

// materializeRow produces the base-column tuple for one row.
func materializeRow(row storage.Row) []any {
	return []any{
		row.Timestamp(),
		row.Table(),
		row.Value("userId"),
		row.Event(),
	}
}

// aggAccumulator is the running state of one aggregate within one group.
type aggAccumulator struct {
	spec planner.AggregateSpec

	count int64
	sum   float64
	// numeric counts the values SUM/AVG accepted
	numeric int64
	extreme any
}

func (a *aggAccumulator) add(row storage.Row) {
	switch a.spec.Func {
	case parser.AggCountAll:
		a.count++

	case parser.AggCount:
		if row.Value(a.spec.Column) != nil {
			a.count++
		}

	case parser.AggSum, parser.AggAvg:
		value := row.Value(a.spec.Column)
		if value == nil {
			return
		}
		if f, ok := ToNumber(value); ok {
			a.sum += f
			a.numeric++
		}

	case parser.AggMin:
		value := row.Value(a.spec.Column)
		if value == nil {
			return
		}
		if a.extreme == nil || Compare(value, a.extreme) < 0 {
			a.extreme = value
		}

	case parser.AggMax:
		value := row.Value(a.spec.Column)
		if value == nil {
			return
		}
		if a.extreme == nil || Compare(value, a.extreme) > 0 {
			a.extreme = value
		}
	}
}

func (a *aggAccumulator) result() any {
	switch a.spec.Func {
	case parser.AggCountAll, parser.AggCount:
		return a.count
	case parser.AggSum:
		return a.sum
	case parser.AggAvg:
		if a.numeric == 0 {
			return nil
		}
		return a.sum / float64(a.numeric)
	case parser.AggMin, parser.AggMax:
		return a.extreme
	default:
		return nil
	}
}

// group holds one group's key values and accumulators.
type group struct {
	keyValues    []any
	accumulators []*aggAccumulator
}

// execAggregate partitions the raw rows by group-by key tuple and folds each
// group through the aggregate accumulators. Emission order is unspecified.
func (e *Executor) execAggregate(agg *planner.Aggregate, ctx *execContext) error {
	groups := make(map[string]*group)

	for _, row := range ctx.rawRows {
		keyValues := make([]any, len(agg.GroupBy))
		keyParts := make([]string, len(agg.GroupBy))
		for i, column := range agg.GroupBy {
			value := row.Value(column)
			keyValues[i] = value
			if value == nil {
				keyParts[i] = nullGroupSentinel
			} else {
				keyParts[i] = textForm(value)
			}
		}
		key := strings.Join(keyParts, "|")

		g, ok := groups[key]
		if !ok {
			accumulators := make([]*aggAccumulator, len(agg.Aggregates))
			for i, spec := range agg.Aggregates {
				accumulators[i] = &aggAccumulator{spec: spec}
			}
			g = &group{keyValues: keyValues, accumulators: accumulators}
			groups[key] = g
		}

		for _, acc := range g.accumulators {
			acc.add(row)
		}
	}

	ctx.rows = ctx.rows[:0]
	ctx.rawRows = nil
	for _, g := range groups {
		row := make([]any, 0, len(g.keyValues)+len(g.accumulators))
		row = append(row, g.keyValues...)
		for _, acc := range g.accumulators {
			row = append(row, acc.result())
		}
		ctx.rows = append(ctx.rows, row)
	}

	columns := make([]string, 0, len(agg.GroupBy)+len(agg.Aggregates))
	columns = append(columns, agg.GroupBy...)
	for _, spec := range agg.Aggregates {
		columns = append(columns, spec.Alias)
	}
	ctx.columns = columns
	return nil
}

// execProject materializes the final column set. Named columns copy by
// case-insensitive lookup (null when missing); "*" splices in the full
// current column list.
func (e *Executor) execProject(project *planner.Project, ctx *execContext) error {
	indexOf := make(map[string]int, len(ctx.columns))
	for i, c := range ctx.columns {
		indexOf[strings.ToLower(c)] = i
	}

	var newColumns []string
	for _, spec := range project.Projections {
		if spec.Column == "*" {
			newColumns = append(newColumns, ctx.columns...)
			continue
		}
		name := spec.Alias
		if name == "" {
			name = spec.Column
		}
		newColumns = append(newColumns, name)
	}

	newRows := make([][]any, len(ctx.rows))
	for rowIdx, row := range ctx.rows {
		newRow := make([]any, 0, len(newColumns))
		for _, spec := range project.Projections {
			if spec.Column == "*" {
				newRow = append(newRow, row...)
				continue
			}
			if colIdx, ok := indexOf[strings.ToLower(spec.Column)]; ok && colIdx < len(row) {
				newRow = append(newRow, row[colIdx])
			} else {
				newRow = append(newRow, nil)
			}
		}
		newRows[rowIdx] = newRow
	}

	ctx.columns = newColumns
	ctx.rows = newRows
	return nil
}

// execOrderBy stable-sorts the rows by the listed keys. Keys that don't
// resolve to a result column are skipped; ties preserve the incoming order.
func (e *Executor) execOrderBy(orderBy *planner.OrderBy, ctx *execContext) error {
	indexOf := make(map[string]int, len(ctx.columns))
	for i, c := range ctx.columns {
		indexOf[strings.ToLower(c)] = i
	}

	indices := make([]int, len(orderBy.Items))
	for i, item := range orderBy.Items {
		if idx, ok := indexOf[strings.ToLower(item.Column)]; ok {
			indices[i] = idx
		} else {
			indices[i] = -1
		}
	}

	sort.SliceStable(ctx.rows, func(i, j int) bool {
		for k, item := range orderBy.Items {
			idx := indices[k]
			if idx < 0 {
				continue
			}
			var a, b any
			if idx < len(ctx.rows[i]) {
				a = ctx.rows[i][idx]
			}
			if idx < len(ctx.rows[j]) {
				b = ctx.rows[j][idx]
			}
			cmp := Compare(a, b)
			if cmp == 0 {
				continue
			}
			if item.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

// execLimit truncates the result to the first n rows.
func (e *Executor) execLimit(limit *planner.Limit, ctx *execContext) {
	if len(ctx.rows) > limit.N {
		ctx.rows = ctx.rows[:limit.N]
	}
}
