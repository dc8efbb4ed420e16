// Package planner converts parsed statements into physical execution plans.
// Planning validates aggregation shape, pushes time-range constraints from
// the WHERE clause into the scan, and records predicate observations for the
// adaptive index layer.
package planner

import (
	"fmt"
	"math"
	"strings"

	qerrors "github.com/AryanB1/SmartQuery/internal/errors"
	"github.com/AryanB1/SmartQuery/internal/query/parser"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

// Operator is one stage of the physical pipeline.
type Operator interface {
	operatorNode()
	String() string
}

// Scan reads rows of one table within an inclusive ts window and applies the
// residual predicate left after time-range extraction.
type Scan struct {
	Table    string
	FromTS   int64
	ToTS     int64
	Residual parser.Expr

	// IndexHint is set when the entire residual is a single indexable
	// predicate on one column; an exact index result then replaces residual
	// evaluation.
	IndexHint *IndexHint

	// Equality is a required equality conjunct usable for bloom-filter
	// segment pruning.
	Equality *EqualityHint
}

func (s *Scan) operatorNode() {}

// String describes the scan for EXPLAIN output.
func (s *Scan) String() string {
	residual := "none"
	if s.Residual != nil {
		residual = s.Residual.String()
	}
	return fmt.Sprintf("Scan(table=%s, fromTs=%d, toTs=%d, residual=%s)", s.Table, s.FromTS, s.ToTS, residual)
}

// AggregateSpec describes one aggregate output column.
type AggregateSpec struct {
	Func   parser.AggFunc
	Column string // empty for COUNT(*)
	Alias  string
}

// String describes the aggregate for EXPLAIN output.
func (a AggregateSpec) String() string {
	col := a.Column
	if a.Func == parser.AggCountAll {
		col = "*"
	}
	return fmt.Sprintf("%s(%s) AS %s", a.Func, col, a.Alias)
}

// Aggregate groups rows by the listed columns and evaluates the aggregate
// specs per group.
type Aggregate struct {
	GroupBy    []string
	Aggregates []AggregateSpec
}

func (a *Aggregate) operatorNode() {}

// String describes the aggregation for EXPLAIN output.
func (a *Aggregate) String() string {
	specs := make([]string, len(a.Aggregates))
	for i, s := range a.Aggregates {
		specs[i] = s.String()
	}
	return fmt.Sprintf("Aggregate(groupBy=[%s], aggregates=[%s])",
		strings.Join(a.GroupBy, ", "), strings.Join(specs, ", "))
}

// ProjectionSpec selects one output column. Column "*" splices in the full
// current column list.
type ProjectionSpec struct {
	Column string
	Alias  string
}

// String describes the projection for EXPLAIN output.
func (p ProjectionSpec) String() string {
	if p.Alias != "" && p.Alias != p.Column {
		return p.Column + " AS " + p.Alias
	}
	return p.Column
}

// Project materializes the final column set and aliases.
type Project struct {
	Projections []ProjectionSpec
}

func (p *Project) operatorNode() {}

// String describes the projection list for EXPLAIN output.
func (p *Project) String() string {
	specs := make([]string, len(p.Projections))
	for i, s := range p.Projections {
		specs[i] = s.String()
	}
	return fmt.Sprintf("Project(%s)", strings.Join(specs, ", "))
}

// OrderBy stable-sorts rows by the listed keys.
type OrderBy struct {
	Items []parser.OrderItem
}

func (o *OrderBy) operatorNode() {}

// String describes the sort keys for EXPLAIN output.
func (o *OrderBy) String() string {
	items := make([]string, len(o.Items))
	for i, it := range o.Items {
		items[i] = it.String()
	}
	return fmt.Sprintf("OrderBy(%s)", strings.Join(items, ", "))
}

// Limit truncates the result to the first N rows.
type Limit struct {
	N int
}

func (l *Limit) operatorNode() {}

// String describes the limit for EXPLAIN output.
func (l *Limit) String() string {
	return fmt.Sprintf("Limit(%d)", l.N)
}

// PhysicalPlan is the ordered operator pipeline.
type PhysicalPlan struct {
	Operators []Operator
}

// String renders the plan one operator per line for EXPLAIN output.
func (p *PhysicalPlan) String() string {
	var sb strings.Builder
	sb.WriteString("PhysicalPlan:\n")
	for i, op := range p.Operators {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, op)
	}
	return sb.String()
}

// UsageRecorder receives one observation per column referenced in a query's
// residual predicate.
type UsageRecorder interface {
	RecordQueryUsage(table, column string)
}

// Plan converts a parsed statement and request into a physical plan. The
// optional recorder is notified of residual predicate columns for adaptive
// index management.
func Plan(stmt parser.Statement, req *types.QueryRequest, usage UsageRecorder) (*PhysicalPlan, error) {
	sel, ok := stmt.(*parser.Select)
	if !ok {
		return nil, qerrors.NewPlanError(qerrors.CodeNotSelect, "only SELECT statements are supported")
	}

	if err := validateSelect(sel); err != nil {
		return nil, err
	}

	fromTS, toTS := int64(math.MinInt64), int64(math.MaxInt64)
	residual := sel.Where
	if sel.Where != nil {
		if tr := ExtractTimeRange(sel.Where); tr != nil {
			fromTS, toTS = tr.FromTS, tr.ToTS
		}
		residual = RemoveTimeConstraints(sel.Where)
	}

	scan := &Scan{
		Table:    sel.Table,
		FromTS:   fromTS,
		ToTS:     toTS,
		Residual: residual,
	}
	scan.IndexHint = extractIndexHint(residual)
	scan.Equality = extractEqualityHint(residual)

	if usage != nil {
		for _, col := range residualColumns(residual) {
			usage.RecordQueryUsage(sel.Table, col)
		}
	}

	operators := []Operator{scan}

	if len(sel.GroupBy) > 0 {
		operators = append(operators, &Aggregate{
			GroupBy:    sel.GroupBy,
			Aggregates: aggregateSpecs(sel.Items),
		})
	}

	operators = append(operators, &Project{Projections: projectionSpecs(sel.Items)})

	if len(sel.OrderBy) > 0 {
		operators = append(operators, &OrderBy{Items: sel.OrderBy})
	}

	if limit, ok := effectiveLimit(sel, req); ok {
		operators = append(operators, &Limit{N: limit})
	}

	return &PhysicalPlan{Operators: operators}, nil
}

// validateSelect rejects statements the executor cannot run.
func validateSelect(sel *parser.Select) error {
	if strings.TrimSpace(sel.Table) == "" {
		return qerrors.NewPlanError(qerrors.CodeMissingTable, "missing table name")
	}
	if len(sel.Items) == 0 {
		return qerrors.NewPlanError(qerrors.CodeEmptySelectList, "empty SELECT list")
	}

	hasAggregates := false
	for _, item := range sel.Items {
		if _, ok := item.(*parser.Aggregate); ok {
			hasAggregates = true
			break
		}
	}

	if hasAggregates && len(sel.GroupBy) == 0 {
		return qerrors.NewPlanError(qerrors.CodeAggregateWithoutGroupBy,
			"aggregate functions require a GROUP BY clause")
	}
	if len(sel.GroupBy) > 0 && !hasAggregates {
		return qerrors.NewPlanError(qerrors.CodeGroupByWithoutAggregate,
			"GROUP BY requires aggregate functions in the SELECT list")
	}
	return nil
}

// aggregateSpecs extracts the aggregate output columns in select-list order.
func aggregateSpecs(items []parser.SelectItem) []AggregateSpec {
	var specs []AggregateSpec
	for _, item := range items {
		if agg, ok := item.(*parser.Aggregate); ok {
			specs = append(specs, AggregateSpec{
				Func:   agg.Func,
				Column: agg.Column,
				Alias:  agg.OutputName(),
			})
		}
	}
	return specs
}

// projectionSpecs maps select items to projection specs.
func projectionSpecs(items []parser.SelectItem) []ProjectionSpec {
	specs := make([]ProjectionSpec, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case *parser.Star:
			specs = append(specs, ProjectionSpec{Column: "*"})
		case *parser.Column:
			specs = append(specs, ProjectionSpec{Column: it.Name, Alias: it.OutputName()})
		case *parser.Aggregate:
			// The aggregate operator already emitted the aliased column;
			// project it through by its output name.
			specs = append(specs, ProjectionSpec{Column: it.OutputName(), Alias: it.OutputName()})
		}
	}
	return specs
}

// effectiveLimit resolves the SQL LIMIT against the request's limit hint:
// min of the two when both are present, whichever exists otherwise.
func effectiveLimit(sel *parser.Select, req *types.QueryRequest) (int, bool) {
	var hint *int
	if req != nil {
		hint = req.LimitHint
	}

	switch {
	case sel.Limit != nil && hint != nil:
		n := int(*sel.Limit)
		if *hint < n {
			n = *hint
		}
		return n, true
	case sel.Limit != nil:
		return int(*sel.Limit), true
	case hint != nil:
		return *hint, true
	default:
		return 0, false
	}
}

// residualColumns lists the distinct column names referenced by the residual
// predicate, in first-seen order.
func residualColumns(expr parser.Expr) []string {
	var cols []string
	seen := make(map[string]bool)

	var walk func(parser.Expr)
	add := func(e parser.Expr) {
		if ref, ok := e.(*parser.ColumnRef); ok && !seen[ref.Name] {
			seen[ref.Name] = true
			cols = append(cols, ref.Name)
		}
	}
	walk = func(e parser.Expr) {
		switch ex := e.(type) {
		case nil:
		case *parser.BinaryExpr:
			walk(ex.Left)
			walk(ex.Right)
		case *parser.CompareExpr:
			add(ex.Left)
			add(ex.Right)
		case *parser.InExpr:
			add(ex.Expr)
		case *parser.BetweenExpr:
			add(ex.Expr)
		case *parser.LikePrefixExpr:
			add(ex.Expr)
		case *parser.ParenExpr:
			walk(ex.Expr)
		}
	}
	if expr != nil {
		walk(expr)
	}
	return cols
}
