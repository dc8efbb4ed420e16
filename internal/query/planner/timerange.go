package planner

import (
	"math"
	"strings"

	"github.com/AryanB1/SmartQuery/internal/query/parser"
)

// TimeRange is an inclusive window over the ts column extracted from a WHERE
// clause.
type TimeRange struct {
	FromTS int64
	ToTS   int64
}

// ExtractTimeRange scans an expression tree for constraints on the ts column
// and returns the combined inclusive window, or nil when no constraint can be
// pushed down. Ranges under AND intersect; OR abandons the pushdown.
func ExtractTimeRange(expr parser.Expr) *TimeRange {
	switch e := expr.(type) {
	case *parser.BetweenExpr:
		if !isTimestampColumn(e.Expr) {
			return nil
		}
		low, okLow := integerLiteral(e.Low)
		high, okHigh := integerLiteral(e.High)
		if okLow && okHigh {
			return &TimeRange{FromTS: low, ToTS: high}
		}
		return nil

	case *parser.CompareExpr:
		return extractFromComparison(e)

	case *parser.BinaryExpr:
		if e.Op != parser.OpAnd {
			return nil
		}
		left := ExtractTimeRange(e.Left)
		right := ExtractTimeRange(e.Right)
		switch {
		case left != nil && right != nil:
			return &TimeRange{
				FromTS: max64(left.FromTS, right.FromTS),
				ToTS:   min64(left.ToTS, right.ToTS),
			}
		case left != nil:
			return left
		default:
			return right
		}

	case *parser.ParenExpr:
		return ExtractTimeRange(e.Expr)

	default:
		return nil
	}
}

// extractFromComparison maps a single ts comparison to a half-range, flipping
// the operator when the literal is on the left.
func extractFromComparison(cmp *parser.CompareExpr) *TimeRange {
	op := cmp.Op
	var lit parser.Expr

	switch {
	case isTimestampColumn(cmp.Left):
		lit = cmp.Right
	case isTimestampColumn(cmp.Right):
		lit = cmp.Left
		op = op.Flip()
	default:
		return nil
	}

	value, ok := integerLiteral(lit)
	if !ok {
		return nil
	}

	switch op {
	case parser.CmpGe:
		return &TimeRange{FromTS: value, ToTS: math.MaxInt64}
	case parser.CmpGt:
		return &TimeRange{FromTS: value + 1, ToTS: math.MaxInt64}
	case parser.CmpLe:
		return &TimeRange{FromTS: math.MinInt64, ToTS: value}
	case parser.CmpLt:
		return &TimeRange{FromTS: math.MinInt64, ToTS: value - 1}
	case parser.CmpEq:
		return &TimeRange{FromTS: value, ToTS: value}
	default:
		return nil
	}
}

// RemoveTimeConstraints returns the expression with every ts predicate that
// ExtractTimeRange folds into the scan window removed, so the window is not
// re-checked row by row. ts predicates that yield no window (under OR, !=,
// non-integer bounds) are kept. When removal empties one side of an AND the
// parent collapses to the remaining side; a fully collapsed tree yields nil.
func RemoveTimeConstraints(expr parser.Expr) parser.Expr {
	switch e := expr.(type) {
	case *parser.BetweenExpr:
		if ExtractTimeRange(e) != nil {
			return nil
		}
		return e

	case *parser.CompareExpr:
		if extractFromComparison(e) != nil {
			return nil
		}
		return e

	case *parser.BinaryExpr:
		if e.Op != parser.OpAnd {
			return e
		}
		left := RemoveTimeConstraints(e.Left)
		right := RemoveTimeConstraints(e.Right)
		switch {
		case left == nil && right == nil:
			return nil
		case left == nil:
			return right
		case right == nil:
			return left
		default:
			return &parser.BinaryExpr{Op: e.Op, Left: left, Right: right}
		}

	case *parser.ParenExpr:
		inner := RemoveTimeConstraints(e.Expr)
		if inner == nil {
			return nil
		}
		return &parser.ParenExpr{Expr: inner}

	default:
		return expr
	}
}

// isTimestampColumn reports whether the expression references the ts column.
func isTimestampColumn(expr parser.Expr) bool {
	ref, ok := expr.(*parser.ColumnRef)
	if !ok {
		return false
	}
	name := strings.ToLower(ref.Name)
	return name == "ts" || name == "timestamp"
}

// integerLiteral extracts an int64 literal value.
func integerLiteral(expr parser.Expr) (int64, bool) {
	lit, ok := expr.(*parser.Literal)
	if !ok {
		return 0, false
	}
	v, ok := lit.Value.(int64)
	return v, ok
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
