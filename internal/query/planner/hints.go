package planner

import (
	"math"
	"strconv"
	"strings"

	"github.com/AryanB1/SmartQuery/internal/query/parser"
)

// HintKind identifies the shape of an index hint.
type HintKind int

const (
	HintEquals HintKind = iota
	HintIn
	HintRange
)

// IndexHint describes a residual predicate that a secondary index can answer
// wholesale. It is only emitted when the entire residual is a single
// predicate on one column, so an exact index result makes residual
// evaluation unnecessary.
type IndexHint struct {
	Column string
	Kind   HintKind

	// Values holds the comparison values for HintEquals and HintIn
	Values []string

	// Range bounds for HintRange
	Lo, Hi               float64
	IncludeLo, IncludeHi bool
}

// EqualityHint is a required equality conjunct of the residual, used for
// bloom-filter segment pruning during scans.
type EqualityHint struct {
	Column string
	Value  string
}

// extractIndexHint returns an index hint when the whole residual is one
// simple indexable predicate.
func extractIndexHint(residual parser.Expr) *IndexHint {
	residual = unwrapParens(residual)

	switch e := residual.(type) {
	case *parser.CompareExpr:
		col, value, ok := columnLiteral(e)
		if !ok {
			return nil
		}
		if e.Op == parser.CmpEq {
			return &IndexHint{Column: col, Kind: HintEquals, Values: []string{value}}
		}
		// Ordered comparisons map to half-open ranges on numeric indexes.
		num, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil
		}
		hint := &IndexHint{Column: col, Kind: HintRange}
		op := e.Op
		if _, isCol := unwrapParens(e.Right).(*parser.ColumnRef); isCol {
			op = op.Flip()
		}
		switch op {
		case parser.CmpGe:
			hint.Lo, hint.IncludeLo, hint.Hi, hint.IncludeHi = num, true, math.MaxFloat64, true
		case parser.CmpGt:
			hint.Lo, hint.IncludeLo, hint.Hi, hint.IncludeHi = num, false, math.MaxFloat64, true
		case parser.CmpLe:
			hint.Lo, hint.IncludeLo, hint.Hi, hint.IncludeHi = -math.MaxFloat64, true, num, true
		case parser.CmpLt:
			hint.Lo, hint.IncludeLo, hint.Hi, hint.IncludeHi = -math.MaxFloat64, true, num, false
		default:
			return nil
		}
		return hint

	case *parser.InExpr:
		ref, ok := unwrapParens(e.Expr).(*parser.ColumnRef)
		if !ok {
			return nil
		}
		values := make([]string, 0, len(e.Values))
		for _, v := range e.Values {
			lit, ok := literalString(v)
			if !ok {
				return nil
			}
			values = append(values, lit)
		}
		return &IndexHint{Column: ref.Name, Kind: HintIn, Values: values}

	case *parser.BetweenExpr:
		ref, ok := unwrapParens(e.Expr).(*parser.ColumnRef)
		if !ok {
			return nil
		}
		lo, okLo := numericLiteral(e.Low)
		hi, okHi := numericLiteral(e.High)
		if !okLo || !okHi {
			return nil
		}
		return &IndexHint{
			Column: ref.Name, Kind: HintRange,
			Lo: lo, IncludeLo: true, Hi: hi, IncludeHi: true,
		}

	default:
		return nil
	}
}

// extractEqualityHint finds the first equality conjunct on a bloom-filtered
// column. Only AND-required conjuncts qualify; anything under OR is skipped.
func extractEqualityHint(residual parser.Expr) *EqualityHint {
	for _, conjunct := range requiredConjuncts(residual) {
		cmp, ok := conjunct.(*parser.CompareExpr)
		if !ok || cmp.Op != parser.CmpEq {
			continue
		}
		col, value, ok := columnLiteral(cmp)
		if !ok {
			continue
		}
		switch strings.ToLower(col) {
		case "event", "userid", "user_id":
			return &EqualityHint{Column: col, Value: value}
		}
	}
	return nil
}

// requiredConjuncts flattens AND chains into the predicates every matching
// row must satisfy.
func requiredConjuncts(expr parser.Expr) []parser.Expr {
	expr = unwrapParens(expr)
	if expr == nil {
		return nil
	}
	if bin, ok := expr.(*parser.BinaryExpr); ok && bin.Op == parser.OpAnd {
		return append(requiredConjuncts(bin.Left), requiredConjuncts(bin.Right)...)
	}
	return []parser.Expr{expr}
}

// columnLiteral decomposes a comparison into (column, literal) regardless of
// operand order.
func columnLiteral(cmp *parser.CompareExpr) (column, value string, ok bool) {
	left := unwrapParens(cmp.Left)
	right := unwrapParens(cmp.Right)

	if ref, isCol := left.(*parser.ColumnRef); isCol {
		if lit, isLit := literalString(right); isLit {
			return ref.Name, lit, true
		}
	}
	if ref, isCol := right.(*parser.ColumnRef); isCol {
		if lit, isLit := literalString(left); isLit {
			return ref.Name, lit, true
		}
	}
	return "", "", false
}

// literalString renders a literal as the string form indexes are keyed by.
func literalString(expr parser.Expr) (string, bool) {
	lit, ok := unwrapParens(expr).(*parser.Literal)
	if !ok {
		return "", false
	}
	switch v := lit.Value.(type) {
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	default:
		return "", false
	}
}

// numericLiteral extracts a numeric literal as float64.
func numericLiteral(expr parser.Expr) (float64, bool) {
	lit, ok := unwrapParens(expr).(*parser.Literal)
	if !ok {
		return 0, false
	}
	switch v := lit.Value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func unwrapParens(expr parser.Expr) parser.Expr {
	for {
		paren, ok := expr.(*parser.ParenExpr)
		if !ok {
			return expr
		}
		expr = paren.Expr
	}
}
