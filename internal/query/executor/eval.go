// Package executor runs physical plans tuple-at-a-time over the column
// store, with optional index-accelerated scans.
package executor

import (
	"fmt"
	"strconv"
	"strings"

	qerrors "github.com/AryanB1/SmartQuery/internal/errors"
	"github.com/AryanB1/SmartQuery/internal/query/parser"
	"github.com/AryanB1/SmartQuery/internal/storage"
)

// ToNumber coerces a value to float64. Strings parse lazily; anything else
// non-numeric reports false.
func ToNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Compare orders two values: nulls sort below non-nulls, two numerically
// coercible operands compare numerically, everything else compares as
// case-insensitive text.
func Compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	fa, aOK := ToNumber(a)
	fb, bOK := ToNumber(b)
	if aOK && bOK {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	sa := strings.ToLower(textForm(a))
	sb := strings.ToLower(textForm(b))
	return strings.Compare(sa, sb)
}

// Equal reports whether two values compare equal under Compare.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}

// LikePrefix reports whether the value's text form starts with the prefix,
// case-insensitively. Null operands never match.
func LikePrefix(value any, prefix string) bool {
	if value == nil {
		return false
	}
	text := strings.ToLower(textForm(value))
	return strings.HasPrefix(text, strings.ToLower(prefix))
}

// textForm renders a value for string comparison.
func textForm(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// EvalPredicate evaluates a residual WHERE expression against a row.
func EvalPredicate(expr parser.Expr, row storage.Row) (bool, error) {
	switch e := expr.(type) {
	case *parser.BinaryExpr:
		left, err := EvalPredicate(e.Left, row)
		if err != nil {
			return false, err
		}
		// Short-circuit boolean evaluation
		if e.Op == parser.OpAnd && !left {
			return false, nil
		}
		if e.Op == parser.OpOr && left {
			return true, nil
		}
		return EvalPredicate(e.Right, row)

	case *parser.CompareExpr:
		left, err := EvalValue(e.Left, row)
		if err != nil {
			return false, err
		}
		right, err := EvalValue(e.Right, row)
		if err != nil {
			return false, err
		}
		cmp := Compare(left, right)
		switch e.Op {
		case parser.CmpEq:
			return cmp == 0, nil
		case parser.CmpNe:
			return cmp != 0, nil
		case parser.CmpLt:
			return cmp < 0, nil
		case parser.CmpLe:
			return cmp <= 0, nil
		case parser.CmpGt:
			return cmp > 0, nil
		case parser.CmpGe:
			return cmp >= 0, nil
		default:
			return false, qerrors.NewExecutionError(qerrors.CodeUnknownOperator,
				fmt.Sprintf("unknown comparison operator %d", e.Op))
		}

	case *parser.InExpr:
		value, err := EvalValue(e.Expr, row)
		if err != nil {
			return false, err
		}
		for _, candidate := range e.Values {
			cv, err := EvalValue(candidate, row)
			if err != nil {
				return false, err
			}
			if Equal(value, cv) {
				return true, nil
			}
		}
		return false, nil

	case *parser.BetweenExpr:
		value, err := EvalValue(e.Expr, row)
		if err != nil {
			return false, err
		}
		low, err := EvalValue(e.Low, row)
		if err != nil {
			return false, err
		}
		high, err := EvalValue(e.High, row)
		if err != nil {
			return false, err
		}
		return Compare(value, low) >= 0 && Compare(value, high) <= 0, nil

	case *parser.LikePrefixExpr:
		value, err := EvalValue(e.Expr, row)
		if err != nil {
			return false, err
		}
		return LikePrefix(value, e.Prefix), nil

	case *parser.ParenExpr:
		return EvalPredicate(e.Expr, row)

	default:
		return false, qerrors.NewExecutionError(qerrors.CodeBadOperand,
			fmt.Sprintf("cannot evaluate %T as a predicate", expr))
	}
}

// EvalValue resolves an atom to a value: column references read the row,
// literals pass through.
func EvalValue(expr parser.Expr, row storage.Row) (any, error) {
	switch e := expr.(type) {
	case *parser.ColumnRef:
		return row.Value(e.Name), nil
	case *parser.Literal:
		return e.Value, nil
	case *parser.ParenExpr:
		return EvalValue(e.Expr, row)
	default:
		return nil, qerrors.NewExecutionError(qerrors.CodeBadOperand,
			fmt.Sprintf("cannot evaluate %T as a value", expr))
	}
}
