package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSelect(t *testing.T, sql string) *Select {
	t.Helper()
	stmt, err := Parse(sql)
	require.NoError(t, err, "parsing %q", sql)
	sel, ok := stmt.(*Select)
	require.True(t, ok)
	return sel
}

func TestParseSimpleSelect(t *testing.T) {
	sel := parseSelect(t, "SELECT userId, event FROM events WHERE userId = 'u1'")

	require.Len(t, sel.Items, 2)
	assert.Equal(t, "userId", sel.Items[0].(*Column).Name)
	assert.Equal(t, "event", sel.Items[1].(*Column).Name)
	assert.Equal(t, "events", sel.Table)

	cmp, ok := sel.Where.(*CompareExpr)
	require.True(t, ok)
	assert.Equal(t, CmpEq, cmp.Op)
	assert.Equal(t, "userId", cmp.Left.(*ColumnRef).Name)
	assert.Equal(t, "u1", cmp.Right.(*Literal).Value)
}

func TestParseStar(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM events")
	require.Len(t, sel.Items, 1)
	_, ok := sel.Items[0].(*Star)
	assert.True(t, ok)
}

func TestCaseInsensitiveKeywords(t *testing.T) {
	sel := parseSelect(t, "select userId from events where event like 'pur%' order by userId desc limit 5")
	assert.Equal(t, "events", sel.Table)
	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Desc)
	require.NotNil(t, sel.Limit)
	assert.Equal(t, int64(5), *sel.Limit)
}

func TestLineComments(t *testing.T) {
	sel := parseSelect(t, `
		-- leading comment
		SELECT userId -- trailing comment
		FROM events
	`)
	assert.Equal(t, "events", sel.Table)
}

func TestAggregates(t *testing.T) {
	sel := parseSelect(t, "SELECT region, COUNT(*) AS c, SUM(price) AS s, AVG(price), MIN(ts), MAX(ts) FROM events GROUP BY region")

	require.Len(t, sel.Items, 6)
	countAll := sel.Items[1].(*Aggregate)
	assert.Equal(t, AggCountAll, countAll.Func)
	assert.Equal(t, "c", countAll.Alias)
	assert.Equal(t, "c", countAll.OutputName())

	sum := sel.Items[2].(*Aggregate)
	assert.Equal(t, AggSum, sum.Func)
	assert.Equal(t, "price", sum.Column)

	avg := sel.Items[3].(*Aggregate)
	assert.Equal(t, AggAvg, avg.Func)
	assert.Equal(t, "AVG(price)", avg.OutputName())

	assert.Equal(t, []string{"region"}, sel.GroupBy)
}

func TestCountColumn(t *testing.T) {
	sel := parseSelect(t, "SELECT COUNT(userId) FROM events GROUP BY region")
	agg := sel.Items[0].(*Aggregate)
	assert.Equal(t, AggCount, agg.Func)
	assert.Equal(t, "userId", agg.Column)
	assert.Equal(t, "COUNT(userId)", agg.OutputName())
}

func TestPropsQualifiedColumns(t *testing.T) {
	sel := parseSelect(t, "SELECT props.region FROM events WHERE props.price > 10")
	assert.Equal(t, "props.region", sel.Items[0].(*Column).Name)
	cmp := sel.Where.(*CompareExpr)
	assert.Equal(t, "props.price", cmp.Left.(*ColumnRef).Name)
}

func TestWherePrecedence(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM events WHERE a = 1 OR b = 2 AND c = 3")

	// AND binds tighter than OR.
	or, ok := sel.Where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpOr, or.Op)
	and, ok := or.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, and.Op)
}

func TestParenthesizedWhere(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM events WHERE (a = 1 OR b = 2) AND c = 3")

	and, ok := sel.Where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, and.Op)
	paren, ok := and.Left.(*ParenExpr)
	require.True(t, ok)
	inner, ok := paren.Expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpOr, inner.Op)
}

func TestInAndBetween(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM events WHERE region IN ('us', 'eu') AND ts BETWEEN 1000 AND 2000")

	and := sel.Where.(*BinaryExpr)
	in := and.Left.(*InExpr)
	require.Len(t, in.Values, 2)
	assert.Equal(t, "us", in.Values[0].(*Literal).Value)

	between := and.Right.(*BetweenExpr)
	assert.Equal(t, int64(1000), between.Low.(*Literal).Value)
	assert.Equal(t, int64(2000), between.High.(*Literal).Value)
}

func TestLikePrefix(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM events WHERE event LIKE 'pur%'")
	like := sel.Where.(*LikePrefixExpr)
	assert.Equal(t, "pur", like.Prefix)
}

func TestNonPrefixLikeIsUnsupported(t *testing.T) {
	for _, sql := range []string{
		"SELECT * FROM events WHERE event LIKE '%chase'",
		"SELECT * FROM events WHERE event LIKE 'pu%se'",
		"SELECT * FROM events WHERE event LIKE 'p_r%'",
		"SELECT * FROM events WHERE event LIKE 'exact'",
	} {
		_, err := Parse(sql)
		require.Error(t, err, sql)
		var parseErr *ParseError
		require.True(t, errors.As(err, &parseErr), sql)
		assert.True(t, parseErr.Unsupported, "expected unsupported-feature failure for %s", sql)
	}
}

func TestLiterals(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM events WHERE a = 10 AND b = 2.5 AND c = 'it''s' AND d = -3")

	conjuncts := []Expr{}
	var flatten func(Expr)
	flatten = func(e Expr) {
		if bin, ok := e.(*BinaryExpr); ok && bin.Op == OpAnd {
			flatten(bin.Left)
			flatten(bin.Right)
			return
		}
		conjuncts = append(conjuncts, e)
	}
	flatten(sel.Where)
	require.Len(t, conjuncts, 4)

	assert.Equal(t, int64(10), conjuncts[0].(*CompareExpr).Right.(*Literal).Value)
	assert.Equal(t, 2.5, conjuncts[1].(*CompareExpr).Right.(*Literal).Value)
	assert.Equal(t, "it's", conjuncts[2].(*CompareExpr).Right.(*Literal).Value)
	assert.Equal(t, int64(-3), conjuncts[3].(*CompareExpr).Right.(*Literal).Value)
}

func TestComparisonOperators(t *testing.T) {
	ops := map[string]CmpOp{
		"=": CmpEq, "!=": CmpNe, "<>": CmpNe,
		"<": CmpLt, "<=": CmpLe, ">": CmpGt, ">=": CmpGe,
	}
	for sym, want := range ops {
		sel := parseSelect(t, "SELECT * FROM events WHERE ts "+sym+" 5")
		assert.Equal(t, want, sel.Where.(*CompareExpr).Op, sym)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"SELECT FROM events",
		"SELECT userId",
		"SELECT userId FROM",
		"UPDATE events SET x = 1",
		"SELECT * FROM events WHERE",
		"SELECT * FROM events LIMIT abc",
		"SELECT * FROM events WHERE a IN ()",
		"SELECT * FROM events WHERE a BETWEEN 1",
		"SELECT * FROM events trailing",
		"SELECT * FROM events WHERE s = 'unterminated",
	}
	for _, sql := range cases {
		_, err := Parse(sql)
		assert.Error(t, err, sql)
	}
}

func TestParseErrorCarriesPosition(t *testing.T) {
	_, err := Parse("SELECT userId\nFROM")
	require.Error(t, err)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 2, parseErr.Line)
	assert.Greater(t, parseErr.Column, 0)
}

func TestTrailingSemicolonAccepted(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM events;")
	assert.Equal(t, "events", sel.Table)
}

func TestStatementRoundTrip(t *testing.T) {
	sql := "SELECT userId, COUNT(*) AS c FROM events WHERE region IN ('us', 'eu') AND event LIKE 'cl%' GROUP BY userId ORDER BY c DESC LIMIT 10"
	sel := parseSelect(t, sql)

	// The rendered form must itself parse to the same shape.
	again := parseSelect(t, sel.String())
	assert.Equal(t, sel.String(), again.String())
}
