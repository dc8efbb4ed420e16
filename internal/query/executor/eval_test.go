package executor

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AryanB1/SmartQuery/internal/query/parser"
	"github.com/AryanB1/SmartQuery/internal/storage"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

func testRow() storage.Row {
	return storage.NewRow(&types.Event{
		TS: 1000, Table: "events", UserID: "u1", Name: "Click",
		Props: map[string]string{"region": "us", "price": "10"},
	})
}

func TestCompareNumericCoercion(t *testing.T) {
	assert.Equal(t, 0, Compare("10", int64(10)))
	assert.Equal(t, -1, Compare("9", "10"), "numeric strings compare numerically")
	assert.Equal(t, 1, Compare(10.5, int64(10)))
}

func TestCompareStringsCaseInsensitive(t *testing.T) {
	assert.Equal(t, 0, Compare("Click", "click"))
	assert.Equal(t, -1, Compare("apple", "Banana"))
}

func TestCompareNulls(t *testing.T) {
	assert.Equal(t, 0, Compare(nil, nil))
	assert.Equal(t, -1, Compare(nil, "x"))
	assert.Equal(t, 1, Compare("x", nil))
	assert.Equal(t, -1, Compare(nil, int64(0)), "null sorts below any non-null")
}

func TestLikePrefixSemantics(t *testing.T) {
	assert.True(t, LikePrefix("Purchase", "pur"))
	assert.True(t, LikePrefix("purchase", "PUR"))
	assert.False(t, LikePrefix("click", "pur"))
	assert.False(t, LikePrefix(nil, "pur"), "null operand never matches")
	assert.True(t, LikePrefix("anything", ""), "empty prefix matches everything")
}

func TestLikePrefixCaseInsensitiveProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("match(x, p) == match(lower(x), lower(p))", prop.ForAll(
		func(x, p string) bool {
			return LikePrefix(x, p) == LikePrefix(strings.ToLower(x), strings.ToLower(p))
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func evalWhere(t *testing.T, where string, row storage.Row) bool {
	t.Helper()
	stmt, err := parser.Parse("SELECT * FROM events WHERE " + where)
	require.NoError(t, err)
	ok, err := EvalPredicate(stmt.(*parser.Select).Where, row)
	require.NoError(t, err, where)
	return ok
}

func TestEvalComparisons(t *testing.T) {
	row := testRow()

	assert.True(t, evalWhere(t, "userId = 'u1'", row))
	assert.True(t, evalWhere(t, "USERID = 'u1'", row), "base columns resolve case-insensitively")
	assert.False(t, evalWhere(t, "userId != 'u1'", row))
	assert.True(t, evalWhere(t, "price > 5", row), "numeric coercion on property strings")
	assert.True(t, evalWhere(t, "props.price <= 10", row))
	assert.False(t, evalWhere(t, "price >= 11", row))
}

func TestEvalBooleanConnectives(t *testing.T) {
	row := testRow()

	assert.True(t, evalWhere(t, "userId = 'u1' AND region = 'us'", row))
	assert.False(t, evalWhere(t, "userId = 'u1' AND region = 'eu'", row))
	assert.True(t, evalWhere(t, "userId = 'nope' OR region = 'us'", row))
	assert.True(t, evalWhere(t, "(userId = 'nope' OR region = 'us') AND event = 'click'", row))
}

func TestEvalInAndBetween(t *testing.T) {
	row := testRow()

	assert.True(t, evalWhere(t, "region IN ('us', 'eu')", row))
	assert.False(t, evalWhere(t, "region IN ('apac')", row))
	assert.True(t, evalWhere(t, "price BETWEEN 10 AND 20", row), "BETWEEN is inclusive on both ends")
	assert.True(t, evalWhere(t, "price BETWEEN 5 AND 10", row))
	assert.False(t, evalWhere(t, "price BETWEEN 11 AND 20", row))
}

func TestEvalLike(t *testing.T) {
	row := testRow()

	assert.True(t, evalWhere(t, "event LIKE 'cli%'", row))
	assert.True(t, evalWhere(t, "event LIKE 'CLI%'", row))
	assert.False(t, evalWhere(t, "event LIKE 'pur%'", row))
	assert.False(t, evalWhere(t, "missing LIKE 'x%'", row), "null operand is false")
}

func TestEvalMissingPropertyIsNull(t *testing.T) {
	row := testRow()

	assert.False(t, evalWhere(t, "missing = 'x'", row))
	// null == null under the comparison rules
	assert.True(t, evalWhere(t, "missing = other_missing", row))
	assert.True(t, evalWhere(t, "missing < 'anything'", row), "null sorts below non-null")
}
