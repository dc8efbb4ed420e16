package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/AryanB1/SmartQuery/internal/errors"
	"github.com/AryanB1/SmartQuery/internal/query/parser"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

// recordingUsage captures RecordQueryUsage calls.
type recordingUsage struct {
	calls [][2]string
}

func (r *recordingUsage) RecordQueryUsage(table, column string) {
	r.calls = append(r.calls, [2]string{table, column})
}

func mustParse(t *testing.T, sql string) parser.Statement {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	return stmt
}

func planSQL(t *testing.T, sql string, req *types.QueryRequest) *PhysicalPlan {
	t.Helper()
	plan, err := Plan(mustParse(t, sql), req, nil)
	require.NoError(t, err)
	return plan
}

func TestPlanPipelineShape(t *testing.T) {
	plan := planSQL(t, "SELECT region, COUNT(*) AS c FROM events WHERE userId = 'u1' GROUP BY region ORDER BY c DESC LIMIT 3", nil)

	require.Len(t, plan.Operators, 5)
	assert.IsType(t, &Scan{}, plan.Operators[0])
	assert.IsType(t, &Aggregate{}, plan.Operators[1])
	assert.IsType(t, &Project{}, plan.Operators[2])
	assert.IsType(t, &OrderBy{}, plan.Operators[3])
	assert.IsType(t, &Limit{}, plan.Operators[4])
}

func TestPlanMinimalPipeline(t *testing.T) {
	plan := planSQL(t, "SELECT * FROM events", nil)

	require.Len(t, plan.Operators, 2)
	assert.IsType(t, &Scan{}, plan.Operators[0])
	assert.IsType(t, &Project{}, plan.Operators[1])
}

func TestPlanValidation(t *testing.T) {
	cases := []struct {
		sql  string
		code string
	}{
		{"SELECT COUNT(*) FROM events", qerrors.CodeAggregateWithoutGroupBy},
		{"SELECT userId FROM events GROUP BY userId", qerrors.CodeGroupByWithoutAggregate},
	}
	for _, tc := range cases {
		_, err := Plan(mustParse(t, tc.sql), nil, nil)
		require.Error(t, err, tc.sql)
		assert.Equal(t, qerrors.ErrCategoryPlan, qerrors.GetCategory(err), tc.sql)
		assert.Equal(t, tc.code, qerrors.GetCode(err), tc.sql)
	}
}

func TestPlanTimeRangePushdown(t *testing.T) {
	plan := planSQL(t, "SELECT * FROM events WHERE ts BETWEEN 1500 AND 3500", nil)

	scan := plan.Operators[0].(*Scan)
	assert.Equal(t, int64(1500), scan.FromTS)
	assert.Equal(t, int64(3500), scan.ToTS)
	assert.Nil(t, scan.Residual, "fully pushed-down WHERE leaves no residual")
}

func TestPlanResidualSurvivesPushdown(t *testing.T) {
	plan := planSQL(t, "SELECT * FROM events WHERE ts >= 1000 AND event = 'click'", nil)

	scan := plan.Operators[0].(*Scan)
	assert.Equal(t, int64(1000), scan.FromTS)
	require.NotNil(t, scan.Residual)
	assert.Equal(t, "event = 'click'", scan.Residual.String())
}

func TestEffectiveLimit(t *testing.T) {
	hint := 5

	plan := planSQL(t, "SELECT * FROM events LIMIT 10", &types.QueryRequest{LimitHint: &hint})
	limit := plan.Operators[len(plan.Operators)-1].(*Limit)
	assert.Equal(t, 5, limit.N)

	plan = planSQL(t, "SELECT * FROM events LIMIT 3", &types.QueryRequest{LimitHint: &hint})
	limit = plan.Operators[len(plan.Operators)-1].(*Limit)
	assert.Equal(t, 3, limit.N)

	plan = planSQL(t, "SELECT * FROM events", &types.QueryRequest{LimitHint: &hint})
	limit = plan.Operators[len(plan.Operators)-1].(*Limit)
	assert.Equal(t, 5, limit.N)

	plan = planSQL(t, "SELECT * FROM events", nil)
	_, hasLimit := plan.Operators[len(plan.Operators)-1].(*Limit)
	assert.False(t, hasLimit)
}

func TestUsageRecording(t *testing.T) {
	usage := &recordingUsage{}
	_, err := Plan(mustParse(t, "SELECT * FROM events WHERE userId = 'u1' AND region IN ('us') AND ts > 5"), nil, usage)
	require.NoError(t, err)

	// The ts constraint is pushed down; only residual columns are observed.
	assert.Equal(t, [][2]string{{"events", "userId"}, {"events", "region"}}, usage.calls)
}

func TestIndexHintExtraction(t *testing.T) {
	scan := planSQL(t, "SELECT * FROM events WHERE userId = 'u1'", nil).Operators[0].(*Scan)
	require.NotNil(t, scan.IndexHint)
	assert.Equal(t, HintEquals, scan.IndexHint.Kind)
	assert.Equal(t, "userId", scan.IndexHint.Column)
	assert.Equal(t, []string{"u1"}, scan.IndexHint.Values)

	scan = planSQL(t, "SELECT * FROM events WHERE region IN ('us', 'eu')", nil).Operators[0].(*Scan)
	require.NotNil(t, scan.IndexHint)
	assert.Equal(t, HintIn, scan.IndexHint.Kind)

	scan = planSQL(t, "SELECT * FROM events WHERE props.price BETWEEN 10 AND 20", nil).Operators[0].(*Scan)
	require.NotNil(t, scan.IndexHint)
	assert.Equal(t, HintRange, scan.IndexHint.Kind)
	assert.Equal(t, 10.0, scan.IndexHint.Lo)
	assert.True(t, scan.IndexHint.IncludeLo)

	// Compound residuals are not wholesale-answerable by one index.
	scan = planSQL(t, "SELECT * FROM events WHERE userId = 'u1' AND event = 'click'", nil).Operators[0].(*Scan)
	assert.Nil(t, scan.IndexHint)
}

func TestEqualityHintExtraction(t *testing.T) {
	scan := planSQL(t, "SELECT * FROM events WHERE userId = 'u1' AND region = 'us'", nil).Operators[0].(*Scan)
	require.NotNil(t, scan.Equality)
	assert.Equal(t, "userId", scan.Equality.Column)
	assert.Equal(t, "u1", scan.Equality.Value)

	// Disjunctions make no conjunct required.
	scan = planSQL(t, "SELECT * FROM events WHERE userId = 'u1' OR region = 'us'", nil).Operators[0].(*Scan)
	assert.Nil(t, scan.Equality)

	// Non-bloom columns don't qualify.
	scan = planSQL(t, "SELECT * FROM events WHERE region = 'us'", nil).Operators[0].(*Scan)
	assert.Nil(t, scan.Equality)
}

func TestNotSelectRejected(t *testing.T) {
	_, err := Plan(nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, qerrors.CodeNotSelect, qerrors.GetCode(err))
}
