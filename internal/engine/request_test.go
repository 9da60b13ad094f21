package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modplan/internal/dataset"
	"github.com/roach88/modplan/internal/modify"
	"github.com/roach88/modplan/internal/querysql"
	"github.com/roach88/modplan/internal/testutil"
)

func TestParseOperation(t *testing.T) {
	for _, op := range Operations {
		got, err := ParseOperation(string(op))
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	_, err := ParseOperation("Insert")
	assert.ErrorIs(t, err, ErrUnknownOperation, "operation names are case-sensitive")
}

func TestResolvePlans(t *testing.T) {
	datasets := dataset.NewRegistry()
	c := modify.NewPlanCompiler(dataset.NewCreator(querysql.NewSQLCompiler(querysql.DialectSQLite), datasets))
	reg, err := modify.NewRegistry(c, testutil.ArticleType())
	require.NoError(t, err)

	tests := []struct {
		mapping string
		op      Operation
		want    []modify.PlanType
	}{
		{"7", OpInsert, []modify.PlanType{modify.InsertPlan}},
		{"7", OpDelete, []modify.PlanType{modify.DeleteItemPlan}},
		{"7", OpSave, []modify.PlanType{modify.InsertPlan}},
		{"7", OpUpdate, nil},
		{"3", OpUpdate, []modify.PlanType{modify.UpdatePlan}},
		{"3", OpSave, []modify.PlanType{modify.UpdatePlan, modify.InsertPlan}},
		{"3", OpDelete, nil},
		{"5", OpDeleteChild, []modify.PlanType{modify.DeleteComplexChildPlan}},
		{"5", OpSave, []modify.PlanType{modify.DeleteComplexChildPlan, modify.InsertPlan}},
		{"5", OpUpdate, nil},
	}
	for _, tt := range tests {
		t.Run(tt.mapping+"/"+string(tt.op), func(t *testing.T) {
			set, ok := reg.PlanSet(tt.mapping)
			require.True(t, ok)

			plans, err := resolvePlans(tt.op, set)
			if tt.want == nil {
				assert.ErrorIs(t, err, ErrUnsupportedOperation)
				return
			}
			require.NoError(t, err)
			got := make([]modify.PlanType, len(plans))
			for i, p := range plans {
				got[i] = p.Type()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
