package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modplan/internal/modify"
)

func stepEvent() modify.ChangeEvent {
	return modify.ChangeEvent{
		Seq:         7,
		PlanType:    modify.UpdatePlan,
		StepOutcome: modify.StepOutcome{Resource: "SimpleDelete3", Mode: "delete", Skipped: true},
	}
}

func TestRunWithGolden_ArticleLifecycle(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/article_lifecycle.yaml")
	require.NoError(t, err)

	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_ArticleLifecycle -update
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/article_lifecycle.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	require.NoError(t, AssertGolden(t, "article_lifecycle", result))
}

func TestSnapshot_CanonicalForm(t *testing.T) {
	result := NewResult()
	result.AddRequestTrace(0, "3", "save")
	result.AddStepTrace(0, stepEvent())
	result.AddOutcomeTrace(0, "", "AUTHORIZATION")

	data, err := Snapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"tiny","trace":[`+
			`{"mapping":"3","operation":"save","request":0,"type":"request"},`+
			`{"mode":"delete","plan_type":"TYPE_UPDATE_PLAN","request":0,"resource":"SimpleDelete3","rows":0,"seq":7,"skipped":true,"type":"step"},`+
			`{"outcome":"AUTHORIZATION","request":0,"type":"outcome"}]}`,
		string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	result := NewResult()
	result.AddRequestTrace(0, "3", "save")
	result.AddStepTrace(0, stepEvent())

	first, err := Snapshot("same", result)
	require.NoError(t, err)
	for range 10 {
		again, err := Snapshot("same", result)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
