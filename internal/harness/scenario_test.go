package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/test.yaml and creates a defs
// directory next to it.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "defs"), 0o755))
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
definitions: defs
max_rows: 5
setup:
  - mapping: "7"
    operation: insert
    params: {title: First, img: a.png, attachment: null}
flow:
  - mapping: "3"
    operation: save
    user: alice
    params:
      contentId: 1
      tag: [a, b]
    expect:
      keys:
        contentId: []
      rows: 2
assertions:
  - type: change_contains
    resource: SimpleInsert3
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, validScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "defs"), scenario.Definitions, "resolved against the scenario directory")
	require.NotNil(t, scenario.MaxRows)
	assert.Equal(t, 5, *scenario.MaxRows)

	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, "7", scenario.Setup[0].Mapping)
	assert.Nil(t, scenario.Setup[0].Params["attachment"])
	assert.Contains(t, scenario.Setup[0].Params, "attachment")

	require.Len(t, scenario.Flow, 1)
	step := scenario.Flow[0]
	assert.Equal(t, "save", step.Operation)
	assert.Equal(t, "alice", step.User)
	assert.Equal(t, []any{"a", "b"}, step.Params["tag"])
	require.NotNil(t, step.Expect)
	require.NotNil(t, step.Expect.Rows)
	assert.Equal(t, int64(2), *step.Expect.Rows)

	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertChangeContains, scenario.Assertions[0].Type)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	path := writeScenario(t, validScenario)
	base := filepath.Dir(path)

	scenario, err := LoadScenarioWithBasePath(path, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "defs"), scenario.Definitions)

	_, err = LoadScenarioWithBasePath(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitions directory not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, validScenario+"assertion: []\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
	assert.Contains(t, err.Error(), "field assertion not found")
}

func TestLoadScenario_InlineSource(t *testing.T) {
	path := writeScenario(t, `
name: inline
description: "Inline definitions"
source: |
  contentType: note: {}
flow:
  - mapping: "1"
    operation: insert
    params: {}
assertions:
  - type: change_count
    resource: Insert1
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Empty(t, scenario.Definitions)
	assert.Contains(t, scenario.Source, "contentType")
}

func TestValidateScenario_Errors(t *testing.T) {
	rows := -1
	valid := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Source:      "contentType: {}",
			Flow:        []RequestStep{{Mapping: "1", Operation: "insert", Params: map[string]any{}}},
			Assertions:  []Assertion{{Type: AssertChangeCount, Resource: "Insert1"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(s *Scenario)
		want   string
	}{
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no definitions", func(s *Scenario) { s.Source = "" }, "definitions or source is required"},
		{"both definitions", func(s *Scenario) { s.Definitions = t.TempDir() }, "mutually exclusive"},
		{"negative max rows", func(s *Scenario) { s.MaxRows = &rows }, "max_rows must be non-negative"},
		{"empty flow", func(s *Scenario) { s.Flow = nil }, "flow list is required"},
		{"empty assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"missing mapping", func(s *Scenario) { s.Flow[0].Mapping = "" }, "flow[0]: mapping is required"},
		{"unknown operation", func(s *Scenario) { s.Flow[0].Operation = "upsert" }, `flow[0]: unknown operation: "upsert"`},
		{"missing params", func(s *Scenario) { s.Flow[0].Params = nil }, "flow[0]: params is required"},
		{"anonymous with user", func(s *Scenario) {
			s.Flow[0].Anonymous = true
			s.Flow[0].User = "bob"
		}, "anonymous and user are mutually exclusive"},
		{"expect in setup", func(s *Scenario) {
			s.Setup = []RequestStep{{Mapping: "1", Operation: "insert", Params: map[string]any{}, Expect: &ExpectClause{}}}
		}, "setup[0]: expect is not allowed"},
		{"assertion without type", func(s *Scenario) { s.Assertions[0].Type = "" }, "assertions[0]: type is required"},
		{"unknown assertion", func(s *Scenario) { s.Assertions[0].Type = "trace_contains" }, `unknown assertion type "trace_contains"`},
		{"change_contains without resource", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertChangeContains}
		}, "resource is required for change_contains"},
		{"change_order without resources", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertChangeOrder}
		}, "resources list is required"},
		{"final_state without table", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertFinalState, Expect: map[string]any{"a": 1}}
		}, "table is required for final_state"},
		{"final_state without expect", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertFinalState, Table: "article"}
		}, "expect is required for final_state"},
		{"row_count without table", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertRowCount}
		}, "table is required for row_count"},
		{"change_log without content id", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertChangeLog, Count: 1}
		}, "content_id is required for change_log"},
	}

	require.NoError(t, validateScenario(valid()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
