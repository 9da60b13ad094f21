package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modplan/internal/store"
)

// seedDB applies the article requests to a fresh database.
func seedDB(t *testing.T) string {
	t.Helper()
	db := tempDB(t)
	out, err := runApplyCommand(t, "text", "", defsDir, writeRequests(t, articleRequests), "--db", db)
	require.NoError(t, err, out)
	return db
}

func TestTraceByContent(t *testing.T) {
	db := seedDB(t)

	out, _, err := execute(t, "trace", "--db", db, "--content", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "Trace for content: 1")
	assert.Contains(t, out, "=== insert apply-1 by alice ===")
	assert.Contains(t, out, "=== save apply-2 by alice ===")
	assert.Contains(t, out, "INSERT_PLAN Insert7")
	assert.Contains(t, out, "TYPE_UPDATE_PLAN SimpleInsert3 mode=")
	assert.Contains(t, out, "Requests: 2")
}

func TestTraceByRequestJSON(t *testing.T) {
	db := seedDB(t)

	out, _, err := execute(t, "--format", "json", "trace", "--db", db, "--request", "apply-2")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "apply-2", resp.Data.RequestID)
	require.Len(t, resp.Data.Requests, 1)

	req := resp.Data.Requests[0]
	assert.Equal(t, "save", req.Operation)
	assert.Equal(t, "alice", req.Editor)

	var resources []string
	for _, s := range req.Steps {
		resources = append(resources, s.Resource)
		assert.Equal(t, int64(1), s.ContentID)
	}
	assert.Contains(t, resources, "SimpleDelete3")
	assert.Contains(t, resources, "SimpleInsert3")
}

func TestTraceResourceFilter(t *testing.T) {
	db := seedDB(t)

	out, _, err := execute(t, "trace", "--db", db, "--content", "1", "--resource", "SimpleInsert3")
	require.NoError(t, err)
	assert.Contains(t, out, "SimpleInsert3")
	assert.NotContains(t, out, "Insert7")
	assert.Contains(t, out, "Requests: 1")
}

func TestTraceNoChanges(t *testing.T) {
	db := seedDB(t)

	out, _, err := execute(t, "trace", "--db", db, "--content", "99")
	require.NoError(t, err)
	assert.Contains(t, out, "(no changes recorded)")
	assert.Contains(t, out, "Requests: 0")
}

func TestTraceFlagsRequired(t *testing.T) {
	_, _, err := execute(t, "trace", "--db", tempDB(t))
	require.Error(t, err)

	_, _, err = execute(t, "trace", "--db", tempDB(t), "--content", "1", "--request", "x")
	require.Error(t, err)
}

func TestBuildTrace(t *testing.T) {
	records := []store.ChangeRecord{
		{RequestID: "r1", Seq: 1, Step: 1, ContentID: 1, Operation: "insert", PlanType: "INSERT_PLAN", Resource: "Insert7", Mode: "insert", Rows: 1, Editor: "alice"},
		{RequestID: "r2", Seq: 1, Step: 1, ContentID: 1, Operation: "save", PlanType: "TYPE_UPDATE_PLAN", Resource: "SimpleDelete3", Mode: "delete", Rows: 0, Editor: "bob"},
		{RequestID: "r2", Seq: 2, Step: 2, ContentID: 1, Operation: "save", PlanType: "TYPE_UPDATE_PLAN", Resource: "SimpleInsert3", Mode: "insert", Rows: 2, Editor: "bob"},
		{RequestID: "r2", Seq: 3, Step: 3, ContentID: 1, Operation: "save", PlanType: "TYPE_UPDATE_PLAN", Resource: "Revision7", Mode: "update", Skipped: true, Editor: "bob"},
	}

	result := buildTrace(records, "")
	require.Len(t, result.Requests, 2)
	assert.Equal(t, "r1", result.Requests[0].RequestID)
	assert.Len(t, result.Requests[1].Steps, 3)
	assert.Equal(t, TraceStats{Requests: 2, Steps: 4, Skipped: 1, Rows: 3}, result.Stats)

	filtered := buildTrace(records, "SimpleInsert3")
	require.Len(t, filtered.Requests, 1)
	assert.Equal(t, "bob", filtered.Requests[0].Editor)
	assert.Equal(t, TraceStats{Requests: 1, Steps: 1, Rows: 2}, filtered.Stats)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "apply-1", truncateID("apply-1"))
	assert.Equal(t, "0190a5c2...9f3e4d21", truncateID("0190a5c2-7b1e-7c3a-9d11-4e5f9f3e4d21"))
}
