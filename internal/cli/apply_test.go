package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modplan/internal/testutil"
)

const articleRequests = `
user: alice
requests:
  - mapping: "7"
    operation: insert
    params: {title: First, img: cover.png, attachment: null}
  - mapping: "3"
    operation: save
    params: {contentId: 1, tag: [go, sql]}
`

const staleRequests = `
requests:
  - mapping: "7"
    operation: insert
    params: {title: First, img: cover.png, attachment: null}
  - mapping: "7"
    operation: insert
    params: {contentId: 1, revision: 0, title: Lost, img: lost.png, attachment: null}
  - mapping: "3"
    operation: save
    params: {contentId: 1, tag: [go]}
`

// runApplyCommand runs apply with deterministic request ids and clock.
func runApplyCommand(t *testing.T, format, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newApplyCommand(&ApplyOptions{
		RootOptions: &RootOptions{Format: format},
		RequestIDs:  testutil.NewFixedRequestIDGenerator("apply"),
		Now:         testutil.FixedTime(testutil.Epoch),
	})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeRequests(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "modplan.db")
}

func TestApplyCommitsRequests(t *testing.T) {
	out, err := runApplyCommand(t, "text", "", defsDir, writeRequests(t, articleRequests), "--db", tempDB(t))
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ [0] insert 7 rows=1 contentId=[1]")
	assert.Contains(t, out, "✓ [1] save 3")
	assert.Contains(t, out, "Apply Summary: 2 committed, 0 failed, 0 skipped")
}

func TestApplyVerbosePrintsSteps(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := newApplyCommand(&ApplyOptions{
		RootOptions: &RootOptions{Format: "text", Verbose: true},
		RequestIDs:  testutil.NewFixedRequestIDGenerator("apply"),
	})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{defsDir, writeRequests(t, articleRequests), "--db", tempDB(t)})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "TYPE_UPDATE_PLAN SimpleDelete3")
	assert.Contains(t, out.String(), "TYPE_UPDATE_PLAN SimpleInsert3")
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	out, err := runApplyCommand(t, "text", "", defsDir, writeRequests(t, staleRequests), "--db", tempDB(t), "--user", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✓ [0] insert 7")
	assert.Contains(t, out, "✗ [1] insert 7: REVISION_MISMATCH")
	assert.NotContains(t, out, "[2] save")
	assert.Contains(t, out, "Apply Summary: 1 committed, 1 failed, 1 skipped")
}

func TestApplyKeepGoing(t *testing.T) {
	out, err := runApplyCommand(t, "text", "", defsDir, writeRequests(t, staleRequests), "--db", tempDB(t), "--user", "alice", "--keep-going")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✓ [2] save 3")
	assert.Contains(t, out, "Apply Summary: 2 committed, 1 failed, 0 skipped")
}

func TestApplyWithoutUserFailsAuthentication(t *testing.T) {
	src := `
requests:
  - mapping: "7"
    operation: insert
    params: {title: Nobody, img: none.png, attachment: null}
`
	out, err := runApplyCommand(t, "text", "", defsDir, writeRequests(t, src), "--db", tempDB(t))
	require.Error(t, err)
	assert.Contains(t, out, "AUTHENTICATION_FAILURE")
}

func TestApplyJSON(t *testing.T) {
	out, err := runApplyCommand(t, "json", "", defsDir, writeRequests(t, staleRequests), "--db", tempDB(t), "--user", "alice")
	require.Error(t, err)

	var resp struct {
		Status    string      `json:"status"`
		RequestID string      `json:"request_id"`
		Data      ApplyResult `json:"data"`
		Error     *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "REVISION_MISMATCH", resp.Error.Code)
	assert.Equal(t, "apply-2", resp.RequestID)

	require.Len(t, resp.Data.Outcomes, 2)
	first := resp.Data.Outcomes[0]
	assert.True(t, first.Committed())
	assert.Equal(t, "apply-1", first.RequestID)
	assert.Equal(t, []int64{1}, first.Keys["contentId"])
	assert.Equal(t, 1, resp.Data.Skipped)
}

func TestApplyReadsStdin(t *testing.T) {
	out, err := runApplyCommand(t, "text", articleRequests, defsDir, "-", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "2 committed")
}

func TestApplyRowQuotaFlag(t *testing.T) {
	out, err := runApplyCommand(t, "text", "", defsDir, writeRequests(t, articleRequests), "--db", tempDB(t), "--max-rows", "2")
	require.Error(t, err)
	assert.Contains(t, out, "✗ [1] save 3: ROWS_EXCEEDED")
}

func TestApplyBadRequestFiles(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "", "requests file is empty"},
		{"unknown key", "requests:\n  - mapping: \"7\"\n    operation: insert\n    parms: {}\n", "field parms not found"},
		{"missing mapping", "requests:\n  - operation: insert\n", "requests[0]: mapping is required"},
		{"bad operation", "requests:\n  - mapping: \"7\"\n    operation: upsert\n", "requests[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApplyCommand(t, "text", "", defsDir, writeRequests(t, tt.src), "--db", tempDB(t))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyMissingDefinitions(t *testing.T) {
	_, err := runApplyCommand(t, "text", "", "/nonexistent/defs", writeRequests(t, articleRequests), "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "loading definitions")
}
