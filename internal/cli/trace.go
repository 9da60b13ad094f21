package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/modplan/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	ContentID int64
	RequestID string
	Resource  string // optional - filter to one resource
}

// TraceStep is one persisted plan step.
type TraceStep struct {
	Seq       int64  `json:"seq"`
	Step      int    `json:"step"`
	ContentID int64  `json:"content_id,omitempty"`
	PlanType  string `json:"plan_type"`
	Resource  string `json:"resource"`
	Mode      string `json:"mode"`
	Skipped   bool   `json:"skipped,omitempty"`
	Rows      int64  `json:"rows"`
	// Failed is set only on steps of requests that did not commit.
	Failed bool `json:"failed,omitempty"`
}

// RequestTrace groups the steps of one committed request.
type RequestTrace struct {
	RequestID  string      `json:"request_id"`
	Operation  string      `json:"operation"`
	Editor     string      `json:"editor"`
	RecordedAt string      `json:"recorded_at"`
	Steps      []TraceStep `json:"steps"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	ContentID int64          `json:"content_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Requests  []RequestTrace `json:"requests"`
	Stats     TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Requests int   `json:"requests"`
	Steps    int   `json:"steps"`
	Skipped  int   `json:"skipped"`
	Rows     int64 `json:"rows"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the change log of a content record or request",
		Long: `Show the persisted change log.

Every committed request records one entry per plan step: the plan type,
the dispatched resource, its mode, whether a conditional step skipped it
and the rows it affected. Failed requests roll back and leave no entries.

Examples:
  modplan trace --db ./modplan.db --content 1
  modplan trace --db ./modplan.db --content 1 --resource SimpleInsert3
  modplan trace --db ./modplan.db --request 0190a5c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (overrides store.dsn)")
	cmd.Flags().Int64Var(&opts.ContentID, "content", 0, "content id to trace")
	cmd.Flags().StringVar(&opts.RequestID, "request", "", "request id to trace")
	cmd.Flags().StringVar(&opts.Resource, "resource", "", "filter to one resource")
	cmd.MarkFlagsMutuallyExclusive("content", "request")
	cmd.MarkFlagsOneRequired("content", "request")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var records []store.ChangeRecord
	if opts.RequestID != "" {
		records, err = st.ReadRequest(ctx, opts.RequestID)
	} else {
		records, err = st.ReadChanges(ctx, opts.ContentID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read change log", err)
	}

	result := buildTrace(records, opts.Resource)
	result.ContentID = opts.ContentID
	result.RequestID = opts.RequestID

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// openStore opens the configured store, with --db replacing the DSN.
func (o *TraceOptions) openStore() (*store.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	dsn := cfg.Store.DSN
	if o.Database != "" {
		dsn = o.Database
	}
	st, err := store.OpenDSN(cfg.Store.Driver, dsn)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// buildTrace groups records by request in log order. With a resource
// filter, requests that never dispatched it are dropped.
func buildTrace(records []store.ChangeRecord, resource string) TraceResult {
	result := TraceResult{Requests: []RequestTrace{}}
	index := make(map[string]int)

	for _, rec := range records {
		if resource != "" && rec.Resource != resource {
			continue
		}
		i, ok := index[rec.RequestID]
		if !ok {
			i = len(result.Requests)
			index[rec.RequestID] = i
			result.Requests = append(result.Requests, RequestTrace{
				RequestID:  rec.RequestID,
				Operation:  rec.Operation,
				Editor:     rec.Editor,
				RecordedAt: rec.RecordedAt,
			})
		}
		result.Requests[i].Steps = append(result.Requests[i].Steps, TraceStep{
			Seq:       rec.Seq,
			Step:      rec.Step,
			ContentID: rec.ContentID,
			PlanType:  rec.PlanType,
			Resource:  rec.Resource,
			Mode:      rec.Mode,
			Skipped:   rec.Skipped,
			Rows:      rec.Rows,
		})

		result.Stats.Steps++
		result.Stats.Rows += rec.Rows
		if rec.Skipped {
			result.Stats.Skipped++
		}
	}
	result.Stats.Requests = len(result.Requests)
	return result
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	return writeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	if result.RequestID != "" {
		fmt.Fprintf(w, "Trace for request: %s\n", result.RequestID)
	} else {
		fmt.Fprintf(w, "Trace for content: %d\n", result.ContentID)
	}
	fmt.Fprintln(w)

	if len(result.Requests) == 0 {
		fmt.Fprintln(w, "  (no changes recorded)")
	}
	for _, req := range result.Requests {
		fmt.Fprintf(w, "=== %s %s by %s ===\n", req.Operation, truncateID(req.RequestID), req.Editor)
		if verbose {
			fmt.Fprintf(w, "  ID: %s\n", req.RequestID)
			fmt.Fprintf(w, "  At: %s\n", req.RecordedAt)
		}
		for _, s := range req.Steps {
			line := fmt.Sprintf("  [%d] %s %s mode=%s rows=%d", s.Seq, s.PlanType, s.Resource, s.Mode, s.Rows)
			if s.Skipped {
				line += " skipped"
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Requests: %d\n", result.Stats.Requests)
	fmt.Fprintf(w, "  Steps:    %d\n", result.Stats.Steps)
	fmt.Fprintf(w, "  Skipped:  %d\n", result.Stats.Skipped)
	fmt.Fprintf(w, "  Rows:     %d\n", result.Stats.Rows)

	return nil
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
