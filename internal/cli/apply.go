package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/roach88/modplan/internal/engine"
	"github.com/roach88/modplan/internal/modify"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database  string
	User      string
	MaxRows   int
	KeepGoing bool

	// RequestIDs overrides the request id generator (for testing).
	// If nil, the engine's UUIDv7 generator is used.
	RequestIDs engine.RequestIDGenerator
	// Now overrides the wall clock (for testing).
	Now func() time.Time
}

// RequestFile is a YAML list of modify requests.
//
//	user: alice
//	requests:
//	  - mapping: "7"
//	    operation: insert
//	    params: { title: First, img: a.png, attachment: null }
//	  - mapping: "3"
//	    operation: save
//	    params: { contentId: 1, revision: 1, tag: [go, sql] }
type RequestFile struct {
	User     string         `yaml:"user"`
	Requests []RequestEntry `yaml:"requests"`
}

// RequestEntry is one request of a RequestFile.
type RequestEntry struct {
	Mapping   string         `yaml:"mapping"`
	Operation string         `yaml:"operation"`
	User      string         `yaml:"user"`
	Params    map[string]any `yaml:"params"`
}

// ApplyOutcome is the result of one request.
type ApplyOutcome struct {
	Index     int                `json:"index"`
	Mapping   string             `json:"mapping"`
	Operation string             `json:"operation"`
	RequestID string             `json:"request_id,omitempty"`
	Code      string             `json:"code,omitempty"`
	Message   string             `json:"message,omitempty"`
	Keys      map[string][]int64 `json:"keys,omitempty"`
	Rows      int64              `json:"rows"`
	Steps     []TraceStep        `json:"steps,omitempty"`
}

// Committed reports whether the request committed.
func (o ApplyOutcome) Committed() bool { return o.Code == "" }

// ApplyResult holds the outcome of every executed request.
type ApplyResult struct {
	Outcomes  []ApplyOutcome `json:"outcomes"`
	Committed int            `json:"committed"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return newApplyCommand(&ApplyOptions{RootOptions: rootOpts})
}

func newApplyCommand(opts *ApplyOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <definitions-dir> <requests-file>",
		Short: "Execute modify requests against a store",
		Long: `Execute a file of modify requests against the configured store.

The definitions are compiled, their tables are created when missing, and
every request runs in its own transaction. By default the first failed
request stops the run; --keep-going runs the rest. A requests file of "-"
is read from standard input.

Exit codes:
  0 - All requests committed
  1 - One or more requests failed
  2 - Command error (invalid paths, unreadable config, etc.)

Examples:
  modplan apply ./defs ./requests.yaml --db ./modplan.db --user alice
  modplan apply ./defs - --keep-going --format json < requests.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (overrides store.dsn)")
	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "default request user")
	cmd.Flags().IntVar(&opts.MaxRows, "max-rows", 0, "rows one request may dispatch (overrides engine.max_rows, 0 disables)")
	cmd.Flags().BoolVar(&opts.KeepGoing, "keep-going", false, "run remaining requests after a failure")

	return cmd
}

func runApply(opts *ApplyOptions, defsDir, requestsPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Store.DSN = opts.Database
	}
	if cmd.Flags().Changed("max-rows") {
		cfg.Engine.MaxRows = opts.MaxRows
	}

	file, err := readRequestFile(requestsPath, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "reading requests", err)
	}

	types, err := compileDefinitions(defsDir, cfg)
	if err != nil {
		return err
	}

	logger := opts.newLogger(formatter.GetErrWriter(), cfg)
	defer func() { _ = logger.Sync() }()

	var extra []engine.Option
	if opts.RequestIDs != nil {
		extra = append(extra, engine.WithRequestIDGenerator(opts.RequestIDs))
	}
	if opts.Now != nil {
		extra = append(extra, engine.WithTimeSource(opts.Now))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := cfg.Open(ctx, types, logger, extra...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open runtime", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error("error closing store", zap.Error(closeErr))
		}
	}()
	formatter.VerboseLog("Compiled %d mapping(s), store %s", len(rt.Plans.MappingIDs()), cfg.Store.DSN)

	result := applyRequests(ctx, rt.Engine, file, opts)

	if formatter.Format == "json" {
		if err := outputApplyJSON(formatter.Writer, result); err != nil {
			return err
		}
	} else {
		outputApplyText(formatter.Writer, result, opts.Verbose)
	}

	if ctx.Err() != nil {
		return WrapExitError(ExitFailure, "interrupted", ctx.Err())
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d request(s) failed", result.Failed))
	}
	return nil
}

// readRequestFile decodes a request file. Unknown keys are rejected.
func readRequestFile(path string, stdin io.Reader) (*RequestFile, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var file RequestFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("requests file is empty")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, req := range file.Requests {
		if req.Mapping == "" {
			return nil, fmt.Errorf("requests[%d]: mapping is required", i)
		}
		if _, err := engine.ParseOperation(req.Operation); err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
	}
	return &file, nil
}

// applyRequests executes the requests in order until one fails (unless
// KeepGoing) or ctx is cancelled. Requests that never ran count as skipped.
func applyRequests(ctx context.Context, e *engine.Engine, file *RequestFile, opts *ApplyOptions) *ApplyResult {
	result := &ApplyResult{Outcomes: []ApplyOutcome{}}

	for i, req := range file.Requests {
		if ctx.Err() != nil || (result.Failed > 0 && !opts.KeepGoing) {
			result.Skipped = len(file.Requests) - i
			break
		}

		user := req.User
		if user == "" {
			user = file.User
		}
		if user == "" {
			user = opts.User
		}

		res, err := e.Execute(ctx, engine.Request{
			MappingID: req.Mapping,
			Operation: engine.Operation(req.Operation),
			Params:    modify.ParamsFrom(req.Params),
			User:      user,
		})

		outcome := ApplyOutcome{Index: i, Mapping: req.Mapping, Operation: req.Operation}
		if res != nil {
			outcome.RequestID = res.RequestID
			outcome.Keys = res.Keys
			outcome.Rows = res.Rows()
			for _, ev := range res.Events {
				outcome.Steps = append(outcome.Steps, TraceStep{
					Seq:      ev.Seq,
					PlanType: ev.PlanType.String(),
					Resource: ev.Resource,
					Mode:     ev.Mode,
					Skipped:  ev.Skipped,
					Rows:     ev.Rows,
					Failed:   ev.Failed,
				})
			}
		}
		if err != nil {
			outcome.Code = engine.ErrorCode(err)
			outcome.Message = err.Error()
			result.Failed++
		} else {
			result.Committed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	return result
}

// outputApplyJSON outputs the apply result as JSON.
func outputApplyJSON(w io.Writer, result *ApplyResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		for _, o := range result.Outcomes {
			if !o.Committed() {
				response.Error = &CLIError{Code: o.Code, Message: o.Message}
				response.RequestID = o.RequestID
				break
			}
		}
	}

	return writeResponse(w, response)
}

// outputApplyText prints one line per request, its steps when verbose, and
// a summary.
func outputApplyText(w io.Writer, result *ApplyResult, verbose bool) {
	for _, o := range result.Outcomes {
		if o.Committed() {
			fmt.Fprintf(w, "✓ [%d] %s %s rows=%d", o.Index, o.Operation, o.Mapping, o.Rows)
			for _, name := range sortedKeyNames(o.Keys) {
				fmt.Fprintf(w, " %s=%v", name, o.Keys[name])
			}
			fmt.Fprintln(w)
		} else {
			fmt.Fprintf(w, "✗ [%d] %s %s: %s\n", o.Index, o.Operation, o.Mapping, o.Code)
			fmt.Fprintf(w, "  %s\n", o.Message)
		}
		if verbose {
			for _, s := range o.Steps {
				line := fmt.Sprintf("    [%d] %s %s mode=%s rows=%d", s.Seq, s.PlanType, s.Resource, s.Mode, s.Rows)
				if s.Skipped {
					line += " skipped"
				}
				if s.Failed {
					line += " failed"
				}
				fmt.Fprintln(w, line)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Apply Summary: %d committed, %d failed, %d skipped\n", result.Committed, result.Failed, result.Skipped)
}

func sortedKeyNames(keys map[string][]int64) []string {
	return slices.Sorted(maps.Keys(keys))
}
