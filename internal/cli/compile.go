package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/modplan/internal/config"
	"github.com/roach88/modplan/internal/dataset"
	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/modify"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
	Plans  bool   // print every plan with its SQL
}

// CompilationResult holds the compiled content types and plan summaries.
type CompilationResult struct {
	ContentTypes []*ir.ContentType `json:"content_types"`
	Plans        []PlanSummary     `json:"plans"`
}

// PlanSummary describes the plans compiled for one display mapping.
type PlanSummary struct {
	MappingID   string   `json:"mapping_id"`
	ContentType string   `json:"content_type"`
	FieldSet    string   `json:"field_set"`
	Shape       string   `json:"shape"`
	PlanTypes   []string `json:"plan_types"`
	Resources   []string `json:"resources"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	TypeCount    int
	MappingCount int
	PlanCount    int
	DatasetCount int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <definitions-dir>",
		Short: "Compile content type definitions to modify plans",
		Long: `Compile CUE content type definitions to modify plans.

The compiler parses CUE files, validates the content types, builds the
insert, delete and update plans of every display mapping and compiles
their statements for the configured store driver.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().BoolVar(&opts.Plans, "plans", false, "print every plan step and its SQL")

	return cmd
}

func runCompile(opts *CompileOptions, defsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	loadResult, loadErrors := LoadDefinitions(defsDir, cfg.Columns, LoadModeCollectAll, true)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, defsDir)
	for _, ct := range loadResult.Types {
		formatter.VerboseLog("Compiling content type: %s", ct.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	var logger *zap.Logger
	if opts.Verbose {
		logger = opts.newLogger(formatter.GetErrWriter(), cfg)
	}
	plans, datasets, err := cfg.Plans(loadResult.Types, logger)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("building plans: %v", err), nil)
	}

	result := &CompilationResult{
		ContentTypes: loadResult.Types,
		Plans:        summarizePlans(plans),
	}
	stats := calculateStats(result, datasets)

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	if opts.Plans && formatter.Format != "json" {
		if err := printPlans(formatter, plans, datasets); err != nil {
			return err
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// summarizePlans lists the plan sets of the registry in registration order.
func summarizePlans(plans *modify.Registry) []PlanSummary {
	var out []PlanSummary
	for _, id := range plans.MappingIDs() {
		set, _ := plans.PlanSet(id)
		fs, _ := plans.FieldSet(id)
		ct, _ := plans.ContentType(id)

		summary := PlanSummary{
			MappingID:   id,
			ContentType: ct.Name,
			FieldSet:    fs.Name,
			Shape:       fs.Shape.String(),
		}
		seen := make(map[string]bool)
		for _, t := range modify.PlanTypes {
			p, ok := set.GetPlan(t)
			if !ok {
				continue
			}
			summary.PlanTypes = append(summary.PlanTypes, p.Type().String())
			for _, r := range p.Resources() {
				if !seen[r] {
					seen[r] = true
					summary.Resources = append(summary.Resources, r)
				}
			}
		}
		out = append(out, summary)
	}
	return out
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult, datasets *dataset.Registry) CompilationStats {
	stats := CompilationStats{
		TypeCount:    len(result.ContentTypes),
		MappingCount: len(result.Plans),
		DatasetCount: len(datasets.Names()),
	}
	for _, p := range result.Plans {
		stats.PlanCount += len(p.PlanTypes)
	}
	return stats
}

func printPlans(formatter *OutputFormatter, plans *modify.Registry, datasets *dataset.Registry) error {
	for _, id := range plans.MappingIDs() {
		set, _ := plans.PlanSet(id)
		if err := modify.FormatPlanSet(formatter.Writer, set, datasets); err != nil {
			return err
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d content type(s), %d mapping(s), %d plan(s), %d dataset(s)\n\n",
		stats.TypeCount, stats.MappingCount, stats.PlanCount, stats.DatasetCount)

	fmt.Fprintln(formatter.Writer, "Mappings:")
	for _, p := range result.Plans {
		fmt.Fprintf(formatter.Writer, "  %s: %s.%s (%s) %v\n",
			p.MappingID, p.ContentType, p.FieldSet, p.Shape, p.PlanTypes)
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled definitions to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}

		if err := writeResponse(formatter.Writer, response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Field != "" {
			return loadErr.Code, loadErr.Field + ": " + loadErr.Message
		}
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the compilation result to a file as indented JSON.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling definitions: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}

// compileDefinitions loads, validates and compiles dir for commands that
// need a runtime. Load errors become command errors.
func compileDefinitions(dir string, cfg *config.Config) ([]*ir.ContentType, error) {
	result, errs := LoadDefinitions(dir, cfg.Columns, LoadModeCollectAll, true)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "loading definitions", errors.Join(errs...))
	}
	return result.Types, nil
}
