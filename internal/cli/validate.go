package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/modplan/internal/compiler"
	"github.com/roach88/modplan/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid        bool                       `json:"valid"`
	ContentTypes []string                   `json:"content_types,omitempty"`
	Errors       []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Validate definitions without building plans",
		Long: `Validate CUE content type definitions without building plans.

Performs syntax checking, shape and nesting rules, field kinds, display
mapping references and cross-type table checks. Faster than compile for
development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, defsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	loadResult, validationErrors, err := validateDir(defsDir, cfg.Columns)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, defsDir)
	for _, ct := range loadResult.Types {
		formatter.VerboseLog("Validated content type: %s", ct.Name)
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, loadResult.Types)
}

// validateDir loads dir and returns every compile and validation problem as
// a ValidationError. The error return is set only when nothing could be
// loaded.
func validateDir(dir string, cols ir.SystemColumns) (*LoadResult, []compiler.ValidationError, error) {
	loadResult, loadErrors := LoadDefinitions(dir, cols, LoadModeCollectAll, true)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, nil, loadErrors[0]
	}

	var out []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, compiler.ValidationError{Field: "definitions", Message: err.Error(), Code: ErrCodeGeneric})
			continue
		}
		field := loadErr.Field
		if field == "" {
			field = "definitions"
		}
		out = append(out, compiler.ValidationError{
			Field:   field,
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    loadErr.line(),
		})
	}
	return loadResult, out, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, types []*ir.ContentType) error {
	names := make([]string, len(types))
	for i, ct := range types {
		names[i] = ct.Name
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, ContentTypes: names})
	}

	fmt.Fprintf(formatter.Writer, "✓ All definitions valid (%d content type(s))\n", len(names))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		if err := writeResponse(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateDefinitionsDir validates the definitions in a directory with the
// default system columns. This is a helper function for external callers.
func ValidateDefinitionsDir(dir string) ([]compiler.ValidationError, error) {
	_, errs, err := validateDir(dir, ir.DefaultSystemColumns())
	return errs, err
}
