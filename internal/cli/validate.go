package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gpuflat/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Kernels []string                   `json:"kernels,omitempty"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file.cue|dir>",
		Short: "Compile and verify kernels without lowering them",
		Long: `Compile CUE kernels and run the IR verifier.

Reports compile errors with their source position and every structural
problem the verifier finds. Faster than lower for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, err := LoadKernels(path)
	if err != nil {
		if isKernelError(err) {
			return outputValidationErrors(formatter, []compiler.ValidationError{compileToValidation(err)})
		}
		return commandError(formatter, err)
	}
	formatter.VerboseLog("Compiled %d kernel(s) from %d file(s)", len(loaded.Module.Funcs), len(loaded.Files))

	if errs := compiler.VerifyModule(loaded.Module); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	names := loaded.Module.Names()
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Kernels: names})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d kernel(s) valid: %s\n", len(names), strings.Join(names, ", "))
	return nil
}

// isKernelError reports whether err is a problem in the kernel source rather
// than in the command invocation.
func isKernelError(err error) bool {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		return false
	}
	return strings.HasPrefix(loadErr.Code, "E1") || loadErr.Code == ErrCodeBuildFailed
}

// compileToValidation converts a kernel LoadError to a validation error.
func compileToValidation(err error) compiler.ValidationError {
	var loadErr *LoadError
	errors.As(err, &loadErr)
	ve := compiler.ValidationError{
		Field:   "compile",
		Message: loadErr.Message,
		Code:    loadErr.Code,
	}
	if loadErr.Pos.IsValid() {
		ve.Field = loadErr.Pos.Filename()
		ve.Line = loadErr.Pos.Line()
	}
	return ve
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
