package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gpuflat/internal/compiler"
	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/lowering"
	"github.com/roach88/gpuflat/internal/rewrite"
	"github.com/roach88/gpuflat/internal/store"
)

// LowerOptions holds flags for the lower command.
type LowerOptions struct {
	*RootOptions
	Func      string // single kernel to lower
	Mode      string // "full" | "partial"
	Output    string // output file path for the lowered IR
	RemarksDB string // SQLite journal for remarks

	// RunIDs overrides the run id generator (for testing).
	// If nil, the driver uses UUIDv7 run ids.
	RunIDs rewrite.RunIDGenerator
}

// LowerResult is the JSON payload of the lower command.
type LowerResult struct {
	RunID   string            `json:"run_id"`
	Reports []*rewrite.Report `json:"reports"`
	IR      string            `json:"ir"`
}

// NewLowerCommand creates the lower command.
func NewLowerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LowerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lower <file.cue|dir>",
		Short: "Lower parallel loop nests to gpu.launch",
		Long: `Compile CUE kernels, verify them and replace every outermost
loop.parallel with a gpu.launch.

In full mode (default) a kernel is left untouched when any loop cannot be
lowered. In partial mode the loops that can be lowered are, and the rest
stay in place.

Exit codes:
  0 - Every kernel converged
  1 - Verification failed or a full conversion failed
  2 - Command error (invalid paths, unknown kernel, etc.)

Examples:
  gpuflat lower kernels.cue
  gpuflat lower kernels.cue --func scale --mode partial
  gpuflat lower ./kernels --remarks-db remarks.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Func, "func", "", "lower only this kernel")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(rewrite.ModeFull), "conversion mode (full|partial)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the lowered IR to this file")
	cmd.Flags().StringVar(&opts.RemarksDB, "remarks-db", "", "journal remarks to this SQLite database")

	return cmd
}

func runLower(ctx context.Context, opts *LowerOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	mode, err := rewrite.ParseMode(opts.Mode)
	if err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeBadFlag, Message: err.Error()})
	}

	loaded, err := LoadKernels(path)
	if err != nil {
		return commandError(formatter, err)
	}
	mod, err := selectFunc(loaded.Module, opts.Func)
	if err != nil {
		return commandError(formatter, err)
	}
	if errs := compiler.VerifyModule(mod); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	beforeFP, err := ir.FingerprintModule(mod)
	if err != nil {
		return commandError(formatter, err)
	}

	driverOpts := []rewrite.Option{
		rewrite.WithMode(mode),
		rewrite.WithLogger(formatter.Logger()),
	}
	if opts.RunIDs != nil {
		driverOpts = append(driverOpts, rewrite.WithRunIDGenerator(opts.RunIDs))
	}
	var st *store.Store
	if opts.RemarksDB != "" {
		if st, err = store.Open(opts.RemarksDB); err != nil {
			return commandError(formatter, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
		}
		defer st.Close()
		driverOpts = append(driverOpts, rewrite.WithRemarkSink(st))
	}

	reports, convErr := lowering.NewDriver(driverOpts...).RunModule(ctx, mod)
	if convErr != nil && !rewrite.IsLegalizationError(convErr) {
		return commandError(formatter, convErr)
	}

	result := LowerResult{Reports: reports, IR: ir.PrintModule(mod)}
	if len(reports) > 0 {
		result.RunID = reports[0].RunID
	}

	if st != nil && result.RunID != "" {
		if err := journalRun(ctx, st, mode, path, beforeFP, mod, reports); err != nil {
			return commandError(formatter, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()})
		}
		formatter.VerboseLog("Journaled run %s to %s", result.RunID, opts.RemarksDB)
	}

	if opts.Output != "" && convErr == nil {
		if err := os.WriteFile(opts.Output, []byte(result.IR), 0o644); err != nil {
			return commandError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: err.Error()})
		}
	}

	if convErr != nil {
		var ce *rewrite.ConversionError
		errors.As(convErr, &ce)
		if formatter.Format == "json" {
			if err := formatter.Failure(string(ce.Code), convErr.Error(), result); err != nil {
				return err
			}
		} else {
			outputReports(formatter, reports)
			fmt.Fprintf(formatter.Writer, "✗ %s\n", convErr)
		}
		return WrapExitError(ExitFailure, "lowering failed", convErr)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	outputReports(formatter, reports)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote lowered IR to %s\n", opts.Output)
		return nil
	}
	fmt.Fprintln(formatter.Writer)
	fmt.Fprint(formatter.Writer, result.IR)
	return nil
}

// journalRun records the run summary next to the remarks the driver already
// sent to st.
func journalRun(ctx context.Context, st *store.Store, mode rewrite.Mode, source, beforeFP string, mod *ir.Module, reports []*rewrite.Report) error {
	afterFP, err := ir.FingerprintModule(mod)
	if err != nil {
		return err
	}
	run := store.Run{
		ID:                reports[0].RunID,
		Mode:              string(mode),
		Source:            source,
		PassVersion:       ir.PassVersion,
		IRVersion:         ir.IRVersion,
		BeforeFingerprint: beforeFP,
		AfterFingerprint:  afterFP,
	}
	for _, rep := range reports {
		run.Applied += rep.Applied
		run.Missed += rep.Missed
		run.Illegal += rep.Illegal
	}
	return st.WriteRun(ctx, run)
}

// outputReports prints one line per kernel and one per missed root.
func outputReports(formatter *OutputFormatter, reports []*rewrite.Report) {
	for _, rep := range reports {
		mark := "✓"
		if !rep.Converged() {
			mark = "✗"
		}
		fmt.Fprintf(formatter.Writer, "%s %s: %d of %d root(s) lowered, %d illegal op(s) left\n",
			mark, rep.Func, rep.Applied, rep.Roots, rep.Illegal)
		for _, r := range rep.Remarks {
			switch r.Kind {
			case rewrite.RemarkPassed:
				formatter.VerboseLog("  %s: grid(%s) block(%s)", r.Loc, r.Details["grid"], r.Details["block"])
			case rewrite.RemarkMissed:
				fmt.Fprintf(formatter.Writer, "  missed %s\n", r.Message)
			}
		}
	}
}
