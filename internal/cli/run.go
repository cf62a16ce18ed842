package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/roach88/gpuflat/internal/compiler"
	"github.com/roach88/gpuflat/internal/interp"
	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/lowering"
	"github.com/roach88/gpuflat/internal/rewrite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Func     string
	Lower    bool     // lower before running
	Args     []string // name=value
	Buffers  []string // name=size or name=[a,b,c]
	MaxSteps int
}

// BufferResult is the content of one buffer after the run.
type BufferResult struct {
	Name string  `json:"name"`
	Data []int64 `json:"data"`
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Func    string         `json:"func"`
	Lowered bool           `json:"lowered"`
	Stats   interp.Stats   `json:"stats"`
	Buffers []BufferResult `json:"buffers"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <file.cue|dir>",
		Short: "Execute a kernel with the reference interpreter",
		Long: `Execute a kernel sequentially and print its buffers.

Parallel loops run their iterations in row-major order. With --lower the
kernel is lowered first and the launch enumerates its grid and block
positions instead, so both runs can be compared.

Example:
  gpuflat run kernels.cue --func copy --arg n=4 --buffer in=[1,2,3,4] --buffer out=4
  gpuflat run kernels.cue --func copy --lower --arg n=4 --buffer in=[1,2,3,4] --buffer out=4`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernel(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Func, "func", "", "kernel to run (required when the file declares several)")
	cmd.Flags().BoolVar(&opts.Lower, "lower", false, "lower the kernel before running it")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "scalar parameter as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Buffers, "buffer", nil, "buffer parameter as name=size or name=[a,b,c] (repeatable)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", interp.DefaultMaxSteps, "op quota, 0 disables it")

	return cmd
}

func runKernel(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	bindings := interp.NewBindings()
	for _, a := range opts.Args {
		if err := bindings.SetScalar(a); err != nil {
			return commandError(formatter, &LoadError{Code: ErrCodeBadFlag, Message: err.Error()})
		}
	}
	for _, b := range opts.Buffers {
		if err := bindings.SetBuffer(b); err != nil {
			return commandError(formatter, &LoadError{Code: ErrCodeBadFlag, Message: err.Error()})
		}
	}

	loaded, err := LoadKernels(path)
	if err != nil {
		return commandError(formatter, err)
	}
	fn, err := pickFunc(loaded.Module, opts.Func)
	if err != nil {
		return commandError(formatter, err)
	}
	if errs := compiler.Verify(fn); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	if opts.Lower {
		d := lowering.NewDriver(rewrite.WithLogger(formatter.Logger()))
		if _, err := d.Run(ctx, fn); err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitFailure, "lowering failed", err)
		}
		formatter.VerboseLog("Lowered %s:\n%s", fn.Name, ir.Print(fn))
	}

	args, err := bindings.Bind(fn)
	if err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeBadFlag, Message: err.Error()})
	}

	in := interp.New(interp.WithMaxSteps(opts.MaxSteps), interp.WithLogger(formatter.Logger()))
	stats, err := in.Call(ctx, fn, args)
	if err != nil {
		code := ErrCodeGeneric
		var re *interp.RuntimeError
		if errors.As(err, &re) {
			code = string(re.Code)
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "execution failed", err)
	}

	result := RunResult{
		Func:    fn.Name,
		Lowered: opts.Lower,
		Stats:   stats,
		Buffers: lo.Map(bindings.SortedBuffers(), func(m *interp.MemRef, _ int) BufferResult {
			return BufferResult{Name: m.Name, Data: m.Data}
		}),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, m := range bindings.SortedBuffers() {
		fmt.Fprintln(formatter.Writer, m)
	}
	formatter.VerboseLog("%d step(s), %d iteration(s), %d launch(es)", stats.Steps, stats.Iterations, stats.Launches)
	return nil
}

// pickFunc returns the named kernel, or the only one when name is empty.
func pickFunc(mod *ir.Module, name string) (*ir.Func, error) {
	if name == "" {
		if len(mod.Funcs) != 1 {
			return nil, &LoadError{
				Code:    ErrCodeUnknownFunc,
				Message: fmt.Sprintf("--func is required, file declares %v", mod.Names()),
			}
		}
		return mod.Funcs[0], nil
	}
	sel, err := selectFunc(mod, name)
	if err != nil {
		return nil, err
	}
	return sel.Funcs[0], nil
}
