package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/gpuflat/internal/compiler"
	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/lowering"
	"github.com/roach88/gpuflat/internal/rewrite"
	"github.com/roach88/gpuflat/internal/store"
	"github.com/roach88/gpuflat/internal/testutil"
)

// Harness holds the per-scenario execution state.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	runIDs *testutil.FixedRunIDGenerator
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store. Deterministic helpers
// ensure reproducible results.
//
// Execution flow:
// 1. Compile and verify the kernels
// 2. Run the driver in the scenario's mode
// 3. Journal remarks and the run summary
// 4. Evaluate the expect clause and assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		runIDs: testutil.NewFixedRunIDGenerator(scenario.RunID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	mod, err := loadModule(scenario)
	if err != nil {
		return nil, err
	}

	mode := rewrite.ModeFull
	if scenario.Mode != "" {
		if mode, err = rewrite.ParseMode(scenario.Mode); err != nil {
			return nil, err
		}
	}

	result := NewResult()
	result.before = ir.CloneModule(mod)
	beforeFP, err := ir.FingerprintModule(mod)
	if err != nil {
		return nil, err
	}

	d := lowering.NewDriver(
		rewrite.WithMode(mode),
		rewrite.WithLogger(h.logger),
		rewrite.WithRunIDGenerator(h.runIDs),
		rewrite.WithClock(h.clock),
		rewrite.WithRemarkSink(h.store),
	)
	reports, convErr := d.RunModule(ctx, mod)
	if convErr != nil && !rewrite.IsLegalizationError(convErr) {
		return nil, fmt.Errorf("conversion: %w", convErr)
	}
	result.Reports = reports
	result.after = mod
	result.IR = ir.PrintModule(mod)

	switch {
	case convErr != nil:
		result.Outcome = OutcomeFailed
	case !allConverged(reports):
		result.Outcome = OutcomePartial
	default:
		result.Outcome = OutcomeConverged
	}

	if len(reports) > 0 {
		runID := reports[0].RunID
		afterFP, err := ir.FingerprintModule(mod)
		if err != nil {
			return nil, err
		}
		run := store.Run{
			ID:                runID,
			Mode:              string(mode),
			Source:            strings.Join(scenario.Kernels, ","),
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
		if err := h.store.WriteRun(ctx, run); err != nil {
			return nil, err
		}
		if result.Remarks, err = h.store.ReadRemarks(ctx, runID); err != nil {
			return nil, err
		}
	}

	checkExpect(scenario.Expect, result, convErr)
	actx := &AssertionContext{Ctx: ctx, Scenario: scenario}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// loadModule compiles the scenario's kernels, keeps the selected one and
// verifies what is left.
func loadModule(scenario *Scenario) (*ir.Module, error) {
	mod, err := compiler.CompileFiles(scenario.Kernels...)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if scenario.Func != "" {
		fn, ok := mod.Lookup(scenario.Func)
		if !ok {
			return nil, fmt.Errorf("kernel %q not found (have %s)", scenario.Func, strings.Join(mod.Names(), ", "))
		}
		mod = &ir.Module{Funcs: []*ir.Func{fn}}
	}
	if verrs := compiler.VerifyModule(mod); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return nil, fmt.Errorf("verify: %w", errors.Join(errs...))
	}
	return mod, nil
}

func allConverged(reports []*rewrite.Report) bool {
	for _, rep := range reports {
		if !rep.Converged() {
			return false
		}
	}
	return true
}

func checkExpect(expect ExpectClause, result *Result, convErr error) {
	if result.Outcome != expect.Outcome {
		result.AddError(fmt.Sprintf("expected outcome %s, got %s", expect.Outcome, result.Outcome))
	}
	if expect.Code == "" {
		return
	}
	var ce *rewrite.ConversionError
	if errors.As(convErr, &ce) && string(ce.Code) == expect.Code {
		return
	}
	for _, r := range result.Remarks {
		if r.Code == expect.Code {
			return
		}
	}
	result.AddError(fmt.Sprintf("expected code %s, not reported", expect.Code))
}
