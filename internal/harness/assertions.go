package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/roach88/gpuflat/internal/interp"
	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/lowering"
	"github.com/roach88/gpuflat/internal/rewrite"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Remarks  []rewrite.Remark // Remarks for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Remarks) > 0 {
		fmt.Fprintf(&buf, "\nRemarks:\n")
		for _, r := range e.Remarks {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", r.Seq, r.Kind, r.Code, r.Message)
		}
	}

	return buf.String()
}

// AssertionContext provides what the IR assertions need beyond the result.
type AssertionContext struct {
	Ctx      context.Context
	Scenario *Scenario
}

// assertRemarkContains checks that a remark of the kind, and the code if
// given, was emitted.
func assertRemarkContains(remarks []rewrite.Remark, a Assertion) error {
	_, found := lo.Find(remarks, func(r rewrite.Remark) bool {
		return string(r.Kind) == a.Kind && (a.Code == "" || r.Code == a.Code)
	})
	if found {
		return nil
	}
	expected := a.Kind + " remark"
	if a.Code != "" {
		expected += " with code " + a.Code
	}
	return &AssertionError{
		Type:     AssertRemarkContains,
		Expected: expected,
		Actual:   "not found",
		Remarks:  remarks,
	}
}

// assertRemarkCount checks the number of remarks of a kind.
func assertRemarkCount(remarks []rewrite.Remark, a Assertion) error {
	got := lo.CountBy(remarks, func(r rewrite.Remark) bool { return string(r.Kind) == a.Kind })
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRemarkCount,
		Expected: fmt.Sprintf("%d %s remarks", a.Count, a.Kind),
		Actual:   fmt.Sprintf("%d %s remarks", got, a.Kind),
		Remarks:  remarks,
	}
}

// assertRemarkOrder checks that the kinds appear in order. Other remarks may
// appear in between.
func assertRemarkOrder(remarks []rewrite.Remark, a Assertion) error {
	next := 0
	for _, r := range remarks {
		if next < len(a.Kinds) && string(r.Kind) == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}
	kinds := lo.Map(remarks, func(r rewrite.Remark, _ int) string { return string(r.Kind) })
	return &AssertionError{
		Type:     AssertRemarkOrder,
		Expected: strings.Join(a.Kinds, " -> "),
		Actual:   strings.Join(kinds, " -> "),
		Remarks:  remarks,
	}
}

// assertLaunchSizes checks the folded sizes of the a.Launch-th launch in
// pre-order across the module.
func assertLaunchSizes(mod *ir.Module, a Assertion) error {
	var launches []ir.LaunchOp
	for _, fn := range mod.Funcs {
		for _, op := range fn.Collect(func(op *ir.Op) bool { return op.Name() == ir.OpLaunch }) {
			l, _ := ir.AsLaunch(op)
			launches = append(launches, l)
		}
	}
	if a.Launch < 0 || a.Launch >= len(launches) {
		return &AssertionError{
			Type:     AssertLaunchSizes,
			Expected: fmt.Sprintf("launch #%d", a.Launch),
			Actual:   fmt.Sprintf("%d launches", len(launches)),
		}
	}

	launch := launches[a.Launch]
	sizes, known := lowering.StaticLaunchSizes(launch)
	want := append(slices.Clone(a.Grid), a.Block...)
	for i, w := range want {
		if !known[i] || sizes[i] != w {
			return &AssertionError{
				Type:     AssertLaunchSizes,
				Expected: fmt.Sprintf("grid(%s) block(%s)", joinInts(a.Grid), joinInts(a.Block)),
				Actual:   lowering.FormatSizes(launch),
			}
		}
	}
	return nil
}

func joinInts(vs []int64) string {
	return strings.Join(lo.Map(vs, func(v int64, _ int) string { return fmt.Sprint(v) }), ", ")
}

// assertLoopsRemaining checks the number of loop.parallel ops left.
func assertLoopsRemaining(mod *ir.Module, a Assertion) error {
	got := lo.SumBy(mod.Funcs, func(fn *ir.Func) int { return fn.Count(ir.OpParallel) })
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertLoopsRemaining,
		Expected: fmt.Sprintf("%d loops", a.Count),
		Actual:   fmt.Sprintf("%d loops", got),
	}
}

// assertUnchanged checks that conversion left the module fingerprint as is.
func assertUnchanged(before, after *ir.Module) error {
	bfp, err := ir.FingerprintModule(before)
	if err != nil {
		return err
	}
	afp, err := ir.FingerprintModule(after)
	if err != nil {
		return err
	}
	if bfp == afp {
		return nil
	}
	return &AssertionError{
		Type:     AssertUnchanged,
		Expected: "fingerprint " + bfp,
		Actual:   "fingerprint " + afp,
	}
}

// assertEquivalent interprets the selected function before and after
// conversion on identical inputs and compares every buffer.
func assertEquivalent(actx *AssertionContext, before, after *ir.Module) error {
	s := actx.Scenario
	fnBefore, ok := before.Lookup(s.Func)
	if !ok {
		return fmt.Errorf("equivalent: kernel %q not found", s.Func)
	}
	fnAfter, ok := after.Lookup(s.Func)
	if !ok {
		return fmt.Errorf("equivalent: kernel %q not found after conversion", s.Func)
	}

	want, err := execute(actx.Ctx, s, fnBefore)
	if err != nil {
		return fmt.Errorf("equivalent: before: %w", err)
	}
	got, err := execute(actx.Ctx, s, fnAfter)
	if err != nil {
		return fmt.Errorf("equivalent: after: %w", err)
	}

	for i := range want {
		if !slices.Equal(want[i].Data, got[i].Data) {
			return &AssertionError{
				Type:     AssertEquivalent,
				Expected: want[i].String(),
				Actual:   got[i].String(),
			}
		}
	}
	return nil
}

// execute runs fn on fresh bindings built from the scenario and returns the
// buffers ordered by name.
func execute(ctx context.Context, s *Scenario, fn *ir.Func) ([]*interp.MemRef, error) {
	b := interp.NewBindings()
	for name, v := range s.Args {
		b.Scalars[name] = v
	}
	for name, contents := range s.Buffers {
		if err := b.SetBuffer(name + "=" + contents); err != nil {
			return nil, err
		}
	}
	args, err := b.Bind(fn)
	if err != nil {
		return nil, err
	}
	if _, err := interp.New().Call(ctx, fn, args); err != nil {
		return nil, err
	}
	return b.SortedBuffers(), nil
}

// EvaluateAssertions runs all assertions against the result.
// Returns a slice of error messages (empty if all assertions pass).
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRemarkContains:
			err = assertRemarkContains(result.Remarks, assertion)
		case AssertRemarkCount:
			err = assertRemarkCount(result.Remarks, assertion)
		case AssertRemarkOrder:
			err = assertRemarkOrder(result.Remarks, assertion)
		case AssertLaunchSizes:
			err = assertLaunchSizes(result.after, assertion)
		case AssertLoopsRemaining:
			err = assertLoopsRemaining(result.after, assertion)
		case AssertUnchanged:
			err = assertUnchanged(result.before, result.after)
		case AssertEquivalent:
			if actx == nil || actx.Scenario == nil {
				err = fmt.Errorf("assertion[%d]: equivalent requires scenario context", i)
			} else {
				err = assertEquivalent(actx, result.before, result.after)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
