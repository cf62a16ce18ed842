package rewrite_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/lowering"
	"github.com/roach88/gpuflat/internal/rewrite"
	"github.com/roach88/gpuflat/internal/testutil"
)

var (
	s8 = testutil.Space{Lower: 0, Upper: 8, Step: 1}
	s4 = testutil.Space{Lower: 0, Upper: 4, Step: 1}
	s2 = testutil.Space{Lower: 0, Upper: 2, Step: 1}
)

type memorySink struct {
	mu      sync.Mutex
	remarks []rewrite.Remark
}

func (s *memorySink) Record(_ context.Context, r rewrite.Remark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remarks = append(s.remarks, r)
	return nil
}

func newDriver(mode rewrite.Mode, sink rewrite.RemarkSink) *rewrite.Driver {
	opts := []rewrite.Option{
		rewrite.WithMode(mode),
		rewrite.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		rewrite.WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
		rewrite.WithClock(testutil.NewDeterministicClock()),
	}
	if sink != nil {
		opts = append(opts, rewrite.WithRemarkSink(sink))
	}
	return lowering.NewDriver(opts...)
}

// buildTwoRoots builds a function with a good 3-level nest followed by a
// 4-level nest.
func buildTwoRoots(name string) *ir.Func {
	nb := testutil.NewNestBuilder(name)
	nb.At(1, 1).Chain(nb.Entry(), []testutil.Space{s8, s4, s2}, nil)
	nb.At(2, 1).Chain(nb.Entry(), []testutil.Space{s8, s4, s2, s2}, nil)
	return nb.Finish()
}

func buildGood(name string) *ir.Func {
	nb := testutil.NewNestBuilder(name)
	nb.Chain(nb.Entry(), []testutil.Space{s8, s4, s2}, func(inner *ir.Block, ivs []*ir.Value) {
		testutil.Append(inner, ir.NewBinary(ir.OpAddI, ir.UnknownLoc, ivs[2], ivs[2]))
	})
	return nb.Finish()
}

func TestDriver_FullSuccess(t *testing.T) {
	f := buildGood("k")
	sink := &memorySink{}

	rep, err := newDriver(rewrite.ModeFull, sink).Run(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, 1, rep.Roots)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, 0, rep.Missed)
	assert.True(t, rep.Converged())

	assert.Equal(t, 0, f.Count(ir.OpParallel))
	assert.Equal(t, 1, f.Count(ir.OpLaunch))

	require.Len(t, sink.remarks, 1)
	r := sink.remarks[0]
	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, rewrite.RemarkPassed, r.Kind)
	assert.Equal(t, lowering.PatternName, r.Pattern)
	assert.Equal(t, "8x1x1", r.Details["grid"])
	assert.Equal(t, "2x4x1", r.Details["block"])
}

func TestDriver_FullFailureLeavesFunctionUntouched(t *testing.T) {
	f := buildTwoRoots("k")
	before := ir.MustFingerprint(f)

	rep, err := newDriver(rewrite.ModeFull, nil).Run(context.Background(), f)
	require.Error(t, err)
	assert.True(t, rewrite.IsLegalizationError(err))
	require.NotNil(t, rep)
	assert.Equal(t, 2, rep.Roots)
	assert.Equal(t, 1, rep.Applied, "the good nest lowered in the private copy")
	assert.Equal(t, 1, rep.Missed)
	assert.False(t, rep.Converged())

	assert.Equal(t, before, ir.MustFingerprint(f))
	assert.Equal(t, 0, f.Count(ir.OpLaunch))
}

func TestDriver_PartialKeepsSuccessfulRoots(t *testing.T) {
	f := buildTwoRoots("k")
	sink := &memorySink{}

	rep, err := newDriver(rewrite.ModePartial, sink).Run(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, 1, rep.Missed)
	assert.Equal(t, 8, rep.Illegal, "four loops and four yields remain")

	assert.Equal(t, 1, f.Count(ir.OpLaunch))
	assert.Equal(t, 4, f.Count(ir.OpParallel))

	require.Len(t, sink.remarks, 3)
	assert.Equal(t, rewrite.RemarkPassed, sink.remarks[0].Kind)
	assert.Equal(t, rewrite.RemarkMissed, sink.remarks[1].Kind)
	assert.Equal(t, string(lowering.ErrCodeNestingTooDeep), sink.remarks[1].Code)
	assert.Equal(t, 2, sink.remarks[1].Loc.Line)
	assert.Equal(t, rewrite.RemarkAnalysis, sink.remarks[2].Kind)
	assert.Equal(t, string(rewrite.ErrCodeLegalizationFailed), sink.remarks[2].Code)

	for i, r := range sink.remarks {
		assert.Equal(t, int64(i+1), r.Seq)
	}
}

func TestDriver_NoRootsIsNoOp(t *testing.T) {
	f := buildGood("k")
	d := newDriver(rewrite.ModeFull, nil)
	_, err := d.Run(context.Background(), f)
	require.NoError(t, err)

	before := ir.MustFingerprint(f)
	rep, err := d.Run(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Roots)
	assert.Empty(t, rep.Remarks)
	assert.Equal(t, before, ir.MustFingerprint(f))
}

func TestDriver_CancelledContext(t *testing.T) {
	f := buildGood("k")
	before := ir.MustFingerprint(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newDriver(rewrite.ModePartial, nil).Run(ctx, f)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rep)
	assert.Equal(t, before, ir.MustFingerprint(f))
}

func TestDriver_RunModuleDeterministicOrder(t *testing.T) {
	mod := &ir.Module{Funcs: []*ir.Func{
		buildGood("a"),
		buildTwoRoots("b"),
		buildGood("c"),
	}}
	sink := &memorySink{}

	reports, err := newDriver(rewrite.ModePartial, sink).RunModule(context.Background(), mod)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "a", reports[0].Func)
	assert.Equal(t, "b", reports[1].Func)
	assert.Equal(t, "c", reports[2].Func)

	var funcs []string
	for i, r := range sink.remarks {
		assert.Equal(t, int64(i+1), r.Seq)
		assert.Equal(t, "run-1", r.RunID)
		funcs = append(funcs, r.Func)
	}
	assert.Equal(t, []string{"a", "b", "b", "b", "c"}, funcs)
}

func TestDriver_RunModuleJoinsConversionErrors(t *testing.T) {
	mod := &ir.Module{Funcs: []*ir.Func{buildGood("a"), buildTwoRoots("b")}}

	reports, err := newDriver(rewrite.ModeFull, nil).RunModule(context.Background(), mod)
	require.Error(t, err)
	assert.True(t, rewrite.IsLegalizationError(err))
	require.Len(t, reports, 2)
	assert.True(t, reports[0].Converged())
	assert.False(t, reports[1].Converged())

	assert.Equal(t, 1, mod.Funcs[0].Count(ir.OpLaunch))
	assert.Equal(t, 0, mod.Funcs[1].Count(ir.OpLaunch))
}

func TestParseMode(t *testing.T) {
	m, err := rewrite.ParseMode("partial")
	require.NoError(t, err)
	assert.Equal(t, rewrite.ModePartial, m)

	_, err = rewrite.ParseMode("greedy")
	assert.ErrorContains(t, err, "invalid mode")
}
