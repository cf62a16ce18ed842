package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpuflat/internal/affine"
	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/lowering"
	"github.com/roach88/gpuflat/internal/rewrite"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestVerify_LoweredModuleIsValid(t *testing.T) {
	mod := loadTestdata(t)
	_, err := lowering.NewDriver(rewrite.WithMode(rewrite.ModeFull)).RunModule(context.Background(), mod)
	require.NoError(t, err)

	for _, fn := range mod.Funcs {
		assert.Equal(t, 1, fn.Count(ir.OpLaunch), fn.Name)
		assert.Empty(t, Verify(fn), fn.Name)
	}
	assert.Empty(t, VerifyModule(mod))
}

func TestVerify_UseBeforeDef(t *testing.T) {
	f := ir.NewFunc("k", ir.Location{Line: 1})
	detached := ir.NewConstant(ir.UnknownLoc, 7, ir.Index)
	f.Entry().Append(ir.NewBinary(ir.OpAddI, ir.Location{Line: 3}, detached.Result(0), detached.Result(0)))
	f.Entry().Append(ir.NewReturn(ir.UnknownLoc))

	errs := Verify(f)
	assert.Equal(t, []string{ErrUseBeforeDef, ErrUseBeforeDef}, codes(errs))
	assert.Equal(t, "[E205] line 3: k.arith.addi: operand 0 is not defined before use", errs[0].Error())
}

func TestVerify_ValueFromInsideLoopUsedAfter(t *testing.T) {
	f := ir.NewFunc("k", ir.UnknownLoc)
	one := ir.NewConstant(ir.UnknownLoc, 1, ir.Index)
	f.Entry().Append(one)
	loop := ir.NewParallel(ir.UnknownLoc,
		[]*ir.Value{one.Result(0)}, []*ir.Value{one.Result(0)}, []*ir.Value{one.Result(0)})
	f.Entry().Append(loop.Op)
	iv := loop.InductionVars()[0]
	f.Entry().Append(ir.NewBinary(ir.OpAddI, ir.UnknownLoc, iv, iv))
	f.Entry().Append(ir.NewReturn(ir.UnknownLoc))

	assert.Equal(t, []string{ErrUseBeforeDef, ErrUseBeforeDef}, codes(Verify(f)))
}

func TestVerify_Terminators(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		f := ir.NewFunc("k", ir.UnknownLoc)
		f.Entry().Append(ir.NewConstant(ir.UnknownLoc, 1, ir.Index))
		assert.Equal(t, []string{ErrTerminator}, codes(Verify(f)))
	})

	t.Run("misplaced", func(t *testing.T) {
		f := ir.NewFunc("k", ir.UnknownLoc)
		f.Entry().Append(ir.NewReturn(ir.UnknownLoc))
		f.Entry().Append(ir.NewReturn(ir.UnknownLoc))
		assert.Equal(t, []string{ErrTerminator}, codes(Verify(f)))
	})

	t.Run("wrong kind", func(t *testing.T) {
		f := ir.NewFunc("k", ir.UnknownLoc)
		f.Entry().Append(ir.NewYield(ir.UnknownLoc))
		errs := Verify(f)
		assert.Equal(t, []string{ErrTerminator}, codes(errs))
		assert.Contains(t, errs[0].Message, "func.return")
	})
}

func TestVerify_OperandTypes(t *testing.T) {
	f := ir.NewFunc("k", ir.UnknownLoc, ir.MemRef, ir.Index)
	buf, n := f.Args()[0], f.Args()[1]
	f.Entry().Append(ir.NewLoad(ir.UnknownLoc, n, buf))
	f.Entry().Append(ir.NewStore(ir.UnknownLoc, buf, buf, n))
	f.Entry().Append(ir.NewBinary(ir.OpMulI, ir.UnknownLoc, buf, n))
	f.Entry().Append(ir.NewReturn(ir.UnknownLoc))

	assert.Equal(t, []string{
		ErrOperandType, ErrOperandType, // load: buffer and index swapped
		ErrOperandType, // store: buffer as value
		ErrOperandType, // muli: buffer operand
	}, codes(Verify(f)))
}

func TestVerify_Attributes(t *testing.T) {
	f := ir.NewFunc("k", ir.UnknownLoc)
	f.Entry().Append(ir.NewOp(ir.OpConstant, ir.UnknownLoc, nil, []ir.Type{ir.Index}, nil, 0))
	f.Entry().Append(ir.NewAlloc(ir.UnknownLoc, -1))
	two := ir.NewConstant(ir.UnknownLoc, 2, ir.Index)
	f.Entry().Append(two)
	f.Entry().Append(ir.NewAffineApply(ir.UnknownLoc, affine.LaunchBoundMap(), two.Result(0)))
	f.Entry().Append(ir.NewReturn(ir.UnknownLoc))

	assert.Equal(t, []string{ErrAttribute, ErrAttribute, ErrArity}, codes(Verify(f)))
}

func TestVerify_UnknownOp(t *testing.T) {
	f := ir.NewFunc("k", ir.UnknownLoc)
	f.Entry().Append(ir.NewOp("vendor.magic", ir.UnknownLoc, nil, nil, nil, 0))
	f.Entry().Append(ir.NewReturn(ir.UnknownLoc))

	errs := Verify(f)
	assert.Equal(t, []string{ErrUnknownOp}, codes(errs))
	assert.Equal(t, "[E200] k.vendor.magic: unknown op \"vendor.magic\"", errs[0].Error())
}

func TestVerify_ParallelShape(t *testing.T) {
	f := ir.NewFunc("k", ir.UnknownLoc)
	one := ir.NewConstant(ir.UnknownLoc, 1, ir.Index)
	f.Entry().Append(one)

	// Two induction variables but bounds for one.
	loop := ir.NewParallel(ir.UnknownLoc,
		[]*ir.Value{one.Result(0)}, []*ir.Value{one.Result(0)}, []*ir.Value{one.Result(0)})
	loop.Body().AddArg(ir.Index)
	f.Entry().Append(loop.Op)
	f.Entry().Append(ir.NewReturn(ir.UnknownLoc))

	assert.Equal(t, []string{ErrParallelShape}, codes(Verify(f)))
}

func TestVerify_LaunchShape(t *testing.T) {
	f := ir.NewFunc("k", ir.UnknownLoc)
	one := ir.NewConstant(ir.UnknownLoc, 1, ir.Index)
	f.Entry().Append(one)
	v := one.Result(0)
	launch := ir.NewLaunch(ir.UnknownLoc, [ir.LaunchNumSizes]*ir.Value{v, v, v, v, v, v})
	launch.Body().AddArg(ir.Index)
	f.Entry().Append(launch.Op)
	f.Entry().Append(ir.NewReturn(ir.UnknownLoc))

	assert.Equal(t, []string{ErrLaunchShape}, codes(Verify(f)))
}
