package affine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchBoundMap_String(t *testing.T) {
	assert.Equal(t, "(d0)[s0, s1] -> ((d0 - s0) ceildiv s1)", LaunchBoundMap().String())
}

func TestInductionMap_String(t *testing.T) {
	assert.Equal(t, "(d0)[s0, s1] -> ((d0 * s1) + s0)", InductionMap().String())
}

func TestLaunchBoundMap_Eval(t *testing.T) {
	tests := []struct {
		name               string
		upper, lower, step int64
		want               int64
	}{
		{"unit step", 8, 0, 1, 8},
		{"exact stride", 8, 0, 2, 4},
		{"ragged stride", 10, 0, 3, 4},
		{"nonzero lower", 10, 4, 2, 3},
		{"empty range", 4, 4, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LaunchBoundMap().EvalOperands([]int64{tt.upper, tt.lower, tt.step})
			require.NoError(t, err)
			assert.Equal(t, []int64{tt.want}, got)
		})
	}
}

func TestInductionMap_Eval(t *testing.T) {
	got, err := InductionMap().EvalOperands([]int64{3, 4, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, got)
}

func TestEval_DivisionByZero(t *testing.T) {
	_, err := LaunchBoundMap().EvalOperands([]int64{8, 0, 0})
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestEval_OperandCountMismatch(t *testing.T) {
	_, err := InductionMap().EvalOperands([]int64{1, 2})
	assert.Error(t, err)
}

func TestDivisionRounding(t *testing.T) {
	m := NewMap(2, 0, FloorDiv(Dim(0), Dim(1)), CeilDiv(Dim(0), Dim(1)), Mod(Dim(0), Dim(1)))

	got, err := m.Eval([]int64{-7, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{-4, -3, 1}, got)

	got, err = m.Eval([]int64{7, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 1}, got)
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		name string
		in   Expr
		want string
	}{
		{"fold constants", Add(Const(2), Mul(Const(3), Const(4))), "14"},
		{"add zero", Add(Dim(0), Const(0)), "d0"},
		{"mul one", Mul(Const(1), Sym(0)), "s0"},
		{"mul zero", Mul(Dim(0), Const(0)), "0"},
		{"ceildiv one", CeilDiv(Sub(Dim(0), Const(0)), Const(1)), "d0"},
		{"mod one", Mod(Dim(0), Const(1)), "0"},
		{"keeps div by zero", FloorDiv(Const(4), Const(0)), "4 floordiv 0"},
		{"nested", Add(Mul(Dim(0), Const(1)), Sym(0)), "d0 + s0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Simplify(tt.in).String())
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, LaunchBoundMap().Validate())
	assert.Error(t, NewMap(1, 0, Sym(0)).Validate())
	assert.Error(t, NewMap(1, 0).Validate())
}

func TestMapString_NoSymbols(t *testing.T) {
	assert.Equal(t, "(d0, d1) -> (d0 + d1)", NewMap(2, 0, Add(Dim(0), Dim(1))).String())
}
