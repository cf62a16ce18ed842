package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpuflat/internal/ir"
)

func namedFunc() *ir.Func {
	f := ir.NewFunc("k", ir.UnknownLoc, ir.Index, ir.MemRef)
	f.ArgNames = []string{"n", "out"}
	return f
}

func TestBindings_Bind(t *testing.T) {
	b := NewBindings()
	require.NoError(t, b.SetScalar("n=8"))
	require.NoError(t, b.SetBuffer("out=4"))

	args, err := b.Bind(namedFunc())
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, int64(8), args[0].Int)
	assert.False(t, args[0].IsMem())
	require.True(t, args[1].IsMem())
	assert.Equal(t, []int64{0, 0, 0, 0}, args[1].Mem.Data)
	assert.Equal(t, "out", args[1].Mem.Name)
}

func TestBindings_BufferContents(t *testing.T) {
	b := NewBindings()
	require.NoError(t, b.SetBuffer("in=[3, -1,4]"))
	require.NoError(t, b.SetBuffer("empty=[]"))

	assert.Equal(t, []int64{3, -1, 4}, b.Buffers["in"].Data)
	assert.Empty(t, b.Buffers["empty"].Data)

	sorted := b.SortedBuffers()
	require.Len(t, sorted, 2)
	assert.Equal(t, "empty", sorted[0].Name)
	assert.Equal(t, "in[3] = [3, -1, 4]", sorted[1].String())
}

func TestBindings_ParseErrors(t *testing.T) {
	b := NewBindings()
	assert.ErrorContains(t, b.SetScalar("n"), "want name=value")
	assert.ErrorContains(t, b.SetScalar("=3"), "want name=value")
	assert.ErrorContains(t, b.SetScalar("n=x"), "invalid integer")
	assert.ErrorContains(t, b.SetBuffer("out=-2"), "invalid size")
	assert.ErrorContains(t, b.SetBuffer("out=[1,z]"), "invalid element")
}

func TestBindings_BindErrors(t *testing.T) {
	t.Run("missing scalar", func(t *testing.T) {
		b := NewBindings()
		require.NoError(t, b.SetBuffer("out=4"))
		_, err := b.Bind(namedFunc())
		assert.ErrorContains(t, err, "missing value for parameter n")
	})

	t.Run("scalar given for buffer", func(t *testing.T) {
		b := NewBindings()
		require.NoError(t, b.SetScalar("n=1"))
		require.NoError(t, b.SetScalar("out=4"))
		_, err := b.Bind(namedFunc())
		assert.ErrorContains(t, err, "missing buffer for parameter out")
	})

	t.Run("unknown names", func(t *testing.T) {
		b := NewBindings()
		require.NoError(t, b.SetScalar("n=1"))
		require.NoError(t, b.SetBuffer("out=4"))
		require.NoError(t, b.SetScalar("z=1"))
		require.NoError(t, b.SetBuffer("a=1"))
		_, err := b.Bind(namedFunc())
		assert.EqualError(t, err, "function k has no parameter a, z")
	})

	t.Run("unnamed parameters", func(t *testing.T) {
		f := ir.NewFunc("k", ir.UnknownLoc, ir.Index)
		_, err := NewBindings().Bind(f)
		assert.ErrorContains(t, err, "no parameter names")
	})
}

func TestQuota(t *testing.T) {
	q := newQuota(2)
	assert.False(t, q.charge())
	assert.False(t, q.charge())
	assert.True(t, q.charge())
	assert.Equal(t, 3, q.Current())

	unlimited := newQuota(0)
	for i := 0; i < 10; i++ {
		assert.False(t, unlimited.charge())
	}
}
