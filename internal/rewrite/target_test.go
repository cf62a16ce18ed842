package rewrite

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpuflat/internal/ir"
)

func TestTarget_UnknownOpsAreLegal(t *testing.T) {
	target := NewTarget()
	target.AddIllegalDialect("loop")

	custom := ir.NewOp("vendor.magic", ir.UnknownLoc, nil, nil, nil, 0)
	assert.True(t, target.IsLegal(custom))
	assert.False(t, target.IsLegal(ir.NewYield(ir.UnknownLoc)))
	assert.Equal(t, []string{"loop"}, target.IllegalDialects())
}

func TestTarget_MarkLegalCoversNestedOps(t *testing.T) {
	target := NewTarget()
	target.AddIllegalDialect("loop")

	one := ir.NewConstant(ir.UnknownLoc, 1, ir.Index)
	loop := ir.NewParallel(ir.UnknownLoc,
		[]*ir.Value{one.Result(0)}, []*ir.Value{one.Result(0)}, []*ir.Value{one.Result(0)})

	target.MarkLegal(loop.Op)
	assert.True(t, target.IsLegal(loop.Op))
	assert.True(t, target.IsLegal(loop.Body().Terminator()))

	fresh := target.clone()
	assert.False(t, fresh.IsLegal(loop.Op), "marks do not carry over to a clone")
}

func TestTarget_IllegalInPreOrder(t *testing.T) {
	f := ir.NewFunc("k", ir.UnknownLoc)
	one := ir.NewConstant(ir.UnknownLoc, 1, ir.Index)
	f.Entry().Append(one)
	loop := ir.NewParallel(ir.UnknownLoc,
		[]*ir.Value{one.Result(0)}, []*ir.Value{one.Result(0)}, []*ir.Value{one.Result(0)})
	f.Entry().Append(loop.Op)
	f.Entry().Append(ir.NewReturn(ir.UnknownLoc))

	target := NewTarget()
	target.AddIllegalDialect("loop")
	illegal := target.Illegal(f)
	require.Len(t, illegal, 2)
	assert.Equal(t, ir.OpParallel, illegal[0].Name())
	assert.Equal(t, ir.OpYield, illegal[1].Name())
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	resumed := NewClockAt(41)
	assert.Equal(t, int64(42), resumed.Next())
}

func TestClock_ConcurrentUnique(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := c.Next()
				mu.Lock()
				seen[s] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1000)
}

func TestUUIDv7Generator_Format(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
	assert.Equal(t, byte('7'), id[14], "version nibble")
}

func TestConversionError_Format(t *testing.T) {
	err := &ConversionError{
		Code:    ErrCodeLegalizationFailed,
		Func:    "k",
		Message: "2 illegal ops remain after conversion",
		Illegal: []string{"loop.parallel at 3:1", "loop.yield at 3:1"},
	}
	assert.Equal(t,
		"LEGALIZATION_FAILED: 2 illegal ops remain after conversion (func=k): loop.parallel at 3:1, loop.yield at 3:1",
		err.Error())
	assert.True(t, IsLegalizationError(err))
}
