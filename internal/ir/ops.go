package ir

import (
	"github.com/roach88/gpuflat/internal/affine"
)

// Op names understood by the front end, the verifier, the lowering and the
// interpreter.
const (
	OpConstant = "arith.constant"
	OpAddI     = "arith.addi"
	OpSubI     = "arith.subi"
	OpMulI     = "arith.muli"
	OpDivSI    = "arith.divsi"
	OpRemSI    = "arith.remsi"
	OpMinSI    = "arith.minsi"
	OpMaxSI    = "arith.maxsi"

	OpAffineApply = "affine.apply"

	OpAlloc = "memref.alloc"
	OpLoad  = "memref.load"
	OpStore = "memref.store"

	OpParallel = "loop.parallel"
	OpYield    = "loop.yield"

	OpLaunch        = "gpu.launch"
	OpGPUTerminator = "gpu.terminator"

	OpReturn = "func.return"
)

// Attribute keys.
const (
	AttrValue = "value" // arith.constant
	AttrMap   = "map"   // affine.apply
	AttrSize  = "size"  // memref.alloc
)

// DialectLoop is the dialect of the parallel loop construct.
const DialectLoop = "loop"

// BinaryArithOps lists the two-operand integer ops.
var BinaryArithOps = map[string]bool{
	OpAddI:  true,
	OpSubI:  true,
	OpMulI:  true,
	OpDivSI: true,
	OpRemSI: true,
	OpMinSI: true,
	OpMaxSI: true,
}

var terminators = map[string]bool{
	OpYield:         true,
	OpGPUTerminator: true,
	OpReturn:        true,
}

// IsTerminator reports whether op ends a block.
func IsTerminator(op *Op) bool {
	return terminators[op.name]
}

// NewConstant creates an arith.constant.
func NewConstant(loc Location, v int64, t Type) *Op {
	return NewOp(OpConstant, loc, nil, []Type{t}, map[string]Attr{AttrValue: IntAttr(v)}, 0)
}

// NewBinary creates a two-operand arith op. The result has the type of lhs.
func NewBinary(name string, loc Location, lhs, rhs *Value) *Op {
	return NewOp(name, loc, []*Value{lhs, rhs}, []Type{lhs.Type()}, nil, 0)
}

// NewAffineApply creates an affine.apply producing one index value.
func NewAffineApply(loc Location, m affine.Map, operands ...*Value) *Op {
	return NewOp(OpAffineApply, loc, operands, []Type{Index}, map[string]Attr{AttrMap: MapAttr{Map: m}}, 0)
}

// NewAlloc creates a memref.alloc of size elements.
func NewAlloc(loc Location, size int64) *Op {
	return NewOp(OpAlloc, loc, nil, []Type{MemRef}, map[string]Attr{AttrSize: IntAttr(size)}, 0)
}

// NewLoad creates a memref.load of buf[idx].
func NewLoad(loc Location, buf, idx *Value) *Op {
	return NewOp(OpLoad, loc, []*Value{buf, idx}, []Type{I64}, nil, 0)
}

// NewStore creates a memref.store of val into buf[idx].
func NewStore(loc Location, val, buf, idx *Value) *Op {
	return NewOp(OpStore, loc, []*Value{val, buf, idx}, nil, nil, 0)
}

// NewReturn creates a func.return.
func NewReturn(loc Location) *Op {
	return NewOp(OpReturn, loc, nil, nil, nil, 0)
}

// NewYield creates a loop.yield.
func NewYield(loc Location) *Op {
	return NewOp(OpYield, loc, nil, nil, nil, 0)
}

// NewGPUTerminator creates a gpu.terminator.
func NewGPUTerminator(loc Location) *Op {
	return NewOp(OpGPUTerminator, loc, nil, nil, nil, 0)
}

// ParallelOp is a typed view of a loop.parallel op.
//
// Operands are laid out as lower bounds, upper bounds, steps; each group has
// one entry per induction variable. The body block has one index argument
// per induction variable and ends with loop.yield.
type ParallelOp struct {
	*Op
}

// NewParallel creates a detached loop.parallel with an empty body
// terminated by loop.yield. All three bound lists must have the same length.
func NewParallel(loc Location, lowers, uppers, steps []*Value) ParallelOp {
	operands := make([]*Value, 0, 3*len(lowers))
	operands = append(operands, lowers...)
	operands = append(operands, uppers...)
	operands = append(operands, steps...)
	op := NewOp(OpParallel, loc, operands, nil, nil, 1)

	argTypes := make([]Type, len(lowers))
	for i := range argTypes {
		argTypes[i] = Index
	}
	body := NewBlock(argTypes...)
	op.Region(0).AddBlock(body)
	body.Append(NewYield(loc))
	return ParallelOp{Op: op}
}

// AsParallel returns the typed view if op is a loop.parallel.
func AsParallel(op *Op) (ParallelOp, bool) {
	if op == nil || op.name != OpParallel {
		return ParallelOp{}, false
	}
	return ParallelOp{Op: op}, true
}

// IsParallel reports whether op is a loop.parallel.
func IsParallel(op *Op) bool {
	_, ok := AsParallel(op)
	return ok
}

// Body returns the loop body.
func (p ParallelOp) Body() *Block { return p.Region(0).Front() }

// NumLoops returns the number of induction variables.
func (p ParallelOp) NumLoops() int { return len(p.Body().Args()) }

// InductionVars returns the induction variables.
func (p ParallelOp) InductionVars() []*Value { return p.Body().Args() }

// LowerBounds returns the lower bound operands.
func (p ParallelOp) LowerBounds() []*Value {
	n := p.NumLoops()
	return p.operands[:n]
}

// UpperBounds returns the upper bound operands.
func (p ParallelOp) UpperBounds() []*Value {
	n := p.NumLoops()
	return p.operands[n : 2*n]
}

// Steps returns the step operands.
func (p ParallelOp) Steps() []*Value {
	n := p.NumLoops()
	return p.operands[2*n : 3*n]
}

// Launch size operand positions; the body block argument at the same
// position is the matching hardware index.
const (
	GridSizeX = iota
	GridSizeY
	GridSizeZ
	BlockSizeX
	BlockSizeY
	BlockSizeZ

	// LaunchNumSizes is the number of launch size operands.
	LaunchNumSizes
)

// LaunchDimNames names each launch size position.
var LaunchDimNames = [LaunchNumSizes]string{
	"grid.x", "grid.y", "grid.z",
	"block.x", "block.y", "block.z",
}

// HardwareIndexNames names the body argument at each launch position.
var HardwareIndexNames = [LaunchNumSizes]string{
	"blockIdx.x", "blockIdx.y", "blockIdx.z",
	"threadIdx.x", "threadIdx.y", "threadIdx.z",
}

// LaunchOp is a typed view of a gpu.launch op.
//
// The six operands are the grid and block sizes. The single body block has
// twelve index arguments: blockIdx x/y/z, threadIdx x/y/z, then the six
// sizes as seen from inside the kernel (gridDim x/y/z, blockDim x/y/z).
type LaunchOp struct {
	*Op
}

// NewLaunch creates a detached gpu.launch whose body contains only a
// gpu.terminator.
func NewLaunch(loc Location, sizes [LaunchNumSizes]*Value) LaunchOp {
	op := NewOp(OpLaunch, loc, sizes[:], nil, nil, 1)
	argTypes := make([]Type, 2*LaunchNumSizes)
	for i := range argTypes {
		argTypes[i] = Index
	}
	body := NewBlock(argTypes...)
	op.Region(0).AddBlock(body)
	body.Append(NewGPUTerminator(loc))
	return LaunchOp{Op: op}
}

// AsLaunch returns the typed view if op is a gpu.launch.
func AsLaunch(op *Op) (LaunchOp, bool) {
	if op == nil || op.name != OpLaunch {
		return LaunchOp{}, false
	}
	return LaunchOp{Op: op}, true
}

// Body returns the kernel body.
func (l LaunchOp) Body() *Block { return l.Region(0).Front() }

// Size returns launch size operand i (see GridSizeX ... BlockSizeZ).
func (l LaunchOp) Size(i int) *Value { return l.Operand(i) }

// SetSize replaces launch size operand i.
func (l LaunchOp) SetSize(i int, v *Value) { l.SetOperand(i, v) }

// HardwareIndex returns the body argument holding the block or thread
// index for launch position i.
func (l LaunchOp) HardwareIndex(i int) *Value { return l.Body().Arg(i) }

// SizeArg returns the body argument mirroring launch size i.
func (l LaunchOp) SizeArg(i int) *Value { return l.Body().Arg(LaunchNumSizes + i) }
