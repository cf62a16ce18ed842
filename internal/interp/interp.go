package interp

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/gpuflat/internal/ir"
)

// ctxCheckInterval is how many ops run between context checks.
const ctxCheckInterval = 1024

// Interpreter executes functions of the IR sequentially.
//
// Parallel loops run their iterations in row-major order and launches run
// their grid then block positions with x fastest. Neither construct
// introduces real concurrency, so a well-formed kernel whose iterations
// write disjoint locations produces the same memory before and after
// lowering.
type Interpreter struct {
	maxSteps int
	logger   *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMaxSteps sets the op quota per Call.
// A non-positive value disables the quota.
func WithMaxSteps(n int) Option {
	return func(in *Interpreter) {
		in.maxSteps = n
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = l
	}
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		maxSteps: DefaultMaxSteps,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Stats summarizes one Call.
type Stats struct {
	// Steps is the number of ops executed.
	Steps int `json:"steps"`

	// Iterations counts parallel loop iterations.
	Iterations int `json:"iterations"`

	// Launches counts executed gpu.launch ops.
	Launches int `json:"launches"`

	// Invocations counts kernel body executions across all launches.
	Invocations int `json:"invocations"`
}

// frame holds the state of a single Call.
type frame struct {
	ctx    context.Context
	env    map[*ir.Value]Value
	quota  *quota
	stats  Stats
	allocs int
}

// Call executes fn with args bound to its parameters in order.
// Buffers passed in args are modified in place.
func (in *Interpreter) Call(ctx context.Context, fn *ir.Func, args []Value) (Stats, error) {
	params := fn.Args()
	if len(args) != len(params) {
		return Stats{}, &RuntimeError{
			Code:    ErrCodeArity,
			Message: fmt.Sprintf("function %s takes %d arguments, got %d", fn.Name, len(params), len(args)),
		}
	}

	fr := &frame{
		ctx:   ctx,
		env:   make(map[*ir.Value]Value),
		quota: newQuota(in.maxSteps),
	}
	for i, p := range params {
		if (p.Type() == ir.MemRef) != args[i].IsMem() {
			return Stats{}, &RuntimeError{
				Code:    ErrCodeTypeMismatch,
				Message: fmt.Sprintf("argument %d of %s has type %s", i, fn.Name, p.Type()),
			}
		}
		fr.env[p] = args[i]
	}

	err := fr.runBlock(fn.Entry())
	fr.stats.Steps = fr.quota.Current()
	if err != nil {
		return fr.stats, err
	}

	in.logger.Debug("call finished",
		"func", fn.Name,
		"steps", fr.stats.Steps,
		"iterations", fr.stats.Iterations,
		"launches", fr.stats.Launches)
	return fr.stats, nil
}

func (fr *frame) runBlock(b *ir.Block) error {
	for _, op := range b.Ops() {
		if err := fr.step(op); err != nil {
			return err
		}
	}
	return nil
}

func (fr *frame) step(op *ir.Op) error {
	if fr.quota.charge() {
		return opError(op, ErrCodeStepsExceeded, "exceeded %d steps", fr.quota.limit)
	}
	if fr.quota.Current()%ctxCheckInterval == 0 {
		if err := fr.ctx.Err(); err != nil {
			return err
		}
	}

	switch name := op.Name(); {
	case name == ir.OpConstant:
		return fr.constant(op)
	case ir.BinaryArithOps[name]:
		return fr.binary(op)
	case name == ir.OpAffineApply:
		return fr.affineApply(op)
	case name == ir.OpAlloc:
		return fr.alloc(op)
	case name == ir.OpLoad:
		return fr.load(op)
	case name == ir.OpStore:
		return fr.store(op)
	case name == ir.OpParallel:
		return fr.parallel(op)
	case name == ir.OpLaunch:
		return fr.launch(op)
	case ir.IsTerminator(op):
		return nil
	default:
		return opError(op, ErrCodeUnsupportedOp, "cannot execute %s", name)
	}
}

func (fr *frame) lookup(op *ir.Op, v *ir.Value) (Value, error) {
	rv, ok := fr.env[v]
	if !ok {
		return Value{}, opError(op, ErrCodeUndefinedValue, "operand has no value")
	}
	return rv, nil
}

func (fr *frame) scalar(op *ir.Op, i int) (int64, error) {
	rv, err := fr.lookup(op, op.Operand(i))
	if err != nil {
		return 0, err
	}
	if rv.IsMem() {
		return 0, opError(op, ErrCodeTypeMismatch, "operand %d is a buffer, want a scalar", i)
	}
	return rv.Int, nil
}

func (fr *frame) buffer(op *ir.Op, i int) (*MemRef, error) {
	rv, err := fr.lookup(op, op.Operand(i))
	if err != nil {
		return nil, err
	}
	if !rv.IsMem() {
		return nil, opError(op, ErrCodeTypeMismatch, "operand %d is a scalar, want a buffer", i)
	}
	return rv.Mem, nil
}

func (fr *frame) scalars(op *ir.Op, from, to int) ([]int64, error) {
	out := make([]int64, 0, to-from)
	for i := from; i < to; i++ {
		v, err := fr.scalar(op, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (fr *frame) constant(op *ir.Op) error {
	a, ok := op.Attr(ir.AttrValue)
	if !ok {
		return opError(op, ErrCodeUnsupportedOp, "missing %q attribute", ir.AttrValue)
	}
	v, ok := a.(ir.IntAttr)
	if !ok {
		return opError(op, ErrCodeTypeMismatch, "%q attribute is %s", ir.AttrValue, a)
	}
	fr.env[op.Result(0)] = Int(int64(v))
	return nil
}

func (fr *frame) binary(op *ir.Op) error {
	if op.NumOperands() != 2 {
		return opError(op, ErrCodeArity, "want 2 operands, got %d", op.NumOperands())
	}
	lhs, err := fr.scalar(op, 0)
	if err != nil {
		return err
	}
	rhs, err := fr.scalar(op, 1)
	if err != nil {
		return err
	}

	var r int64
	switch op.Name() {
	case ir.OpAddI:
		r = lhs + rhs
	case ir.OpSubI:
		r = lhs - rhs
	case ir.OpMulI:
		r = lhs * rhs
	case ir.OpDivSI:
		if rhs == 0 {
			return opError(op, ErrCodeDivisionByZero, "%d / 0", lhs)
		}
		r = lhs / rhs
	case ir.OpRemSI:
		if rhs == 0 {
			return opError(op, ErrCodeDivisionByZero, "%d %% 0", lhs)
		}
		r = lhs % rhs
	case ir.OpMinSI:
		r = min(lhs, rhs)
	case ir.OpMaxSI:
		r = max(lhs, rhs)
	}
	fr.env[op.Result(0)] = Int(r)
	return nil
}

func (fr *frame) affineApply(op *ir.Op) error {
	a, ok := op.Attr(ir.AttrMap)
	if !ok {
		return opError(op, ErrCodeUnsupportedOp, "missing %q attribute", ir.AttrMap)
	}
	m, ok := a.(ir.MapAttr)
	if !ok {
		return opError(op, ErrCodeTypeMismatch, "%q attribute is %s", ir.AttrMap, a)
	}
	if op.NumOperands() != m.Map.NumInputs() {
		return opError(op, ErrCodeArity, "map %s takes %d operands, got %d",
			m.Map, m.Map.NumInputs(), op.NumOperands())
	}
	operands, err := fr.scalars(op, 0, op.NumOperands())
	if err != nil {
		return err
	}
	out, err := m.Map.EvalOperands(operands)
	if err != nil {
		return opError(op, ErrCodeDivisionByZero, "%v", err)
	}
	if len(out) != 1 {
		return opError(op, ErrCodeArity, "map %s has %d results, want 1", m.Map, len(out))
	}
	fr.env[op.Result(0)] = Int(out[0])
	return nil
}

func (fr *frame) alloc(op *ir.Op) error {
	a, ok := op.Attr(ir.AttrSize)
	if !ok {
		return opError(op, ErrCodeUnsupportedOp, "missing %q attribute", ir.AttrSize)
	}
	size, ok := a.(ir.IntAttr)
	if !ok || size < 0 {
		return opError(op, ErrCodeTypeMismatch, "invalid size %s", a)
	}
	name := fmt.Sprintf("alloc%d", fr.allocs)
	fr.allocs++
	fr.env[op.Result(0)] = Mem(NewMemRef(name, int(size)))
	return nil
}

func (fr *frame) index(op *ir.Op, buf *MemRef, i int) (int, error) {
	idx, err := fr.scalar(op, i)
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= int64(len(buf.Data)) {
		return 0, opError(op, ErrCodeOutOfBounds, "index %d out of range for %s of size %d",
			idx, buf.Name, len(buf.Data))
	}
	return int(idx), nil
}

func (fr *frame) load(op *ir.Op) error {
	if op.NumOperands() != 2 {
		return opError(op, ErrCodeArity, "want 2 operands, got %d", op.NumOperands())
	}
	buf, err := fr.buffer(op, 0)
	if err != nil {
		return err
	}
	i, err := fr.index(op, buf, 1)
	if err != nil {
		return err
	}
	fr.env[op.Result(0)] = Int(buf.Data[i])
	return nil
}

func (fr *frame) store(op *ir.Op) error {
	if op.NumOperands() != 3 {
		return opError(op, ErrCodeArity, "want 3 operands, got %d", op.NumOperands())
	}
	val, err := fr.scalar(op, 0)
	if err != nil {
		return err
	}
	buf, err := fr.buffer(op, 1)
	if err != nil {
		return err
	}
	i, err := fr.index(op, buf, 2)
	if err != nil {
		return err
	}
	buf.Data[i] = val
	return nil
}

func (fr *frame) parallel(op *ir.Op) error {
	loop, _ := ir.AsParallel(op)
	n := loop.NumLoops()
	if op.NumOperands() != 3*n {
		return opError(op, ErrCodeArity, "want %d bound operands, got %d", 3*n, op.NumOperands())
	}
	bounds, err := fr.scalars(op, 0, 3*n)
	if err != nil {
		return err
	}
	lowers, uppers, steps := bounds[:n], bounds[n:2*n], bounds[2*n:]
	for d, s := range steps {
		if s <= 0 {
			return opError(op, ErrCodeInvalidStep, "step %d of dimension %d is not positive", s, d)
		}
	}

	ivs := loop.InductionVars()
	var iterate func(d int) error
	iterate = func(d int) error {
		if d == n {
			fr.stats.Iterations++
			return fr.runBlock(loop.Body())
		}
		for v := lowers[d]; v < uppers[d]; v += steps[d] {
			fr.env[ivs[d]] = Int(v)
			if err := iterate(d + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return iterate(0)
}

func (fr *frame) launch(op *ir.Op) error {
	l, _ := ir.AsLaunch(op)
	if op.NumOperands() != ir.LaunchNumSizes {
		return opError(op, ErrCodeArity, "want %d size operands, got %d", ir.LaunchNumSizes, op.NumOperands())
	}
	sizes, err := fr.scalars(op, 0, ir.LaunchNumSizes)
	if err != nil {
		return err
	}
	fr.stats.Launches++
	for _, s := range sizes {
		if s <= 0 {
			return nil
		}
	}

	for i, s := range sizes {
		fr.env[l.SizeArg(i)] = Int(s)
	}
	// Positions ordered z, y, x for the grid then the same for the block,
	// so x varies fastest.
	var pos [ir.LaunchNumSizes]int64
	order := [ir.LaunchNumSizes]int{
		ir.GridSizeZ, ir.GridSizeY, ir.GridSizeX,
		ir.BlockSizeZ, ir.BlockSizeY, ir.BlockSizeX,
	}
	var iterate func(d int) error
	iterate = func(d int) error {
		if d == len(order) {
			for i := range pos {
				fr.env[l.HardwareIndex(i)] = Int(pos[i])
			}
			fr.stats.Invocations++
			return fr.runBlock(l.Body())
		}
		dim := order[d]
		for v := int64(0); v < sizes[dim]; v++ {
			pos[dim] = v
			if err := iterate(d + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return iterate(0)
}
