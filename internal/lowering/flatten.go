package lowering

import (
	"slices"

	"github.com/roach88/gpuflat/internal/ir"
)

// Result describes a committed lowering.
type Result struct {
	// Launch is the op that replaced the root.
	Launch ir.LaunchOp

	// Prologue holds the ops inserted in front of the launch: the default
	// size constant followed by one size computation per visited level.
	Prologue []*ir.Op

	// Levels is the number of nesting levels visited (1 to MaxNestingDepth).
	Levels int

	// Loops is the number of loop.parallel ops absorbed, siblings included.
	Loops int

	// Cloned is the number of ops copied into the launch body.
	Cloned int
}

// cursor is an owned slice of the ops still to visit in one loop body.
type cursor []*ir.Op

// flattener holds the state of one attempt on one root. Nothing it creates
// is attached to the function until commit.
type flattener struct {
	root        ir.ParallelOp
	launch      ir.LaunchOp
	defaultSize *ir.Value
	prologue    []*ir.Op
	builder     *ir.Builder
	mapping     *ir.Mapping

	spaces   [MaxNestingDepth]*iterationSpace
	bindings [MaxNestingDepth]*ir.Value
	stack    []cursor

	levels int
	loops  int
	cloned int
}

func newFlattener(root ir.ParallelOp) *flattener {
	loc := root.Loc()
	one := ir.NewConstant(loc, 1, ir.Index)

	var sizes [ir.LaunchNumSizes]*ir.Value
	for i := range sizes {
		sizes[i] = one.Result(0)
	}
	launch := ir.NewLaunch(loc, sizes)

	b := ir.NewBuilder()
	b.SetInsertionPointToStart(launch.Body())

	return &flattener{
		root:        root,
		launch:      launch,
		defaultSize: one.Result(0),
		prologue:    []*ir.Op{one},
		builder:     b,
		mapping:     ir.NewMapping(),
	}
}

// AttemptLower replaces root, a loop.parallel, with a gpu.launch.
//
// On success the launch and its prologue sit where root was and root is
// erased. On failure a *LowerError is returned and the function containing
// root is unchanged.
//
// Bounds and steps of nested loops must be defined outside root; otherwise
// the attempt fails with BOUND_DEFINED_IN_NEST.
func AttemptLower(root *ir.Op) (*Result, error) {
	loop, ok := ir.AsParallel(root)
	if !ok {
		return nil, &LowerError{
			Code:    ErrCodeNotParallel,
			Message: "root is " + root.Name() + ", not " + ir.OpParallel,
			Loc:     root.Loc(),
			Level:   -1,
		}
	}
	if root.Block() == nil {
		return nil, &LowerError{
			Code:    ErrCodeDetachedRoot,
			Message: "root is not inside a block",
			Loc:     root.Loc(),
			Level:   -1,
		}
	}

	f := newFlattener(loop)
	if err := f.run(); err != nil {
		return nil, err
	}
	f.commit()

	return &Result{
		Launch:   f.launch,
		Prologue: f.prologue,
		Levels:   f.levels,
		Loops:    f.loops,
		Cloned:   f.cloned,
	}, nil
}

func (f *flattener) run() error {
	if err := f.enter(f.root); err != nil {
		return err
	}
	for len(f.stack) > 0 {
		if err := f.advance(); err != nil {
			return err
		}
	}
	return nil
}

// enter starts a loop at the level given by the current stack depth.
func (f *flattener) enter(loop ir.ParallelOp) error {
	level := len(f.stack)
	if level >= MaxNestingDepth {
		return newNestingTooDeep(loop, level)
	}
	if loop.NumLoops() != 1 {
		return newMultipleInductionVariables(loop, level)
	}
	if loop.NumOperands() != 3*loop.NumLoops() {
		return newMalformedLoop(loop, level)
	}
	if level > 0 {
		if err := f.checkBoundsOutsideRoot(loop, level); err != nil {
			return err
		}
	}
	if err := reconcile(level, loop, f.spaces[level]); err != nil {
		return err
	}

	if f.spaces[level] == nil {
		_, binding := f.infer(level, loop)
		space := spaceOf(loop)
		f.spaces[level] = &space
		f.bindings[level] = binding
		f.levels = level + 1
	}

	f.mapping.Map(loop.InductionVars()[0], f.bindings[level])
	f.stack = append(f.stack, cursor(slices.Clone(loop.Body().OpsWithoutTerminator())))
	f.loops++
	return nil
}

// advance pops the top cursor and clones its ops until it runs out or meets
// a nested loop. In the latter case the rest of the cursor goes back on the
// stack before the nested loop is entered, so the stack depth still counts
// the enclosing level.
func (f *flattener) advance() error {
	top := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]

	for i, op := range top {
		if nested, ok := ir.AsParallel(op); ok {
			f.stack = append(f.stack, top[i+1:])
			return f.enter(nested)
		}
		f.builder.Clone(op, f.mapping)
		f.cloned++
	}
	return nil
}

// checkBoundsOutsideRoot rejects nested loops whose iteration space is
// computed inside the root. Size computations are placed in front of the
// launch and could not see such values.
func (f *flattener) checkBoundsOutsideRoot(loop ir.ParallelOp, level int) error {
	space := spaceOf(loop)
	parts := []struct {
		name string
		v    *ir.Value
	}{
		{"lower bound", space.lower},
		{"upper bound", space.upper},
		{"step", space.step},
	}
	for _, p := range parts {
		if p.v.IsDefinedInside(f.root.Op) {
			return newBoundDefinedInNest(loop, level, p.name)
		}
	}
	return nil
}

// commit attaches the staged ops in front of the root and erases it.
func (f *flattener) commit() {
	block := f.root.Block()
	for _, op := range f.prologue {
		block.InsertBefore(f.root.Op, op)
	}
	block.InsertBefore(f.root.Op, f.launch.Op)
	f.root.Erase()
}
