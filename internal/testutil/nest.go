package testutil

import (
	"github.com/roach88/gpuflat/internal/ir"
)

// Space is a constant iteration space [Lower, Upper) with Step.
type Space struct {
	Lower, Upper, Step int64
}

// NestBuilder assembles functions made of loop nests for tests.
//
// Index constants are created once per value in the entry block, so two
// loops built from the same Space share their bound values and count as the
// same iteration space.
type NestBuilder struct {
	fn     *ir.Func
	consts map[int64]*ir.Value
	nconst int
	loc    ir.Location
}

// NewNestBuilder starts a function named name.
func NewNestBuilder(name string, argTypes ...ir.Type) *NestBuilder {
	return &NestBuilder{
		fn:     ir.NewFunc(name, ir.UnknownLoc, argTypes...),
		consts: make(map[int64]*ir.Value),
	}
}

// At sets the location given to ops built afterwards.
func (nb *NestBuilder) At(line, col int) *NestBuilder {
	nb.loc = ir.Location{File: "test.cue", Line: line, Col: col}
	return nb
}

// Func returns the function under construction.
func (nb *NestBuilder) Func() *ir.Func { return nb.fn }

// Entry returns the function's entry block.
func (nb *NestBuilder) Entry() *ir.Block { return nb.fn.Entry() }

// Arg returns function parameter i.
func (nb *NestBuilder) Arg(i int) *ir.Value { return nb.fn.Args()[i] }

// Index returns the shared index constant v. Constants are kept at the top
// of the entry block, ahead of every loop.
func (nb *NestBuilder) Index(v int64) *ir.Value {
	if c, ok := nb.consts[v]; ok {
		return c
	}
	c := nb.FreshIndex(v)
	nb.consts[v] = c
	return c
}

// FreshIndex creates an index constant that is never shared.
func (nb *NestBuilder) FreshIndex(v int64) *ir.Value {
	op := ir.NewConstant(nb.loc, v, ir.Index)
	nb.Entry().InsertAt(nb.nconst, op)
	nb.nconst++
	return op.Result(0)
}

// Loop appends a single induction variable loop over s to parent.
func (nb *NestBuilder) Loop(parent *ir.Block, s Space) ir.ParallelOp {
	return nb.LoopOver(parent, nb.Index(s.Lower), nb.Index(s.Upper), nb.Index(s.Step))
}

// LoopOver appends a single induction variable loop with explicit bounds.
func (nb *NestBuilder) LoopOver(parent *ir.Block, lower, upper, step *ir.Value) ir.ParallelOp {
	loop := ir.NewParallel(nb.loc, []*ir.Value{lower}, []*ir.Value{upper}, []*ir.Value{step})
	Append(parent, loop.Op)
	return loop
}

// MultiLoop appends a loop with one induction variable per space.
func (nb *NestBuilder) MultiLoop(parent *ir.Block, spaces ...Space) ir.ParallelOp {
	var lowers, uppers, steps []*ir.Value
	for _, s := range spaces {
		lowers = append(lowers, nb.Index(s.Lower))
		uppers = append(uppers, nb.Index(s.Upper))
		steps = append(steps, nb.Index(s.Step))
	}
	loop := ir.NewParallel(nb.loc, lowers, uppers, steps)
	Append(parent, loop.Op)
	return loop
}

// Chain appends a perfectly nested chain of loops, one per space, to parent
// and calls body with the innermost block and the induction variables from
// outermost to innermost. It returns the loops, outermost first.
func (nb *NestBuilder) Chain(parent *ir.Block, spaces []Space, body func(inner *ir.Block, ivs []*ir.Value)) []ir.ParallelOp {
	loops := make([]ir.ParallelOp, 0, len(spaces))
	ivs := make([]*ir.Value, 0, len(spaces))
	block := parent
	for _, s := range spaces {
		loop := nb.Loop(block, s)
		loops = append(loops, loop)
		ivs = append(ivs, loop.InductionVars()[0])
		block = loop.Body()
	}
	if body != nil {
		body(block, ivs)
	}
	return loops
}

// Finish terminates the entry block with func.return and returns the
// function.
func (nb *NestBuilder) Finish() *ir.Func {
	if nb.Entry().Terminator() == nil {
		nb.Entry().Append(ir.NewReturn(nb.loc))
	}
	return nb.fn
}

// Append inserts op at the end of b, in front of b's terminator if it has
// one.
func Append(b *ir.Block, op *ir.Op) *ir.Op {
	if term := b.Terminator(); term != nil {
		b.InsertBefore(term, op)
	} else {
		b.Append(op)
	}
	return op
}
