package lowering

import (
	"fmt"

	"github.com/roach88/gpuflat/internal/affine"
	"github.com/roach88/gpuflat/internal/ir"
)

// infer derives the launch size and the induction binding for the first
// loop seen at level.
//
// The size ceil((upper - lower) / step) is staged in the prologue, which
// ends up in front of the launch, and written into the level's launch slot.
// The binding lower + hardwareIndex * step is inserted at the builder's
// current point inside the launch body.
func (f *flattener) infer(level int, loop ir.ParallelOp) (size, binding *ir.Value) {
	idx := Level(level).LaunchIndex()
	if f.launch.Size(idx) != f.defaultSize {
		panic(fmt.Sprintf("lowering: launch size %s already set before %s level was visited",
			ir.LaunchDimNames[idx], Level(level)))
	}

	space := spaceOf(loop)
	loc := loop.Loc()

	bound := ir.NewAffineApply(loc, affine.LaunchBoundMap(), space.upper, space.lower, space.step)
	f.prologue = append(f.prologue, bound)
	f.launch.SetSize(idx, bound.Result(0))

	iv := f.builder.Insert(ir.NewAffineApply(loc, affine.InductionMap(),
		f.launch.HardwareIndex(idx), space.lower, space.step))

	return bound.Result(0), iv.Result(0)
}
