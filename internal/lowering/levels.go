package lowering

import (
	"fmt"

	"github.com/roach88/gpuflat/internal/ir"
)

// MaxNestingDepth is the number of loop levels a launch can absorb.
const MaxNestingDepth = 3

// Level is a position in the root-to-leaf chain of a nest.
type Level int

const (
	LevelBlock Level = iota
	LevelWarp
	LevelThread
)

var levelNames = [MaxNestingDepth]string{"block", "warp", "thread"}

func (l Level) String() string {
	if l < 0 || int(l) >= MaxNestingDepth {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// nestingToLaunchIdx maps a level to the launch size position it drives.
// Block ids use blockIdx.x, warp ids threadIdx.y and thread ids threadIdx.x.
var nestingToLaunchIdx = [MaxNestingDepth]int{
	LevelBlock:  ir.GridSizeX,
	LevelWarp:   ir.BlockSizeY,
	LevelThread: ir.BlockSizeX,
}

// LaunchIndex returns the launch size position for l.
func (l Level) LaunchIndex() int {
	return nestingToLaunchIdx[l]
}

// iterationSpace is the (lower, upper, step) triple of a single induction
// variable loop. Triples compare by value identity.
type iterationSpace struct {
	lower, upper, step *ir.Value
}

func spaceOf(loop ir.ParallelOp) iterationSpace {
	return iterationSpace{
		lower: loop.LowerBounds()[0],
		upper: loop.UpperBounds()[0],
		step:  loop.Steps()[0],
	}
}

// reconcile checks loop against the iteration space already recorded for
// its level. A nil canonical space means the level is visited for the first
// time and always succeeds.
func reconcile(level int, loop ir.ParallelOp, canonical *iterationSpace) error {
	if canonical == nil {
		return nil
	}
	got := spaceOf(loop)
	switch {
	case got.lower != canonical.lower:
		return newShapeMismatch(loop, level, "lower bound")
	case got.upper != canonical.upper:
		return newShapeMismatch(loop, level, "upper bound")
	case got.step != canonical.step:
		return newShapeMismatch(loop, level, "step")
	}
	return nil
}
