// Package lowering converts a nest of up to three loop.parallel ops into a
// single gpu.launch op.
//
// Nesting levels are called block, warp and thread. They map to launch
// dimensions grid.x, block.y and block.x, in that order. Every op found in
// the nested bodies is cloned into the one launch body in its original
// relative order. Each induction variable is replaced by
// lower + hardwareIndex * step for its level.
//
// TRAVERSAL:
//
// The nest is walked depth first with an explicit stack of cursors. A cursor
// is an owned slice of the ops that are still waiting to be visited in one
// loop body. Popping a cursor clones its plain ops. When a nested loop shows
// up, the rest of the cursor is pushed back and the nested loop is entered.
// The level of a loop is the stack depth at the moment it is entered.
//
// SIBLINGS:
//
// Several loops may share a level. They must all use the same lower bound,
// upper bound and step values (compared by identity, not by evaluation).
// The first loop at a level fixes the launch size and the induction binding.
// Later siblings reuse them.
//
// TRANSACTIONS:
//
// Everything a rewrite creates is staged detached from the function: the
// default size constant, the size computations and the launch op with its
// body. The function is touched only after the whole nest has been walked
// without error. The staged ops are then inserted in front of the root and
// the root is erased. A failed attempt leaves the function exactly as it
// was.
package lowering
