// Package interp executes IR functions on integer scalars and flat buffers.
//
// It exists to check lowering results: running a function before and after
// the parallel-to-launch rewrite must leave the same buffer contents.
package interp
