// Package harness runs lowering scenarios described in YAML files.
//
// A scenario names CUE kernel files, the function to lower, the conversion
// mode and optional inputs for the interpreter. The harness compiles and
// verifies the kernels, runs the pass driver with a deterministic clock and
// run id, journals remarks to an in-memory store and evaluates assertions
// against the outcome.
//
// Assertions:
//   - remark_contains: a remark of a kind (and code) was emitted
//   - remark_count: exactly N remarks of a kind were emitted
//   - remark_order: remark kinds appear in this order
//   - launch_sizes: the static grid and block sizes of a launch
//   - loops_remaining: the number of loop.parallel ops left
//   - equivalent: the interpreter computes the same buffers before and
//     after lowering
//   - unchanged: the IR fingerprint did not change
//
// Lowered IR text can be compared against golden files with RunWithGolden.
package harness
