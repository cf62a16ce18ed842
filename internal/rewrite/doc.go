// Package rewrite drives patterns over functions and checks that the result
// is legal.
//
// The driver collects the outermost ops a pattern matches, in pre-order, and
// offers each one to the pattern independently. A failed attempt is routine:
// it becomes a "missed" remark and the driver moves on. Every op a pattern
// produces is marked legal, so clones of arbitrary ops survive the final
// legality check. Only ops of illegal dialects that are still present at the
// end make a full conversion fail.
//
// CRITICAL PATTERNS:
//
// Logical Clock
// Remarks are stamped with a monotonic seq from Clock.Next(), never with
// wall-clock time.
//
// Deterministic ordering
// Roots are attempted in pre-order. RunModule lowers functions concurrently
// because each function is owned by exactly one goroutine, but remarks are
// stamped and recorded in function declaration order after all workers
// finish.
//
// Full conversion
// In ModeFull the driver rewrites a private copy of the function and
// adopts it only when no illegal op remains, so a failed conversion leaves
// the function untouched.
package rewrite
