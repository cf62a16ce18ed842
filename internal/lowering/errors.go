package lowering

import (
	"errors"
	"fmt"

	"github.com/roach88/gpuflat/internal/ir"
)

// LowerError explains why a root could not be lowered.
//
// A LowerError is a "does not apply" outcome, not a crash. The function is
// left as it was and the driver moves on to the next root.
type LowerError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Loc is the location of the offending loop.
	Loc ir.Location

	// Level is the nesting level at which the problem was found, or -1.
	Level int
}

// ErrorCode categorizes lowering errors.
type ErrorCode string

const (
	// ErrCodeNestingTooDeep indicates a fourth nesting level.
	ErrCodeNestingTooDeep ErrorCode = "NESTING_TOO_DEEP"

	// ErrCodeMultipleInductionVariables indicates a loop without exactly one
	// induction variable.
	ErrCodeMultipleInductionVariables ErrorCode = "MULTIPLE_INDUCTION_VARIABLES"

	// ErrCodeShapeMismatch indicates siblings at one level with different
	// lower bound, upper bound or step values.
	ErrCodeShapeMismatch ErrorCode = "NESTING_LEVEL_SHAPE_MISMATCH"

	// ErrCodeBoundDefinedInNest indicates a nested loop whose bound or step
	// is computed inside the root. Launch sizes are computed before the
	// launch, where such values do not exist.
	ErrCodeBoundDefinedInNest ErrorCode = "BOUND_DEFINED_IN_NEST"

	// ErrCodeMalformedLoop indicates a loop whose operand list does not hold
	// one lower bound, upper bound and step per induction variable.
	ErrCodeMalformedLoop ErrorCode = "MALFORMED_LOOP"

	// ErrCodeNotParallel indicates a root that is not a loop.parallel.
	ErrCodeNotParallel ErrorCode = "NOT_A_PARALLEL_LOOP"

	// ErrCodeDetachedRoot indicates a root that is not inside a block.
	ErrCodeDetachedRoot ErrorCode = "DETACHED_ROOT"
)

// Error implements the error interface.
func (e *LowerError) Error() string {
	if e.Loc.IsKnown() {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Loc)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the code as a string so callers outside this package can
// report it without importing the code constants.
func (e *LowerError) ErrorCode() string {
	return string(e.Code)
}

// CodeOf returns the code of a LowerError anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var le *LowerError
	if errors.As(err, &le) {
		return le.Code, true
	}
	return "", false
}

// IsNestingTooDeep returns true if the error is a nesting depth error.
// Uses errors.As to handle wrapped errors.
func IsNestingTooDeep(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeNestingTooDeep
}

// IsMultipleInductionVariables returns true if the error rejects a loop with
// more than one induction variable.
func IsMultipleInductionVariables(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeMultipleInductionVariables
}

// IsShapeMismatch returns true if the error is a sibling shape mismatch.
func IsShapeMismatch(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeShapeMismatch
}

// IsBoundDefinedInNest returns true if the error rejects a bound computed
// inside the nest.
func IsBoundDefinedInNest(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeBoundDefinedInNest
}

func newNestingTooDeep(loop ir.ParallelOp, level int) *LowerError {
	return &LowerError{
		Code:    ErrCodeNestingTooDeep,
		Message: fmt.Sprintf("loop is nested too deeply (level %d, at most %d levels)", level, MaxNestingDepth),
		Loc:     loop.Loc(),
		Level:   level,
	}
}

func newMultipleInductionVariables(loop ir.ParallelOp, level int) *LowerError {
	return &LowerError{
		Code:    ErrCodeMultipleInductionVariables,
		Message: fmt.Sprintf("loop should have a single induction variable, has %d", loop.NumLoops()),
		Loc:     loop.Loc(),
		Level:   level,
	}
}

func newMalformedLoop(loop ir.ParallelOp, level int) *LowerError {
	return &LowerError{
		Code: ErrCodeMalformedLoop,
		Message: fmt.Sprintf("loop has %d operands, want 3 per induction variable (%d)",
			loop.NumOperands(), 3*loop.NumLoops()),
		Loc:   loop.Loc(),
		Level: level,
	}
}

func newShapeMismatch(loop ir.ParallelOp, level int, part string) *LowerError {
	return &LowerError{
		Code: ErrCodeShapeMismatch,
		Message: fmt.Sprintf("loop should have the same iteration space as other loops on %s level (%s differs)",
			Level(level), part),
		Loc:   loop.Loc(),
		Level: level,
	}
}

func newBoundDefinedInNest(loop ir.ParallelOp, level int, part string) *LowerError {
	return &LowerError{
		Code:    ErrCodeBoundDefinedInNest,
		Message: fmt.Sprintf("%s of loop on %s level is defined inside the nest", part, Level(level)),
		Loc:     loop.Loc(),
		Level:   level,
	}
}
