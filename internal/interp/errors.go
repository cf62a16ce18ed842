package interp

import (
	"errors"
	"fmt"

	"github.com/roach88/gpuflat/internal/ir"
)

// RuntimeError represents an error detected while interpreting a function.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Op names the op being executed, if any.
	Op string

	// Loc is the location of that op.
	Loc ir.Location
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeOutOfBounds indicates a load or store outside its buffer.
	ErrCodeOutOfBounds RuntimeErrorCode = "OUT_OF_BOUNDS"

	// ErrCodeDivisionByZero indicates an integer or affine division by zero.
	ErrCodeDivisionByZero RuntimeErrorCode = "DIVISION_BY_ZERO"

	// ErrCodeInvalidStep indicates a loop step that is not positive.
	ErrCodeInvalidStep RuntimeErrorCode = "INVALID_STEP"

	// ErrCodeStepsExceeded indicates the step quota ran out.
	ErrCodeStepsExceeded RuntimeErrorCode = "STEPS_EXCEEDED"

	// ErrCodeUnsupportedOp indicates an op the interpreter cannot execute.
	ErrCodeUnsupportedOp RuntimeErrorCode = "UNSUPPORTED_OP"

	// ErrCodeTypeMismatch indicates a scalar where a buffer was expected or
	// the other way round.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"

	// ErrCodeArity indicates a wrong number of operands or arguments.
	ErrCodeArity RuntimeErrorCode = "ARITY"

	// ErrCodeUndefinedValue indicates an operand with no value yet.
	ErrCodeUndefinedValue RuntimeErrorCode = "UNDEFINED_VALUE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Op != "" && e.Loc.IsKnown() {
		return fmt.Sprintf("%s: %s (op=%s, at %s)", e.Code, e.Message, e.Op, e.Loc)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Op)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRuntimeError returns true if err carries a RuntimeError with code.
// Uses errors.As to handle wrapped errors.
func IsRuntimeError(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStepsExceeded returns true if the step quota ran out.
func IsStepsExceeded(err error) bool {
	return IsRuntimeError(err, ErrCodeStepsExceeded)
}

func opError(op *ir.Op, code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Op:      op.Name(),
		Loc:     op.Loc(),
	}
}
