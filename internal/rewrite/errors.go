package rewrite

import (
	"errors"
	"fmt"
	"strings"
)

// ConversionError reports a conversion that did not reach the target.
type ConversionError struct {
	// Code identifies the error category.
	Code ConversionErrorCode

	// Func names the function being converted.
	Func string

	// Message is a human-readable description.
	Message string

	// Illegal lists the location and name of each op left illegal.
	Illegal []string
}

// ConversionErrorCode categorizes conversion errors.
type ConversionErrorCode string

const (
	// ErrCodeLegalizationFailed indicates illegal ops remain after a full
	// conversion.
	ErrCodeLegalizationFailed ConversionErrorCode = "LEGALIZATION_FAILED"
)

// Error implements the error interface.
func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s: %s (func=%s)", e.Code, e.Message, e.Func)
	if len(e.Illegal) > 0 {
		msg += ": " + strings.Join(e.Illegal, ", ")
	}
	return msg
}

// IsLegalizationError returns true if the error is a failed full conversion.
// Uses errors.As to handle wrapped errors.
func IsLegalizationError(err error) bool {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeLegalizationFailed
	}
	return false
}
