package harness

import (
	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/rewrite"
)

// Outcome classifies how a scenario's conversion ended.
type Outcome string

const (
	// OutcomeConverged means no illegal op remains.
	OutcomeConverged Outcome = "converged"

	// OutcomePartial means a partial conversion left illegal ops.
	OutcomePartial Outcome = "partial"

	// OutcomeFailed means a full conversion failed and rolled back.
	OutcomeFailed Outcome = "failed"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expect clause and all assertions match.
	Pass bool `json:"pass"`

	// Outcome is how the conversion ended.
	Outcome Outcome `json:"outcome"`

	// Remarks are the remarks journaled for the run, in seq order.
	Remarks []rewrite.Remark `json:"remarks"`

	// Reports holds one report per converted function.
	Reports []*rewrite.Report `json:"reports"`

	// IR is the printed module after conversion.
	IR string `json:"ir"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// before and after hold the module around the conversion.
	before *ir.Module
	after  *ir.Module
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Remarks: []rewrite.Remark{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
