package rewrite

import (
	"context"

	"github.com/roach88/gpuflat/internal/ir"
)

// RemarkKind classifies a remark.
type RemarkKind string

const (
	// RemarkPassed records a root that was rewritten.
	RemarkPassed RemarkKind = "passed"

	// RemarkMissed records a root the pattern did not apply to.
	RemarkMissed RemarkKind = "missed"

	// RemarkAnalysis records a function-level fact, e.g. illegal ops left
	// after the conversion.
	RemarkAnalysis RemarkKind = "analysis"
)

// Remark is one diagnostic emitted by the driver.
type Remark struct {
	Seq     int64             `json:"seq"`
	RunID   string            `json:"run_id"`
	Func    string            `json:"func"`
	Pattern string            `json:"pattern,omitempty"`
	Kind    RemarkKind        `json:"kind"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Loc     ir.Location       `json:"loc"`
	Details map[string]string `json:"details,omitempty"`
}

// RemarkSink receives remarks in seq order. Implemented by store.Store.
type RemarkSink interface {
	Record(ctx context.Context, r Remark) error
}
