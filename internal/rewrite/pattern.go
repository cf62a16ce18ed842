package rewrite

import "github.com/roach88/gpuflat/internal/ir"

// Pattern rewrites a single root op.
type Pattern interface {
	// Name identifies the pattern in remarks and logs.
	Name() string

	// Matches reports whether op is a candidate root.
	Matches(op *ir.Op) bool

	// MatchAndRewrite rewrites op in place. On error the function holding
	// op must be unchanged.
	MatchAndRewrite(op *ir.Op) (*Rewrite, error)
}

// Rewrite is what a successful MatchAndRewrite produced.
type Rewrite struct {
	// Ops are the new top-level ops. They and everything nested in them are
	// marked legal.
	Ops []*ir.Op

	// Details are reported on the "passed" remark.
	Details map[string]string
}

// codedError is implemented by pattern errors that carry a stable code.
type codedError interface {
	ErrorCode() string
}
