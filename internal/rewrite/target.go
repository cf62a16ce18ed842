package rewrite

import (
	"maps"
	"slices"

	"github.com/roach88/gpuflat/internal/ir"
)

// Target decides which ops may remain after a conversion.
//
// Ops of an illegal dialect are illegal unless they were produced by a
// pattern during this conversion. Every other op, known or not, is legal.
type Target struct {
	illegalDialects map[string]bool
	legal           map[*ir.Op]bool
}

// NewTarget creates a target in which every op is legal.
func NewTarget() *Target {
	return &Target{
		illegalDialects: make(map[string]bool),
		legal:           make(map[*ir.Op]bool),
	}
}

// AddIllegalDialect marks every op of dialect as illegal.
func (t *Target) AddIllegalDialect(dialect string) {
	t.illegalDialects[dialect] = true
}

// IllegalDialects returns the dialects marked illegal, sorted.
func (t *Target) IllegalDialects() []string {
	return slices.Sorted(maps.Keys(t.illegalDialects))
}

// MarkLegal marks op and every op nested in it as legal.
func (t *Target) MarkLegal(op *ir.Op) {
	ir.WalkOp(op, func(o *ir.Op) ir.WalkResult {
		t.legal[o] = true
		return ir.WalkAdvance
	})
}

// IsLegal reports whether op may remain after conversion.
func (t *Target) IsLegal(op *ir.Op) bool {
	if t.legal[op] {
		return true
	}
	return !t.illegalDialects[op.Dialect()]
}

// Illegal returns the illegal ops of f in pre-order.
func (t *Target) Illegal(f *ir.Func) []*ir.Op {
	return f.Collect(func(op *ir.Op) bool { return !t.IsLegal(op) })
}

// clone returns a target with the same dialect rules and no per-op marks.
func (t *Target) clone() *Target {
	out := NewTarget()
	for d := range t.illegalDialects {
		out.illegalDialects[d] = true
	}
	return out
}
