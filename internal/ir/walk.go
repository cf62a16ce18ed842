package ir

// WalkResult controls traversal in Walk.
type WalkResult int

const (
	// WalkAdvance continues into the op's regions and then its successors.
	WalkAdvance WalkResult = iota
	// WalkSkip continues with the op's successors without visiting its regions.
	WalkSkip
	// WalkInterrupt stops the traversal.
	WalkInterrupt
)

// Walk visits ops of b and everything nested in them in pre-order.
// Returns false if the traversal was interrupted.
func Walk(b *Block, visit func(*Op) WalkResult) bool {
	for _, op := range b.ops {
		if !WalkOp(op, visit) {
			return false
		}
	}
	return true
}

// WalkOp visits op and everything nested in it in pre-order.
func WalkOp(op *Op, visit func(*Op) WalkResult) bool {
	switch visit(op) {
	case WalkInterrupt:
		return false
	case WalkSkip:
		return true
	}
	for _, r := range op.regions {
		for _, b := range r.blocks {
			if !Walk(b, visit) {
				return false
			}
		}
	}
	return true
}

// Walk visits every op of f in pre-order.
func (f *Func) Walk(visit func(*Op) WalkResult) bool {
	return Walk(f.Entry(), visit)
}

// Count returns the number of ops in f named name, at any depth.
func (f *Func) Count(name string) int {
	n := 0
	f.Walk(func(op *Op) WalkResult {
		if op.name == name {
			n++
		}
		return WalkAdvance
	})
	return n
}

// Collect returns every op of f for which match returns true, in pre-order.
func (f *Func) Collect(match func(*Op) bool) []*Op {
	var out []*Op
	f.Walk(func(op *Op) WalkResult {
		if match(op) {
			out = append(out, op)
		}
		return WalkAdvance
	})
	return out
}
