package lowering

import (
	"github.com/roach88/gpuflat/internal/ir"
)

// maxFoldDepth bounds the chain of affine.apply ops FoldIndex follows.
const maxFoldDepth = 16

// FoldIndex evaluates v at compile time when it is an arith.constant or an
// affine.apply whose operands fold in turn.
func FoldIndex(v *ir.Value) (int64, bool) {
	return foldIndex(v, 0)
}

func foldIndex(v *ir.Value, depth int) (int64, bool) {
	if v == nil || depth > maxFoldDepth {
		return 0, false
	}
	def := v.DefiningOp()
	if def == nil {
		return 0, false
	}
	switch def.Name() {
	case ir.OpConstant:
		return ir.IntAttrOf(def, ir.AttrValue)
	case ir.OpAffineApply:
		m, ok := ir.MapAttrOf(def, ir.AttrMap)
		if !ok || len(m.Results) != 1 {
			return 0, false
		}
		operands := make([]int64, def.NumOperands())
		for i, o := range def.Operands() {
			c, ok := foldIndex(o, depth+1)
			if !ok {
				return 0, false
			}
			operands[i] = c
		}
		out, err := m.EvalOperands(operands)
		if err != nil {
			return 0, false
		}
		return out[0], true
	}
	return 0, false
}

// StaticLaunchSizes folds every size operand of launch. The second result
// reports which positions folded; positions that did not fold hold 0.
func StaticLaunchSizes(launch ir.LaunchOp) (sizes [ir.LaunchNumSizes]int64, known [ir.LaunchNumSizes]bool) {
	for i := range sizes {
		sizes[i], known[i] = FoldIndex(launch.Size(i))
	}
	return sizes, known
}
