package compiler

import (
	"fmt"

	"github.com/roach88/gpuflat/internal/ir"
)

// Verification error codes (E200-E299)
const (
	ErrUnknownOp         = "E200" // op not understood by any component
	ErrArity             = "E201" // wrong operand, result or region count
	ErrAttribute         = "E202" // missing or malformed attribute
	ErrOperandType       = "E203" // operand of the wrong type
	ErrTerminator        = "E204" // missing, misplaced or wrong terminator
	ErrUseBeforeDef      = "E205" // operand not visible at its use
	ErrParallelShape     = "E206" // loop bounds do not match induction variables
	ErrLaunchShape       = "E207" // launch sizes or body arguments malformed
	ErrTypeNotRecognized = "E208" // value of an unknown type
)

// ValidationError represents a structural error in a function.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Verify checks the structure of fn.
// Returns all errors found (does not fail-fast).
func Verify(fn *ir.Func) []ValidationError {
	v := &verifier{fn: fn, visible: make(map[*ir.Value]bool)}
	if fn.Entry() == nil {
		return []ValidationError{{Field: fn.Name, Message: "function has no body", Code: ErrTerminator}}
	}
	v.block(fn.Entry(), ir.OpReturn)
	return v.errs
}

// VerifyModule verifies every function in declaration order.
func VerifyModule(m *ir.Module) []ValidationError {
	var errs []ValidationError
	for _, fn := range m.Funcs {
		errs = append(errs, Verify(fn)...)
	}
	return errs
}

type verifier struct {
	fn      *ir.Func
	visible map[*ir.Value]bool
	errs    []ValidationError
}

func (v *verifier) report(op *ir.Op, code, format string, args ...any) {
	field := v.fn.Name
	line := v.fn.Loc.Line
	if op != nil {
		field = fmt.Sprintf("%s.%s", v.fn.Name, op.Name())
		line = op.Loc().Line
	}
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		Line:    line,
	})
}

// block verifies b, whose last op must be named terminator. Values defined
// in b are visible to later ops of b and to nested regions only.
func (v *verifier) block(b *ir.Block, terminator string) {
	var added []*ir.Value
	defer func() {
		for _, val := range added {
			delete(v.visible, val)
		}
	}()

	for _, a := range b.Args() {
		if !ir.ValidTypes[a.Type()] {
			v.report(b.ParentOp(), ErrTypeNotRecognized, "block argument %d has unknown type %q", a.Index(), a.Type())
		}
		v.visible[a] = true
		added = append(added, a)
	}

	ops := b.Ops()
	for i, op := range ops {
		if ir.IsTerminator(op) && i != len(ops)-1 {
			v.report(op, ErrTerminator, "%s must be the last op of its block", op.Name())
		}
		v.op(op)
		for _, r := range op.Results() {
			v.visible[r] = true
			added = append(added, r)
		}
	}

	if len(ops) == 0 || ops[len(ops)-1].Name() != terminator {
		v.report(b.ParentOp(), ErrTerminator, "block must end with %s", terminator)
	}
}

func (v *verifier) op(op *ir.Op) {
	for i, val := range op.Operands() {
		if val == nil || !v.visible[val] {
			v.report(op, ErrUseBeforeDef, "operand %d is not defined before use", i)
		}
	}

	switch name := op.Name(); {
	case name == ir.OpConstant:
		v.shape(op, 0, 1, 0)
		a, ok := op.Attr(ir.AttrValue)
		if _, isInt := a.(ir.IntAttr); !ok || !isInt {
			v.report(op, ErrAttribute, "%q must be an integer attribute", ir.AttrValue)
		}
		if op.NumResults() == 1 && !op.Result(0).Type().IsInteger() {
			v.report(op, ErrOperandType, "constant must produce an integer")
		}
	case ir.BinaryArithOps[name]:
		if v.shape(op, 2, 1, 0) {
			v.integers(op, 0, 1)
		}
	case name == ir.OpAffineApply:
		v.affineApply(op)
	case name == ir.OpAlloc:
		v.shape(op, 0, 1, 0)
		a, ok := op.Attr(ir.AttrSize)
		if size, isInt := a.(ir.IntAttr); !ok || !isInt || size < 0 {
			v.report(op, ErrAttribute, "%q must be a non-negative integer", ir.AttrSize)
		}
	case name == ir.OpLoad:
		if v.shape(op, 2, 1, 0) {
			v.memref(op, 0)
			v.integers(op, 1)
		}
	case name == ir.OpStore:
		if v.shape(op, 3, 0, 0) {
			v.integers(op, 0, 2)
			v.memref(op, 1)
		}
	case name == ir.OpParallel:
		v.parallel(op)
	case name == ir.OpLaunch:
		v.launch(op)
	case ir.IsTerminator(op):
		v.shape(op, 0, 0, 0)
	default:
		v.report(op, ErrUnknownOp, "unknown op %q", name)
	}
}

// shape checks operand, result and region counts and reports whether they
// match.
func (v *verifier) shape(op *ir.Op, operands, results, regions int) bool {
	ok := true
	if op.NumOperands() != operands {
		v.report(op, ErrArity, "want %d operands, got %d", operands, op.NumOperands())
		ok = false
	}
	if op.NumResults() != results {
		v.report(op, ErrArity, "want %d results, got %d", results, op.NumResults())
		ok = false
	}
	if len(op.Regions()) != regions {
		v.report(op, ErrArity, "want %d regions, got %d", regions, len(op.Regions()))
		ok = false
	}
	return ok
}

func (v *verifier) integers(op *ir.Op, idx ...int) {
	for _, i := range idx {
		if val := op.Operand(i); val != nil && !val.Type().IsInteger() {
			v.report(op, ErrOperandType, "operand %d must be an integer, got %s", i, val.Type())
		}
	}
}

func (v *verifier) memref(op *ir.Op, i int) {
	if val := op.Operand(i); val != nil && val.Type() != ir.MemRef {
		v.report(op, ErrOperandType, "operand %d must be a memref, got %s", i, val.Type())
	}
}

func (v *verifier) affineApply(op *ir.Op) {
	a, ok := op.Attr(ir.AttrMap)
	m, isMap := a.(ir.MapAttr)
	if !ok || !isMap {
		v.report(op, ErrAttribute, "%q must be an affine map", ir.AttrMap)
		return
	}
	if err := m.Map.Validate(); err != nil {
		v.report(op, ErrAttribute, "invalid map: %v", err)
	}
	if len(m.Map.Results) != 1 {
		v.report(op, ErrAttribute, "map must have one result, has %d", len(m.Map.Results))
	}
	if !v.shape(op, m.Map.NumInputs(), 1, 0) {
		return
	}
	all := make([]int, op.NumOperands())
	for i := range all {
		all[i] = i
	}
	v.integers(op, all...)
}

func (v *verifier) parallel(op *ir.Op) {
	if len(op.Regions()) != 1 || len(op.Region(0).Blocks()) != 1 {
		v.report(op, ErrParallelShape, "loop must have one region with one block")
		return
	}
	loop, _ := ir.AsParallel(op)
	n := loop.NumLoops()
	if n == 0 {
		v.report(op, ErrParallelShape, "loop has no induction variables")
	}
	if op.NumOperands() != 3*n {
		v.report(op, ErrParallelShape, "%d bound operands for %d induction variables", op.NumOperands(), n)
	} else {
		all := make([]int, op.NumOperands())
		for i := range all {
			all[i] = i
		}
		v.integers(op, all...)
	}
	if op.NumResults() != 0 {
		v.report(op, ErrArity, "loop must not produce results")
	}
	for i, iv := range loop.InductionVars() {
		if iv.Type() != ir.Index {
			v.report(op, ErrParallelShape, "induction variable %d must be index, got %s", i, iv.Type())
		}
	}
	v.block(loop.Body(), ir.OpYield)
}

func (v *verifier) launch(op *ir.Op) {
	if len(op.Regions()) != 1 || len(op.Region(0).Blocks()) != 1 {
		v.report(op, ErrLaunchShape, "launch must have one region with one block")
		return
	}
	if op.NumOperands() != ir.LaunchNumSizes {
		v.report(op, ErrLaunchShape, "want %d size operands, got %d", ir.LaunchNumSizes, op.NumOperands())
	} else {
		all := make([]int, ir.LaunchNumSizes)
		for i := range all {
			all[i] = i
		}
		v.integers(op, all...)
	}
	l, _ := ir.AsLaunch(op)
	if got := len(l.Body().Args()); got != 2*ir.LaunchNumSizes {
		v.report(op, ErrLaunchShape, "want %d body arguments, got %d", 2*ir.LaunchNumSizes, got)
	}
	v.block(l.Body(), ir.OpGPUTerminator)
}
