package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/gpuflat/internal/ir"
)

// KernelsField is the top-level CUE field holding kernel declarations.
const KernelsField = "kernel"

// Ops accepted in kernel bodies. Launches and affine maps are produced by
// passes, never written by hand.
var sourceOps = map[string]bool{
	ir.OpAddI:  true,
	ir.OpSubI:  true,
	ir.OpMulI:  true,
	ir.OpDivSI: true,
	ir.OpRemSI: true,
	ir.OpMinSI: true,
	ir.OpMaxSI: true,
	ir.OpAlloc: true,
	ir.OpLoad:  true,
	ir.OpStore: true,
}

// CompileModule compiles every kernel declared under the "kernel" field of
// v, in declaration order.
//
//	kernel: scale: {
//		args: [{name: "out", type: "memref"}]
//		body: [
//			{parallel: {iv: "i", lower: 0, upper: 8, step: 1, body: [
//				{op: "memref.store", operands: ["i", "out", "i"]},
//			]}},
//		]
//	}
func CompileModule(v cue.Value) (*ir.Module, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	kernels := v.LookupPath(cue.ParsePath(KernelsField))
	if !kernels.Exists() {
		return nil, errorAt(v, KernelsField, "no kernels declared")
	}

	iter, err := kernels.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	mod := &ir.Module{}
	for iter.Next() {
		fn, err := CompileFunc(iter.Value())
		if err != nil {
			return nil, err
		}
		mod.Funcs = append(mod.Funcs, fn)
	}
	if len(mod.Funcs) == 0 {
		return nil, errorAt(kernels, KernelsField, "no kernels declared")
	}
	return mod, nil
}

// CompileFunc compiles a single kernel. The function name is the last
// selector of v's path.
func CompileFunc(v cue.Value) (*ir.Func, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var name string
	if labels := v.Path().Selectors(); len(labels) > 0 {
		name = labels[len(labels)-1].String()
	}
	if name == "" {
		return nil, errorAt(v, "kernel", "kernel must be a named field")
	}

	argNames, argTypes, err := parseArgs(v)
	if err != nil {
		return nil, err
	}

	loc := locOf(v)
	fc := &funcCompiler{
		fn:       ir.NewFunc(name, loc, argTypes...),
		literals: make(map[int64]*ir.Value),
	}
	fc.fn.ArgNames = argNames

	top := newScope(nil)
	for i, n := range argNames {
		if err := top.define(n, fc.fn.Args()[i], v.LookupPath(cue.ParsePath("args"))); err != nil {
			return nil, err
		}
	}

	body := v.LookupPath(cue.ParsePath("body"))
	if !body.Exists() {
		return nil, errorAt(v, "body", "body is required")
	}
	if err := fc.compileBody(body, fc.fn.Entry(), top); err != nil {
		return nil, err
	}
	fc.fn.Entry().Append(ir.NewReturn(loc))
	return fc.fn, nil
}

func parseArgs(v cue.Value) ([]string, []ir.Type, error) {
	argsVal := v.LookupPath(cue.ParsePath("args"))
	if !argsVal.Exists() {
		return nil, nil, nil
	}
	iter, err := argsVal.List()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}

	var names []string
	var types []ir.Type
	seen := make(map[string]bool)
	for iter.Next() {
		arg := iter.Value()
		name, err := stringField(arg, "name")
		if err != nil {
			return nil, nil, err
		}
		if seen[name] {
			return nil, nil, errorAt(arg, "args", "duplicate argument %q", name)
		}
		seen[name] = true

		typ, err := stringField(arg, "type")
		if err != nil {
			return nil, nil, err
		}
		if !ir.ValidTypes[ir.Type(typ)] {
			return nil, nil, errorAt(arg, "type", "unknown type %q (want index, i64 or memref)", typ)
		}
		names = append(names, name)
		types = append(types, ir.Type(typ))
	}
	return names, types, nil
}

// scope maps source names to values. Nested bodies see outer names and may
// shadow them.
type scope struct {
	names  map[string]*ir.Value
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{names: make(map[string]*ir.Value), parent: parent}
}

func (s *scope) define(name string, v *ir.Value, at cue.Value) error {
	if _, ok := s.names[name]; ok {
		return errorAt(at, "name", "%q is already defined in this scope", name)
	}
	s.names[name] = v
	return nil
}

func (s *scope) lookup(name string) (*ir.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.names[name]; ok {
			return v, true
		}
	}
	return nil, false
}

type funcCompiler struct {
	fn *ir.Func

	// literals interns integer literals used as operands. They live at the
	// top of the entry block, so equal literals are the same value.
	literals map[int64]*ir.Value
	nlit     int
}

func (fc *funcCompiler) literal(n int64) *ir.Value {
	if v, ok := fc.literals[n]; ok {
		return v
	}
	op := ir.NewConstant(fc.fn.Loc, n, ir.Index)
	fc.fn.Entry().InsertAt(fc.nlit, op)
	fc.nlit++
	fc.literals[n] = op.Result(0)
	return op.Result(0)
}

// operand resolves a name or an integer literal.
func (fc *funcCompiler) operand(v cue.Value, sc *scope) (*ir.Value, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return fc.literal(n), nil
	case cue.StringKind:
		name, _ := v.String()
		val, ok := sc.lookup(name)
		if !ok {
			return nil, errorAt(v, "operand", "undefined name %q", name)
		}
		return val, nil
	default:
		return nil, errorAt(v, "operand", "operand must be a name or an integer, got %v", v.Kind())
	}
}

func (fc *funcCompiler) operands(v cue.Value, sc *scope) ([]*ir.Value, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*ir.Value
	for iter.Next() {
		val, err := fc.operand(iter.Value(), sc)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func (fc *funcCompiler) compileBody(body cue.Value, block *ir.Block, sc *scope) error {
	iter, err := body.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fc.compileEntry(iter.Value(), block, sc); err != nil {
			return err
		}
	}
	return nil
}

func (fc *funcCompiler) compileEntry(e cue.Value, block *ir.Block, sc *scope) error {
	var kinds []string
	for _, k := range []string{"const", "op", "parallel"} {
		if e.LookupPath(cue.ParsePath(k)).Exists() {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) != 1 {
		return errorAt(e, "body", "entry must have exactly one of const, op or parallel")
	}

	switch kinds[0] {
	case "const":
		return fc.compileConst(e, block, sc)
	case "op":
		return fc.compileOp(e, block, sc)
	default:
		return fc.compileParallel(e.LookupPath(cue.ParsePath("parallel")), block, sc)
	}
}

func (fc *funcCompiler) compileConst(e cue.Value, block *ir.Block, sc *scope) error {
	n, err := e.LookupPath(cue.ParsePath("const")).Int64()
	if err != nil {
		return formatCUEError(err)
	}
	name, err := stringField(e, "name")
	if err != nil {
		return err
	}
	typ := ir.Index
	if tv := e.LookupPath(cue.ParsePath("type")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return formatCUEError(err)
		}
		typ = ir.Type(s)
		if !typ.IsInteger() {
			return errorAt(tv, "type", "constant type must be index or i64, got %q", s)
		}
	}

	op := ir.NewConstant(locOf(e), n, typ)
	appendOp(block, op)
	return sc.define(name, op.Result(0), e)
}

func (fc *funcCompiler) compileOp(e cue.Value, block *ir.Block, sc *scope) error {
	opName, err := stringField(e, "op")
	if err != nil {
		return err
	}
	if !sourceOps[opName] {
		return errorAt(e, "op", "unsupported op %q", opName)
	}

	var operands []*ir.Value
	if ov := e.LookupPath(cue.ParsePath("operands")); ov.Exists() {
		if operands, err = fc.operands(ov, sc); err != nil {
			return err
		}
	}

	loc := locOf(e)
	want := map[string]int{ir.OpAlloc: 0, ir.OpLoad: 2, ir.OpStore: 3}
	arity, ok := want[opName]
	if !ok {
		arity = 2
	}
	if len(operands) != arity {
		return errorAt(e, "operands", "%s takes %d operands, got %d", opName, arity, len(operands))
	}

	var op *ir.Op
	switch opName {
	case ir.OpAlloc:
		sv := e.LookupPath(cue.ParsePath("size"))
		if !sv.Exists() {
			return errorAt(e, "size", "memref.alloc requires a size")
		}
		size, err := sv.Int64()
		if err != nil {
			return formatCUEError(err)
		}
		if size < 0 {
			return errorAt(sv, "size", "size must not be negative, got %d", size)
		}
		op = ir.NewAlloc(loc, size)
	case ir.OpLoad:
		op = ir.NewLoad(loc, operands[0], operands[1])
	case ir.OpStore:
		op = ir.NewStore(loc, operands[0], operands[1], operands[2])
	default:
		op = ir.NewBinary(opName, loc, operands[0], operands[1])
	}
	appendOp(block, op)

	nameVal := e.LookupPath(cue.ParsePath("name"))
	if op.NumResults() == 0 {
		if nameVal.Exists() {
			return errorAt(nameVal, "name", "%s has no result to name", opName)
		}
		return nil
	}
	if !nameVal.Exists() {
		return nil
	}
	name, err := nameVal.String()
	if err != nil {
		return formatCUEError(err)
	}
	return sc.define(name, op.Result(0), e)
}

func (fc *funcCompiler) compileParallel(p cue.Value, block *ir.Block, sc *scope) error {
	ivs, err := namesOf(p.LookupPath(cue.ParsePath("iv")))
	if err != nil {
		return err
	}
	if len(ivs) == 0 {
		return errorAt(p, "iv", "parallel loop needs at least one induction variable")
	}

	var bounds [3][]*ir.Value
	for i, field := range []string{"lower", "upper", "step"} {
		bv := p.LookupPath(cue.ParsePath(field))
		if !bv.Exists() {
			return errorAt(p, field, "%s is required", field)
		}
		if bv.Kind() == cue.ListKind {
			bounds[i], err = fc.operands(bv, sc)
		} else {
			var v *ir.Value
			v, err = fc.operand(bv, sc)
			bounds[i] = []*ir.Value{v}
		}
		if err != nil {
			return err
		}
		if len(bounds[i]) != len(ivs) {
			return errorAt(bv, field, "%d %s bounds for %d induction variables", len(bounds[i]), field, len(ivs))
		}
	}

	loop := ir.NewParallel(locOf(p), bounds[0], bounds[1], bounds[2])
	appendOp(block, loop.Op)

	inner := newScope(sc)
	for i, iv := range ivs {
		if err := inner.define(iv, loop.InductionVars()[i], p); err != nil {
			return err
		}
	}

	body := p.LookupPath(cue.ParsePath("body"))
	if !body.Exists() {
		return errorAt(p, "body", "parallel loop body is required")
	}
	return fc.compileBody(body, loop.Body(), inner)
}

// namesOf accepts a single name or a list of names.
func namesOf(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	if s, err := v.String(); err == nil {
		return []string{s}, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, errorAt(v, "iv", "must be a name or a list of names")
	}
	var names []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		names = append(names, s)
	}
	return names, nil
}

func stringField(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", errorAt(v, field, "%s is required", field)
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func appendOp(b *ir.Block, op *ir.Op) {
	if term := b.Terminator(); term != nil {
		b.InsertBefore(term, op)
		return
	}
	b.Append(op)
}

func locOf(v cue.Value) ir.Location {
	p := v.Pos()
	if !p.IsValid() {
		return ir.UnknownLoc
	}
	return ir.Location{File: p.Filename(), Line: p.Line(), Col: p.Column()}
}
