package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Type is the type of a Value.
type Type string

const (
	Index  Type = "index"
	I64    Type = "i64"
	MemRef Type = "memref"
)

// ValidTypes defines the types accepted by the front end.
var ValidTypes = map[Type]bool{
	Index:  true,
	I64:    true,
	MemRef: true,
}

// IsInteger reports whether values of t hold a scalar integer.
func (t Type) IsInteger() bool {
	return t == Index || t == I64
}

// Location is a source position carried by every op.
type Location struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
}

// UnknownLoc is the zero Location.
var UnknownLoc = Location{}

// IsKnown reports whether the location carries a line number.
func (l Location) IsKnown() bool {
	return l.Line > 0
}

func (l Location) String() string {
	if !l.IsKnown() {
		return "unknown"
	}
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Col)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// Value is an SSA value: either the result of an Op or an argument of a Block.
type Value struct {
	typ   Type
	def   *Op    // defining op, nil for block arguments
	block *Block // owning block, nil for op results
	index int    // result number or argument number
}

// Type returns the value's type.
func (v *Value) Type() Type { return v.typ }

// DefiningOp returns the op producing v, or nil for a block argument.
func (v *Value) DefiningOp() *Op { return v.def }

// OwnerBlock returns the block declaring v as an argument, or nil.
func (v *Value) OwnerBlock() *Block { return v.block }

// Index returns the result or argument number of v.
func (v *Value) Index() int { return v.index }

// IsBlockArg reports whether v is a block argument.
func (v *Value) IsBlockArg() bool { return v.block != nil }

// ParentBlock returns the block in which v becomes available.
func (v *Value) ParentBlock() *Block {
	if v.block != nil {
		return v.block
	}
	if v.def != nil {
		return v.def.block
	}
	return nil
}

// IsDefinedInside reports whether v is defined within one of op's regions,
// at any depth.
func (v *Value) IsDefinedInside(op *Op) bool {
	b := v.ParentBlock()
	if v.def == op {
		return false
	}
	for b != nil {
		parent := b.ParentOp()
		if parent == nil {
			return false
		}
		if parent == op {
			return true
		}
		b = parent.block
	}
	return false
}

// Op is a single IR operation.
type Op struct {
	name     string
	loc      Location
	operands []*Value
	results  []*Value
	attrs    map[string]Attr
	regions  []*Region
	block    *Block
}

// NewOp creates a detached op. Regions are created empty and owned by the op.
func NewOp(name string, loc Location, operands []*Value, resultTypes []Type, attrs map[string]Attr, numRegions int) *Op {
	op := &Op{
		name:     name,
		loc:      loc,
		operands: slices.Clone(operands),
		attrs:    make(map[string]Attr, len(attrs)),
	}
	for k, a := range attrs {
		op.attrs[k] = a
	}
	op.results = make([]*Value, len(resultTypes))
	for i, t := range resultTypes {
		op.results[i] = &Value{typ: t, def: op, index: i}
	}
	op.regions = make([]*Region, numRegions)
	for i := range op.regions {
		op.regions[i] = &Region{parent: op}
	}
	return op
}

// Name returns the fully qualified op name, e.g. "arith.addi".
func (op *Op) Name() string { return op.name }

// Dialect returns the prefix of the op name before the first dot.
func (op *Op) Dialect() string {
	if i := strings.IndexByte(op.name, '.'); i >= 0 {
		return op.name[:i]
	}
	return op.name
}

// Loc returns the op's source location.
func (op *Op) Loc() Location { return op.loc }

// Operands returns the operand list. Callers must not modify it.
func (op *Op) Operands() []*Value { return op.operands }

// NumOperands returns the operand count.
func (op *Op) NumOperands() int { return len(op.operands) }

// Operand returns operand i.
func (op *Op) Operand(i int) *Value { return op.operands[i] }

// SetOperand replaces operand i.
func (op *Op) SetOperand(i int, v *Value) { op.operands[i] = v }

// Results returns the result list. Callers must not modify it.
func (op *Op) Results() []*Value { return op.results }

// NumResults returns the result count.
func (op *Op) NumResults() int { return len(op.results) }

// Result returns result i.
func (op *Op) Result(i int) *Value { return op.results[i] }

// Attr returns the attribute stored under key.
func (op *Op) Attr(key string) (Attr, bool) {
	a, ok := op.attrs[key]
	return a, ok
}

// SetAttr stores an attribute.
func (op *Op) SetAttr(key string, a Attr) { op.attrs[key] = a }

// Attrs returns the attribute dictionary. Callers must not modify it.
func (op *Op) Attrs() map[string]Attr { return op.attrs }

// Regions returns the op's regions.
func (op *Op) Regions() []*Region { return op.regions }

// Region returns region i.
func (op *Op) Region(i int) *Region { return op.regions[i] }

// Block returns the block containing op, or nil if op is detached.
func (op *Op) Block() *Block { return op.block }

// ParentOp returns the op whose region contains op, or nil.
func (op *Op) ParentOp() *Op {
	if op.block == nil {
		return nil
	}
	return op.block.ParentOp()
}

// IsProperAncestorOf reports whether other is nested (at any depth) inside
// one of op's regions.
func (op *Op) IsProperAncestorOf(other *Op) bool {
	for p := other.ParentOp(); p != nil; p = p.ParentOp() {
		if p == op {
			return true
		}
	}
	return false
}

// Erase removes op from its block. The op and its regions must no longer
// be referenced afterwards.
func (op *Op) Erase() {
	if op.block != nil {
		op.block.Remove(op)
	}
}

// Block is an ordered list of ops with typed arguments.
type Block struct {
	args   []*Value
	ops    []*Op
	region *Region
}

// NewBlock creates a detached block with arguments of the given types.
func NewBlock(argTypes ...Type) *Block {
	b := &Block{}
	for _, t := range argTypes {
		b.AddArg(t)
	}
	return b
}

// AddArg appends a block argument.
func (b *Block) AddArg(t Type) *Value {
	v := &Value{typ: t, block: b, index: len(b.args)}
	b.args = append(b.args, v)
	return v
}

// Args returns the block arguments. Callers must not modify the slice.
func (b *Block) Args() []*Value { return b.args }

// Arg returns argument i.
func (b *Block) Arg(i int) *Value { return b.args[i] }

// Ops returns the ops of the block in order. Callers must not modify the slice.
func (b *Block) Ops() []*Op { return b.ops }

// Len returns the number of ops.
func (b *Block) Len() int { return len(b.ops) }

// Region returns the owning region.
func (b *Block) Region() *Region { return b.region }

// ParentOp returns the op owning the block's region, or nil for a function body.
func (b *Block) ParentOp() *Op {
	if b.region == nil {
		return nil
	}
	return b.region.parent
}

// Terminator returns the last op if it is a terminator.
func (b *Block) Terminator() *Op {
	if len(b.ops) == 0 {
		return nil
	}
	last := b.ops[len(b.ops)-1]
	if !IsTerminator(last) {
		return nil
	}
	return last
}

// OpsWithoutTerminator returns the ops preceding the terminator.
func (b *Block) OpsWithoutTerminator() []*Op {
	if b.Terminator() != nil {
		return b.ops[:len(b.ops)-1]
	}
	return b.ops
}

// IndexOf returns the position of op in the block, or -1.
func (b *Block) IndexOf(op *Op) int {
	return slices.Index(b.ops, op)
}

// InsertAt inserts op at position i. The op must be detached.
func (b *Block) InsertAt(i int, op *Op) {
	if op.block != nil {
		panic(fmt.Sprintf("ir: inserting op %s that is already attached", op.name))
	}
	b.ops = slices.Insert(b.ops, i, op)
	op.block = b
}

// Append inserts op at the end of the block.
func (b *Block) Append(op *Op) {
	b.InsertAt(len(b.ops), op)
}

// InsertBefore inserts op immediately before anchor.
func (b *Block) InsertBefore(anchor, op *Op) {
	i := b.IndexOf(anchor)
	if i < 0 {
		panic(fmt.Sprintf("ir: anchor %s is not in block", anchor.name))
	}
	b.InsertAt(i, op)
}

// Remove detaches op from the block.
func (b *Block) Remove(op *Op) {
	i := b.IndexOf(op)
	if i < 0 {
		return
	}
	b.ops = slices.Delete(b.ops, i, i+1)
	op.block = nil
}

// Region is a list of blocks owned by an op or a function.
type Region struct {
	blocks []*Block
	parent *Op
}

// Blocks returns the region's blocks.
func (r *Region) Blocks() []*Block { return r.blocks }

// Front returns the entry block, or nil if the region is empty.
func (r *Region) Front() *Block {
	if len(r.blocks) == 0 {
		return nil
	}
	return r.blocks[0]
}

// ParentOp returns the op owning the region, or nil for a function body.
func (r *Region) ParentOp() *Op { return r.parent }

// AddBlock appends b to the region.
func (r *Region) AddBlock(b *Block) {
	b.region = r
	r.blocks = append(r.blocks, b)
}

// Func is a named function with a single-block body whose arguments are the
// function parameters.
type Func struct {
	Name string
	Loc  Location
	// ArgNames holds the source names of the parameters, if known.
	ArgNames []string
	body     *Region
}

// NewFunc creates a function with an empty entry block.
func NewFunc(name string, loc Location, argTypes ...Type) *Func {
	f := &Func{Name: name, Loc: loc, body: &Region{}}
	f.body.AddBlock(NewBlock(argTypes...))
	return f
}

// Body returns the function's region.
func (f *Func) Body() *Region { return f.body }

// Entry returns the function's entry block.
func (f *Func) Entry() *Block { return f.body.Front() }

// Args returns the function parameters.
func (f *Func) Args() []*Value { return f.Entry().Args() }

// Adopt replaces f's body with other's. Values of the old body, parameters
// included, are no longer part of f afterwards. other is left empty.
func (f *Func) Adopt(other *Func) {
	f.body = other.body
	other.body = &Region{}
	other.body.AddBlock(NewBlock())
}

// Module is an ordered collection of functions.
type Module struct {
	Funcs []*Func
}

// Lookup returns the function with the given name.
func (m *Module) Lookup(name string) (*Func, bool) {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Names returns function names in declaration order.
func (m *Module) Names() []string {
	names := make([]string, len(m.Funcs))
	for i, f := range m.Funcs {
		names[i] = f.Name
	}
	return names
}
