package ir

import (
	"fmt"
	"slices"
)

// Mapping substitutes values while cloning. It is keyed by value identity
// and owned by a single rewrite; it is not safe for concurrent use.
type Mapping struct {
	values map[*Value]*Value
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[*Value]*Value)}
}

// Map records that from is replaced by to.
func (m *Mapping) Map(from, to *Value) {
	m.values[from] = to
}

// MapAll maps from[i] to to[i].
func (m *Mapping) MapAll(from, to []*Value) {
	if len(from) != len(to) {
		panic(fmt.Sprintf("ir: mapping %d values onto %d", len(from), len(to)))
	}
	for i := range from {
		m.values[from[i]] = to[i]
	}
}

// Lookup returns the replacement for v and whether one exists.
func (m *Mapping) Lookup(v *Value) (*Value, bool) {
	r, ok := m.values[v]
	return r, ok
}

// LookupOrDefault returns the replacement for v, or v itself.
func (m *Mapping) LookupOrDefault(v *Value) *Value {
	if r, ok := m.values[v]; ok {
		return r
	}
	return v
}

// Len returns the number of mapped values.
func (m *Mapping) Len() int { return len(m.values) }

// Clone returns a detached deep copy of op. Operands are substituted through
// mapping; results and nested block arguments of the copy are recorded in
// mapping so later clones resolve to them.
func Clone(op *Op, mapping *Mapping) *Op {
	operands := make([]*Value, len(op.operands))
	for i, v := range op.operands {
		operands[i] = mapping.LookupOrDefault(v)
	}
	resultTypes := make([]Type, len(op.results))
	for i, r := range op.results {
		resultTypes[i] = r.typ
	}

	clone := NewOp(op.name, op.loc, operands, resultTypes, op.attrs, len(op.regions))
	mapping.MapAll(op.results, clone.results)

	for i, region := range op.regions {
		for _, block := range region.blocks {
			argTypes := make([]Type, len(block.args))
			for j, a := range block.args {
				argTypes[j] = a.typ
			}
			nb := NewBlock(argTypes...)
			mapping.MapAll(block.args, nb.args)
			clone.regions[i].AddBlock(nb)
			for _, inner := range block.ops {
				nb.Append(Clone(inner, mapping))
			}
		}
	}
	return clone
}

// Builder creates ops at a single movable insertion point. Each inserted op
// advances the point so consecutive inserts keep their order.
type Builder struct {
	block *Block
	index int
}

// NewBuilder creates a builder without an insertion point.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetInsertionPointToStart places the point before the first op of b.
func (bld *Builder) SetInsertionPointToStart(b *Block) {
	bld.block = b
	bld.index = 0
}

// SetInsertionPointToEnd places the point after the last op of b.
func (bld *Builder) SetInsertionPointToEnd(b *Block) {
	bld.block = b
	bld.index = len(b.ops)
}

// SetInsertionPointBefore places the point immediately before op.
func (bld *Builder) SetInsertionPointBefore(op *Op) {
	if op.block == nil {
		panic(fmt.Sprintf("ir: insertion point before detached op %s", op.name))
	}
	bld.block = op.block
	bld.index = op.block.IndexOf(op)
}

// InsertionBlock returns the block receiving new ops.
func (bld *Builder) InsertionBlock() *Block { return bld.block }

// Insert places a detached op at the insertion point and returns it.
func (bld *Builder) Insert(op *Op) *Op {
	if bld.block == nil {
		panic("ir: builder has no insertion point")
	}
	bld.block.InsertAt(bld.index, op)
	bld.index++
	return op
}

// Create builds an op and inserts it at the insertion point.
func (bld *Builder) Create(name string, loc Location, operands []*Value, resultTypes []Type, attrs map[string]Attr) *Op {
	return bld.Insert(NewOp(name, loc, operands, resultTypes, attrs, 0))
}

// Clone deep-copies op through mapping and inserts the copy.
func (bld *Builder) Clone(op *Op, mapping *Mapping) *Op {
	return bld.Insert(Clone(op, mapping))
}

// CloneFunc returns a deep copy of f. The copy shares no values with f.
func CloneFunc(f *Func) *Func {
	argTypes := make([]Type, len(f.Args()))
	for i, a := range f.Args() {
		argTypes[i] = a.typ
	}
	out := NewFunc(f.Name, f.Loc, argTypes...)
	out.ArgNames = slices.Clone(f.ArgNames)
	mapping := NewMapping()
	mapping.MapAll(f.Args(), out.Args())
	for _, op := range f.Entry().ops {
		out.Entry().Append(Clone(op, mapping))
	}
	return out
}

// CloneModule deep-copies every function of m.
func CloneModule(m *Module) *Module {
	out := &Module{Funcs: make([]*Func, len(m.Funcs))}
	for i, f := range m.Funcs {
		out.Funcs[i] = CloneFunc(f)
	}
	return out
}
