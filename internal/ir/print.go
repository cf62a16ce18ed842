package ir

import (
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
)

// namer numbers values in the order the printer first meets them.
type namer struct {
	ids map[*Value]int
}

func newNamer() *namer {
	return &namer{ids: make(map[*Value]int)}
}

func (n *namer) define(v *Value) string {
	if _, ok := n.ids[v]; !ok {
		n.ids[v] = len(n.ids)
	}
	return n.name(v)
}

// name returns %N for a numbered value. Values that have not been defined
// yet print as %? so a dangling reference is visible rather than hidden.
func (n *namer) name(v *Value) string {
	id, ok := n.ids[v]
	if !ok {
		return "%?"
	}
	return fmt.Sprintf("%%%d", id)
}

func (n *namer) id(v *Value) int {
	id, ok := n.ids[v]
	if !ok {
		return -1
	}
	return id
}

// Print returns the textual form of f.
func Print(f *Func) string {
	var sb strings.Builder
	FprintFunc(&sb, f)
	return sb.String()
}

// PrintModule returns the textual form of every function in m, separated by
// blank lines.
func PrintModule(m *Module) string {
	return strings.Join(lo.Map(m.Funcs, func(f *Func, _ int) string {
		return Print(f)
	}), "\n")
}

// FprintFunc writes the textual form of f to w.
func FprintFunc(w io.Writer, f *Func) {
	n := newNamer()
	args := lo.Map(f.Args(), func(a *Value, _ int) string {
		return fmt.Sprintf("%s: %s", n.define(a), a.typ)
	})
	fmt.Fprintf(w, "func @%s(%s) {\n", f.Name, strings.Join(args, ", "))
	for _, op := range f.Entry().ops {
		printOp(w, n, op, 1)
	}
	fmt.Fprintln(w, "}")
}

func printOp(w io.Writer, n *namer, op *Op, depth int) {
	indent := strings.Repeat("  ", depth)
	var sb strings.Builder
	sb.WriteString(indent)

	// Operands resolve before results are defined so an op never reads
	// its own results.
	operands := lo.Map(op.operands, func(v *Value, _ int) string { return n.name(v) })

	if len(op.results) > 0 {
		results := lo.Map(op.results, func(v *Value, _ int) string { return n.define(v) })
		sb.WriteString(strings.Join(results, ", "))
		sb.WriteString(" = ")
	}
	sb.WriteString(op.name)
	sb.WriteByte('(')
	sb.WriteString(strings.Join(operands, ", "))
	sb.WriteByte(')')

	if len(op.attrs) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(DictAttr(op.attrs).String())
	}
	if len(op.results) > 0 {
		types := lo.Map(op.results, func(v *Value, _ int) string { return string(v.typ) })
		sb.WriteString(" : ")
		sb.WriteString(strings.Join(types, ", "))
	}

	if len(op.regions) == 0 {
		fmt.Fprintln(w, sb.String())
		return
	}

	sb.WriteString(" {")
	fmt.Fprintln(w, sb.String())
	for _, r := range op.regions {
		for bi, b := range r.blocks {
			if len(b.args) > 0 {
				args := lo.Map(b.args, func(a *Value, _ int) string {
					return fmt.Sprintf("%s: %s", n.define(a), a.typ)
				})
				fmt.Fprintf(w, "%s^bb%d(%s):\n", indent, bi, strings.Join(args, ", "))
			}
			for _, inner := range b.ops {
				printOp(w, n, inner, depth+1)
			}
		}
	}
	fmt.Fprintf(w, "%s}\n", indent)
}
