package interp

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/roach88/gpuflat/internal/ir"
)

// Bindings holds named inputs for a function call.
type Bindings struct {
	// Scalars maps parameter names to integer values.
	Scalars map[string]int64

	// Buffers maps parameter names to buffers.
	Buffers map[string]*MemRef
}

// NewBindings returns empty bindings.
func NewBindings() *Bindings {
	return &Bindings{
		Scalars: make(map[string]int64),
		Buffers: make(map[string]*MemRef),
	}
}

// SetScalar parses "name=value" and records a scalar binding.
func (b *Bindings) SetScalar(assignment string) error {
	name, raw, err := splitAssignment(assignment)
	if err != nil {
		return err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("argument %s: invalid integer %q", name, raw)
	}
	b.Scalars[name] = v
	return nil
}

// SetBuffer parses a buffer binding. "name=N" allocates N zeroed elements;
// "name=[a,b,c]" provides the contents.
func (b *Bindings) SetBuffer(assignment string) error {
	name, raw, err := splitAssignment(assignment)
	if err != nil {
		return err
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		m := &MemRef{Name: name}
		if inner != "" {
			for _, part := range strings.Split(inner, ",") {
				v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
				if err != nil {
					return fmt.Errorf("buffer %s: invalid element %q", name, part)
				}
				m.Data = append(m.Data, v)
			}
		}
		b.Buffers[name] = m
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fmt.Errorf("buffer %s: invalid size %q", name, raw)
	}
	b.Buffers[name] = NewMemRef(name, n)
	return nil
}

func splitAssignment(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid assignment %q: want name=value", s)
	}
	return name, strings.TrimSpace(value), nil
}

// Bind orders the bindings by fn's parameters. Every parameter must be
// bound with a kind matching its type, and every binding must name a
// parameter.
func (b *Bindings) Bind(fn *ir.Func) ([]Value, error) {
	params := fn.Args()
	if len(fn.ArgNames) != len(params) {
		return nil, fmt.Errorf("function %s has no parameter names", fn.Name)
	}

	args := make([]Value, len(params))
	for i, p := range params {
		name := fn.ArgNames[i]
		if p.Type() == ir.MemRef {
			m, ok := b.Buffers[name]
			if !ok {
				return nil, fmt.Errorf("missing buffer for parameter %s", name)
			}
			args[i] = Mem(m)
			continue
		}
		v, ok := b.Scalars[name]
		if !ok {
			return nil, fmt.Errorf("missing value for parameter %s", name)
		}
		args[i] = Int(v)
	}

	known := lo.SliceToMap(fn.ArgNames, func(n string) (string, bool) { return n, true })
	unknown := lo.Filter(append(lo.Keys(b.Scalars), lo.Keys(b.Buffers)...), func(n string, _ int) bool {
		return !known[n]
	})
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("function %s has no parameter %s", fn.Name, strings.Join(unknown, ", "))
	}
	return args, nil
}

// SortedBuffers returns the bound buffers ordered by name.
func (b *Bindings) SortedBuffers() []*MemRef {
	names := lo.Keys(b.Buffers)
	slices.Sort(names)
	return lo.Map(names, func(n string, _ int) *MemRef { return b.Buffers[n] })
}
