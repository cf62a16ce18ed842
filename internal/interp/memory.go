package interp

import (
	"fmt"
	"strconv"
	"strings"
)

// MemRef is a flat buffer of 64-bit integers.
type MemRef struct {
	Name string
	Data []int64
}

// NewMemRef allocates a zeroed buffer of size elements.
func NewMemRef(name string, size int) *MemRef {
	return &MemRef{Name: name, Data: make([]int64, size)}
}

// Clone returns a deep copy of m.
func (m *MemRef) Clone() *MemRef {
	return &MemRef{Name: m.Name, Data: append([]int64(nil), m.Data...)}
}

// Fill sets element i to f(i) for every element.
func (m *MemRef) Fill(f func(i int) int64) {
	for i := range m.Data {
		m.Data[i] = f(i)
	}
}

func (m *MemRef) String() string {
	parts := make([]string, len(m.Data))
	for i, v := range m.Data {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("%s[%d] = [%s]", m.Name, len(m.Data), strings.Join(parts, ", "))
}

// Value is a runtime value: a scalar integer or a buffer.
type Value struct {
	Int int64
	Mem *MemRef
}

// Int wraps a scalar.
func Int(v int64) Value { return Value{Int: v} }

// Mem wraps a buffer.
func Mem(m *MemRef) Value { return Value{Mem: m} }

// IsMem reports whether v holds a buffer.
func (v Value) IsMem() bool { return v.Mem != nil }

func (v Value) String() string {
	if v.Mem != nil {
		return v.Mem.String()
	}
	return strconv.FormatInt(v.Int, 10)
}
