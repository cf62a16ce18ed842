package affine

import (
	"fmt"
	"strings"
)

// Map is a list of affine result expressions over NumDims dimensions and
// NumSyms symbols. Operands are laid out dimensions first, then symbols.
type Map struct {
	NumDims int
	NumSyms int
	Results []Expr
}

// NewMap creates a Map.
func NewMap(numDims, numSyms int, results ...Expr) Map {
	return Map{NumDims: numDims, NumSyms: numSyms, Results: results}
}

// LaunchBoundMap is (d0)[s0, s1] -> ((d0 - s0) ceildiv s1), applied to
// (upper, lower, step). It yields the number of iterations of a loop.
func LaunchBoundMap() Map {
	return NewMap(1, 2, CeilDiv(Sub(Dim(0), Sym(0)), Sym(1)))
}

// InductionMap is (d0)[s0, s1] -> ((d0 * s1) + s0), applied to
// (hardwareIndex, lower, step). It yields the induction variable value for
// a given hardware index.
func InductionMap() Map {
	return NewMap(1, 2, Add(Mul(Dim(0), Sym(1)), Sym(0)))
}

// NumInputs returns the number of operands the map consumes.
func (m Map) NumInputs() int {
	return m.NumDims + m.NumSyms
}

// Validate checks that every result only references declared operands.
func (m Map) Validate() error {
	if len(m.Results) == 0 {
		return fmt.Errorf("affine map has no results")
	}
	for i, r := range m.Results {
		if err := m.validateExpr(r); err != nil {
			return fmt.Errorf("result %d: %w", i, err)
		}
	}
	return nil
}

func (m Map) validateExpr(e Expr) error {
	switch v := e.(type) {
	case DimExpr:
		if v.Pos < 0 || v.Pos >= m.NumDims {
			return fmt.Errorf("d%d not declared (map has %d dims)", v.Pos, m.NumDims)
		}
	case SymExpr:
		if v.Pos < 0 || v.Pos >= m.NumSyms {
			return fmt.Errorf("s%d not declared (map has %d symbols)", v.Pos, m.NumSyms)
		}
	case BinaryExpr:
		if err := m.validateExpr(v.LHS); err != nil {
			return err
		}
		return m.validateExpr(v.RHS)
	}
	return nil
}

// Eval evaluates every result with the given dimension and symbol values.
func (m Map) Eval(dims, syms []int64) ([]int64, error) {
	if len(dims) != m.NumDims || len(syms) != m.NumSyms {
		return nil, fmt.Errorf("affine: map %s expects %d dims and %d symbols, got %d and %d",
			m, m.NumDims, m.NumSyms, len(dims), len(syms))
	}
	out := make([]int64, len(m.Results))
	for i, r := range m.Results {
		v, err := r.eval(dims, syms)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EvalOperands splits operands into dimensions and symbols and evaluates
// the map.
func (m Map) EvalOperands(operands []int64) ([]int64, error) {
	if len(operands) != m.NumInputs() {
		return nil, fmt.Errorf("affine: map %s expects %d operands, got %d", m, m.NumInputs(), len(operands))
	}
	return m.Eval(operands[:m.NumDims], operands[m.NumDims:])
}

// Simplify returns a copy of m with every result simplified.
func (m Map) Simplify() Map {
	results := make([]Expr, len(m.Results))
	for i, r := range m.Results {
		results[i] = Simplify(r)
	}
	return NewMap(m.NumDims, m.NumSyms, results...)
}

// Equal reports structural equality.
func (m Map) Equal(other Map) bool {
	return m.String() == other.String()
}

// String prints the map as (d0, ...)[s0, ...] -> (r0, ...). The symbol list
// is omitted when the map has no symbols.
func (m Map) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < m.NumDims; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "d%d", i)
	}
	sb.WriteByte(')')
	if m.NumSyms > 0 {
		sb.WriteByte('[')
		for i := 0; i < m.NumSyms; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "s%d", i)
		}
		sb.WriteByte(']')
	}
	sb.WriteString(" -> (")
	for i, r := range m.Results {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte(')')
	return sb.String()
}
