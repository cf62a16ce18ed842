// Package affine builds and evaluates integer affine expressions.
//
// Expressions are trees over dimension operands (d0, d1, ...), symbol
// operands (s0, s1, ...) and integer constants. A Map binds a list of result
// expressions to a fixed number of dimensions and symbols, matching the
// operand layout of an affine.apply op: dimensions first, then symbols.
//
// This package has no internal dependencies. ir imports it for the
// affine.apply map attribute.
package affine

import (
	"errors"
	"fmt"
)

// ErrDivisionByZero is returned when a floordiv, ceildiv or mod has a zero divisor.
var ErrDivisionByZero = errors.New("affine: division by zero")

// Expr is a sealed interface over the affine expression node types.
type Expr interface {
	String() string
	eval(dims, syms []int64) (int64, error)
	affineExpr() // Sealed
}

// DimExpr references dimension operand Pos.
type DimExpr struct{ Pos int }

// SymExpr references symbol operand Pos.
type SymExpr struct{ Pos int }

// ConstExpr is an integer literal.
type ConstExpr struct{ Value int64 }

// Kind identifies a binary affine operation.
type Kind int

const (
	KindAdd Kind = iota
	KindSub
	KindMul
	KindFloorDiv
	KindCeilDiv
	KindMod
)

var kindSpelling = map[Kind]string{
	KindAdd:      "+",
	KindSub:      "-",
	KindMul:      "*",
	KindFloorDiv: "floordiv",
	KindCeilDiv:  "ceildiv",
	KindMod:      "mod",
}

func (k Kind) String() string {
	if s, ok := kindSpelling[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// BinaryExpr applies Kind to LHS and RHS.
type BinaryExpr struct {
	Kind Kind
	LHS  Expr
	RHS  Expr
}

func (DimExpr) affineExpr()    {}
func (SymExpr) affineExpr()    {}
func (ConstExpr) affineExpr()  {}
func (BinaryExpr) affineExpr() {}

// Dim returns the expression for dimension operand pos.
func Dim(pos int) Expr { return DimExpr{Pos: pos} }

// Sym returns the expression for symbol operand pos.
func Sym(pos int) Expr { return SymExpr{Pos: pos} }

// Const returns a constant expression.
func Const(v int64) Expr { return ConstExpr{Value: v} }

// Add returns lhs + rhs.
func Add(lhs, rhs Expr) Expr { return BinaryExpr{Kind: KindAdd, LHS: lhs, RHS: rhs} }

// Sub returns lhs - rhs.
func Sub(lhs, rhs Expr) Expr { return BinaryExpr{Kind: KindSub, LHS: lhs, RHS: rhs} }

// Mul returns lhs * rhs.
func Mul(lhs, rhs Expr) Expr { return BinaryExpr{Kind: KindMul, LHS: lhs, RHS: rhs} }

// FloorDiv returns lhs floordiv rhs.
func FloorDiv(lhs, rhs Expr) Expr { return BinaryExpr{Kind: KindFloorDiv, LHS: lhs, RHS: rhs} }

// CeilDiv returns lhs ceildiv rhs.
func CeilDiv(lhs, rhs Expr) Expr { return BinaryExpr{Kind: KindCeilDiv, LHS: lhs, RHS: rhs} }

// Mod returns lhs mod rhs.
func Mod(lhs, rhs Expr) Expr { return BinaryExpr{Kind: KindMod, LHS: lhs, RHS: rhs} }

func (e DimExpr) String() string   { return fmt.Sprintf("d%d", e.Pos) }
func (e SymExpr) String() string   { return fmt.Sprintf("s%d", e.Pos) }
func (e ConstExpr) String() string { return fmt.Sprintf("%d", e.Value) }

func (e BinaryExpr) String() string {
	return fmt.Sprintf("%s %s %s", operandString(e.LHS), e.Kind, operandString(e.RHS))
}

// operandString parenthesizes nested binary expressions so printing never
// depends on precedence rules.
func operandString(e Expr) string {
	if _, ok := e.(BinaryExpr); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func (e DimExpr) eval(dims, _ []int64) (int64, error) {
	if e.Pos < 0 || e.Pos >= len(dims) {
		return 0, fmt.Errorf("affine: d%d out of range (%d dims)", e.Pos, len(dims))
	}
	return dims[e.Pos], nil
}

func (e SymExpr) eval(_, syms []int64) (int64, error) {
	if e.Pos < 0 || e.Pos >= len(syms) {
		return 0, fmt.Errorf("affine: s%d out of range (%d symbols)", e.Pos, len(syms))
	}
	return syms[e.Pos], nil
}

func (e ConstExpr) eval(_, _ []int64) (int64, error) {
	return e.Value, nil
}

func (e BinaryExpr) eval(dims, syms []int64) (int64, error) {
	lhs, err := e.LHS.eval(dims, syms)
	if err != nil {
		return 0, err
	}
	rhs, err := e.RHS.eval(dims, syms)
	if err != nil {
		return 0, err
	}
	return apply(e.Kind, lhs, rhs)
}

func apply(kind Kind, lhs, rhs int64) (int64, error) {
	switch kind {
	case KindAdd:
		return lhs + rhs, nil
	case KindSub:
		return lhs - rhs, nil
	case KindMul:
		return lhs * rhs, nil
	case KindFloorDiv:
		if rhs == 0 {
			return 0, ErrDivisionByZero
		}
		return floorDiv(lhs, rhs), nil
	case KindCeilDiv:
		if rhs == 0 {
			return 0, ErrDivisionByZero
		}
		return ceilDiv(lhs, rhs), nil
	case KindMod:
		if rhs == 0 {
			return 0, ErrDivisionByZero
		}
		return mod(lhs, rhs), nil
	default:
		return 0, fmt.Errorf("affine: unknown kind %v", kind)
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q
}

func mod(a, b int64) int64 {
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

// Simplify folds constant sub-expressions and the identities x+0, x-0,
// x*1, x*0, x floordiv 1, x ceildiv 1 and x mod 1. Divisions by a constant
// zero are left in place so evaluation still reports them.
func Simplify(e Expr) Expr {
	b, ok := e.(BinaryExpr)
	if !ok {
		return e
	}
	lhs := Simplify(b.LHS)
	rhs := Simplify(b.RHS)

	lc, lconst := lhs.(ConstExpr)
	rc, rconst := rhs.(ConstExpr)
	if lconst && rconst {
		if v, err := apply(b.Kind, lc.Value, rc.Value); err == nil {
			return Const(v)
		}
	}

	switch b.Kind {
	case KindAdd:
		if lconst && lc.Value == 0 {
			return rhs
		}
		if rconst && rc.Value == 0 {
			return lhs
		}
	case KindSub:
		if rconst && rc.Value == 0 {
			return lhs
		}
	case KindMul:
		if (lconst && lc.Value == 0) || (rconst && rc.Value == 0) {
			return Const(0)
		}
		if lconst && lc.Value == 1 {
			return rhs
		}
		if rconst && rc.Value == 1 {
			return lhs
		}
	case KindFloorDiv, KindCeilDiv:
		if rconst && rc.Value == 1 {
			return lhs
		}
	case KindMod:
		if rconst && rc.Value == 1 {
			return Const(0)
		}
	}
	return BinaryExpr{Kind: b.Kind, LHS: lhs, RHS: rhs}
}
