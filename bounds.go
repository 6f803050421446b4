package goflux

import (
	"fmt"
	"math"

	"github.com/njchilds90/goflux/symbolic"
)

// Bound is an integration limit: a constant, or for v an expression in u.
// The zero Bound is the constant 0.
type Bound struct{ expr symbolic.Expr }

// Const returns a constant bound. It panics on NaN or ±Inf.
func Const(c float64) Bound { return Bound{expr: symbolic.NFloat(c)} }

// BoundOf wraps an expression as a bound.
func BoundOf(e symbolic.Expr) Bound { return Bound{expr: e} }

// ParseBound parses text such as "4 - u" or "pi".
func ParseBound(text string) (Bound, error) {
	e, err := symbolic.Parse(text)
	if err != nil {
		return Bound{}, err
	}
	return Bound{expr: e}, nil
}

// Expr returns the bound as an expression.
func (b Bound) Expr() symbolic.Expr {
	if b.expr == nil {
		return symbolic.N(0)
	}
	return b.expr
}

func (b Bound) String() string { return b.Expr().String() }

// Range is a closed-open parameter interval [Lower, Upper).
type Range struct{ Lower, Upper Bound }

// Span returns the constant range [lo, hi).
func Span(lo, hi float64) Range { return Range{Lower: Const(lo), Upper: Const(hi)} }

// RangeOf returns the range between two expressions.
func RangeOf(lo, hi symbolic.Expr) Range { return Range{Lower: BoundOf(lo), Upper: BoundOf(hi)} }

func (r Range) String() string { return "[" + r.Lower.String() + ", " + r.Upper.String() + ")" }

// constant resolves a bound that may not reference any symbol.
func (b Bound) constant(label string) (float64, error) {
	p, err := symbolic.Compile(b.Expr())
	if err != nil {
		return 0, fmt.Errorf("goflux: %s bound %s: %w: %w", label, b, ErrBound, err)
	}
	c := p(nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, fmt.Errorf("goflux: %s bound %s is %v: %w", label, b, c, ErrBound)
	}
	return c, nil
}

// rowBound is a v limit resolved for each grid value of u.
type rowBound func(u float64) (float64, error)

func (b Bound) perRow(label string) (rowBound, error) {
	p, err := symbolic.Compile(b.Expr(), "u")
	if err != nil {
		return nil, fmt.Errorf("goflux: %s bound %s: %w: %w", label, b, ErrBound, err)
	}
	return func(u float64) (float64, error) {
		args := [1]float64{u}
		c := p(args[:])
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return 0, fmt.Errorf("goflux: %s bound %s is %v at u=%g: %w", label, b, c, u, ErrBound)
		}
		return c, nil
	}, nil
}
