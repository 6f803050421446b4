package symbolic

import "strings"

// ============================================================
// Vector — three-component expression vector
// ============================================================

// Vector holds up to three components. A nil entry is an absent component;
// arithmetic treats it as zero.
type Vector [3]Expr

// VectorOf builds a Vector from the first three components. Missing trailing
// components stay nil; extra ones are ignored.
func VectorOf(components ...Expr) Vector {
	var v Vector
	copy(v[:], components)
	return v
}

// Len is the index one past the last present component.
func (v Vector) Len() int {
	for i := 2; i >= 0; i-- {
		if v[i] != nil {
			return i + 1
		}
	}
	return 0
}

func (v Vector) at(i int) Expr {
	if v[i] == nil {
		return N(0)
	}
	return v[i]
}

// Component returns the i-th component, or ErrMissingComponent.
func (v Vector) Component(i int) (Expr, error) {
	if i < 0 || i > 2 || v[i] == nil {
		return nil, ErrMissingComponent
	}
	return v[i], nil
}

// Cross returns a × b with absent components read as zero.
func Cross(a, b Vector) Vector {
	return Vector{
		SubOf(MulOf(a.at(1), b.at(2)), MulOf(a.at(2), b.at(1))),
		SubOf(MulOf(a.at(2), b.at(0)), MulOf(a.at(0), b.at(2))),
		SubOf(MulOf(a.at(0), b.at(1)), MulOf(a.at(1), b.at(0))),
	}
}

// Dot returns a · b with absent components read as zero.
func Dot(a, b Vector) Expr {
	return AddOf(
		MulOf(a.at(0), b.at(0)),
		MulOf(a.at(1), b.at(1)),
		MulOf(a.at(2), b.at(2)),
	)
}

// Scale multiplies every present component by k.
func Scale(v Vector, k Expr) Vector {
	var out Vector
	for i, c := range v {
		if c != nil {
			out[i] = MulOf(k, c)
		}
	}
	return out
}

// Sub substitutes value for varName in every present component.
func (v Vector) Sub(varName string, value Expr) Vector {
	var out Vector
	for i, c := range v {
		if c != nil {
			out[i] = c.Sub(varName, value)
		}
	}
	return out
}

// Diff differentiates every present component.
func (v Vector) Diff(varName string) Vector {
	var out Vector
	for i, c := range v {
		if c != nil {
			out[i] = c.Diff(varName)
		}
	}
	return out
}

func (v Vector) String() string {
	parts := make([]string, v.Len())
	for i := range parts {
		if v[i] == nil {
			parts[i] = "_"
		} else {
			parts[i] = v[i].String()
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
