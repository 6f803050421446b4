package goflux

import "github.com/njchilds90/goflux/symbolic"

// DerivativeU returns the forward difference (f(u+h, v) - f(u, v)) / h of
// every component as an expression. Absent components become 0. h must be
// finite.
func DerivativeU(f symbolic.Vector, h float64) symbolic.Vector {
	return forwardDifference(f, "u", h)
}

// DerivativeV is DerivativeU in the v direction.
func DerivativeV(f symbolic.Vector, h float64) symbolic.Vector {
	return forwardDifference(f, "v", h)
}

func forwardDifference(f symbolic.Vector, param string, h float64) symbolic.Vector {
	step := symbolic.NFloat(h)
	shifted := symbolic.AddOf(symbolic.S(param), step)
	var out symbolic.Vector
	for i, fi := range f {
		if fi == nil {
			out[i] = symbolic.N(0)
			continue
		}
		out[i] = symbolic.QuoOf(symbolic.SubOf(fi.Sub(param, shifted), fi), step)
	}
	return out
}
