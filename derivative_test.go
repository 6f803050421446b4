package goflux_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/goflux"
	sym "github.com/njchilds90/goflux/symbolic"
)

// at evaluates an expression in u and v.
func at(t *testing.T, e sym.Expr, u, v float64) float64 {
	t.Helper()
	p, err := sym.Compile(e, "u", "v")
	require.NoError(t, err)
	return p.Call(u, v)
}

// ============================================================
// DerivativeU / DerivativeV
// ============================================================

func TestDerivativeAbsentComponents(t *testing.T) {
	r := sym.VectorOf(sym.MustParse("u*v"))
	for _, d := range []sym.Vector{goflux.DerivativeU(r, 0.5), goflux.DerivativeV(r, 0.5)} {
		for i := 1; i < 3; i++ {
			require.NotNil(t, d[i])
			assert.Truef(t, d[i].Equal(sym.N(0)), "component %d: got %s", i, d[i])
		}
	}
}

func TestDerivativeDoesNotMutate(t *testing.T) {
	r := vec(t, "u*cos(v)", "u*sin(v)", "u**2")
	before := r.String()
	first := r[0]
	goflux.DerivativeU(r, 0.1)
	goflux.DerivativeV(r, 0.1)
	assert.Equal(t, before, r.String())
	assert.Same(t, first, r[0])
}

func TestDerivativeShiftsOneParameter(t *testing.T) {
	r := vec(t, "v**2", "u**2", "u + v")
	du := goflux.DerivativeU(r, 0.25)
	dv := goflux.DerivativeV(r, 0.25)

	// v**2 does not move in u, u**2 does not move in v.
	assert.Equal(t, 0.0, at(t, du[0], 1.5, 2))
	assert.Equal(t, 0.0, at(t, dv[1], 1.5, 2))

	// (u + h)^2 - u^2 over h is 2u + h.
	assert.InDelta(t, 3.25, at(t, du[1], 1.5, 2), 1e-12)
	assert.InDelta(t, 4.25, at(t, dv[0], 1.5, 2), 1e-12)

	assert.InDelta(t, 1, at(t, du[2], 1.5, 2), 1e-12)
	assert.InDelta(t, 1, at(t, dv[2], 1.5, 2), 1e-12)
}

func TestDerivativeFirstOrder(t *testing.T) {
	r := vec(t, "u**2*v**2", "exp(u*v)", "sin(u)*exp(v)")
	exactU := r.Diff("u")
	exactV := r.Diff("v")
	const u, v = 1.0, 2.0

	for i := range r {
		errU := func(h float64) float64 {
			return math.Abs(at(t, goflux.DerivativeU(r, h)[i], u, v) - at(t, exactU[i], u, v))
		}
		errV := func(h float64) float64 {
			return math.Abs(at(t, goflux.DerivativeV(r, h)[i], u, v) - at(t, exactV[i], u, v))
		}
		// Halving h halves the error of a forward difference.
		assert.InDeltaf(t, 2, errU(0.01)/errU(0.005), 0.05, "u, component %d", i)
		assert.InDeltaf(t, 2, errV(0.01)/errV(0.005), 0.05, "v, component %d", i)
	}
}

// ============================================================
// SubstituteComponent
// ============================================================

func TestSubstituteComponent(t *testing.T) {
	got, err := goflux.SubstituteComponent(sym.MustParse("x*y + z"), vec(t, "u", "v", "u - v"))
	require.NoError(t, err)
	assert.InDelta(t, 6+2-3, at(t, got, 2, 3), 1e-12)
}

func TestSubstituteComponentErrors(t *testing.T) {
	r := vec(t, "u", "v", "0")

	_, err := goflux.SubstituteComponent(nil, r)
	assert.ErrorIs(t, err, sym.ErrMissingComponent)

	// A short surface fails even for a component that never reads z.
	_, err = goflux.SubstituteComponent(sym.MustParse("x"), vec(t, "u", "v"))
	assert.ErrorIs(t, err, sym.ErrMissingComponent)
	_, err = goflux.SubstituteComponent(sym.N(1), vec(t, "u", "v"))
	assert.ErrorIs(t, err, sym.ErrMissingComponent)

	_, err = goflux.SubstituteComponent(sym.MustParse("a*x"), r)
	assert.ErrorIs(t, err, sym.ErrUnboundSymbol)
}

// ============================================================
// Integrand
// ============================================================

func TestIntegrand(t *testing.T) {
	// The normal of the unit square is (0, 0, 1), scaled by dx².
	e, err := goflux.Integrand(vec(t, "x", "y", "2"), vec(t, "u", "v", "0"), 0.5, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, at(t, e, 0.3, 0.7), 1e-12)
}

func TestIntegrandDegradesFreeSymbols(t *testing.T) {
	// a*x cannot be put on the surface, so only the z component counts.
	e, err := goflux.Integrand(vec(t, "a*x", "0", "1"), vec(t, "u", "v", "0"), 0.5, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, at(t, e, 0.3, 0.7), 1e-12)

	got := flux(t, []string{"a*x", "0", "1"}, []string{"u", "v", "0"},
		[2]string{"0", "1"}, [2]string{"0", "1"}, 0.25)
	assert.InDelta(t, 1, got, 1e-12)
}

func TestIntegrandStepErrors(t *testing.T) {
	F, r := vec(t, "x", "y", "z"), vec(t, "u", "v", "0")
	for _, step := range []float64{0, -0.5, math.NaN(), math.Inf(1)} {
		_, err := goflux.Integrand(F, r, step, 0.1)
		assert.ErrorIsf(t, err, goflux.ErrStep, "dx=%v", step)
		_, err = goflux.Integrand(F, r, 0.1, step)
		assert.ErrorIsf(t, err, goflux.ErrStep, "h=%v", step)
	}
}
