// Package goflux estimates the flux of a vector field through a parametric
// surface.
//
// Given F(x, y, z), a surface r(u, v) and bounds on u and v (v's bounds may
// depend on u), it approximates
//
//	∬ F(r(u,v)) · (r_u × r_v) du dv
//
// with forward-difference partial derivatives built as expressions and a
// midpoint double sum over a grid of spacing dx. Samples that evaluate to
// NaN are skipped.
package goflux

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/njchilds90/goflux/symbolic"
)

// DefaultStep is the grid and derivative step used when none is given.
const DefaultStep = 0.001

// coordinates are the field variables, in surface component order.
var coordinates = [3]string{"x", "y", "z"}

// Problem is one flux integral.
type Problem struct {
	// Field is F over x, y and z.
	Field symbolic.Vector
	// Surface is r over u and v.
	Surface symbolic.Vector
	// U must have constant bounds. V bounds may use u.
	U, V Range
	// Step is dx. Zero means DefaultStep.
	Step float64
}

// Estimate is the result of one evaluation.
type Estimate struct {
	Flux    float64
	Rows    int
	Samples int
	// Skipped counts samples that evaluated to NaN.
	Skipped int
}

// Evaluator computes flux estimates. The zero value is ready to use and an
// Evaluator is safe for concurrent use.
type Evaluator struct {
	// Log receives debug output. Defaults to logrus.StandardLogger().
	Log logrus.FieldLogger

	// Workers bounds the number of rows summed concurrently.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int

	// DerivativeStep, when non-zero, is used for the finite differences
	// instead of the grid step.
	DerivativeStep float64
}

func (ev *Evaluator) log() logrus.FieldLogger {
	if ev.Log == nil {
		return logrus.StandardLogger()
	}
	return ev.Log
}

func (ev *Evaluator) workers() int {
	if ev.Workers > 0 {
		return ev.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func checkStep(name string, s float64) error {
	if !(s > 0) || math.IsInf(s*s, 0) {
		return fmt.Errorf("goflux: %s %v: %w", name, s, ErrStep)
	}
	return nil
}

// Estimate evaluates p. It blocks until the grid is reduced or ctx is done.
func (ev *Evaluator) Estimate(ctx context.Context, p Problem) (Estimate, error) {
	dx := p.Step
	if dx == 0 {
		dx = DefaultStep
	}
	if err := checkStep("dx", dx); err != nil {
		return Estimate{}, err
	}
	h := dx
	if ev.DerivativeStep != 0 {
		h = ev.DerivativeStep
	}
	if err := checkStep("derivative step", h); err != nil {
		return Estimate{}, err
	}

	integrand := ev.integrand(p.Field, p.Surface, dx, h)
	prog, err := symbolic.Compile(integrand, "u", "v")
	if err != nil {
		return Estimate{}, fmt.Errorf("goflux: compiling integrand: %w", err)
	}

	u0, err := p.U.Lower.constant("u lower")
	if err != nil {
		return Estimate{}, err
	}
	u1, err := p.U.Upper.constant("u upper")
	if err != nil {
		return Estimate{}, err
	}
	vLo, err := p.V.Lower.perRow("v lower")
	if err != nil {
		return Estimate{}, err
	}
	vHi, err := p.V.Upper.perRow("v upper")
	if err != nil {
		return Estimate{}, err
	}

	g := &grid{
		u0:        u0,
		dx:        dx,
		rows:      arangeLen(u0, u1, dx),
		vLo:       vLo,
		vHi:       vHi,
		integrand: prog,
	}
	est, err := g.integrate(ctx, ev.workers())
	if err != nil {
		return Estimate{}, err
	}
	ev.log().WithFields(logrus.Fields{
		"rows":    est.Rows,
		"samples": est.Samples,
		"skipped": est.Skipped,
		"flux":    est.Flux,
	}).Debug("goflux: grid reduced")
	return est, nil
}

// integrand builds F(r) · (r_u × r_v) · dx², logging field components that
// degrade to zero.
func (ev *Evaluator) integrand(F, r symbolic.Vector, dx, h float64) symbolic.Expr {
	ru := DerivativeU(r, h)
	rv := DerivativeV(r, h)
	var onSurface symbolic.Vector
	for i := range onSurface {
		fi, err := SubstituteComponent(F[i], r)
		if err != nil {
			ev.log().WithFields(logrus.Fields{
				"component": i,
				"err":       err,
			}).Debug("goflux: field component degraded to zero")
			fi = symbolic.N(0)
		}
		onSurface[i] = fi
	}
	normal := symbolic.Cross(ru, rv)
	return symbolic.MulOf(symbolic.Dot(onSurface, normal), symbolic.NFloat(dx*dx))
}

// Integrand returns F(r) · (r_u × r_v) · dx² as an expression in u and v,
// with derivative step h. Field components that cannot be put on the
// surface contribute 0.
func Integrand(F, r symbolic.Vector, dx, h float64) (symbolic.Expr, error) {
	if err := checkStep("dx", dx); err != nil {
		return nil, err
	}
	if err := checkStep("derivative step", h); err != nil {
		return nil, err
	}
	return defaultEvaluator.integrand(F, r, dx, h), nil
}

// SubstituteComponent puts one field component on the surface by replacing
// x, y and z with the surface components.
//
// It fails with symbolic.ErrMissingComponent when Fi is absent or r has
// fewer than three components, whether or not Fi reads the missing
// coordinate, and with symbolic.ErrUnboundSymbol when the result still
// holds a symbol other than u and v.
func SubstituteComponent(Fi symbolic.Expr, r symbolic.Vector) (symbolic.Expr, error) {
	if Fi == nil {
		return nil, fmt.Errorf("goflux: field component: %w", symbolic.ErrMissingComponent)
	}
	bindings := make([]symbolic.Binding, len(coordinates))
	for i, c := range coordinates {
		if r[i] == nil {
			return nil, fmt.Errorf("goflux: %s has no surface component: %w", c, symbolic.ErrMissingComponent)
		}
		bindings[i] = symbolic.Binding{Name: c, Value: r[i]}
	}
	out := symbolic.SubAll(Fi, bindings...)
	for _, name := range symbolic.FreeSymbols(out) {
		if name != "u" && name != "v" {
			return nil, fmt.Errorf("goflux: %q left after substitution: %w", name, symbolic.ErrUnboundSymbol)
		}
	}
	return out, nil
}

var defaultEvaluator = &Evaluator{}

// Flux estimates the flux of F through r over u × v with step dx.
func Flux(F, r symbolic.Vector, u, v Range, dx float64) (float64, error) {
	return FluxContext(context.Background(), F, r, u, v, dx)
}

// FluxContext is Flux with cancellation.
func FluxContext(ctx context.Context, F, r symbolic.Vector, u, v Range, dx float64) (float64, error) {
	if err := checkStep("dx", dx); err != nil {
		return 0, err
	}
	est, err := defaultEvaluator.Estimate(ctx, Problem{Field: F, Surface: r, U: u, V: v, Step: dx})
	if err != nil {
		return 0, err
	}
	return est.Flux, nil
}
