package goflux

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/njchilds90/goflux/symbolic"
)

// ============================================================
// Midpoint grid
// ============================================================

// arangeLen is the number of values lo, lo+step, ... below hi.
func arangeLen(lo, hi, step float64) int {
	n := math.Ceil((hi - lo) / step)
	if !(n > 0) {
		return 0
	}
	return int(n)
}

// grid is a resolved integration plan. Row i sits at u0 + i*dx and its v
// limits are resolved at that value, not at the row midpoint.
type grid struct {
	u0, dx    float64
	rows      int
	vLo, vHi  rowBound
	integrand symbolic.Program
}

// rowResult is one row's NaN-filtered sum.
type rowResult struct {
	sum              float64
	samples, skipped int
}

func (g *grid) row(i int) (rowResult, error) {
	u := g.u0 + float64(i)*g.dx
	lo, err := g.vLo(u)
	if err != nil {
		return rowResult{}, err
	}
	hi, err := g.vHi(u)
	if err != nil {
		return rowResult{}, err
	}
	n := arangeLen(lo, hi, g.dx)
	half := g.dx / 2
	args := []float64{u + half, 0}
	var r rowResult
	for j := 0; j < n; j++ {
		args[1] = lo + float64(j)*g.dx + half
		f := g.integrand(args)
		r.samples++
		if math.IsNaN(f) {
			r.skipped++
			continue
		}
		r.sum += f
	}
	return r, nil
}

// integrate sums every row on at most workers goroutines. Row sums land in
// fixed slots and are reduced in row order, so the result does not depend
// on scheduling.
func (g *grid) integrate(ctx context.Context, workers int) (Estimate, error) {
	results := make([]rowResult, g.rows)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := 0; i < g.rows; i++ {
		i := i // per-iteration copy; go.mod targets go 1.21 (pre-1.22 loop semantics)
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := g.row(i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Estimate{}, err
	}
	if err := ctx.Err(); err != nil {
		return Estimate{}, err
	}

	sums := make([]float64, g.rows)
	est := Estimate{Rows: g.rows}
	for i, r := range results {
		sums[i] = r.sum
		est.Samples += r.samples
		est.Skipped += r.skipped
	}
	est.Flux = floats.Sum(sums)
	return est, nil
}
