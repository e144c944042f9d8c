package optimization

import (
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Frontier sweeps a grid of target returns and solves the minimum-volatility
// problem at each, producing the return/volatility curve. The grid spans
// from min(μ)×LowerFactor to max(μ)×UpperFactor, intentionally wider than
// the asset returns so the full concave shape is visible, and is widened
// further when ExtendTo lies outside it. Grid points whose target is
// unreachable are dropped, so the result may hold fewer points than
// requested; grid points are independent and solved concurrently.
func (o *Optimizer) Frontier(bounds Bounds, opts FrontierOptions) *Frontier {
	points := opts.Points
	if points <= 0 {
		points = o.cfg.FrontierPoints
	}
	lowerFactor := opts.LowerFactor
	if lowerFactor == 0 {
		lowerFactor = o.cfg.FrontierLowerFactor
	}
	upperFactor := opts.UpperFactor
	if upperFactor == 0 {
		upperFactor = o.cfg.FrontierUpperFactor
	}

	lo := floats.Min(o.returns) * lowerFactor
	hi := floats.Max(o.returns) * upperFactor
	if opts.ExtendTo != nil {
		margin := 0.1 * (hi - lo)
		if *opts.ExtendTo < lo {
			lo = *opts.ExtendTo - margin
		}
		if *opts.ExtendTo > hi {
			hi = *opts.ExtendTo + margin
		}
	}

	targets := make([]float64, points)
	if points == 1 {
		targets[0] = lo
	} else {
		for k := range targets {
			targets[k] = lo + (hi-lo)*float64(k)/float64(points-1)
		}
	}

	results := make([]*FrontierPoint, points)
	var g errgroup.Group
	g.SetLimit(o.workerLimit())
	for k, target := range targets {
		k, target := k, target
		g.Go(func() error {
			p, err := o.TargetReturn(target, bounds)
			if err != nil {
				// Unreachable targets at the grid extremes are expected
				var infeasible *InfeasibleError
				if !errors.As(err, &infeasible) {
					o.log.Debug().Err(err).Float64("target", target).Msg("frontier point dropped")
				}
				return nil
			}
			results[k] = &FrontierPoint{Return: p.ExpectedReturn, Volatility: p.Volatility}
			return nil
		})
	}
	_ = g.Wait()

	frontier := &Frontier{Points: make([]FrontierPoint, 0, points)}
	for _, p := range results {
		if p != nil {
			frontier.Points = append(frontier.Points, *p)
		}
	}

	o.log.Debug().
		Int("requested", points).
		Int("solved", len(frontier.Points)).
		Msg("efficient frontier swept")

	return frontier
}

// workerLimit is the concurrency cap for independent solver invocations.
func (o *Optimizer) workerLimit() int {
	if o.cfg.Workers > 0 {
		return o.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}
