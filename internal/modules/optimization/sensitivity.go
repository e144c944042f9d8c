package optimization

import (
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zz3231/mvp-optimizer/pkg/formulas"
)

// Analyzer measures how sensitive an already-optimized portfolio is to
// errors in the input parameters. Base metrics are taken from the portfolio
// itself so that a two-fund result's risk-free leg is included, and they
// match what the caller was shown for that portfolio.
type Analyzer struct {
	base      *Optimizer
	portfolio *Portfolio
	log       zerolog.Logger
}

// ReoptimizeOptions describes how the optimal portfolio is rebuilt in
// ModeReoptimize: the same pipeline the base portfolio came from.
type ReoptimizeOptions struct {
	RiskAversion float64
	// UseRiskFree selects tangency + two-fund combination when true, direct
	// utility maximization over risky assets when false.
	UseRiskFree bool
	Bounds      Bounds
}

// Sensitivity creates an analyzer for a portfolio computed under this
// market model.
func (o *Optimizer) Sensitivity(portfolio *Portfolio) *Analyzer {
	return &Analyzer{
		base:      o,
		portfolio: portfolio,
		log:       o.log.With().Str("component", "sensitivity").Logger(),
	}
}

// Analyze runs one sensitivity analysis: one Record per (asset, direction),
// perturbing the chosen parameter by ±step (absolute percentage points).
// A step of 0 uses the configured default. ModeFixedWeights ignores opts.
func (a *Analyzer) Analyze(mode Mode, parameter Parameter, step float64, opts ReoptimizeOptions) *Report {
	if step == 0 {
		step = a.base.cfg.SensitivityStep
	}
	if mode == ModeReoptimize {
		return a.reoptimize(parameter, step, opts)
	}
	return a.fixedWeights(parameter, step)
}

// fixedWeights is Mode A: the weights stay fixed, one input parameter at a
// time drifts away from its estimate, and the portfolio metrics are
// recomputed under the perturbed market.
//
// Perturbing an expected return cannot move volatility (Σ depends only on σ
// and ρ), and perturbing a volatility cannot move the expected return; the
// zero impacts below are exact by construction, not numerical artifacts.
func (a *Analyzer) fixedWeights(parameter Parameter, step float64) *Report {
	report := a.newReport(ModeFixedWeights, parameter, step)
	weights := a.portfolio.Weights

	// Return contributed by the risk-free leg, zero for fully risky
	// portfolios. Keeping it separate makes the perturbed return exact.
	riskFreePart := report.BaseReturn - a.base.PortfolioReturn(weights)

	for i, name := range a.base.names {
		for _, direction := range []Direction{DirectionDecrease, DirectionIncrease} {
			record := Record{Asset: name, Direction: direction}
			delta := step
			if direction == DirectionDecrease {
				delta = -step
			}

			switch parameter {
			case ParameterReturn:
				perturbed := a.base.withPerturbedReturn(i, delta)
				newReturn := riskFreePart + perturbed.PortfolioReturn(weights)
				record.ReturnImpact = newReturn - report.BaseReturn
				record.VolatilityImpact = 0
				record.SharpeImpact = sharpeFrom(newReturn, report.BaseVolatility, a.base.riskFree) - report.BaseSharpe
			case ParameterVolatility:
				perturbed := a.base.withPerturbedVolatility(i, delta)
				newVolatility := perturbed.PortfolioVolatility(weights)
				record.ReturnImpact = 0
				record.VolatilityImpact = newVolatility - report.BaseVolatility
				record.SharpeImpact = sharpeFrom(report.BaseReturn, newVolatility, a.base.riskFree) - report.BaseSharpe
			}

			report.Records = append(report.Records, record)
		}
	}
	return report
}

// reoptimize is Mode B: each perturbation builds a fresh market model with
// the wrong input, re-runs the full optimization pipeline under it, and
// evaluates the resulting weights under the true model. The delta against
// the base portfolio is the cost of trusting the wrong estimate. Failed
// re-solves drop their record; the rest of the report stays meaningful.
func (a *Analyzer) reoptimize(parameter Parameter, step float64, opts ReoptimizeOptions) *Report {
	report := a.newReport(ModeReoptimize, parameter, step)
	n := len(a.base.names)

	directions := []Direction{DirectionDecrease, DirectionIncrease}
	results := make([]*Record, 2*n)

	var g errgroup.Group
	g.SetLimit(a.base.workerLimit())
	for i := 0; i < n; i++ {
		for d, direction := range directions {
			i, direction := i, direction
			slot := 2*i + d
			g.Go(func() error {
				delta := step
				if direction == DirectionDecrease {
					delta = -step
				}

				var perturbed *Optimizer
				switch parameter {
				case ParameterReturn:
					perturbed = a.base.withPerturbedReturn(i, delta)
				case ParameterVolatility:
					perturbed = a.base.withPerturbedVolatility(i, delta)
				}

				wrong, err := a.reoptimizePipeline(perturbed, opts)
				if err != nil {
					a.log.Debug().Err(err).
						Str("asset", a.base.names[i]).
						Str("direction", string(direction)).
						Msg("perturbed re-solve failed, record dropped")
					return nil
				}

				// Evaluate the wrong-input weights under the true model
				trueReturn := formulas.PortfolioReturn(wrong.Weights, a.base.returns)
				if wrong.RiskFree != nil {
					trueReturn += wrong.RiskFree.WeightRiskFree * a.base.riskFree
				}
				trueVolatility := formulas.PortfolioVolatility(wrong.Weights, a.base.covariance)

				results[slot] = &Record{
					Asset:            a.base.names[i],
					Direction:        direction,
					ReturnImpact:     trueReturn - report.BaseReturn,
					VolatilityImpact: trueVolatility - report.BaseVolatility,
					SharpeImpact:     sharpeFrom(trueReturn, trueVolatility, a.base.riskFree) - report.BaseSharpe,
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, record := range results {
		if record != nil {
			report.Records = append(report.Records, *record)
		}
	}
	return report
}

// reoptimizePipeline reproduces the optimal-portfolio pipeline under a
// perturbed market model.
func (a *Analyzer) reoptimizePipeline(perturbed *Optimizer, opts ReoptimizeOptions) (*Portfolio, error) {
	if opts.UseRiskFree {
		tangency, err := perturbed.Tangency(opts.Bounds)
		if err != nil {
			return nil, err
		}
		return perturbed.CombineRiskAversion(tangency, opts.RiskAversion), nil
	}
	return perturbed.MaxUtility(opts.RiskAversion, opts.Bounds)
}

func (a *Analyzer) newReport(mode Mode, parameter Parameter, step float64) *Report {
	return &Report{
		Mode:           mode,
		Parameter:      parameter,
		Step:           step,
		BaseReturn:     a.portfolio.ExpectedReturn,
		BaseVolatility: a.portfolio.Volatility,
		BaseSharpe:     a.portfolio.SharpeRatio,
	}
}

// sharpeFrom computes a Sharpe ratio from precomputed metrics, with the same
// degenerate-volatility handling as formulas.SharpeRatio.
func sharpeFrom(expectedReturn, volatility, riskFree float64) float64 {
	if volatility > formulas.MinVolatility {
		return (expectedReturn - riskFree) / volatility
	}
	return 0
}
