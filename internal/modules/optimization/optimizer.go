// Package optimization provides mean-variance portfolio optimization
// functionality: the tangency, global-minimum-variance, utility-optimal and
// target-return portfolios, the efficient frontier, two-fund combinations
// with a risk-free asset, and sensitivity analysis of the results.
package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/zz3231/mvp-optimizer/internal/config"
	"github.com/zz3231/mvp-optimizer/pkg/formulas"
)

const (
	// infiniteBoundSurrogate replaces ±Inf bounds before they reach the
	// solver. Results must show no artificial clipping at this magnitude.
	infiniteBoundSurrogate = 1e10
	// targetReturnTolerance is the largest acceptable gap between a target
	// return and the achieved return. A larger gap means the target is
	// unreachable under the given bounds.
	targetReturnTolerance = 1e-3
)

// SolverConfig holds the numerical settings for the constrained solves.
type SolverConfig struct {
	MaxIterations       int
	Tolerance           float64
	PenaltyWeight       float64
	FrontierPoints      int
	FrontierLowerFactor float64
	FrontierUpperFactor float64
	SensitivityStep     float64
	Workers             int
}

// DefaultSolverConfig returns the standard solver settings.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		MaxIterations:       1000,
		Tolerance:           1e-9,
		PenaltyWeight:       1e6,
		FrontierPoints:      50,
		FrontierLowerFactor: 0.5,
		FrontierUpperFactor: 1.5,
		SensitivityStep:     0.01,
	}
}

// NewSolverConfig maps application configuration onto solver settings.
func NewSolverConfig(cfg *config.Config) SolverConfig {
	return SolverConfig{
		MaxIterations:       cfg.SolverMaxIterations,
		Tolerance:           cfg.SolverTolerance,
		PenaltyWeight:       cfg.PenaltyWeight,
		FrontierPoints:      cfg.FrontierPoints,
		FrontierLowerFactor: cfg.FrontierLowerFactor,
		FrontierUpperFactor: cfg.FrontierUpperFactor,
		SensitivityStep:     cfg.SensitivityStep,
		Workers:             cfg.Workers,
	}
}

// Optimizer is an immutable bundle of one market model (asset names, expected
// returns, volatilities, correlation, derived covariance, risk-free rate)
// plus solver settings. It holds no mutable state and is safe to reuse
// read-only across concurrent solves.
type Optimizer struct {
	names        []string
	returns      []float64
	volatilities []float64
	correlation  *mat.SymDense
	covariance   *mat.SymDense
	riskFree     float64
	cfg          SolverConfig
	log          zerolog.Logger
}

// New creates an Optimizer for one market model. Inputs are assumed already
// validated (see ValidateInputs); only structural mismatches that would make
// the arithmetic meaningless are rejected here.
func New(assets AssetSet, correlation *mat.SymDense, riskFreeRate float64, cfg SolverConfig, log zerolog.Logger) (*Optimizer, error) {
	n := assets.Len()
	if n == 0 {
		return nil, fmt.Errorf("no assets provided")
	}
	if len(assets.ExpectedReturns) != n || len(assets.Volatilities) != n {
		return nil, fmt.Errorf("asset parameter lengths don't match: %d names, %d returns, %d volatilities",
			n, len(assets.ExpectedReturns), len(assets.Volatilities))
	}
	if r := correlation.SymmetricDim(); r != n {
		return nil, fmt.Errorf("correlation matrix size %d doesn't match asset count %d", r, n)
	}

	names := append([]string(nil), assets.Names...)
	returns := append([]float64(nil), assets.ExpectedReturns...)
	vols := append([]float64(nil), assets.Volatilities...)

	return &Optimizer{
		names:        names,
		returns:      returns,
		volatilities: vols,
		correlation:  correlation,
		covariance:   NewCovariance(vols, correlation),
		riskFree:     riskFreeRate,
		cfg:          cfg,
		log:          log.With().Str("component", "optimizer").Logger(),
	}, nil
}

// Names returns the asset names in input order.
func (o *Optimizer) Names() []string { return o.names }

// AssetReturns returns the per-asset expected returns in input order.
func (o *Optimizer) AssetReturns() []float64 { return o.returns }

// AssetVolatilities returns the per-asset volatilities in input order.
func (o *Optimizer) AssetVolatilities() []float64 { return o.volatilities }

// RiskFreeRate returns the risk-free rate of this market model.
func (o *Optimizer) RiskFreeRate() float64 { return o.riskFree }

// Covariance returns the derived covariance matrix. Callers must treat it as
// read-only.
func (o *Optimizer) Covariance() mat.Symmetric { return o.covariance }

// PortfolioReturn calculates w'μ under this market model.
func (o *Optimizer) PortfolioReturn(weights []float64) float64 {
	return formulas.PortfolioReturn(weights, o.returns)
}

// PortfolioVolatility calculates sqrt(w'Σw) under this market model.
func (o *Optimizer) PortfolioVolatility(weights []float64) float64 {
	return formulas.PortfolioVolatility(weights, o.covariance)
}

// PortfolioSharpe calculates the Sharpe ratio under this market model.
func (o *Optimizer) PortfolioSharpe(weights []float64) float64 {
	return formulas.SharpeRatio(weights, o.returns, o.covariance, o.riskFree)
}

// PortfolioUtility calculates the quadratic utility under this market model.
func (o *Optimizer) PortfolioUtility(weights []float64, riskAversion float64) float64 {
	return formulas.Utility(weights, o.returns, o.covariance, riskAversion)
}

// Tangency solves for the maximum-Sharpe-ratio portfolio.
func (o *Optimizer) Tangency(bounds Bounds) (*Portfolio, error) {
	weights, err := o.solve("tangency", bounds, nil, func(w []float64) float64 {
		return -o.PortfolioSharpe(w)
	})
	if err != nil {
		return nil, err
	}
	return o.newPortfolio(KindTangency, weights), nil
}

// GlobalMinVariance solves for the portfolio with the lowest volatility,
// with no return target.
func (o *Optimizer) GlobalMinVariance(bounds Bounds) (*Portfolio, error) {
	weights, err := o.solve("gmv", bounds, nil, o.PortfolioVolatility)
	if err != nil {
		return nil, err
	}
	return o.newPortfolio(KindGlobalMinVariance, weights), nil
}

// MaxUtility solves for the risky-assets-only portfolio maximizing the
// quadratic utility U = w'μ - 0.5·A·(w'Σw).
func (o *Optimizer) MaxUtility(riskAversion float64, bounds Bounds) (*Portfolio, error) {
	weights, err := o.solve("max_utility", bounds, nil, func(w []float64) float64 {
		return -o.PortfolioUtility(w, riskAversion)
	})
	if err != nil {
		return nil, err
	}
	p := o.newPortfolio(KindMaxUtility, weights)
	u := o.PortfolioUtility(weights, riskAversion)
	p.Utility = &u
	return p, nil
}

// TargetReturn solves for the minimum-volatility portfolio achieving the
// given expected return. Fails when the target is unreachable under the
// bounds.
func (o *Optimizer) TargetReturn(target float64, bounds Bounds) (*Portfolio, error) {
	weights, err := o.solve("target_return", bounds, &target, o.PortfolioVolatility)
	if err != nil {
		return nil, err
	}
	return o.newPortfolio(KindTargetReturn, weights), nil
}

// newPortfolio assembles a Portfolio from solved weights.
func (o *Optimizer) newPortfolio(kind PortfolioKind, weights []float64) *Portfolio {
	byName := make(map[string]float64, len(o.names))
	for i, name := range o.names {
		byName[name] = weights[i]
	}
	return &Portfolio{
		Kind:           kind,
		Weights:        weights,
		WeightsByName:  byName,
		ExpectedReturn: o.PortfolioReturn(weights),
		Volatility:     o.PortfolioVolatility(weights),
		SharpeRatio:    o.PortfolioSharpe(weights),
	}
}

// withPerturbedReturn derives a fresh market model with one asset's expected
// return shifted by delta. The receiver is never mutated: each perturbation
// is an independent hypothetical model.
func (o *Optimizer) withPerturbedReturn(asset int, delta float64) *Optimizer {
	returns := append([]float64(nil), o.returns...)
	returns[asset] += delta
	perturbed, _ := New(AssetSet{
		Names:           o.names,
		ExpectedReturns: returns,
		Volatilities:    o.volatilities,
	}, o.correlation, o.riskFree, o.cfg, o.log)
	return perturbed
}

// withPerturbedVolatility derives a fresh market model with one asset's
// volatility shifted by delta; the covariance matrix is rebuilt.
func (o *Optimizer) withPerturbedVolatility(asset int, delta float64) *Optimizer {
	vols := append([]float64(nil), o.volatilities...)
	vols[asset] += delta
	perturbed, _ := New(AssetSet{
		Names:           o.names,
		ExpectedReturns: o.returns,
		Volatilities:    vols,
	}, o.correlation, o.riskFree, o.cfg, o.log)
	return perturbed
}

// solve minimizes objective over the budget hyperplane Σw = 1 intersected
// with the box bounds, optionally subject to w'μ = target.
//
// The budget and return equalities are handled by quadratic penalties, the
// box bounds by clamping inside the objective; BFGS runs first with
// Nelder-Mead as the derivative-free fallback. The final iterate is then
// projected exactly onto the bound-capped simplex, so returned weights sum
// to 1 and respect the bounds to machine precision.
//
// The objectives solved here are convex or quasi-convex over a convex
// feasible region, so a local method started at the equal-weight centroid is
// expected to find the global optimum; no multi-start is attempted.
func (o *Optimizer) solve(name string, bounds Bounds, target *float64, objective func([]float64) float64) ([]float64, error) {
	n := len(o.returns)
	lower, upper, err := o.solverBounds(name, bounds)
	if err != nil {
		return nil, err
	}

	penalty := o.cfg.PenaltyWeight
	penalized := func(x []float64) float64 {
		w := clampToBounds(x, lower, upper)

		obj := objective(w)
		sum := floats.Sum(w)
		obj += penalty * (sum - 1.0) * (sum - 1.0)
		if target != nil {
			ret := o.PortfolioReturn(w)
			obj += penalty * (ret - *target) * (ret - *target)
		}
		return obj
	}
	// BFGS requires a gradient on the Problem; the penalized objective has
	// no clean analytic one because of the bound clamping, so it is
	// estimated by finite differences.
	problem := optimize.Problem{
		Func: penalized,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, penalized, x, nil)
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	settings := &optimize.Settings{
		MajorIterations: o.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   o.cfg.Tolerance,
			Iterations: 100,
		},
	}

	result, err := o.minimize(problem, initial, settings)
	if err != nil {
		return nil, &InfeasibleError{Problem: name, Reason: err.Error()}
	}

	weights, err := projectCappedSimplex(clampToBounds(result.X, lower, upper), lower, upper)
	if err != nil {
		return nil, &InfeasibleError{Problem: name, Reason: err.Error()}
	}

	if target != nil {
		if gap := math.Abs(o.PortfolioReturn(weights) - *target); gap > targetReturnTolerance {
			return nil, &InfeasibleError{
				Problem: name,
				Reason:  fmt.Sprintf("target return %.4f unreachable under bounds (gap %.2e)", *target, gap),
			}
		}
	}

	o.log.Debug().
		Str("problem", name).
		Float64("objective", objective(weights)).
		Msg("solve converged")

	return weights, nil
}

// minimize runs gonum's solver with BFGS (numerical gradient), falling back
// to Nelder-Mead when BFGS errors out or stops without converging.
func (o *Optimizer) minimize(problem optimize.Problem, initial []float64, settings *optimize.Settings) (*optimize.Result, error) {
	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err == nil && converged(result.Status) {
		return result, nil
	}

	result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}
	if !converged(result.Status) {
		return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
	}
	return result, nil
}

// converged reports whether a solver status counts as successful convergence.
func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

// solverBounds materializes bounds for the solver, substituting a large
// finite surrogate for ±Inf, and rejects boxes that cannot contain a
// fully-invested portfolio.
func (o *Optimizer) solverBounds(name string, bounds Bounds) (lower, upper []float64, err error) {
	n := len(o.returns)
	if len(bounds.Lower) != n || len(bounds.Upper) != n {
		return nil, nil, fmt.Errorf("bounds size %dx%d doesn't match asset count %d", len(bounds.Lower), len(bounds.Upper), n)
	}

	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i] = bounds.Lower[i]
		upper[i] = bounds.Upper[i]
		if math.IsInf(lower[i], -1) {
			lower[i] = -infiniteBoundSurrogate
		}
		if math.IsInf(upper[i], 1) {
			upper[i] = infiniteBoundSurrogate
		}
	}

	if floats.Sum(lower) > 1 || floats.Sum(upper) < 1 {
		return nil, nil, &InfeasibleError{Problem: name, Reason: "bounds leave no room for a fully invested portfolio"}
	}
	return lower, upper, nil
}

// clampToBounds clips each coordinate into its box bound.
func clampToBounds(x, lower, upper []float64) []float64 {
	clamped := make([]float64, len(x))
	for i := range x {
		clamped[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
	return clamped
}

// projectCappedSimplex finds the Euclidean projection of x onto
// {w : Σw = 1, lower ≤ w ≤ upper}. The projection has the form
// wᵢ = clamp(xᵢ - ν) for a scalar shift ν found by bisection: the clamped
// sum is monotonically non-increasing in ν.
func projectCappedSimplex(x, lower, upper []float64) ([]float64, error) {
	if floats.Sum(lower) > 1+1e-12 || floats.Sum(upper) < 1-1e-12 {
		return nil, fmt.Errorf("no feasible point: bounds cannot sum to 1")
	}

	sumAt := func(nu float64) float64 {
		total := 0.0
		for i := range x {
			total += math.Max(lower[i], math.Min(upper[i], x[i]-nu))
		}
		return total
	}

	lo, hi := x[0]-upper[0], x[0]-lower[0]
	for i := range x {
		lo = math.Min(lo, x[i]-upper[i])
		hi = math.Max(hi, x[i]-lower[i])
	}

	for iter := 0; iter < 500; iter++ {
		mid := lo + (hi-lo)/2
		if mid == lo || mid == hi {
			break
		}
		if sumAt(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}

	nu := lo + (hi-lo)/2
	projected := make([]float64, len(x))
	for i := range x {
		projected[i] = math.Max(lower[i], math.Min(upper[i], x[i]-nu))
	}
	return projected, nil
}
