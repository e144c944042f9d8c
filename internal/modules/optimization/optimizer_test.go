package optimization

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/zz3231/mvp-optimizer/internal/config"
)

// newTestOptimizer builds the three-asset reference model used across the
// solver tests: two equity-like assets and one low-volatility asset.
func newTestOptimizer(t *testing.T) *Optimizer {
	t.Helper()

	assets := AssetSet{
		Names:           []string{"Domestic Equity", "Foreign Equity", "Bonds"},
		ExpectedReturns: []float64{0.065, 0.065, 0.043},
		Volatilities:    []float64{0.16, 0.17, 0.07},
	}
	corr := mat.NewSymDense(3, []float64{
		1.0, 0.5, 0.4,
		0.5, 1.0, 0.25,
		0.4, 0.25, 1.0,
	})

	opt, err := New(assets, corr, 0.02, DefaultSolverConfig(), zerolog.Nop())
	require.NoError(t, err)
	return opt
}

func TestNew_RejectsMismatchedInputs(t *testing.T) {
	assets := AssetSet{
		Names:           []string{"A", "B"},
		ExpectedReturns: []float64{0.1},
		Volatilities:    []float64{0.2, 0.3},
	}
	corr := mat.NewSymDense(2, []float64{1, 0, 0, 1})

	_, err := New(assets, corr, 0.02, DefaultSolverConfig(), zerolog.Nop())
	assert.Error(t, err)

	assets.ExpectedReturns = []float64{0.1, 0.12}
	_, err = New(assets, mat.NewSymDense(3, nil), 0.02, DefaultSolverConfig(), zerolog.Nop())
	assert.Error(t, err)
}

func TestTangency_BeatsEverySingleAsset(t *testing.T) {
	opt := newTestOptimizer(t)

	tangency, err := opt.Tangency(UnconstrainedBounds(3))
	require.NoError(t, err)
	require.Equal(t, KindTangency, tangency.Kind)

	// Diversification cannot hurt the maximum achievable Sharpe ratio on
	// the unconstrained frontier.
	for i, name := range opt.Names() {
		singleAssetSharpe := (opt.AssetReturns()[i] - opt.RiskFreeRate()) / opt.AssetVolatilities()[i]
		assert.Greater(t, tangency.SharpeRatio, singleAssetSharpe, "tangency should beat %s alone", name)
	}

	assert.InDelta(t, 1.0, sum(tangency.Weights), 1e-6)
	assert.InDelta(t, tangency.SharpeRatio, opt.PortfolioSharpe(tangency.Weights), 1e-12)
}

func TestGlobalMinVariance_FeasibleAndLowVolatility(t *testing.T) {
	opt := newTestOptimizer(t)
	bounds := DefaultBounds(3)

	gmv, err := opt.GlobalMinVariance(bounds)
	require.NoError(t, err)
	require.Equal(t, KindGlobalMinVariance, gmv.Kind)

	assert.InDelta(t, 1.0, sum(gmv.Weights), 1e-6)
	for i, w := range gmv.Weights {
		assert.GreaterOrEqual(t, w, bounds.Lower[i]-1e-6)
		assert.LessOrEqual(t, w, bounds.Upper[i]+1e-6)
	}

	// Single-asset portfolios are feasible, so the GMV volatility cannot
	// exceed the lowest individual volatility.
	assert.LessOrEqual(t, gmv.Volatility, 0.07+1e-3)

	equal := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	assert.LessOrEqual(t, gmv.Volatility, opt.PortfolioVolatility(equal)+1e-9)
}

func TestGlobalMinVariance_TwoAssetClosedForm(t *testing.T) {
	assets := AssetSet{
		Names:           []string{"A", "B"},
		ExpectedReturns: []float64{0.08, 0.05},
		Volatilities:    []float64{0.20, 0.10},
	}
	corr := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 1})
	opt, err := New(assets, corr, 0.02, DefaultSolverConfig(), zerolog.Nop())
	require.NoError(t, err)

	gmv, err := opt.GlobalMinVariance(DefaultBounds(2))
	require.NoError(t, err)

	// w_B = (σ_A² - σ_AB) / (σ_A² + σ_B² - 2σ_AB)
	covAB := 0.3 * 0.20 * 0.10
	wantB := (0.04 - covAB) / (0.04 + 0.01 - 2*covAB)
	assert.InDelta(t, wantB, gmv.Weights[1], 0.01)
	assert.InDelta(t, 1-wantB, gmv.Weights[0], 0.01)
}

func TestMaxUtility_CarriesUtilityAndBeatsAlternatives(t *testing.T) {
	opt := newTestOptimizer(t)
	bounds := DefaultBounds(3)

	optimal, err := opt.MaxUtility(3.0, bounds)
	require.NoError(t, err)
	require.Equal(t, KindMaxUtility, optimal.Kind)
	require.NotNil(t, optimal.Utility)

	assert.InDelta(t, opt.PortfolioUtility(optimal.Weights, 3.0), *optimal.Utility, 1e-12)
	assert.InDelta(t, 1.0, sum(optimal.Weights), 1e-6)

	equal := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	assert.GreaterOrEqual(t, *optimal.Utility, opt.PortfolioUtility(equal, 3.0)-1e-4)

	gmv, err := opt.GlobalMinVariance(bounds)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, *optimal.Utility, opt.PortfolioUtility(gmv.Weights, 3.0)-1e-4)
}

func TestTargetReturn_HitsTarget(t *testing.T) {
	opt := newTestOptimizer(t)
	bounds := DefaultBounds(3)

	target := 0.055
	p, err := opt.TargetReturn(target, bounds)
	require.NoError(t, err)
	require.Equal(t, KindTargetReturn, p.Kind)

	assert.InDelta(t, target, p.ExpectedReturn, 1e-3)
	assert.InDelta(t, 1.0, sum(p.Weights), 1e-6)

	gmv, err := opt.GlobalMinVariance(bounds)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Volatility, gmv.Volatility-1e-6)
}

func TestTargetReturn_UnreachableFails(t *testing.T) {
	opt := newTestOptimizer(t)

	// 20% is far above any achievable return without leverage
	_, err := opt.TargetReturn(0.20, DefaultBounds(3))
	require.Error(t, err)

	var infeasible *InfeasibleError
	assert.True(t, errors.As(err, &infeasible))
	assert.Contains(t, infeasible.Error(), "target_return")
}

func TestSolve_BoundsTooTightFails(t *testing.T) {
	opt := newTestOptimizer(t)

	// Upper bounds sum to 0.6: no fully invested portfolio exists
	bounds := Bounds{
		Lower: []float64{0, 0, 0},
		Upper: []float64{0.2, 0.2, 0.2},
	}
	_, err := opt.GlobalMinVariance(bounds)
	require.Error(t, err)

	var infeasible *InfeasibleError
	assert.True(t, errors.As(err, &infeasible))
}

func TestSolve_AllObjectivesConverge(t *testing.T) {
	opt := newTestOptimizer(t)
	bounds := DefaultBounds(3)

	// Every objective goes through the same BFGS path with a
	// finite-difference gradient; each must complete and return a
	// fully invested portfolio.
	solves := map[string]func() (*Portfolio, error){
		"tangency":      func() (*Portfolio, error) { return opt.Tangency(bounds) },
		"gmv":           func() (*Portfolio, error) { return opt.GlobalMinVariance(bounds) },
		"max_utility":   func() (*Portfolio, error) { return opt.MaxUtility(4.0, bounds) },
		"target_return": func() (*Portfolio, error) { return opt.TargetReturn(0.055, bounds) },
	}
	for name, solveFn := range solves {
		p, err := solveFn()
		require.NoError(t, err, name)
		assert.InDelta(t, 1.0, sum(p.Weights), 1e-6, name)
	}
}

func TestSolve_RespectsUpperBounds(t *testing.T) {
	opt := newTestOptimizer(t)

	// Cap the low-volatility asset so the GMV cannot just sit in it
	bounds := Bounds{
		Lower: []float64{0, 0, 0},
		Upper: []float64{1, 1, 0.4},
	}
	gmv, err := opt.GlobalMinVariance(bounds)
	require.NoError(t, err)

	assert.LessOrEqual(t, gmv.Weights[2], 0.4+1e-6)
	assert.InDelta(t, 1.0, sum(gmv.Weights), 1e-6)
}

func TestUnconstrainedBounds_NoClippingAtSurrogate(t *testing.T) {
	opt := newTestOptimizer(t)

	tangency, err := opt.Tangency(UnconstrainedBounds(3))
	require.NoError(t, err)

	// The ±1e10 surrogate is a solver workaround and must never show up
	// in results.
	for _, w := range tangency.Weights {
		assert.Less(t, math.Abs(w), 1e3)
	}
}

func TestProjectCappedSimplex(t *testing.T) {
	lower := []float64{0, 0, 0}
	upper := []float64{1, 1, 1}

	w, err := projectCappedSimplex([]float64{0.5, 0.4, 0.3}, lower, upper)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sum(w), 1e-12)
	for i := range w {
		assert.GreaterOrEqual(t, w[i], 0.0)
		assert.LessOrEqual(t, w[i], 1.0)
	}

	// Already feasible input is unchanged
	w, err = projectCappedSimplex([]float64{0.25, 0.25, 0.5}, lower, upper)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, w[0], 1e-9)
	assert.InDelta(t, 0.25, w[1], 1e-9)
	assert.InDelta(t, 0.5, w[2], 1e-9)

	// Upper bounds strictly below the budget are infeasible
	_, err = projectCappedSimplex([]float64{0.5, 0.5}, []float64{0, 0}, []float64{0.4, 0.4})
	assert.Error(t, err)
}

func TestNewSolverConfig_MapsConfiguration(t *testing.T) {
	appCfg := config.Load()
	cfg := NewSolverConfig(appCfg)

	assert.Equal(t, appCfg.SolverMaxIterations, cfg.MaxIterations)
	assert.Equal(t, appCfg.SolverTolerance, cfg.Tolerance)
	assert.Equal(t, appCfg.PenaltyWeight, cfg.PenaltyWeight)
	assert.Equal(t, appCfg.FrontierPoints, cfg.FrontierPoints)
	assert.Equal(t, appCfg.SensitivityStep, cfg.SensitivityStep)
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}
