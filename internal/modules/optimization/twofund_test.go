package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findTangency(t *testing.T, opt *Optimizer) *Portfolio {
	t.Helper()
	tangency, err := opt.Tangency(DefaultBounds(3))
	require.NoError(t, err)
	return tangency
}

func TestCombineRiskAversion_ClosedForm(t *testing.T) {
	opt := newTestOptimizer(t)
	tangency := findTangency(t, opt)

	riskAversion := 3.0
	optimal := opt.CombineRiskAversion(tangency, riskAversion)

	require.Equal(t, KindCapitalAllocation, optimal.Kind)
	require.NotNil(t, optimal.RiskFree)

	// w_tangency = (r_t - r_f) / (A·σ_t²), exactly: this is algebra, not
	// solver output.
	want := (tangency.ExpectedReturn - opt.RiskFreeRate()) / (riskAversion * tangency.Volatility * tangency.Volatility)
	assert.InDelta(t, want, optimal.RiskFree.WeightTangency, 1e-12)
	assert.InDelta(t, 1-want, optimal.RiskFree.WeightRiskFree, 1e-12)

	// Inverted formula check
	split := optimal.RiskFree
	assert.InDelta(t, tangency.ExpectedReturn-opt.RiskFreeRate(),
		split.WeightTangency*tangency.Volatility*tangency.Volatility*riskAversion, 1e-9)

	// Risky weights scale the tangency weights
	for i := range optimal.Weights {
		assert.InDelta(t, split.WeightTangency*tangency.Weights[i], optimal.Weights[i], 1e-12)
	}
	assert.InDelta(t, split.WeightTangency*tangency.Volatility, optimal.Volatility, 1e-12)
}

func TestCombineRiskAversion_PreservesSharpe(t *testing.T) {
	opt := newTestOptimizer(t)
	tangency := findTangency(t, opt)

	// Every point on the CAL has the tangency portfolio's Sharpe ratio
	for _, riskAversion := range []float64{0.5, 1.0, 3.0, 10.0} {
		optimal := opt.CombineRiskAversion(tangency, riskAversion)
		assert.InDelta(t, tangency.SharpeRatio, optimal.SharpeRatio, 1e-6)
	}
}

func TestCombineRiskAversion_LowAversionWarnsAboutLeverage(t *testing.T) {
	opt := newTestOptimizer(t)
	tangency := findTangency(t, opt)

	// A small enough risk aversion pushes w_tangency above 1
	optimal := opt.CombineRiskAversion(tangency, 0.1)
	require.NotNil(t, optimal.RiskFree)
	assert.Greater(t, optimal.RiskFree.WeightTangency, 1.0)
	assert.Less(t, optimal.RiskFree.WeightRiskFree, 0.0)
	assert.NotEmpty(t, optimal.Warning)
}

func TestCombineTargetReturn_AtRiskFreeRate(t *testing.T) {
	opt := newTestOptimizer(t)
	tangency := findTangency(t, opt)

	optimal := opt.CombineTargetReturn(tangency, opt.RiskFreeRate())
	require.NotNil(t, optimal.RiskFree)

	assert.Equal(t, 0.0, optimal.RiskFree.WeightTangency)
	assert.Equal(t, 1.0, optimal.RiskFree.WeightRiskFree)
	assert.Equal(t, opt.RiskFreeRate(), optimal.ExpectedReturn)
	assert.Equal(t, 0.0, optimal.Volatility)
}

func TestCombineTargetReturn_BelowRiskFreeClampsUp(t *testing.T) {
	opt := newTestOptimizer(t)
	tangency := findTangency(t, opt)

	optimal := opt.CombineTargetReturn(tangency, 0.001)
	require.NotNil(t, optimal.RiskFree)

	// Satisfied by 100% risk-free, never by shorting the tangency portfolio
	assert.Equal(t, 0.0, optimal.RiskFree.WeightTangency)
	assert.Equal(t, opt.RiskFreeRate(), optimal.ExpectedReturn)
}

func TestCombineTargetReturn_HighTargetRequiresLeverage(t *testing.T) {
	opt := newTestOptimizer(t)
	tangency := findTangency(t, opt)

	target := tangency.ExpectedReturn + 0.05
	optimal := opt.CombineTargetReturn(tangency, target)
	require.NotNil(t, optimal.RiskFree)

	// Leverage is flagged, never silently capped: the target is achieved
	assert.Greater(t, optimal.RiskFree.WeightTangency, 1.0)
	assert.NotEmpty(t, optimal.Warning)
	assert.InDelta(t, target, optimal.ExpectedReturn, 1e-12)
	assert.InDelta(t, tangency.SharpeRatio, optimal.SharpeRatio, 1e-6)
}

func TestCombineTargetReturn_OnTheLine(t *testing.T) {
	opt := newTestOptimizer(t)
	tangency := findTangency(t, opt)

	// Halfway between r_f and the tangency return: w_tangency = 0.5
	target := opt.RiskFreeRate() + 0.5*(tangency.ExpectedReturn-opt.RiskFreeRate())
	optimal := opt.CombineTargetReturn(tangency, target)
	require.NotNil(t, optimal.RiskFree)

	assert.InDelta(t, 0.5, optimal.RiskFree.WeightTangency, 1e-9)
	assert.InDelta(t, 0.5*tangency.Volatility, optimal.Volatility, 1e-9)
	assert.InDelta(t, target, optimal.ExpectedReturn, 1e-12)
}
