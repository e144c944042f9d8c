package optimization

import (
	"fmt"
	"math"
)

// Two-fund separation: every optimal portfolio that includes the risk-free
// asset lies on the Capital Allocation Line through the tangency portfolio,
// so the combination is closed-form algebra. No solver runs here.

// CombineRiskAversion allocates between the tangency portfolio and the
// risk-free asset for an investor with quadratic utility and the given risk
// aversion A:
//
//	w_tangency = (r_t - r_f) / (A·σ_t²)
//
// The Sharpe ratio of the result equals the tangency portfolio's Sharpe
// ratio: the CAL preserves it at every point by construction.
func (o *Optimizer) CombineRiskAversion(tangency *Portfolio, riskAversion float64) *Portfolio {
	weightTangency := (tangency.ExpectedReturn - o.riskFree) / (riskAversion * tangency.Volatility * tangency.Volatility)
	return o.combine(tangency, weightTangency,
		weightTangency*tangency.ExpectedReturn+(1-weightTangency)*o.riskFree)
}

// CombineTargetReturn allocates along the CAL to hit a target return:
//
//	w_tangency = (target - r_f) / (r_t - r_f)
//
// A target below the risk-free rate is clamped to it: such a target is
// satisfied by a 100% risk-free allocation, not by shorting the tangency
// portfolio (a deliberate simplification). A target above the tangency
// return yields w_tangency > 1, i.e. borrowing at the risk-free rate; that
// is reported as a warning, never capped, since capping would silently miss
// the requested target.
func (o *Optimizer) CombineTargetReturn(tangency *Portfolio, targetReturn float64) *Portfolio {
	if targetReturn < o.riskFree {
		targetReturn = o.riskFree
	}

	excess := tangency.ExpectedReturn - o.riskFree
	if excess <= 0 {
		p := o.combine(tangency, 0, o.riskFree)
		p.Warning = "tangency excess return is not positive; allocating 100% to the risk-free asset"
		return p
	}

	weightTangency := (targetReturn - o.riskFree) / excess
	return o.combine(tangency, weightTangency, targetReturn)
}

// combine builds the CAL portfolio for a given tangency weight.
func (o *Optimizer) combine(tangency *Portfolio, weightTangency, expectedReturn float64) *Portfolio {
	n := len(tangency.Weights)
	weights := make([]float64, n)
	byName := make(map[string]float64, n)
	for i, w := range tangency.Weights {
		weights[i] = weightTangency * w
		byName[o.names[i]] = weights[i]
	}

	p := &Portfolio{
		Kind:           KindCapitalAllocation,
		Weights:        weights,
		WeightsByName:  byName,
		ExpectedReturn: expectedReturn,
		Volatility:     math.Abs(weightTangency) * tangency.Volatility,
		SharpeRatio:    tangency.SharpeRatio,
		RiskFree: &RiskFreeSplit{
			WeightTangency: weightTangency,
			WeightRiskFree: 1 - weightTangency,
		},
	}
	if weightTangency > 1 {
		p.Warning = fmt.Sprintf("requires borrowing %.1f%% of wealth at the risk-free rate (leverage %.1f%%)",
			(weightTangency-1)*100, weightTangency*100)
	}
	return p
}
