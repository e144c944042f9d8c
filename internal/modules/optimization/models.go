package optimization

import (
	"fmt"
	"math"
)

// AssetSet is an ordered set of assets with their estimated parameters.
// Names, ExpectedReturns and Volatilities must all have the same length.
type AssetSet struct {
	Names           []string
	ExpectedReturns []float64 // decimal form, 0.065 = 6.5%
	Volatilities    []float64 // decimal form, all > 0
}

// Len returns the number of assets.
func (a AssetSet) Len() int {
	return len(a.Names)
}

// Bounds holds per-asset weight bounds. Lower[i] ≤ Upper[i] for all i.
// ±Inf entries mean the position is unconstrained in that direction.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// DefaultBounds returns the no-short-selling, no-leverage bounds [0, 1].
func DefaultBounds(n int) Bounds {
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range upper {
		upper[i] = 1.0
	}
	return Bounds{Lower: lower, Upper: upper}
}

// UnconstrainedBounds returns (-Inf, +Inf) bounds, allowing short selling
// and leverage on individual names.
func UnconstrainedBounds(n int) Bounds {
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return Bounds{Lower: lower, Upper: upper}
}

// PortfolioKind identifies which optimization produced a Portfolio, and
// therefore which optional fields are populated.
type PortfolioKind int

const (
	KindTangency PortfolioKind = iota
	KindGlobalMinVariance
	KindMaxUtility
	KindTargetReturn
	KindCapitalAllocation // two-fund combination with the risk-free asset
)

// String returns a human-readable name for the portfolio kind.
func (k PortfolioKind) String() string {
	switch k {
	case KindTangency:
		return "tangency"
	case KindGlobalMinVariance:
		return "gmv"
	case KindMaxUtility:
		return "max_utility"
	case KindTargetReturn:
		return "target_return"
	case KindCapitalAllocation:
		return "capital_allocation"
	default:
		return "unknown"
	}
}

// RiskFreeSplit is the tangency/risk-free decomposition of a portfolio built
// by the two-fund combiner. WeightRiskFree < 0 means borrowing at the
// risk-free rate.
type RiskFreeSplit struct {
	WeightTangency float64
	WeightRiskFree float64
}

// Portfolio is an immutable optimization result.
//
// Weights are the risky-asset weights in the input asset order. For a
// KindCapitalAllocation portfolio they sum to WeightTangency rather than 1;
// for every other kind they sum to 1 within the solver tolerance.
// Utility is populated only for KindMaxUtility, RiskFree only for
// KindCapitalAllocation. Warning carries informational conditions such as
// required leverage; it never marks a failure (failures are errors).
type Portfolio struct {
	Kind           PortfolioKind
	Weights        []float64
	WeightsByName  map[string]float64
	ExpectedReturn float64
	Volatility     float64
	SharpeRatio    float64
	Utility        *float64
	RiskFree       *RiskFreeSplit
	Warning        string
}

// InfeasibleError reports that a solve could not find a point satisfying all
// constraints within the tolerance and iteration budget.
type InfeasibleError struct {
	Problem string // which solve failed: "tangency", "gmv", ...
	Reason  string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("%s portfolio not found: %s", e.Problem, e.Reason)
}

// FrontierPoint is one minimum-volatility solution on the efficient frontier.
type FrontierPoint struct {
	Return     float64
	Volatility float64
}

// Frontier is an ordered sequence of frontier points, one per reachable
// target return in the swept grid. Unreachable targets at the grid extremes
// are dropped, so the sequence may hold fewer points than were requested.
type Frontier struct {
	Points []FrontierPoint
}

// MinVolatilityPoint returns the frontier point with the lowest volatility.
// ok is false when the frontier is empty.
func (f *Frontier) MinVolatilityPoint() (FrontierPoint, bool) {
	if len(f.Points) == 0 {
		return FrontierPoint{}, false
	}
	best := f.Points[0]
	for _, p := range f.Points[1:] {
		if p.Volatility < best.Volatility {
			best = p
		}
	}
	return best, true
}

// FrontierOptions controls the efficient frontier sweep. Zero values fall
// back to the solver configuration defaults.
type FrontierOptions struct {
	Points      int
	LowerFactor float64
	UpperFactor float64
	// ExtendTo widens the target-return grid (with margin) to guarantee the
	// frontier spans a specific return, e.g. a computed optimal portfolio's.
	ExtendTo *float64
}

// Mode selects the sensitivity analysis question being asked.
type Mode int

const (
	// ModeFixedWeights holds the optimized weights fixed and perturbs the
	// market reality: "is my portfolio fragile to realized outcomes".
	ModeFixedWeights Mode = iota
	// ModeReoptimize re-optimizes under a perturbed input and evaluates the
	// resulting weights under the true parameters: "is my portfolio fragile
	// to estimation error".
	ModeReoptimize
)

// Parameter selects which per-asset input is perturbed.
type Parameter int

const (
	ParameterReturn Parameter = iota
	ParameterVolatility
)

// Direction of a single perturbation.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// Record is the measured impact of one (asset, direction) perturbation.
type Record struct {
	Asset            string
	Direction        Direction
	ReturnImpact     float64
	VolatilityImpact float64
	SharpeImpact     float64
}

// Report holds the outcome of one sensitivity analysis run. Records may hold
// fewer than 2n entries in ModeReoptimize when a perturbed re-solve fails.
type Report struct {
	Mode           Mode
	Parameter      Parameter
	Step           float64
	BaseReturn     float64
	BaseVolatility float64
	BaseSharpe     float64
	Records        []Record
}
