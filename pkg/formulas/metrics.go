// Package formulas provides pure portfolio math helpers.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MinVolatility is the threshold below which portfolio volatility is treated
// as zero. A portfolio this close to risk-free has an ill-defined excess-return
// ratio, so the Sharpe ratio is reported as 0 rather than diverging.
const MinVolatility = 1e-8

// PortfolioReturn calculates the expected portfolio return w'μ.
func PortfolioReturn(weights, expectedReturns []float64) float64 {
	return floats.Dot(weights, expectedReturns)
}

// PortfolioVariance calculates the portfolio variance w'Σw.
func PortfolioVariance(weights []float64, covariance mat.Symmetric) float64 {
	w := mat.NewVecDense(len(weights), weights)
	return mat.Inner(w, covariance, w)
}

// PortfolioVolatility calculates portfolio volatility sqrt(w'Σw).
// The variance is clamped at 0 before the square root: floating-point
// cancellation can leave a tiny negative value when the true variance is ~0.
func PortfolioVolatility(weights []float64, covariance mat.Symmetric) float64 {
	return math.Sqrt(math.Max(0, PortfolioVariance(weights, covariance)))
}

// SharpeRatio calculates (w'μ - r_f) / sqrt(w'Σw), or 0 when volatility is
// below MinVolatility.
func SharpeRatio(weights, expectedReturns []float64, covariance mat.Symmetric, riskFreeRate float64) float64 {
	vol := PortfolioVolatility(weights, covariance)
	if vol > MinVolatility {
		return (PortfolioReturn(weights, expectedReturns) - riskFreeRate) / vol
	}
	return 0
}

// Utility calculates the quadratic utility U = w'μ - 0.5·A·(w'Σw).
// Uses the raw variance, not the clamped volatility, for exactness.
func Utility(weights, expectedReturns []float64, covariance mat.Symmetric, riskAversion float64) float64 {
	return PortfolioReturn(weights, expectedReturns) - 0.5*riskAversion*PortfolioVariance(weights, covariance)
}
