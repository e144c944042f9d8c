package optimization

import (
	"gonum.org/v1/gonum/mat"
)

// NewCovariance builds the covariance matrix Σ from per-asset volatilities
// and a correlation matrix: Σᵢⱼ = ρᵢⱼ·σᵢ·σⱼ. Inputs are assumed validated
// (positive volatilities, valid correlation matrix); Σ is symmetric and PSD
// whenever ρ is.
func NewCovariance(volatilities []float64, correlation mat.Symmetric) *mat.SymDense {
	n := len(volatilities)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, correlation.At(i, j)*volatilities[i]*volatilities[j])
		}
	}
	return cov
}

// ImpliedCorrelation extracts the correlation matrix implied by a covariance
// matrix: ρᵢⱼ = Σᵢⱼ/(σᵢσⱼ). Round-trip inverse of NewCovariance.
func ImpliedCorrelation(covariance mat.Symmetric, volatilities []float64) *mat.SymDense {
	n := len(volatilities)
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			corr.SetSym(i, j, covariance.At(i, j)/(volatilities[i]*volatilities[j]))
		}
	}
	return corr
}
