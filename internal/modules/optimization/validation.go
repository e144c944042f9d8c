package optimization

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Validation tolerances.
const (
	// psdTolerance is how far below zero an eigenvalue may sit before the
	// correlation matrix is rejected as not positive semi-definite.
	psdTolerance = 1e-8
	// symmetryTolerance is the per-entry tolerance for symmetry and
	// unit-diagonal checks.
	symmetryTolerance = 1e-8
)

// ValidateCorrelationMatrix checks that corr is a usable correlation matrix:
// square, unit diagonal, symmetric, entries in [-1, 1], and positive
// semi-definite within tolerance. Returns nil when valid.
func ValidateCorrelationMatrix(corr mat.Matrix) error {
	r, c := corr.Dims()
	if r != c {
		return fmt.Errorf("correlation matrix must be square, got %dx%d", r, c)
	}

	for i := 0; i < r; i++ {
		if math.Abs(corr.At(i, i)-1.0) > symmetryTolerance {
			return fmt.Errorf("diagonal elements must be 1.0, got %.6f at (%d,%d)", corr.At(i, i), i, i)
		}
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if math.Abs(corr.At(i, j)-corr.At(j, i)) > symmetryTolerance {
				return fmt.Errorf("correlation matrix must be symmetric: (%d,%d)=%.6f but (%d,%d)=%.6f",
					i, j, corr.At(i, j), j, i, corr.At(j, i))
			}
		}
	}

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := corr.At(i, j); v < -1-symmetryTolerance || v > 1+symmetryTolerance {
				return fmt.Errorf("correlation values must be between -1 and 1, got %.6f at (%d,%d)", v, i, j)
			}
		}
	}

	// PSD check on the (already verified symmetric) matrix
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			sym.SetSym(i, j, corr.At(i, j))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return fmt.Errorf("eigenvalue decomposition of correlation matrix failed")
	}
	for _, ev := range eig.Values(nil) {
		if ev < -psdTolerance {
			return fmt.Errorf("correlation matrix must be positive semi-definite, eigenvalue %.2e < 0", ev)
		}
	}

	return nil
}

// ValidateInputs checks a full optimization request: matching lengths,
// positive volatilities, a valid correlation matrix, and ordered bounds
// (finite bounds within [0, 1], ±Inf allowed to signal unconstrained).
// All problems found are reported in a single error.
func ValidateInputs(assets AssetSet, corr mat.Matrix, bounds Bounds) error {
	var errs []string

	n := assets.Len()
	if len(assets.ExpectedReturns) != n {
		errs = append(errs, fmt.Sprintf("expected returns length (%d) != number of assets (%d)", len(assets.ExpectedReturns), n))
	}
	if len(assets.Volatilities) != n {
		errs = append(errs, fmt.Sprintf("volatilities length (%d) != number of assets (%d)", len(assets.Volatilities), n))
	}
	if len(bounds.Lower) != n {
		errs = append(errs, fmt.Sprintf("lower bounds length (%d) != number of assets (%d)", len(bounds.Lower), n))
	}
	if len(bounds.Upper) != n {
		errs = append(errs, fmt.Sprintf("upper bounds length (%d) != number of assets (%d)", len(bounds.Upper), n))
	}

	if err := ValidateCorrelationMatrix(corr); err != nil {
		errs = append(errs, fmt.Sprintf("correlation matrix error: %v", err))
	}

	for i, vol := range assets.Volatilities {
		if vol <= 0 {
			errs = append(errs, fmt.Sprintf("all volatilities must be positive, asset %d has %.6f", i, vol))
			break
		}
	}

	if len(bounds.Lower) == len(bounds.Upper) {
		for i := range bounds.Lower {
			lower, upper := bounds.Lower[i], bounds.Upper[i]
			if lower > upper {
				errs = append(errs, fmt.Sprintf("lower bound must be <= upper bound, asset %d has [%.4f, %.4f]", i, lower, upper))
				break
			}
		}
		for i := range bounds.Lower {
			lowerBad := !math.IsInf(bounds.Lower[i], -1) && bounds.Lower[i] < 0
			upperBad := !math.IsInf(bounds.Upper[i], 1) && bounds.Upper[i] > 1
			if lowerBad || upperBad {
				errs = append(errs, "finite bounds must be between 0 and 1")
				break
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid inputs: %s", strings.Join(errs, "; "))
	}
	return nil
}
