// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"math"
)

const (
	eps = float64(7)/3 - float64(4)/3 - 1.
	// gammaMaxIter bounds the series and continued-fraction expansions
	// of the regularized incomplete gamma function.
	gammaMaxIter = 500
	fpMin        = 1e-300
)

// chiSqCDF returns the probability that a chi-square variable with dof
// degrees of freedom is at most x, i.e. the chance of a fit this good or
// better by accident. Its complement 1-P is the fit quality.
func chiSqCDF(x, dof float64) (float64, fitMode) {
	return gammP(0.5*dof, 0.5*x)
}

// gammP computes the regularized lower incomplete gamma function
//
//	P(a,x) = γ(a,x)/Γ(a) = 1/Γ(a) ∫₀ˣ tᵃ⁻¹e⁻ᵗ dt  (a > 0, x ≥ 0)
//
// by its series expansion for x < a+1 and by the Lentz continued fraction
// of the complement Q(a,x) otherwise. Both expansions are iterative; a
// non-convergent expansion reports GammaExceedMaxIter instead of looping.
//
// W.H. Press et al., 'Numerical Recipes', Cambridge University Press.
// Chapter 6.2.
func gammP(a, x float64) (float64, fitMode) {
	switch {
	case a <= zero || x < zero:
		return math.NaN(), OK
	case x == zero:
		return zero, OK
	case x < a+one:
		return gser(a, x)
	default:
		q, mode := gcf(a, x)
		return one - q, mode
	}
}

// gser evaluates P(a,x) by the series γ(a,x) = e⁻ˣxᵃ ∑ₙ Γ(a)/Γ(a+1+n) xⁿ.
func gser(a, x float64) (float64, fitMode) {
	lg, _ := math.Lgamma(a)
	ap := a
	sum := one / a
	del := sum
	for n := 0; n < gammaMaxIter; n++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*eps {
			return sum * math.Exp(-x+a*math.Log(x)-lg), OK
		}
	}
	return zero, GammaExceedMaxIter
}

// gcf evaluates the complement Q(a,x) by modified Lentz continued
// fraction, valid for x ≥ a+1.
func gcf(a, x float64) (float64, fitMode) {
	lg, _ := math.Lgamma(a)
	b := x + one - a
	c := one / fpMin
	d := one / b
	h := d
	for i := 1; i <= gammaMaxIter; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < fpMin {
			d = fpMin
		}
		c = b + an/c
		if math.Abs(c) < fpMin {
			c = fpMin
		}
		d = one / d
		del := d * c
		h *= del
		if math.Abs(del-one) < eps {
			return math.Exp(-x+a*math.Log(x)-lg) * h, OK
		}
	}
	return zero, GammaExceedMaxIter
}
