// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"github.com/curioloop/lmfit/linalg"
	"github.com/curioloop/lmfit/numdiff"
)

// NumDeriv builds a CurveEvaluation for a model without analytic
// derivatives, estimating 𝜕y/𝜕𝐚 over the parameters by finite
// differences. The evaluation reuses internal scratch and must not be
// shared between fitters running concurrently.
func NumDeriv(guess []float64, method numdiff.Method, f func(i int, x float64, a []float64) float64) CurveEvaluation {
	return CurveEvaluation{
		Guess: guess,
		Function: func(i int, x float64, a, dyda []float64) (float64, error) {
			g := numdiff.Gradient{
				Object: func(p []float64) float64 { return f(i, x, p) },
				Method: method,
			}
			if err := g.Estimate(a, dyda); err != nil {
				return zero, err
			}
			return f(i, x, a), nil
		},
	}
}

// NumPartial is the multi-dimensional input counterpart of NumDeriv,
// building a PointEvaluation.
func NumPartial(guess []float64, method numdiff.Method, f func(i int, x, a []float64) float64) PointEvaluation {
	return PointEvaluation{
		Guess: guess,
		Function: func(i int, x []float64, a, dyda []float64) (float64, error) {
			g := numdiff.Gradient{
				Object: func(p []float64) float64 { return f(i, x, p) },
				Method: method,
			}
			if err := g.Estimate(a, dyda); err != nil {
				return zero, err
			}
			return f(i, x, a), nil
		},
	}
}

// NumJacobian builds a FieldEvaluation for a vector-output model without
// analytic derivatives, estimating the nout × ma parameter Jacobian by
// finite differences.
func NumJacobian(guess []float64, nout int, method numdiff.Method, f func(i int, x, a, y []float64)) FieldEvaluation {
	ma := len(guess)
	flat := make([]float64, nout*ma)
	est := &numdiff.Jacobian{N: ma, M: nout, Method: method}
	return FieldEvaluation{
		Guess: guess,
		Function: func(i int, x []float64, a, y []float64, jac *linalg.Matrix) error {
			est.Object = func(p, out []float64) { f(i, x, p, out) }
			if err := est.Estimate(a, flat); err != nil {
				return err
			}
			for v := 0; v < nout; v++ {
				copy(jac.Row(v), flat[v*ma:(v+1)*ma])
			}
			f(i, x, a, y)
			return nil
		},
	}
}
