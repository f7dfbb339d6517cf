// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"github.com/curioloop/lmfit/linalg"
)

const (
	zero  = 0.0
	one   = 1.0
	ten   = 10.0
	tenth = 0.1
)

// initLambda is the damping parameter λ at the first iteration.
const initLambda = 1e-3

type fitMode int

const (
	OK fitMode = iota
	// NotReady fit requested before an evaluation and consistent sample
	// arrays are attached, or with every parameter held.
	NotReady
	// EvalFailed the model evaluation returned an error or panicked.
	EvalFailed
	// SingularMatrix the augmented curvature system or the weighted
	// Jacobian product is not invertible.
	SingularMatrix
	// LMExceedMaxIter more than max iterations without reaching the
	// small-improvement threshold.
	LMExceedMaxIter
	// GammaExceedMaxIter the incomplete gamma iteration behind the
	// chi-square probability did not converge.
	GammaExceedMaxIter
)

// evalFunc is the generalized vector-output evaluation the three problem
// shapes wrap into: fill the nout predictions y and the nout × ma Jacobian
// jac of the model at sample i with trial parameters a.
type evalFunc func(i int, x []float64, a []float64, y []float64, jac *linalg.Matrix) error

type fitSpec struct {
	// the number of samples
	ndat int
	// the input dimension
	dim int
	// the output dimension
	nout int
	// the number of model parameters
	ma int
	// sample inputs, ndat × dim
	x *linalg.Matrix
	// sample outputs, ndat × nout
	y *linalg.Matrix
	// per-sample standard deviations
	sig []float64
	// initial parameter vector supplied by the evaluation
	guess []float64
	eval  evalFunc
	stop  Termination
	cov   Covariance
	log   Logger
}

type fitCtx struct {
	// parameter vector, mutated in place across iterations.
	a []float64
	// freeze mask: ia[j] = false pins a[j] at hold[j].
	ia   []bool
	hold []float64
	// active parameter indices, rebuilt once per fit.
	active []int
	// curvature matrix approximation, active block compacted to the
	// leading mfit × mfit corner.
	alpha *linalg.Matrix
	// gradient of the weighted sum of squared residuals, compacted.
	beta []float64
	// covariance candidate, trial-curvature scratch during iteration.
	covar *linalg.Matrix
	// augmented system and its right-hand side, sized mfit per fit.
	work  *linalg.Matrix
	oneda *linalg.Matrix
	// trial parameters, trial gradient and expansion scratch.
	atry, da []float64
	// per-output model gradient packed over the active parameters.
	grad []float64
	tmp  *linalg.Matrix
	// per-sample model output and Jacobian scratch.
	ymod []float64
	jac  *linalg.Matrix
	// damping parameter λ, the primary optimizer state.
	alamda float64
	// chi-square and mean-square error of the accepted parameters.
	chisq, mse float64
	// counters: small-improvement iterations, iterations, evaluations.
	done, iter, eval int
	// avail gates result access until a fit converged.
	avail bool
}

func (c *fitCtx) init(ndat, nout, ma int, guess []float64) {
	c.a = make([]float64, ma)
	copy(c.a, guess)
	c.ia = make([]bool, ma)
	for i := range c.ia {
		c.ia[i] = true
	}
	c.hold = make([]float64, ma)
	c.active = make([]int, 0, ma)
	c.alpha = linalg.New(ma, ma)
	c.beta = make([]float64, ma)
	c.covar = linalg.New(ma, ma)
	c.tmp = linalg.New(ma, ma)
	c.atry = make([]float64, ma)
	c.da = make([]float64, ma)
	c.grad = make([]float64, ma)
	c.ymod = make([]float64, nout)
	c.jac = linalg.New(nout, ma)
}

// rebuild the active index list and reset the optimizer state.
func (c *fitCtx) reset() (mfit int) {
	c.active = c.active[:0]
	for j, free := range c.ia {
		if free {
			c.active = append(c.active, j)
		} else {
			c.a[j] = c.hold[j]
		}
	}
	c.alamda = initLambda
	c.done = 0
	c.iter = 0
	c.eval = 0
	c.avail = false

	mfit = len(c.active)
	if mfit > 0 {
		if r, _ := sized(c.work); r != mfit {
			c.work = linalg.New(mfit, mfit)
			c.oneda = linalg.New(mfit, 1)
		}
	}
	return mfit
}

func sized(m *linalg.Matrix) (rows, cols int) {
	if m == nil {
		return 0, 0
	}
	return m.Dims()
}
