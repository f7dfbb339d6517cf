// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"math"

	"github.com/curioloop/lmfit/linalg"
)

// evalAt runs the model evaluation at sample i with trial parameters a,
// filling the workspace prediction and Jacobian scratch. A returned error
// or a panic inside the evaluation maps to EvalFailed.
func (fs *fitSolver) evalAt(i int, a []float64) (mode fitMode) {
	spec, ctx := &fs.fitter.fitSpec, &fs.workspace.fitCtx
	defer func() {
		if r := recover(); r != nil {
			mode = EvalFailed
		}
	}()
	ctx.eval++
	if err := spec.eval(i, spec.x.Row(i), a, ctx.ymod, ctx.jac); err != nil {
		return EvalFailed
	}
	return OK
}

// curvature accumulates the Gauss-Newton approximation of the weighted
// sum of squared residuals at trial parameters a:
//
//	𝛂ₗₘ = ∑ᵢ 𝜕ŷᵢ/𝜕𝐚ₗ · 𝜕ŷᵢ/𝜕𝐚ₘ / σᵢ²
//	𝛃ₗ  = ∑ᵢ (yᵢ - ŷᵢ) · 𝜕ŷᵢ/𝜕𝐚ₗ / σᵢ²
//
// summed over every output component for vector models. Only the active
// parameters contribute; their block is compacted to the leading
// mfit × mfit corner of alpha, lower triangle first, then mirrored.
//
// Chi-square is normalized by the degrees of freedom ndat - ma and the
// mean squared error by |ndat - ma|. Neither divide is guarded: with
// ndat == ma the statistics propagate ±Inf/NaN.
func (fs *fitSolver) curvature(a []float64, alpha *linalg.Matrix, beta []float64) (chisq, mse float64, mode fitMode) {

	spec, ctx := &fs.fitter.fitSpec, &fs.workspace.fitCtx
	active := ctx.active
	mfit := len(active)

	for j := 0; j < mfit; j++ {
		dzero(alpha.Row(j)[:mfit])
	}
	dzero(beta[:mfit])

	for i := 0; i < spec.ndat; i++ {
		if mode = fs.evalAt(i, a); mode != OK {
			return
		}
		sig := spec.sig[i]
		wt := one / (sig * sig)
		obs := spec.y.Row(i)
		for v := 0; v < spec.nout; v++ {
			jr := ctx.jac.Row(v)
			dy := obs[v] - ctx.ymod[v]
			g := ctx.grad[:mfit]
			for j, l := range active {
				g[j] = jr[l]
			}
			for j := 0; j < mfit; j++ {
				daxpy(j+1, g[j]*wt, g, alpha.Row(j))
			}
			daxpy(mfit, dy*wt, g, beta)
			chisq += dy * dy * wt
			mse += dy * dy
		}
	}

	// Mirror the lower triangle of the active block.
	for j := 1; j < mfit; j++ {
		for k := 0; k < j; k++ {
			alpha.Set(k, j, alpha.At(j, k))
		}
	}

	dof := float64(spec.ndat - spec.ma)
	chisq /= dof
	mse /= math.Abs(dof)
	return chisq, mse, OK
}
