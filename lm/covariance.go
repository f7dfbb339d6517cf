// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"github.com/curioloop/lmfit/linalg"
)

// expandCovariance spreads the compacted mfit × mfit block back over the
// full parameter ordering: entry (j,k) of the block lands at
// (active[j], active[k]) and every held parameter keeps a zero row and
// column. The projection through the active-index list replaces the
// classical in-place element swapping.
func (fs *fitSolver) expandCovariance(block *linalg.Matrix) {
	ctx := &fs.workspace.fitCtx
	ctx.tmp.Zero()
	for j, l := range ctx.active {
		row := ctx.tmp.Row(l)
		for k, m := range ctx.active {
			row[m] = block.At(j, k)
		}
	}
	ctx.covar.Copy(ctx.tmp)
}

// adjustCovariance discards the inverse-curvature estimate, whose scale is
// tied to the optimizer bookkeeping rather than the noise model, and
// recomputes
//
//	𝐂𝐨𝐯 = (𝐉ᵀ𝐖𝐉)⁻¹ with 𝐖 = 𝚍𝚒𝚊𝚐(1/((𝚍𝚘𝚏+1)·σᵢ²))
//
// where 𝐉 stacks the model Jacobian of every sample (and every output
// component) at the converged parameters. Only the active parameters
// enter the product, so held parameters keep their zero rows after
// re-expansion.
func (fs *fitSolver) adjustCovariance() fitMode {

	spec, ctx := &fs.fitter.fitSpec, &fs.workspace.fitCtx
	active := ctx.active
	mfit := len(active)

	dof := float64(spec.ndat - spec.ma)
	m := ctx.work // mfit × mfit, free after the final solve
	m.Zero()

	for i := 0; i < spec.ndat; i++ {
		if mode := fs.evalAt(i, ctx.a); mode != OK {
			return mode
		}
		sig := spec.sig[i]
		wt := one / ((dof + one) * sig * sig)
		for v := 0; v < spec.nout; v++ {
			jr := ctx.jac.Row(v)
			g := ctx.grad[:mfit]
			for j, l := range active {
				g[j] = jr[l]
			}
			for j := 0; j < mfit; j++ {
				daxpy(j+1, g[j]*wt, g, m.Row(j))
			}
		}
	}
	for j := 1; j < mfit; j++ {
		for k := 0; k < j; k++ {
			m.Set(k, j, m.At(j, k))
		}
	}

	if err := linalg.GaussJordan(m, nil); err != nil {
		return SingularMatrix
	}
	fs.expandCovariance(m)
	return OK
}
