// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"math"

	"github.com/curioloop/lmfit/linalg"
)

// fitSolver drives the Levenberg-Marquardt iteration: it blends
// gradient-descent and Gauss-Newton steps through the damping parameter λ,
// which scales the diagonal of the working curvature matrix.
//
//	(𝛂 + λ·𝚍𝚒𝚊𝚐(𝛂)) 𝛅𝐚 = 𝛃
//
// A trial step 𝐚 + 𝛅𝐚 is accepted only on a strict chi-square improvement,
// relaxing λ by ×0.1; a rejection keeps the previous point and boosts λ
// by ×10. Once the chi-square change stays below tolerance for the
// configured number of steps, one final solve with λ = 0 is performed and
// the inverse of that un-damped system becomes the covariance estimate.
//
// W.H. Press et al., 'Numerical Recipes', Cambridge University Press.
// Chapter 15.5.
type fitSolver struct {
	fitter    *Fitter
	workspace *Workspace
}

func (fs *fitSolver) mainLoop() fitMode {

	spec, ctx := &fs.fitter.fitSpec, &fs.workspace.fitCtx
	stop := spec.stop

	mfit := ctx.reset()
	if mfit == 0 {
		return NotReady
	}
	fs.printInit(mfit)

	// Curvature at the starting point.
	chisq, mse, mode := fs.curvature(ctx.a, ctx.alpha, ctx.beta)
	if mode != OK {
		return mode
	}
	ctx.chisq, ctx.mse = chisq, mse
	ochisq := chisq

	for ctx.iter = 1; ctx.iter <= stop.MaxIterations; ctx.iter++ {

		// A full streak of small improvements: force λ = 0 so the last
		// step is pure Gauss-Newton.
		if ctx.done >= stop.Done {
			ctx.alamda = zero
		}

		// Augmented system: the active curvature block with its diagonal
		// scaled by (1+λ), right-hand side 𝛃.
		for j := 0; j < mfit; j++ {
			copy(ctx.work.Row(j), ctx.alpha.Row(j)[:mfit])
			ctx.work.Set(j, j, ctx.alpha.At(j, j)*(one+ctx.alamda))
			ctx.oneda.Set(j, 0, ctx.beta[j])
		}
		if err := linalg.GaussJordan(ctx.work, ctx.oneda); err != nil {
			return SingularMatrix
		}
		for j := 0; j < mfit; j++ {
			ctx.da[j] = ctx.oneda.At(j, 0)
		}

		if ctx.alamda == zero {
			// Converged: work now holds the inverse of the un-damped
			// curvature block, the covariance of the active parameters.
			fs.expandCovariance(ctx.work)
			if !spec.cov.Raw {
				if mode = fs.adjustCovariance(); mode != OK {
					return mode
				}
			}
			ctx.avail = true
			return OK
		}

		// Trial point: held entries copy through unchanged.
		copy(ctx.atry, ctx.a)
		for j, l := range ctx.active {
			ctx.atry[l] = ctx.a[l] + ctx.da[j]
		}

		// Trial curvature into the covariance scratch, trial gradient
		// into da.
		chisq, mse, mode = fs.curvature(ctx.atry, ctx.covar, ctx.da)
		if mode != OK {
			return mode
		}

		if math.Abs(chisq-ochisq) < math.Max(stop.Tolerance, stop.Tolerance*chisq) {
			ctx.done++
		}

		if chisq < ochisq {
			// Accept: relax the damping and rebase on the trial point.
			ctx.alamda *= tenth
			ochisq = chisq
			ctx.alpha.Copy(ctx.covar)
			copy(ctx.beta[:mfit], ctx.da[:mfit])
			copy(ctx.a, ctx.atry)
			ctx.chisq, ctx.mse = chisq, mse
		} else {
			// Reject: boost the damping, keep the previous point.
			ctx.alamda *= ten
			ctx.chisq = ochisq
		}

		fs.printIter(chisq)
	}

	ctx.iter = stop.MaxIterations
	return LMExceedMaxIter
}

func (fs *fitSolver) printInit(mfit int) {
	spec, ctx := &fs.fitter.fitSpec, &fs.workspace.fitCtx
	log := &spec.log
	if !log.enable(LogLast) {
		return
	}
	log.log("RUNNING THE LEVENBERG-MARQUARDT CODE\n")
	log.log("           * * *\n")
	log.log("NDAT = %d    MA = %d    MFIT = %d\n", spec.ndat, spec.ma, mfit)
	if log.enable(LogVerbose) {
		log.log("\nA0 = ")
		for i, a := range ctx.a {
			log.log("%.2e ", a)
			if (i+1)%6 == 0 {
				log.log("\n     ")
			}
		}
		log.log("\n")
	}
}

func (fs *fitSolver) printIter(try float64) {
	spec, ctx := &fs.fitter.fitSpec, &fs.workspace.fitCtx
	log := &spec.log
	if log.enable(LogTrace) {
		log.log("\nITERATION %5d\n", ctx.iter)
		log.log("At iterate %5d    chi2= %12.5e    try= %12.5e    lambda= %10.3e    done= %d\n",
			ctx.iter, ctx.chisq, try, ctx.alamda, ctx.done)
		if log.enable(LogVerbose) {
			log.log("\n A = ")
			for i, a := range ctx.a {
				log.log("%.2e ", a)
				if (i+1)%6 == 0 {
					log.log("\n     ")
				}
			}
			log.log("\n")
		}
	} else if log.enable(LogEval) {
		if ctx.iter%int(log.Level) == 0 {
			log.log("At iterate %5d    chi2= %12.5e    lambda= %10.3e\n", ctx.iter, ctx.chisq, ctx.alamda)
		}
	}
}

func (fs *fitSolver) printExit(r *Result) {
	spec, ctx := &fs.fitter.fitSpec, &fs.workspace.fitCtx
	log := &spec.log
	if !log.enable(LogLast) {
		return
	}

	log.log("\n           * * *\n")
	log.log("Tit   = total number of iterations\n")
	log.log("Tnf   = total number of model evaluations\n")
	log.log("Chi2  = final chi-square per degree of freedom\n")
	log.log("MSE   = final mean squared error\n")
	log.log("\n   NDAT    MA    Tit    Tnf        Chi2         MSE\n")
	log.log("%7d %5d %6d %6d %11.5e %11.5e\n",
		spec.ndat, spec.ma, ctx.iter, ctx.eval, ctx.chisq, ctx.mse)

	var msg string
	switch r.Status {
	case OK:
		msg = "CONVERGENCE: CHI-SQUARE CHANGE BELOW TOLERANCE"
	case NotReady:
		msg = "STOP: NO ACTIVE PARAMETER OR DATA NOT ATTACHED"
	case EvalFailed:
		msg = "STOP: MODEL EVALUATION FAILED"
	case SingularMatrix:
		msg = "STOP: SINGULAR CURVATURE SYSTEM"
	case LMExceedMaxIter:
		msg = "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case GammaExceedMaxIter:
		msg = "STOP: CHI-SQUARE PROBABILITY DID NOT CONVERGE"
	default:
		msg = "UNKNOWN STATUS"
	}
	log.log("\n%s\n", msg)

	if log.enable(LogEval) && r.OK {
		log.log(" P = %.9e    Q = %.9e\n", r.P, r.Q)
	}
}
