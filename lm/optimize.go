// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lm fits model parameters to weighted samples with the
// Levenberg-Marquardt algorithm.
//
// Three problem shapes share one engine:
//   - Curve : y = 𝒇(x;𝐚) of a scalar input
//   - Surface : y = 𝒇(𝐱;𝐚) of a multi-dimensional input
//   - Field : 𝐲 = 𝒇(𝐱;𝐚) with vector output
//
// Each shape wraps a caller-supplied evaluation that returns the model
// prediction and its partial derivatives with respect to the parameters 𝐚.
// The engine accumulates a Gauss-Newton curvature matrix over the samples,
// solves a damped normal system per iteration, and on convergence reports
// the parameters, their covariance and the chi-square fit probability.
package lm

import (
	"errors"
	"math"
	"os"

	"github.com/curioloop/lmfit/linalg"
)

// Termination specifies the stopping criteria for the fitting iteration.
type Termination struct {
	// The iteration counts one "done" step when |𝛘²ₖ₊₁ - 𝛘²ₖ| < 𝚖𝚊𝚡(𝚝𝚘𝚕, 𝚝𝚘𝚕·𝛘²ₖ₊₁).
	// Default 1e-3.
	Tolerance float64
	// The fit fails when the number of iterations exceeds limit.
	// Default 5000.
	MaxIterations int
	// Done is the number of small-improvement steps required before the
	// final pure Gauss-Newton solve declares convergence. Default 4.
	Done int
}

// Covariance controls the covariance post-processing.
type Covariance struct {
	// Raw keeps the inverse-curvature estimate, which is only proportional
	// to the parameter covariance. By default the covariance is recomputed
	// as (𝐉ᵀ𝐖𝐉)⁻¹ with 𝐖 = 𝚍𝚒𝚊𝚐(1/((𝚍𝚘𝚏+1)·σᵢ²)) so its scale is tied to
	// the sample standard deviations.
	Raw bool
}

// CurveEvaluation models y = 𝒇(x;𝐚) of a scalar input.
//
// Function receives the sample index, the input value, the trial
// parameters, and fills dyda with 𝜕y/𝜕𝐚ⱼ. It must be deterministic for
// fixed (i, x, a).
type CurveEvaluation struct {
	// Initial parameter vector 𝐚₀; its length defines the parameter count.
	Guess    []float64
	Function func(i int, x float64, a, dyda []float64) (y float64, err error)
}

// PointEvaluation models y = 𝒇(𝐱;𝐚) of a multi-dimensional input.
type PointEvaluation struct {
	Guess    []float64
	Function func(i int, x []float64, a, dyda []float64) (y float64, err error)
}

// FieldEvaluation models 𝐲 = 𝒇(𝐱;𝐚) with vector output.
// Function fills y with the nout predictions and jac (nout × ma) with the
// Jacobian 𝜕yᵥ/𝜕𝐚ⱼ at sample i.
type FieldEvaluation struct {
	Guess    []float64
	Function func(i int, x []float64, a, y []float64, jac *linalg.Matrix) error
}

// Curve specifies a single-output fit over scalar inputs.
type Curve struct {
	X, Y   []float64
	Sigma  []float64 // per-sample standard deviations, strictly positive
	Object CurveEvaluation
	Stop   Termination
	Covar  Covariance
}

// Surface specifies a single-output fit over multi-dimensional inputs.
type Surface struct {
	X      *linalg.Matrix // ndat × dim input points
	Y      []float64
	Sigma  []float64
	Object PointEvaluation
	Stop   Termination
	Covar  Covariance
}

// Field specifies a vector-output fit over multi-dimensional inputs.
type Field struct {
	X      *linalg.Matrix // ndat × dim input points
	Y      *linalg.Matrix // ndat × nout observed outputs
	Sigma  []float64
	Object FieldEvaluation
	Stop   Termination
	Covar  Covariance
}

// New creates a Levenberg-Marquardt fitter for the curve problem.
func (p *Curve) New(logger *Logger) (*Fitter, error) {
	if p.Object.Function == nil {
		return nil, errors.New("curve evaluation is required")
	}
	ndat := len(p.X)
	if ndat == 0 {
		return nil, errors.New("sample arrays are required")
	}
	x := linalg.New(max(ndat, 1), 1)
	for i, v := range p.X {
		x.Set(i, 0, v)
	}
	fn := p.Object.Function
	eval := func(i int, xi []float64, a []float64, y []float64, jac *linalg.Matrix) error {
		v, err := fn(i, xi[0], a, jac.Row(0))
		y[0] = v
		return err
	}
	return newFitter(x, column(p.Y), p.Sigma, p.Object.Guess, eval, p.Stop, p.Covar, logger)
}

// New creates a Levenberg-Marquardt fitter for the surface problem.
func (p *Surface) New(logger *Logger) (*Fitter, error) {
	if p.Object.Function == nil {
		return nil, errors.New("point evaluation is required")
	}
	fn := p.Object.Function
	eval := func(i int, xi []float64, a []float64, y []float64, jac *linalg.Matrix) error {
		v, err := fn(i, xi, a, jac.Row(0))
		y[0] = v
		return err
	}
	return newFitter(p.X, column(p.Y), p.Sigma, p.Object.Guess, eval, p.Stop, p.Covar, logger)
}

// New creates a Levenberg-Marquardt fitter for the field problem.
func (p *Field) New(logger *Logger) (*Fitter, error) {
	if p.Object.Function == nil {
		return nil, errors.New("field evaluation is required")
	}
	return newFitter(p.X, p.Y, p.Sigma, p.Object.Guess, p.Object.Function, p.Stop, p.Covar, logger)
}

func column(y []float64) *linalg.Matrix {
	m := linalg.New(max(len(y), 1), 1)
	for i, v := range y {
		m.Set(i, 0, v)
	}
	return m
}

func newFitter(x, y *linalg.Matrix, sig, guess []float64,
	eval evalFunc, stop Termination, cov Covariance, logger *Logger) (fitter *Fitter, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}

	if stop.Tolerance == zero {
		stop.Tolerance = 1e-3
	}
	if stop.MaxIterations == 0 {
		stop.MaxIterations = 5000
	}
	if stop.Done == 0 {
		stop.Done = 4
	}

	var ndat, dim, nrow, nout int
	if x != nil {
		ndat, dim = x.Dims()
	}
	if y != nil {
		nrow, nout = y.Dims()
	}

	switch {
	case x == nil || y == nil:
		err = errors.New("sample arrays are required")
	case ndat <= 0:
		err = errors.New("sample count must greater than 0")
	case nrow != ndat:
		err = errors.New("sample count must match between inputs and outputs")
	case len(sig) != ndat:
		err = errors.New("sigma size must equal to sample count")
	case len(guess) == 0:
		err = errors.New("initial parameter guess is required")
	case stop.Tolerance < zero:
		err = errors.New("tolerance must greater than 0")
	case stop.MaxIterations < 0:
		err = errors.New("max iteration must greater than 0")
	case stop.Done < 0:
		err = errors.New("done threshold must not less than 1")
	}
	if err == nil {
		for _, s := range sig {
			if !(s > zero) {
				err = errors.New("sigma must be strictly positive")
				break
			}
		}
	}
	if err != nil {
		return
	}

	g := make([]float64, len(guess))
	copy(g, guess)

	fitter = &Fitter{
		fitSpec{
			ndat: ndat, dim: dim, nout: nout, ma: len(guess),
			x: x, y: y, sig: sig,
			guess: g, eval: eval,
			stop: stop, cov: cov,
			log: *logger,
		},
	}
	return
}

// Fitter estimates model parameters with the Levenberg-Marquardt algorithm.
type Fitter struct {
	fitSpec
}

// Workspace contains the state and context of one fitting process:
// the parameter vector, the freeze mask, the curvature and covariance
// matrices and all per-iteration scratch, sized once at Init.
type Workspace struct {
	ndat, nout, ma int
	fitCtx
}

// Result contains the final result of the fitting process.
type Result struct {
	OK      bool           // Whether the fit converged.
	A       []float64      // Fitted parameter vector.
	Covar   *linalg.Matrix // Parameter covariance estimate.
	ChiSq   float64        // Chi-square per degree of freedom.
	MSE     float64        // Mean squared error.
	Dof     int            // Degrees of freedom ndat - ma.
	P, Q    float64        // Chi-square fit probability and 1-P.
	Summary                // Fitting summary.
}

// Summary contains a summary of the fitting process.
type Summary struct {
	Status  fitMode // Final status after fitting.
	NumIter int     // Number of iterations performed.
	NumEval int     // Number of model evaluations performed.
}

// Init allocate the workspace for the fitter.
// To avoid race conditions, separate workspaces need to be created for each
// goroutine. But multiple workspaces could share one fitter.
func (f *Fitter) Init() *Workspace {
	w := new(Workspace)
	w.ndat, w.nout, w.ma = f.ndat, f.nout, f.ma
	w.init(f.ndat, f.nout, f.ma, f.guess)
	return w
}

// Hold pins parameter i at value v, excluding it from subsequent solves
// until Free is called. Its covariance row and column report zero.
func (w *Workspace) Hold(i int, v float64) {
	if uint(i) >= uint(w.ma) {
		panic("parameter index not match spec")
	}
	w.ia[i] = false
	w.hold[i] = v
	w.a[i] = v
}

// Free releases a held parameter back into the active set for the next fit,
// starting from its held value.
func (w *Workspace) Free(i int) {
	if uint(i) >= uint(w.ma) {
		panic("parameter index not match spec")
	}
	w.ia[i] = true
}

// Fit runs the fitting process using workspace w.
//
// The iteration starts from the workspace parameter vector: the initial
// guess after Init, or the previously converged values on a repeated call.
// One fit runs to completion per workspace; concurrent calls on the same
// workspace are not supported.
func (f *Fitter) Fit(w *Workspace) *Result {

	if w.ndat != f.ndat || w.nout != f.nout || w.ma != f.ma {
		panic("workspace dimension not match spec")
	}

	solver := fitSolver{fitter: f, workspace: w}
	mode := solver.mainLoop()

	r := &Result{
		OK:    mode == OK,
		ChiSq: w.chisq,
		MSE:   w.mse,
		Dof:   f.ndat - f.ma,
		P:     math.NaN(),
		Q:     math.NaN(),
		Summary: Summary{
			Status:  mode,
			NumIter: w.iter,
			NumEval: w.eval,
		},
	}
	r.A = make([]float64, f.ma)
	copy(r.A, w.a)
	if w.avail {
		r.Covar = w.covar.Clone()
	}

	// Goodness of fit is only meaningful with positive degrees of freedom.
	if mode == OK && r.Dof > 0 {
		dof := float64(r.Dof)
		p, gm := chiSqCDF(w.chisq*dof, dof)
		if gm != OK {
			r.OK, r.Status = false, gm
		} else {
			r.P, r.Q = p, one-p
		}
	}

	solver.printExit(r)
	return r
}
