// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/curioloop/lmfit/linalg"
)

func almostEqual(got, want []float64, tol float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i, g := range got {
		if math.Abs(g-want[i]) > tol {
			return false
		}
	}
	return true
}

func ones(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func linearCurve(guess []float64) CurveEvaluation {
	return CurveEvaluation{
		Guess: guess,
		Function: func(i int, x float64, a, dyda []float64) (float64, error) {
			dyda[0], dyda[1] = 1, x
			return a[0] + a[1]*x, nil
		},
	}
}

// y = 2 + 3x sampled at x = 0..4 with unit deviations.
func linearProblem() Curve {
	x := []float64{0, 1, 2, 3, 4}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 + 3*v
	}
	return Curve{
		X: x, Y: y, Sigma: ones(len(x)),
		Object: linearCurve([]float64{1, 1}),
	}
}

func TestLinearCurve(t *testing.T) {

	p := linearProblem()
	f, err := p.New(nil)
	require.NoError(t, err)

	w := f.Init()
	r := f.Fit(w)

	require.True(t, r.OK)
	require.Equal(t, OK, r.Status)
	require.InDelta(t, 2, r.A[0], 1e-6)
	require.InDelta(t, 3, r.A[1], 1e-6)
	require.InDelta(t, 0, r.ChiSq, 1e-9)
	require.InDelta(t, 0, r.MSE, 1e-9)
	require.Equal(t, 3, r.Dof)

	// Perfect fit: the probability of a chi-square this small vanishes.
	require.Less(t, r.P, 1e-6)
	require.Greater(t, r.Q, 1-1e-6)

	// Adjusted covariance (𝐉ᵀ𝐖𝐉)⁻¹ with 𝐖 = 𝐈/4 for dof = 3, σ = 1:
	// JᵀJ = [[5,10],[10,30]], so Cov = 4·(JᵀJ)⁻¹.
	require.True(t, r.Covar.Symmetric(1e-12))
	require.InDelta(t, 2.4, r.Covar.At(0, 0), 1e-9)
	require.InDelta(t, -0.8, r.Covar.At(0, 1), 1e-9)
	require.InDelta(t, 0.4, r.Covar.At(1, 1), 1e-9)
	require.GreaterOrEqual(t, r.Covar.At(0, 0), 0.0)
	require.GreaterOrEqual(t, r.Covar.At(1, 1), 0.0)
}

func TestRawCovariance(t *testing.T) {

	p := linearProblem()
	p.Covar.Raw = true
	f, err := p.New(nil)
	require.NoError(t, err)

	r := f.Fit(f.Init())
	require.True(t, r.OK)

	// Raw inverse-curvature estimate: (JᵀJ)⁻¹ for σ = 1.
	require.InDelta(t, 0.6, r.Covar.At(0, 0), 1e-9)
	require.InDelta(t, -0.2, r.Covar.At(0, 1), 1e-9)
	require.InDelta(t, 0.1, r.Covar.At(1, 1), 1e-9)
}

func TestGaussianCurve(t *testing.T) {

	// y = A·exp(-((x-μ)/w)²) with A = 5, μ = 2, w = 1.5.
	want := []float64{5, 2, 1.5}
	gauss := func(x float64, a []float64) float64 {
		arg := (x - a[1]) / a[2]
		return a[0] * math.Exp(-arg*arg)
	}

	var xs, ys []float64
	for x := 0.0; x <= 8.0; x += 0.25 {
		xs = append(xs, x)
		ys = append(ys, gauss(x, want))
	}

	obj := CurveEvaluation{
		Guess: []float64{4, 1.5, 1},
		Function: func(i int, x float64, a, dyda []float64) (float64, error) {
			arg := (x - a[1]) / a[2]
			e := math.Exp(-arg * arg)
			dyda[0] = e
			dyda[1] = 2 * a[0] * e * arg / a[2]
			dyda[2] = 2 * a[0] * e * arg * arg / a[2]
			return a[0] * e, nil
		},
	}

	p := Curve{X: xs, Y: ys, Sigma: ones(len(xs)), Object: obj}
	f, err := p.New(nil)
	if err != nil {
		panic(err)
	}
	w := f.Init()
	r := f.Fit(w)

	switch {
	case !r.OK:
		t.Fatal("TestGaussianCurve: Not Converge")
	case !almostEqual(r.A, want, 1e-3):
		t.Fatal("TestGaussianCurve: Bad Solution")
	case r.ChiSq > 1e-6:
		t.Fatal("TestGaussianCurve: Chi-Square Too Large")
	case !r.Covar.Symmetric(1e-9):
		t.Fatal("TestGaussianCurve: Covariance Not Symmetric")
	case r.NumIter >= 5000:
		t.Fatal("TestGaussianCurve: Too Many Iterations")
	}
}

func TestHoldFree(t *testing.T) {

	p := linearProblem()
	f, err := p.New(nil)
	require.NoError(t, err)

	w := f.Init()
	w.Hold(1, 3.5)
	r := f.Fit(w)
	require.True(t, r.OK)

	// The held slope stays exactly pinned; the free intercept compensates:
	// argmin over a0 of Σ(2+3x - a0 - 3.5x)² is a0 = 2 - 0.5·mean(x) = 1.
	require.Equal(t, 3.5, r.A[1])
	require.InDelta(t, 1, r.A[0], 1e-6)
	require.Greater(t, r.ChiSq, 0.0)

	// Zero covariance row and column for the held parameter.
	for j := 0; j < 2; j++ {
		require.Zero(t, r.Covar.At(1, j))
		require.Zero(t, r.Covar.At(j, 1))
	}

	// Released parameters rejoin the active set on the next fit.
	w.Free(1)
	r = f.Fit(w)
	require.True(t, r.OK)
	require.InDelta(t, 2, r.A[0], 1e-6)
	require.InDelta(t, 3, r.A[1], 1e-6)
}

func TestRepeatFit(t *testing.T) {

	p := linearProblem()
	f, err := p.New(nil)
	require.NoError(t, err)

	w := f.Init()
	r1 := f.Fit(w)
	require.True(t, r1.OK)

	r2 := f.Fit(w)
	require.True(t, r2.OK)
	require.True(t, almostEqual(r2.A, r1.A, 1e-10))
	require.InDelta(t, r1.ChiSq, r2.ChiSq, 1e-12)
}

func TestChiSquareDecreases(t *testing.T) {

	p := linearProblem()
	f, err := p.New(nil)
	require.NoError(t, err)

	w := f.Init()
	fs := fitSolver{fitter: f, workspace: w}
	w.reset()
	chisq0, _, mode := fs.curvature(w.a, w.alpha, w.beta)
	require.Equal(t, OK, mode)

	r := f.Fit(w)
	require.True(t, r.OK)
	require.LessOrEqual(t, r.ChiSq, chisq0)

	// λ is forced to zero for the final Gauss-Newton solve and never
	// goes negative on the way there.
	require.Zero(t, w.alamda)
	require.True(t, w.avail)
}

func TestEvalError(t *testing.T) {

	bad := errors.New("model blew up")
	p := linearProblem()
	p.Object.Function = func(i int, x float64, a, dyda []float64) (float64, error) {
		return 0, bad
	}

	f, err := p.New(nil)
	require.NoError(t, err)

	w := f.Init()
	r := f.Fit(w)
	require.False(t, r.OK)
	require.Equal(t, EvalFailed, r.Status)
	require.False(t, w.avail)
}

func TestEvalPanic(t *testing.T) {

	p := linearProblem()
	p.Object.Function = func(i int, x float64, a, dyda []float64) (float64, error) {
		panic("model blew up")
	}

	f, err := p.New(nil)
	require.NoError(t, err)

	r := f.Fit(f.Init())
	require.False(t, r.OK)
	require.Equal(t, EvalFailed, r.Status)
}

func TestExceedMaxIter(t *testing.T) {

	p := linearProblem()
	p.Stop = Termination{MaxIterations: 1}

	f, err := p.New(nil)
	require.NoError(t, err)

	w := f.Init()
	r := f.Fit(w)
	require.False(t, r.OK)
	require.Equal(t, LMExceedMaxIter, r.Status)
	require.Equal(t, 1, r.NumIter)
	require.False(t, w.avail)
}

func TestAllParametersHeld(t *testing.T) {

	p := linearProblem()
	f, err := p.New(nil)
	require.NoError(t, err)

	w := f.Init()
	w.Hold(0, 2)
	w.Hold(1, 3)
	r := f.Fit(w)
	require.False(t, r.OK)
	require.Equal(t, NotReady, r.Status)
}

func TestSurfaceFit(t *testing.T) {

	// z = 1 + 2·x₀ - x₁ over six points in the plane.
	pts := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 1}, {1, 2}}
	want := []float64{1, 2, -1}

	x := linalg.New(len(pts), 2)
	y := make([]float64, len(pts))
	for i, p := range pts {
		x.Set(i, 0, p[0])
		x.Set(i, 1, p[1])
		y[i] = want[0] + want[1]*p[0] + want[2]*p[1]
	}

	obj := PointEvaluation{
		Guess: []float64{0, 0, 0},
		Function: func(i int, x []float64, a, dyda []float64) (float64, error) {
			dyda[0], dyda[1], dyda[2] = 1, x[0], x[1]
			return a[0] + a[1]*x[0] + a[2]*x[1], nil
		},
	}

	p := Surface{X: x, Y: y, Sigma: ones(len(pts)), Object: obj}
	f, err := p.New(nil)
	require.NoError(t, err)

	r := f.Fit(f.Init())
	require.True(t, r.OK)
	require.True(t, almostEqual(r.A, want, 1e-6))
	require.InDelta(t, 0, r.ChiSq, 1e-9)
}

func TestFieldFit(t *testing.T) {

	// Two outputs sharing the parameters: y₀ = a₀ + a₁·x, y₁ = a₀·x.
	want := []float64{2, 3}
	n := 4

	x := linalg.New(n, 1)
	y := linalg.New(n, 2)
	for i := 0; i < n; i++ {
		v := float64(i)
		x.Set(i, 0, v)
		y.Set(i, 0, want[0]+want[1]*v)
		y.Set(i, 1, want[0]*v)
	}

	obj := FieldEvaluation{
		Guess: []float64{1, 1},
		Function: func(i int, x []float64, a, y []float64, jac *linalg.Matrix) error {
			y[0] = a[0] + a[1]*x[0]
			y[1] = a[0] * x[0]
			jac.Set(0, 0, 1)
			jac.Set(0, 1, x[0])
			jac.Set(1, 0, x[0])
			jac.Set(1, 1, 0)
			return nil
		},
	}

	p := Field{X: x, Y: y, Sigma: ones(n), Object: obj}
	f, err := p.New(nil)
	require.NoError(t, err)

	r := f.Fit(f.Init())
	require.True(t, r.OK)
	require.True(t, almostEqual(r.A, want, 1e-6))
	require.InDelta(t, 0, r.ChiSq, 1e-9)
	require.True(t, r.Covar.Symmetric(1e-9))
}

func TestBadProblem(t *testing.T) {

	base := linearProblem()

	tests := []struct {
		name string
		mod  func(p *Curve)
	}{
		{"no function", func(p *Curve) { p.Object.Function = nil }},
		{"no guess", func(p *Curve) { p.Object.Guess = nil }},
		{"no samples", func(p *Curve) { p.X, p.Y, p.Sigma = nil, nil, nil }},
		{"short sigma", func(p *Curve) { p.Sigma = ones(2) }},
		{"short y", func(p *Curve) { p.Y = p.Y[:3] }},
		{"zero sigma", func(p *Curve) { p.Sigma = make([]float64, 5) }},
		{"negative sigma", func(p *Curve) { p.Sigma[2] = -1 }},
		{"negative tolerance", func(p *Curve) { p.Stop.Tolerance = -1 }},
		{"negative iterations", func(p *Curve) { p.Stop.MaxIterations = -1 }},
		{"negative done", func(p *Curve) { p.Stop.Done = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.X = append([]float64(nil), base.X...)
			p.Y = append([]float64(nil), base.Y...)
			p.Sigma = append([]float64(nil), base.Sigma...)
			tt.mod(&p)
			_, err := p.New(nil)
			require.Error(t, err)
		})
	}
}
