// Package numdiff estimates derivatives of scalar and vector functions by
// finite differences. The fitting engine consumes analytic partials from
// its evaluations; these estimators stand in when a model has none.
package numdiff

import (
	"errors"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Symmetric use the second order accuracy symmetric difference.
	Symmetric
)

// stepAt picks the absolute step at v: rel × sign(v) × max(1,|v|),
// snapped to a representable offset so (v+h)-v is exact.
func stepAt(v, rel float64) float64 {
	h := math.Copysign(rel, v) * math.Max(1.0, math.Abs(v))
	if d := (v + h) - v; d != 0 {
		h = d
	}
	return h
}

func defaultStep(rel float64, m Method) (float64, error) {
	switch {
	case rel < 0:
		return 0, errors.New("negative step size")
	case rel > 0:
		return rel, nil
	}
	switch m {
	case Forward:
		return sqrtEps, nil
	case Symmetric:
		return cubeEps, nil
	default:
		return 0, errors.New("unknown method")
	}
}

// Gradient estimates 𝜵𝒇(𝐱) of a scalar function 𝒇 : ℝⁿ → ℝ.
type Gradient struct {
	// Function of which to estimate the gradient.
	Object func(x []float64) float64
	// Finite difference method to use.
	Method Method
	// Relative step size; the absolute step at 𝐱ᵢ is
	// 𝚜𝚝𝚎𝚙 × 𝚜𝚒𝚐𝚗(𝐱ᵢ) × 𝚖𝚊𝚡(1,|𝐱ᵢ|). Zero selects √ε for the forward
	// method and ∛ε for the symmetric one.
	Step float64
}

// Estimate fills grad with the estimated gradient at x.
// The input vector is perturbed one coordinate at a time and restored
// before returning.
func (g *Gradient) Estimate(x, grad []float64) error {

	if g.Object == nil {
		return errors.New("object function is required")
	}
	if len(grad) != len(x) {
		return errors.New("invalid gradient dimensions")
	}
	rel, err := defaultStep(g.Step, g.Method)
	if err != nil {
		return err
	}

	fun := g.Object
	var f0 float64
	if g.Method == Forward {
		f0 = fun(x)
	}
	for i, t := range x {
		h := stepAt(t, rel)
		if g.Method == Forward {
			x[i] = t + h
			grad[i] = (fun(x) - f0) / h
		} else {
			x[i] = t - h
			fm := fun(x)
			x[i] = t + h
			grad[i] = (fun(x) - fm) / (2 * h)
		}
		x[i] = t
	}
	return nil
}

// Jacobian estimates the m × n Jacobian of a vector function 𝒇 : ℝⁿ → ℝᵐ.
type Jacobian struct {
	N, M int
	// Function stores the m outputs at x into y.
	Object func(x, y []float64)
	Method Method
	Step   float64

	f0, fp, fm []float64
}

// Estimate fills jac, row-major m × n, with the estimated Jacobian at x.
// The output buffers are reused across calls; a Jacobian value must not
// be shared between goroutines.
func (j *Jacobian) Estimate(x, jac []float64) error {

	switch {
	case j.Object == nil:
		return errors.New("object function is required")
	case j.N <= 0 || j.M <= 0:
		return errors.New("negative dimensions")
	case len(x) != j.N:
		return errors.New("invalid x dimensions")
	case len(jac) != j.N*j.M:
		return errors.New("invalid jacobian dimensions")
	}
	rel, err := defaultStep(j.Step, j.Method)
	if err != nil {
		return err
	}

	if len(j.fp) != j.M {
		j.f0 = make([]float64, j.M)
		j.fp = make([]float64, j.M)
		j.fm = make([]float64, j.M)
	}

	fun := j.Object
	if j.Method == Forward {
		fun(x, j.f0)
	}
	for i, t := range x {
		h := stepAt(t, rel)
		if j.Method == Forward {
			x[i] = t + h
			fun(x, j.fp)
			d := 1.0 / h
			for v := 0; v < j.M; v++ {
				jac[v*j.N+i] = (j.fp[v] - j.f0[v]) * d
			}
		} else {
			x[i] = t - h
			fun(x, j.fm)
			x[i] = t + h
			fun(x, j.fp)
			d := 1.0 / (2 * h)
			for v := 0; v < j.M; v++ {
				jac[v*j.N+i] = (j.fp[v] - j.fm[v]) * d
			}
		}
		x[i] = t
	}
	return nil
}
