// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linalg provides the dense matrix primitives consumed by the
// fitting engine: storage, element access, products, transposition and a
// Gauss-Jordan routine that solves a system while inverting its matrix
// in place.
package linalg

const (
	zero = 0.0
	one  = 1.0
)

// Matrix is a dense row-major matrix of float64.
type Matrix struct {
	rows, cols int
	data       []float64
}

// New allocates a rows × cols zero matrix.
func New(rows, cols int) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic("matrix dimension must greater than 0")
	}
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// Dims returns the row and column count.
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	if uint(i) >= uint(m.rows) || uint(j) >= uint(m.cols) {
		panic("bound check error")
	}
	return m.data[i*m.cols+j]
}

// Set assigns the element at row i, column j.
func (m *Matrix) Set(i, j int, v float64) {
	if uint(i) >= uint(m.rows) || uint(j) >= uint(m.cols) {
		panic("bound check error")
	}
	m.data[i*m.cols+j] = v
}

// Row returns the i-th row as a slice sharing the matrix storage.
func (m *Matrix) Row(i int) []float64 {
	if uint(i) >= uint(m.rows) {
		panic("bound check error")
	}
	return m.data[i*m.cols : (i+1)*m.cols : (i+1)*m.cols]
}

// Zero fills the matrix with zeros.
func (m *Matrix) Zero() {
	for i := range m.data {
		m.data[i] = zero
	}
}

// Copy overwrites m with src. The dimensions must match.
func (m *Matrix) Copy(src *Matrix) {
	if m.rows != src.rows || m.cols != src.cols {
		panic("matrix dimension not match")
	}
	copy(m.data, src.data)
}

// Clone returns an independent copy of m.
func (m *Matrix) Clone() *Matrix {
	c := New(m.rows, m.cols)
	copy(c.data, m.data)
	return c
}

// Mul stores the product a×b into m. The receiver must be sized
// rows(a) × cols(b) and must not alias either operand.
func (m *Matrix) Mul(a, b *Matrix) {
	if a.cols != b.rows || m.rows != a.rows || m.cols != b.cols {
		panic("matrix dimension not match")
	}
	if m == a || m == b {
		panic("matrix product must not alias operand")
	}
	for i := 0; i < a.rows; i++ {
		ar, mr := a.Row(i), m.Row(i)
		for j := range mr {
			mr[j] = zero
		}
		for k, av := range ar {
			if av == zero {
				continue
			}
			br := b.Row(k)
			for j, bv := range br {
				mr[j] += av * bv
			}
		}
	}
}

// Transpose stores aᵀ into m. The receiver must be sized cols(a) × rows(a)
// and must not alias a.
func (m *Matrix) Transpose(a *Matrix) {
	if m.rows != a.cols || m.cols != a.rows {
		panic("matrix dimension not match")
	}
	if m == a {
		panic("matrix transpose must not alias operand")
	}
	for i := 0; i < a.rows; i++ {
		ar := a.Row(i)
		for j, v := range ar {
			m.data[j*m.cols+i] = v
		}
	}
}

// SwapRows exchanges rows i and j.
func (m *Matrix) SwapRows(i, j int) {
	if i == j {
		return
	}
	ri, rj := m.Row(i), m.Row(j)
	for k := range ri {
		ri[k], rj[k] = rj[k], ri[k]
	}
}

// SwapCols exchanges columns i and j.
func (m *Matrix) SwapCols(i, j int) {
	if i == j {
		return
	}
	if uint(i) >= uint(m.cols) || uint(j) >= uint(m.cols) {
		panic("bound check error")
	}
	for r := 0; r < m.rows; r++ {
		row := m.Row(r)
		row[i], row[j] = row[j], row[i]
	}
}

// Symmetric reports whether m equals its transpose within tol.
func (m *Matrix) Symmetric(tol float64) bool {
	if m.rows != m.cols {
		return false
	}
	for i := 0; i < m.rows; i++ {
		for j := 0; j < i; j++ {
			d := m.At(i, j) - m.At(j, i)
			if d > tol || d < -tol {
				return false
			}
		}
	}
	return true
}

// Inverse stores a⁻¹ into m via Gauss-Jordan elimination.
// The operand is left untouched. Returns ErrSingular when a is not
// invertible.
func (m *Matrix) Inverse(a *Matrix) error {
	if a.rows != a.cols || m.rows != a.rows || m.cols != a.cols {
		panic("matrix dimension not match")
	}
	m.Copy(a)
	return GaussJordan(m, nil)
}
