// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linalg

import (
	"errors"
	"math"
)

// ErrSingular reports a non-invertible matrix in GaussJordan or Inverse.
var ErrSingular = errors.New("singular matrix")

// GaussJordan performs in-place Gauss-Jordan elimination with full
// pivoting on the n × n matrix a.
//
// On return a is replaced by a⁻¹. When b is non-nil it must be an
// n × k right-hand side; it is replaced by the solution of 𝐀𝐗 = 𝐁.
// A nil b performs a pure inversion.
//
// Full pivoting searches the whole unreduced submatrix for the largest
// element, so near-singular systems degrade as slowly as the conditioning
// allows. A zero pivot returns ErrSingular with a and b left in an
// intermediate state.
func GaussJordan(a, b *Matrix) error {

	n := a.rows
	if a.cols != n {
		panic("matrix dimension not match")
	}
	if b != nil && b.rows != n {
		panic("matrix dimension not match")
	}

	// Pivot bookkeeping for the final column unscramble.
	indxc := make([]int, n)
	indxr := make([]int, n)
	ipiv := make([]int, n)

	for i := 0; i < n; i++ {

		// Search the unreduced submatrix for the pivot element.
		var irow, icol int
		big := zero
		for j := 0; j < n; j++ {
			if ipiv[j] == 1 {
				continue
			}
			row := a.Row(j)
			for k := 0; k < n; k++ {
				if ipiv[k] == 0 {
					if v := math.Abs(row[k]); v >= big {
						big, irow, icol = v, j, k
					}
				}
			}
		}
		ipiv[icol]++

		// Move the pivot onto the diagonal by a row exchange.
		if irow != icol {
			a.SwapRows(irow, icol)
			if b != nil {
				b.SwapRows(irow, icol)
			}
		}
		indxr[i], indxc[i] = irow, icol

		piv := a.At(icol, icol)
		if piv == zero {
			return ErrSingular
		}

		// Divide the pivot row by the pivot element.
		pivinv := one / piv
		a.Set(icol, icol, one)
		prow := a.Row(icol)
		for k := range prow {
			prow[k] *= pivinv
		}
		if b != nil {
			brow := b.Row(icol)
			for k := range brow {
				brow[k] *= pivinv
			}
		}

		// Reduce the remaining rows.
		for j := 0; j < n; j++ {
			if j == icol {
				continue
			}
			row := a.Row(j)
			dum := row[icol]
			if dum == zero {
				continue
			}
			row[icol] = zero
			for k := range row {
				row[k] -= prow[k] * dum
			}
			if b != nil {
				brow := b.Row(icol)
				jrow := b.Row(j)
				for k := range jrow {
					jrow[k] -= brow[k] * dum
				}
			}
		}
	}

	// Undo the column permutation implied by the row exchanges.
	for i := n - 1; i >= 0; i-- {
		if indxr[i] != indxc[i] {
			a.SwapCols(indxr[i], indxc[i])
		}
	}
	return nil
}
