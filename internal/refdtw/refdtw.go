// Package refdtw is a sequential full-matrix DTW used to cross-check the
// diagonal sweep. It works on a precomputed cross-distance matrix and keeps
// every intermediate table.
package refdtw

import (
	"fmt"

	"github.com/samcharles93/diagwarp/pkg/dtw"
	"gonum.org/v1/gonum/mat"
)

// Step is the predecessor chosen for a cell.
type Step int8

const (
	None Step = iota - 1
	Left
	Up
	Diag
)

func (s Step) String() string {
	switch s {
	case Left:
		return "left"
	case Up:
		return "up"
	case Diag:
		return "diag"
	default:
		return "none"
	}
}

// Result holds the cost and the full tables of a reference alignment.
// U, L and UL hold the accumulated cost of the up, left and up-left
// neighbours, or dtw.Absent when the neighbour does not exist.
type Result struct {
	Cost float64
	S    *mat.Dense
	U    *mat.Dense
	L    *mat.Dense
	UL   *mat.Dense
	// P is the row-major backpointer table.
	P    []Step
	Rows int
	Cols int
}

// Pointer returns the backpointer of cell (i, j).
func (r *Result) Pointer(i, j int) Step {
	return r.P[i*r.Cols+j]
}

// CrossDistances builds the box-sized cross-distance matrix in traversal
// order: entry (i, j) pairs the points visited at traversal cell (i, j),
// which are mirrored when reverse is set.
func CrossDistances(x, y *mat.Dense, box dtw.Box, reverse bool, dist dtw.DistanceFunc) (*mat.Dense, error) {
	m, dx := x.Dims()
	n, dy := y.Dims()
	if dx != dy {
		return nil, fmt.Errorf("%w: x has %d columns, y has %d", dtw.ErrDimensionMismatch, dx, dy)
	}
	if err := box.Validate(m, n); err != nil {
		return nil, err
	}
	if dist == nil {
		dist = dtw.Euclidean
	}
	rows, cols := box.Rows(), box.Cols()
	out := mat.NewDense(rows, cols, nil)
	a := mat.NewDense(cols, dx, nil)
	b := mat.NewDense(cols, dx, nil)
	for i := range rows {
		xi := box.RowStart + i
		if reverse {
			xi = box.RowEnd - i
		}
		for j := range cols {
			yj := box.ColStart + j
			if reverse {
				yj = box.ColEnd - j
			}
			a.SetRow(j, x.RawRowView(xi))
			b.SetRow(j, y.RawRowView(yj))
		}
		row := dist(a, b)
		if len(row) != cols {
			return nil, fmt.Errorf("%w: got %d distances for %d pairs", dtw.ErrDistance, len(row), cols)
		}
		out.SetRow(i, row)
	}
	return out, nil
}

// Align runs the DTW recurrence over csm. Ties prefer the diagonal step,
// then left over up.
func Align(csm mat.Matrix) *Result {
	rows, cols := csm.Dims()
	res := &Result{
		S:    mat.NewDense(rows, cols, nil),
		U:    mat.NewDense(rows, cols, nil),
		L:    mat.NewDense(rows, cols, nil),
		UL:   mat.NewDense(rows, cols, nil),
		P:    make([]Step, rows*cols),
		Rows: rows,
		Cols: cols,
	}
	for i := range rows {
		for j := range cols {
			up, left, diag := float64(dtw.Absent), float64(dtw.Absent), float64(dtw.Absent)
			score := 0.0
			step := None
			if i > 0 || j > 0 {
				score = -1
				if j > 0 {
					left = res.S.At(i, j-1)
					score, step = left, Left
				}
				if i > 0 {
					up = res.S.At(i-1, j)
					if score < 0 || up < score {
						score, step = up, Up
					}
				}
				if i > 0 && j > 0 {
					diag = res.S.At(i-1, j-1)
					if diag <= score {
						score, step = diag, Diag
					}
				}
			}
			res.U.Set(i, j, up)
			res.L.Set(i, j, left)
			res.UL.Set(i, j, diag)
			res.P[i*cols+j] = step
			res.S.Set(i, j, score+csm.At(i, j))
		}
	}
	res.Cost = res.S.At(rows-1, cols-1)
	return res
}

// CornerStep returns the step the optimal path took into the bottom-right
// cell, or None for a single-cell alignment.
func (r *Result) CornerStep() Step {
	return r.Pointer(r.Rows-1, r.Cols-1)
}

// Cost is a convenience wrapper returning only the reference cost of
// aligning x with y inside box.
func Cost(x, y *mat.Dense, box dtw.Box, reverse bool, dist dtw.DistanceFunc) (float64, error) {
	csm, err := CrossDistances(x, y, box, reverse, dist)
	if err != nil {
		return 0, err
	}
	return Align(csm).Cost, nil
}
