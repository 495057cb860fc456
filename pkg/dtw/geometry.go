package dtw

import "fmt"

// Box restricts an alignment to rows [RowStart, RowEnd] of X and columns
// [ColStart, ColEnd] of Y. Bounds are inclusive, so the zero Box is the
// single cell at the origin; Options.Box is nil for the full grid.
type Box struct {
	RowStart int `json:"row_start" yaml:"row_start"`
	RowEnd   int `json:"row_end" yaml:"row_end"`
	ColStart int `json:"col_start" yaml:"col_start"`
	ColEnd   int `json:"col_end" yaml:"col_end"`
}

// FullBox returns the box covering an m×n grid.
func FullBox(m, n int) Box {
	return Box{RowStart: 0, RowEnd: m - 1, ColStart: 0, ColEnd: n - 1}
}

// Rows returns the box height.
func (b Box) Rows() int { return b.RowEnd - b.RowStart + 1 }

// Cols returns the box width.
func (b Box) Cols() int { return b.ColEnd - b.ColStart + 1 }

// Validate checks b against an m×n grid.
func (b Box) Validate(m, n int) error {
	if m < 1 || n < 1 {
		return fmt.Errorf("%w: empty grid %dx%d", ErrInvalidBox, m, n)
	}
	if b.RowStart < 0 || b.RowEnd < b.RowStart || b.RowEnd >= m {
		return fmt.Errorf("%w: rows [%d,%d] outside [0,%d)", ErrInvalidBox, b.RowStart, b.RowEnd, m)
	}
	if b.ColStart < 0 || b.ColEnd < b.ColStart || b.ColEnd >= n {
		return fmt.Errorf("%w: cols [%d,%d] outside [0,%d)", ErrInvalidBox, b.ColStart, b.ColEnd, n)
	}
	return nil
}

// geometry is the diagonal layout of a box. Coordinates (i, j) are in
// traversal order: diagonal k holds the cells with i+j == k, slot 0 is the
// cell with the largest i.
type geometry struct {
	box     Box
	rows    int
	cols    int
	diagLen int
	reverse bool
}

func newGeometry(box Box, reverse bool) geometry {
	rows, cols := box.Rows(), box.Cols()
	return geometry{
		box:     box,
		rows:    rows,
		cols:    cols,
		diagLen: min(rows, cols),
		reverse: reverse,
	}
}

// diagonals returns the number of anti-diagonals in the box.
func (g geometry) diagonals() int {
	return g.rows + g.cols - 1
}

// start returns the traversal coordinates of slot 0 on diagonal k.
func (g geometry) start(k int) (int, int) {
	i := min(k, g.rows-1)
	return i, k - i
}

// cells returns the number of valid slots on diagonal k.
func (g geometry) cells(k int) int {
	i, j := g.start(k)
	return min(i+1, g.cols-j)
}

// local maps traversal coordinates to box-local coordinates.
func (g geometry) local(i, j int) (int, int) {
	if g.reverse {
		return g.rows - 1 - i, g.cols - 1 - j
	}
	return i, j
}

// points maps traversal coordinates to row indices of X and Y.
func (g geometry) points(i, j int) (int, int) {
	li, lj := g.local(i, j)
	return g.box.RowStart + li, g.box.ColStart + lj
}

// launch returns a one dimensional grid covering diagLen with blocks of at
// most maxBlock threads.
func (g geometry) launch(maxBlock int) (grid, block int) {
	block = max(min(g.diagLen, maxBlock), 1)
	grid = (g.diagLen + block - 1) / block
	return grid, block
}
