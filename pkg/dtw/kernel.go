package dtw

import (
	"math"

	"github.com/samcharles93/diagwarp/pkg/device"
)

const (
	stepKernel     = "diag_step"
	finalizeKernel = "diag_finalize"
)

// Absent marks a predecessor that lies outside the box in the debug matrices.
const Absent = -1

// Buffer positions of a diag_step launch.
const (
	argD0 = iota
	argD1
	argD2
	argCSM0
	argCSM1
	argU
	argL
	argUL
)

// Scalar positions shared by both kernels.
const (
	argRows = iota
	argCols
	argDiagLen
	argDiagonal
	argDebug
	argReverse
)

var inf32 = float32(math.Inf(1))

// diagStep computes diagonal k of the predecessor cost table. For every cell
// it stores the smallest accumulated cost among the cell's up, left and
// up-left neighbours; the cell's own cross-distance is added when the next
// diagonals read it. Up and left live on diagonal k-1 (d1, csm1), up-left on
// k-2 (d0, csm0).
func diagStep(t device.Thread, args device.Args) {
	idx := t.Global()
	d0, d1, d2 := args.Slice(argD0), args.Slice(argD1), args.Slice(argD2)
	csm0, csm1 := args.Slice(argCSM0), args.Slice(argCSM1)
	rows, cols := args.Int(argRows), args.Int(argCols)
	diagLen, k := args.Int(argDiagLen), args.Int(argDiagonal)
	if idx >= diagLen || idx >= len(d2) {
		return
	}

	i1 := min(k, rows-1)
	i, j := i1-idx, k-i1+idx
	if i < 0 || j >= cols {
		d2[idx] = 0
		return
	}

	up, left, diag := float32(Absent), float32(Absent), float32(Absent)
	best := inf32
	if i > 0 {
		// (i-1, j) on diagonal k-1
		if s := min(k-1, rows-1) - (i - 1); s >= 0 && s < len(d1) && s < len(csm1) {
			up = d1[s] + csm1[s]
			best = min(best, up)
		}
	}
	if j > 0 {
		// (i, j-1) on diagonal k-1
		if s := min(k-1, rows-1) - i; s >= 0 && s < len(d1) && s < len(csm1) {
			left = d1[s] + csm1[s]
			best = min(best, left)
		}
	}
	if i > 0 && j > 0 {
		// (i-1, j-1) on diagonal k-2
		if s := min(k-2, rows-1) - (i - 1); s >= 0 && s < len(d0) && s < len(csm0) {
			diag = d0[s] + csm0[s]
			best = min(best, diag)
		}
	}
	if best == inf32 {
		best = 0
	}
	d2[idx] = best

	if args.Int(argDebug) == 0 {
		return
	}
	pos := matrixPos(i, j, rows, cols, args.Int(argReverse) != 0)
	store(args.Slice(argU), pos, up)
	store(args.Slice(argL), pos, left)
	store(args.Slice(argUL), pos, diag)
}

// Buffer positions of a diag_finalize launch.
const (
	argFinD = iota
	argFinCSM
	argFinS
)

// diagFinalize writes S = d + csm for every cell of diagonal k once the
// diagonal's cross-distances are resident.
func diagFinalize(t device.Thread, args device.Args) {
	idx := t.Global()
	d, csm, s := args.Slice(argFinD), args.Slice(argFinCSM), args.Slice(argFinS)
	rows, cols := args.Int(argRows), args.Int(argCols)
	diagLen, k := args.Int(argDiagLen), args.Int(argDiagonal)
	if idx >= diagLen || idx >= len(d) || idx >= len(csm) {
		return
	}
	i1 := min(k, rows-1)
	i, j := i1-idx, k-i1+idx
	if i < 0 || j >= cols {
		return
	}
	store(s, matrixPos(i, j, rows, cols, args.Int(argReverse) != 0), d[idx]+csm[idx])
}

// matrixPos returns the row-major box-local position of traversal cell (i, j).
func matrixPos(i, j, rows, cols int, reverse bool) int {
	if reverse {
		i, j = rows-1-i, cols-1-j
	}
	return i*cols + j
}

func store(dst []float32, pos int, v float32) {
	if pos >= 0 && pos < len(dst) {
		dst[pos] = v
	}
}
