package dtw

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Result is the outcome of one alignment.
type Result struct {
	// Cost is the accumulated cost of the first cell on the last computed
	// diagonal. For a complete run that cell is the bottom-right corner.
	Cost float64
	// Diagonals is the number of diagonals computed by this call.
	Diagonals int
	// Stopped reports that the run ended at Options.StopAt.
	Stopped   bool
	StoppedAt int
	// Snapshot is set when Options.SaveAt was reached.
	Snapshot *Snapshot
	// Debug is set when Options.Debug was requested.
	Debug *DebugMatrices
}

// Snapshot is the host copy of the rolling buffers right after diagonal
// Diagonal was computed. Every slice has the diagonal length of the box;
// slots beyond a diagonal's cells are zero. A snapshot only resumes a run
// over the same box origin, shape and direction.
type Snapshot struct {
	Diagonal int       `json:"diagonal"`
	Rows     int       `json:"rows"`
	Cols     int       `json:"cols"`
	RowStart int       `json:"row_start"`
	ColStart int       `json:"col_start"`
	Reverse  bool      `json:"reverse"`
	D0       []float32 `json:"d0"`
	D1       []float32 `json:"d1"`
	D2       []float32 `json:"d2"`
	CSM0     []float32 `json:"csm0"`
	CSM1     []float32 `json:"csm1"`
	CSM2     []float32 `json:"csm2"`
}

// DiagLen returns the buffer length of the snapshot.
func (s *Snapshot) DiagLen() int {
	return min(s.Rows, s.Cols)
}

// Box returns the grid box the snapshot was taken over.
func (s *Snapshot) Box() Box {
	return Box{
		RowStart: s.RowStart,
		RowEnd:   s.RowStart + s.Rows - 1,
		ColStart: s.ColStart,
		ColEnd:   s.ColStart + s.Cols - 1,
	}
}

// Cost returns the accumulated cost of the first cell on the snapshot diagonal.
func (s *Snapshot) Cost() float64 {
	if len(s.D2) == 0 || len(s.CSM2) == 0 {
		return 0
	}
	return float64(s.D2[0]) + float64(s.CSM2[0])
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.D0 = slices.Clone(s.D0)
	out.D1 = slices.Clone(s.D1)
	out.D2 = slices.Clone(s.D2)
	out.CSM0 = slices.Clone(s.CSM0)
	out.CSM1 = slices.Clone(s.CSM1)
	out.CSM2 = slices.Clone(s.CSM2)
	return &out
}

func (s *Snapshot) validate(g geometry) error {
	if s.Rows != g.rows || s.Cols != g.cols {
		return fmt.Errorf("%w: snapshot box %dx%d, alignment box %dx%d", ErrInvalidSnapshot, s.Rows, s.Cols, g.rows, g.cols)
	}
	if s.RowStart != g.box.RowStart || s.ColStart != g.box.ColStart {
		return fmt.Errorf("%w: snapshot box origin (%d,%d), alignment box origin (%d,%d)",
			ErrInvalidSnapshot, s.RowStart, s.ColStart, g.box.RowStart, g.box.ColStart)
	}
	if s.Reverse != g.reverse {
		return fmt.Errorf("%w: snapshot reverse=%v, alignment reverse=%v", ErrInvalidSnapshot, s.Reverse, g.reverse)
	}
	if s.Diagonal < 0 || s.Diagonal >= g.diagonals() {
		return fmt.Errorf("%w: diagonal %d outside [0,%d)", ErrInvalidSnapshot, s.Diagonal, g.diagonals())
	}
	for i, buf := range s.buffers() {
		if len(buf) != g.diagLen {
			return fmt.Errorf("%w: %s has %d slots, want %d", ErrInvalidSnapshot, SnapshotBuffers[i], len(buf), g.diagLen)
		}
	}
	return nil
}

// SnapshotBuffers names the snapshot buffers in storage order.
var SnapshotBuffers = [6]string{"d0", "d1", "d2", "csm0", "csm1", "csm2"}

func (s *Snapshot) buffers() [6][]float32 {
	return [6][]float32{s.D0, s.D1, s.D2, s.CSM0, s.CSM1, s.CSM2}
}

// Buffer returns the snapshot buffer with the given name, or nil.
func (s *Snapshot) Buffer(name string) []float32 {
	for i, n := range SnapshotBuffers {
		if n == name {
			return s.buffers()[i]
		}
	}
	return nil
}

// SetBuffer replaces the named snapshot buffer. It reports false for an
// unknown name.
func (s *Snapshot) SetBuffer(name string, data []float32) bool {
	switch name {
	case "d0":
		s.D0 = data
	case "d1":
		s.D1 = data
	case "d2":
		s.D2 = data
	case "csm0":
		s.CSM0 = data
	case "csm1":
		s.CSM1 = data
	case "csm2":
		s.CSM2 = data
	default:
		return false
	}
	return true
}

// DebugMatrices are the full box-sized cost tables of a debug run, indexed by
// box-local (row, col). U, L and UL hold the accumulated cost of the cell
// preceding (row, col) vertically, horizontally and diagonally in traversal
// order, or Absent when that cell is outside the box. S holds the accumulated
// cost of the cell itself. Cells on diagonals not computed by the call are 0.
type DebugMatrices struct {
	U  *mat.Dense
	L  *mat.Dense
	UL *mat.Dense
	S  *mat.Dense
}

func denseFrom(rows, cols int, data []float32) *mat.Dense {
	out := make([]float64, rows*cols)
	for i := range out {
		out[i] = float64(data[i])
	}
	return mat.NewDense(rows, cols, out)
}
