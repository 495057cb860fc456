package dtw

import (
	"math"
	"sync/atomic"
)

// StatsSink receives the number of cross-distances computed on each diagonal.
// A prometheus.Counter satisfies it.
type StatsSink interface {
	Add(float64)
}

// Stats counts distance evaluations. The zero value is ready to use and safe
// for concurrent alignments.
type Stats struct {
	distances atomic.Uint64
	updates   atomic.Uint64
}

func (s *Stats) Add(n float64) {
	if n <= 0 || math.IsNaN(n) {
		s.updates.Add(1)
		return
	}
	s.distances.Add(uint64(n))
	s.updates.Add(1)
}

// Distances returns the total number of distances recorded.
func (s *Stats) Distances() uint64 { return s.distances.Load() }

// Updates returns the number of Add calls, one per computed diagonal.
func (s *Stats) Updates() uint64 { return s.updates.Load() }
