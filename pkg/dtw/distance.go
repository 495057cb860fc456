package dtw

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DistanceFunc returns the elementwise distance between the rows of a and b.
// Both matrices have the same shape; the result has one entry per row, in
// row order. It must not retain a or b.
type DistanceFunc func(a, b *mat.Dense) []float64

// Euclidean is the L2 distance between paired rows.
func Euclidean(a, b *mat.Dense) []float64 {
	return rowwise(a, b, func(x, y []float64) float64 {
		return floats.Distance(x, y, 2)
	})
}

// SquaredEuclidean is the squared L2 distance between paired rows.
func SquaredEuclidean(a, b *mat.Dense) []float64 {
	return rowwise(a, b, func(x, y []float64) float64 {
		d := floats.Distance(x, y, 2)
		return d * d
	})
}

// Manhattan is the L1 distance between paired rows.
func Manhattan(a, b *mat.Dense) []float64 {
	return rowwise(a, b, func(x, y []float64) float64 {
		return floats.Distance(x, y, 1)
	})
}

// Chebyshev is the L∞ distance between paired rows.
func Chebyshev(a, b *mat.Dense) []float64 {
	return rowwise(a, b, func(x, y []float64) float64 {
		return floats.Distance(x, y, math.Inf(1))
	})
}

func rowwise(a, b *mat.Dense, fn func(x, y []float64) float64) []float64 {
	rows, _ := a.Dims()
	out := make([]float64, rows)
	for r := range rows {
		out[r] = fn(a.RawRowView(r), b.RawRowView(r))
	}
	return out
}

var distances = map[string]DistanceFunc{
	"euclidean":   Euclidean,
	"sqeuclidean": SquaredEuclidean,
	"manhattan":   Manhattan,
	"chebyshev":   Chebyshev,
}

// DistanceByName looks up a built-in distance. An empty name selects Euclidean.
func DistanceByName(name string) (DistanceFunc, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Euclidean, nil
	}
	fn, ok := distances[key]
	if !ok {
		return nil, fmt.Errorf("unknown distance %q (expected %s)", name, strings.Join(DistanceNames(), ", "))
	}
	return fn, nil
}

// DistanceNames lists the built-in distances.
func DistanceNames() []string {
	names := make([]string, 0, len(distances))
	for name := range distances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
