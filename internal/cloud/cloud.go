// Package cloud reads and generates point clouds: ordered sequences of
// equal-dimension points stored as the rows of a matrix.
package cloud

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

var (
	ErrEmpty         = errors.New("cloud: no points")
	ErrRagged        = errors.New("cloud: points differ in dimension")
	ErrUnknownFormat = errors.New("cloud: unknown file format")
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FormatOf infers the encoding from a file extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// Load reads a point cloud from a .json, .yaml or .yml file holding a list of
// points, each a list of coordinates.
func Load(path string) (*mat.Dense, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	m, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode reads a point cloud in the given format.
func Decode(r io.Reader, format string) (*mat.Dense, error) {
	var points [][]float64
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&points); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&points); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return FromPoints(points)
}

// FromPoints copies points into a matrix with one row per point.
func FromPoints(points [][]float64) (*mat.Dense, error) {
	if len(points) == 0 || len(points[0]) == 0 {
		return nil, ErrEmpty
	}
	dim := len(points[0])
	data := make([]float64, 0, len(points)*dim)
	for i, p := range points {
		if len(p) != dim {
			return nil, fmt.Errorf("%w: point %d has %d coordinates, want %d", ErrRagged, i, len(p), dim)
		}
		data = append(data, p...)
	}
	return mat.NewDense(len(points), dim, data), nil
}

// ToPoints returns the rows of m as a list of points.
func ToPoints(m mat.Matrix) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(make([]float64, cols), i, m)
	}
	return out
}

// Random returns n points of dimension d drawn uniformly from [-1, 1).
func Random(rng *rand.Rand, n, d int) *mat.Dense {
	data := make([]float64, n*d)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return mat.NewDense(n, d, data)
}

// Walk returns a random walk of n points of dimension d with unit-bounded
// steps, a smoother sequence than Random for benchmarks.
func Walk(rng *rand.Rand, n, d int) *mat.Dense {
	data := make([]float64, n*d)
	for i := d; i < len(data); i++ {
		data[i] = data[i-d] + rng.Float64()*2 - 1
	}
	return mat.NewDense(n, d, data)
}
