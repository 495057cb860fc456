// Package batch aligns many pairs of point clouds listed in a manifest.
package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samcharles93/diagwarp/internal/cloud"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

var ErrManifest = errors.New("batch: invalid manifest")

// Manifest lists the pairs of a batch run.
//
//	distance: euclidean
//	pairs:
//	  - name: walk
//	    x: a.json
//	    y: [[0, 1], [1, 1]]
//	    box: {row_start: 0, row_end: 1, col_start: 0, col_end: 1}
//	    reverse: true
type Manifest struct {
	Distance string `yaml:"distance"`
	Pairs    []Pair `yaml:"pairs"`
}

type Pair struct {
	Name    string   `yaml:"name"`
	X       Source   `yaml:"x"`
	Y       Source   `yaml:"y"`
	Box     *dtw.Box `yaml:"box,omitempty"`
	Reverse bool     `yaml:"reverse,omitempty"`
}

// Source is a point cloud given either as a file path or inline as a list
// of points.
type Source struct {
	Path   string
	Points [][]float64
}

func (s *Source) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = Source{Path: node.Value}
		return nil
	case yaml.SequenceNode:
		var points [][]float64
		if err := node.Decode(&points); err != nil {
			return err
		}
		*s = Source{Points: points}
		return nil
	default:
		return fmt.Errorf("line %d: expected a path or a list of points", node.Line)
	}
}

// Load reads the cloud, resolving relative paths against dir.
func (s Source) Load(dir string) (*mat.Dense, error) {
	if s.Path == "" {
		return cloud.FromPoints(s.Points)
	}
	path := s.Path
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	return cloud.Load(path)
}

// LoadManifest reads a manifest file. Relative cloud paths are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	m, err := ParseManifest(f)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return m, filepath.Dir(path), nil
}

func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	if len(m.Pairs) == 0 {
		return nil, fmt.Errorf("%w: no pairs", ErrManifest)
	}
	if _, err := dtw.DistanceByName(m.Distance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	seen := make(map[string]int, len(m.Pairs))
	for i := range m.Pairs {
		p := &m.Pairs[i]
		if p.Name == "" {
			p.Name = fmt.Sprintf("pair-%d", i)
		}
		if j, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("%w: pairs %d and %d are both named %q", ErrManifest, j, i, p.Name)
		}
		seen[p.Name] = i
		if (p.X.Path == "" && len(p.X.Points) == 0) || (p.Y.Path == "" && len(p.Y.Points) == 0) {
			return nil, fmt.Errorf("%w: pair %q needs both x and y", ErrManifest, p.Name)
		}
	}
	return &m, nil
}
