package cloud

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadFormats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[string]string{
		"x.json": `[[0, 1], [2, 3], [4, 5]]`,
		"x.yaml": "- [0, 1]\n- [2, 3]\n- [4, 5]\n",
		"x.yml":  "- - 0\n  - 1\n- - 2\n  - 3\n- - 4\n  - 5\n",
	}
	want := [][]float64{{0, 1}, {2, 3}, {4, 5}}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		m, err := Load(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if diff := cmp.Diff(want, ToPoints(m)); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		format string
		want   error
	}{
		{"ragged", `[[0, 1], [2]]`, FormatJSON, ErrRagged},
		{"empty list", `[]`, FormatJSON, ErrEmpty},
		{"empty point", `[[]]`, FormatJSON, ErrEmpty},
		{"empty yaml", ``, FormatYAML, ErrEmpty},
		{"format", `[[0]]`, "csv", ErrUnknownFormat},
	}
	for _, tc := range tests {
		if _, err := Decode(strings.NewReader(tc.body), tc.format); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if _, err := Decode(strings.NewReader(`{"x": 1}`), FormatJSON); err == nil {
		t.Errorf("expected an error for a non-list document")
	}
	if _, err := FormatOf("points.txt"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat for .txt, got %v", err)
	}
}

func TestRandomAndWalk(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 1))
	m := Random(rng, 50, 3)
	if r, c := m.Dims(); r != 50 || c != 3 {
		t.Fatalf("dims: got %dx%d want 50x3", r, c)
	}
	for _, v := range m.RawMatrix().Data {
		if v < -1 || v >= 1 {
			t.Fatalf("value %v outside [-1, 1)", v)
		}
	}

	w := Walk(rng, 20, 2)
	for i := 1; i < 20; i++ {
		for j := range 2 {
			if step := w.At(i, j) - w.At(i-1, j); step < -1-1e-9 || step > 1+1e-9 {
				t.Fatalf("walk step %v at row %d exceeds unit bound", step, i)
			}
		}
	}
}
