package refdtw

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"gonum.org/v1/gonum/mat"
)

func TestAlignWorkedExample(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(3, 1, []float64{0, 1, 2})
	y := mat.NewDense(2, 1, []float64{0, 2})
	csm, err := CrossDistances(x, y, dtw.FullBox(3, 2), false, dtw.Euclidean)
	if err != nil {
		t.Fatalf("cross distances: %v", err)
	}
	res := Align(csm)

	if res.Cost != 1 {
		t.Fatalf("cost: got %v want 1", res.Cost)
	}
	wantS := []float64{0, 2, 1, 1, 3, 1}
	if diff := cmp.Diff(wantS, res.S.RawMatrix().Data); diff != "" {
		t.Fatalf("S mismatch (-want +got):\n%s", diff)
	}
	wantU := []float64{-1, -1, 0, 2, 1, 1}
	if diff := cmp.Diff(wantU, res.U.RawMatrix().Data); diff != "" {
		t.Fatalf("U mismatch (-want +got):\n%s", diff)
	}
	wantL := []float64{-1, 0, -1, 1, -1, 3}
	if diff := cmp.Diff(wantL, res.L.RawMatrix().Data); diff != "" {
		t.Fatalf("L mismatch (-want +got):\n%s", diff)
	}
	wantUL := []float64{-1, -1, -1, 0, -1, 1}
	if diff := cmp.Diff(wantUL, res.UL.RawMatrix().Data); diff != "" {
		t.Fatalf("UL mismatch (-want +got):\n%s", diff)
	}

	pointers := []struct {
		i, j int
		want Step
	}{
		{0, 0, None},
		{0, 1, Left},
		{1, 0, Up},
		{1, 1, Diag},
		{2, 0, Up},
		{2, 1, Diag},
	}
	for _, p := range pointers {
		if got := res.Pointer(p.i, p.j); got != p.want {
			t.Errorf("P(%d,%d) = %s, want %s", p.i, p.j, got, p.want)
		}
	}

	if got := res.CornerStep(); got != Diag {
		t.Fatalf("corner step: got %s want diag", got)
	}
}

func TestCornerStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		csm  *mat.Dense
		want Step
	}{
		{"single cell", mat.NewDense(1, 1, []float64{2}), None},
		{"single row", mat.NewDense(1, 3, []float64{1, 0, 0}), Left},
		{"single column", mat.NewDense(3, 1, []float64{1, 0, 0}), Up},
		{"arrives from above", mat.NewDense(3, 2, []float64{0, 0, 5, 0, 5, 5}), Up},
		{"arrives from the left", mat.NewDense(2, 3, []float64{0, 5, 5, 0, 0, 5}), Left},
		{"tie prefers diagonal", mat.NewDense(2, 2, []float64{0, 0, 0, 0}), Diag},
	}
	for _, tc := range tests {
		if got := Align(tc.csm).CornerStep(); got != tc.want {
			t.Errorf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestCrossDistancesReverseAndBox(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(4, 1, []float64{0, 10, 20, 30})
	y := mat.NewDense(3, 1, []float64{1, 2, 3})
	box := dtw.Box{RowStart: 1, RowEnd: 2, ColStart: 0, ColEnd: 1}

	fwd, err := CrossDistances(x, y, box, false, dtw.Manhattan)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if diff := cmp.Diff([]float64{9, 8, 19, 18}, fwd.RawMatrix().Data); diff != "" {
		t.Fatalf("forward mismatch (-want +got):\n%s", diff)
	}

	rev, err := CrossDistances(x, y, box, true, dtw.Manhattan)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if diff := cmp.Diff([]float64{18, 19, 8, 9}, rev.RawMatrix().Data); diff != "" {
		t.Fatalf("reverse mismatch (-want +got):\n%s", diff)
	}
}

func TestCrossDistancesErrors(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(2, 2, nil)
	if _, err := CrossDistances(x, mat.NewDense(2, 3, nil), dtw.FullBox(2, 2), false, nil); !errors.Is(err, dtw.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := CrossDistances(x, x, dtw.Box{RowEnd: 2, ColEnd: 1}, false, nil); !errors.Is(err, dtw.ErrInvalidBox) {
		t.Fatalf("expected ErrInvalidBox, got %v", err)
	}
	short := func(a, b *mat.Dense) []float64 { return nil }
	if _, err := CrossDistances(x, x, dtw.FullBox(2, 2), false, short); !errors.Is(err, dtw.ErrDistance) {
		t.Fatalf("expected ErrDistance, got %v", err)
	}
}
