package dtw

import (
	"errors"
	"testing"

	"github.com/samcharles93/diagwarp/pkg/device"
)

func TestBoxValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		box     Box
		m, n    int
		wantErr bool
	}{
		{"full", FullBox(3, 4), 3, 4, false},
		{"single cell", Box{RowStart: 2, RowEnd: 2, ColStart: 1, ColEnd: 1}, 3, 4, false},
		{"row past end", Box{RowEnd: 3, ColEnd: 1}, 3, 4, true},
		{"col past end", Box{RowEnd: 1, ColEnd: 4}, 3, 4, true},
		{"inverted rows", Box{RowStart: 2, RowEnd: 1, ColEnd: 1}, 3, 4, true},
		{"negative start", Box{RowStart: -1, RowEnd: 1, ColEnd: 1}, 3, 4, true},
		{"empty grid", Box{}, 0, 4, true},
	}
	for _, tc := range tests {
		err := tc.box.Validate(tc.m, tc.n)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: Validate error = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidBox) {
			t.Fatalf("%s: expected ErrInvalidBox, got %v", tc.name, err)
		}
	}
}

func TestGeometryDiagonals(t *testing.T) {
	t.Parallel()

	g := newGeometry(FullBox(3, 2), false)
	if g.diagLen != 2 || g.diagonals() != 4 {
		t.Fatalf("diagLen=%d diagonals=%d, want 2 and 4", g.diagLen, g.diagonals())
	}

	tests := []struct {
		k      int
		i1, j1 int
		cells  int
	}{
		{0, 0, 0, 1},
		{1, 1, 0, 2},
		{2, 2, 0, 2},
		{3, 2, 1, 1},
	}
	total := 0
	for _, tc := range tests {
		i, j := g.start(tc.k)
		if i != tc.i1 || j != tc.j1 {
			t.Fatalf("start(%d) = (%d,%d), want (%d,%d)", tc.k, i, j, tc.i1, tc.j1)
		}
		if got := g.cells(tc.k); got != tc.cells {
			t.Fatalf("cells(%d) = %d, want %d", tc.k, got, tc.cells)
		}
		total += g.cells(tc.k)
	}
	if total != 6 {
		t.Fatalf("diagonals cover %d cells, want 6", total)
	}
}

func TestGeometryPointsOffsetAndMirror(t *testing.T) {
	t.Parallel()

	box := Box{RowStart: 2, RowEnd: 4, ColStart: 1, ColEnd: 2}
	fwd := newGeometry(box, false)
	if xi, yj := fwd.points(0, 0); xi != 2 || yj != 1 {
		t.Fatalf("forward origin maps to (%d,%d), want (2,1)", xi, yj)
	}
	rev := newGeometry(box, true)
	if xi, yj := rev.points(0, 0); xi != 4 || yj != 2 {
		t.Fatalf("reverse origin maps to (%d,%d), want (4,2)", xi, yj)
	}
	if xi, yj := rev.points(2, 1); xi != 2 || yj != 1 {
		t.Fatalf("reverse corner maps to (%d,%d), want (2,1)", xi, yj)
	}
}

func TestGeometryLaunchCoversDiagonal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rows, cols, maxBlock int
		grid, block          int
	}{
		{1, 1, 512, 1, 1},
		{10, 700, 512, 1, 10},
		{600, 700, 512, 2, 512},
		{7, 9, 2, 4, 2},
	}
	for _, tc := range tests {
		g := newGeometry(FullBox(tc.rows, tc.cols), false)
		grid, block := g.launch(tc.maxBlock)
		if grid != tc.grid || block != tc.block {
			t.Fatalf("%dx%d: launch = (%d,%d), want (%d,%d)", tc.rows, tc.cols, grid, block, tc.grid, tc.block)
		}
		if grid*block < g.diagLen {
			t.Fatalf("%dx%d: launch covers %d of %d slots", tc.rows, tc.cols, grid*block, g.diagLen)
		}
	}
}

func TestDiagStepGuardsOutOfRangeThreads(t *testing.T) {
	t.Parallel()

	// Two slots on diagonal 3 of a 3x2 grid; slot 1 falls outside the grid
	// and thread 2 is beyond the diagonal.
	dev := device.NewCPU(device.Options{Workers: 1})
	defer func() { _ = dev.Close() }()
	fn, err := dev.LoadKernel(stepKernel, diagStep)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	bufs := make([]*device.Buffer, 8)
	for i := range bufs {
		n := 2
		if i >= argU {
			n = 1
		}
		if bufs[i], err = dev.Alloc(n); err != nil {
			t.Fatalf("alloc: %v", err)
		}
	}
	stream, _ := dev.NewStream()
	defer func() { _ = stream.Close() }()
	if err := stream.Upload(bufs[argD2], []float32{5, 5}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	args := device.Args{Buffers: bufs, Ints: []int{3, 2, 2, 3, 0, 0}}
	if err := stream.Launch(fn, device.D1(1), device.D1(3), args); err != nil {
		t.Fatalf("launch: %v", err)
	}
	got := make([]float32, 2)
	if err := stream.Download(got, bufs[argD2]); err != nil {
		t.Fatalf("download: %v", err)
	}
	if got[1] != 0 {
		t.Fatalf("slot outside the grid should be cleared, got %v", got[1])
	}
}
