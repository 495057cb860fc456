package dtw

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/samcharles93/diagwarp/pkg/device"
	"gonum.org/v1/gonum/mat"
)

// Align computes the DTW cost of aligning the rows of x with the rows of y.
//
// Diagonals are computed strictly in order on a stream owned by the call.
// The context is checked once per diagonal; cancellation returns ctx.Err()
// and no result. Options.StopAt is the only way to get a partial result.
func (c *Context) Align(ctx context.Context, x, y *mat.Dense, opts Options) (*Result, error) {
	g, err := c.prepare(x, y, opts)
	if err != nil {
		return nil, err
	}
	if opts.Distance == nil {
		opts.Distance = Euclidean
	}

	r := &run{
		c:      c,
		g:      g,
		opts:   opts,
		saveAt: diagonalOpt(opts.SaveAt),
		stopAt: diagonalOpt(opts.StopAt),
		log:    logger.FromContext(ctx).With("component", "dtw"),
	}
	if opts.Resume != nil && opts.Resume.Diagonal == g.diagonals()-1 {
		// Nothing left to sweep.
		return r.resumedAtEnd(), nil
	}

	if err := r.setup(); err != nil {
		r.release()
		return nil, err
	}
	defer r.release()
	return r.sweep(ctx, x, y)
}

func (c *Context) prepare(x, y *mat.Dense, opts Options) (geometry, error) {
	if x == nil || y == nil || x.IsEmpty() || y.IsEmpty() {
		return geometry{}, fmt.Errorf("%w: empty point cloud", ErrInvalidBox)
	}
	m, dx := x.Dims()
	n, dy := y.Dims()
	if dx != dy {
		return geometry{}, fmt.Errorf("%w: x has %d columns, y has %d", ErrDimensionMismatch, dx, dy)
	}
	box := FullBox(m, n)
	if opts.Box != nil {
		box = *opts.Box
	}
	if err := box.Validate(m, n); err != nil {
		return geometry{}, err
	}
	g := newGeometry(box, opts.Reverse)
	if g.diagLen < 1 {
		return geometry{}, fmt.Errorf("%w: empty diagonal", ErrInvalidBox)
	}
	if opts.Resume != nil {
		if err := opts.Resume.validate(g); err != nil {
			return geometry{}, err
		}
		for _, at := range []struct {
			name string
			k    int
		}{{"save_at", diagonalOpt(opts.SaveAt)}, {"stop_at", diagonalOpt(opts.StopAt)}} {
			if at.k >= 0 && at.k <= opts.Resume.Diagonal {
				return geometry{}, fmt.Errorf("%w: %s %d is not after resumed diagonal %d",
					ErrInvalidSnapshot, at.name, at.k, opts.Resume.Diagonal)
			}
		}
	}
	return g, nil
}

// run is the state of one Align call. All buffers belong to it.
type run struct {
	c      *Context
	g      geometry
	opts   Options
	saveAt int
	stopAt int
	log    logger.Logger

	stream    device.Stream
	owned     []*device.Buffer
	d         [3]*device.Buffer
	csm       [3]*device.Buffer
	u, l, ul  *device.Buffer
	s         *device.Buffer
	ring      int
	grid      int
	block     int
	firstDiag int

	// host side of the current diagonal
	dist    []float64
	csmHost []float32
	pairA   []float64
	pairB   []float64
}

// slot returns the ring position holding diagonal k-2+n during step k.
func (r *run) slot(n int) int {
	return (r.ring + n) % 3
}

func (r *run) alloc(n int) (*device.Buffer, error) {
	b, err := r.c.dev.Alloc(n)
	if err != nil {
		return nil, deviceError(fmt.Sprintf("alloc %d elements", n), err)
	}
	r.owned = append(r.owned, b)
	return b, nil
}

func (r *run) setup() error {
	maxBlock := r.opts.BlockSize
	if maxBlock <= 0 {
		maxBlock = DefaultBlockSize
	}
	if limit := r.c.dev.Properties().MaxThreadsPerBlock; limit > 0 {
		maxBlock = min(maxBlock, limit)
	}
	r.grid, r.block = r.g.launch(maxBlock)

	stream, err := r.c.dev.NewStream()
	if err != nil {
		return deviceError("create stream", err)
	}
	r.stream = stream

	for i := range 3 {
		if r.d[i], err = r.alloc(r.g.diagLen); err != nil {
			return err
		}
		if r.csm[i], err = r.alloc(r.g.diagLen); err != nil {
			return err
		}
	}
	// Placeholders keep the launch signature fixed when debug is off.
	matrix := 1
	if r.opts.Debug {
		matrix = r.g.rows * r.g.cols
	}
	for _, dst := range []**device.Buffer{&r.u, &r.l, &r.ul, &r.s} {
		if *dst, err = r.alloc(matrix); err != nil {
			return err
		}
	}

	r.csmHost = make([]float32, r.g.diagLen)
	if snap := r.opts.Resume; snap != nil {
		// Seed the ring as it stands after rotating past the snapshot diagonal.
		seeds := []struct {
			dst *device.Buffer
			src []float32
		}{
			{r.d[0], snap.D1},
			{r.d[1], snap.D2},
			{r.d[2], snap.D0},
			{r.csm[0], snap.CSM1},
			{r.csm[1], snap.CSM2},
		}
		for _, seed := range seeds {
			if err := r.stream.Upload(seed.dst, seed.src); err != nil {
				return deviceError("upload snapshot", err)
			}
		}
		r.firstDiag = snap.Diagonal + 1
	}

	r.log.Debug("alignment prepared",
		"rows", r.g.rows,
		"cols", r.g.cols,
		"diag_len", r.g.diagLen,
		"grid", r.grid,
		"block", r.block,
		"debug", r.opts.Debug,
		"reverse", r.g.reverse,
		"first_diagonal", r.firstDiag,
	)
	return nil
}

func (r *run) sweep(ctx context.Context, x, y *mat.Dense) (*Result, error) {
	start := time.Now()
	res := &Result{}
	last := r.g.diagonals() - 1
	k := r.firstDiag
	for ; k <= last; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := r.stream.Launch(r.c.step, device.D1(r.grid), device.D1(r.block), r.stepArgs(k)); err != nil {
			return nil, deviceError(fmt.Sprintf("%s diagonal %d", stepKernel, k), err)
		}

		// The kernel for k reads diagonals k-1 and k-2 only, so the distances
		// of k are computed while it runs.
		n, err := r.distances(x, y, k)
		if err != nil {
			return nil, err
		}
		if r.opts.Stats != nil {
			r.opts.Stats.Add(float64(n))
		}

		if err := r.stream.Upload(r.csm[r.slot(2)], r.csmHost); err != nil {
			return nil, deviceError(fmt.Sprintf("%s diagonal %d", stepKernel, k), err)
		}
		if r.opts.Debug {
			if err := r.stream.Launch(r.c.finalize, device.D1(r.grid), device.D1(r.block), r.finalizeArgs(k)); err != nil {
				return nil, deviceError(fmt.Sprintf("%s diagonal %d", finalizeKernel, k), err)
			}
		}
		res.Diagonals++

		if k == r.saveAt {
			snap, err := r.snapshot(k)
			if err != nil {
				return nil, err
			}
			res.Snapshot = snap
		}
		if k == r.stopAt {
			res.Stopped = true
			res.StoppedAt = k
			break
		}
		if k < last {
			r.ring = r.slot(1)
		}
	}

	head := make([]float32, 1)
	if err := r.stream.Download(head, r.d[r.slot(2)]); err != nil {
		return nil, deviceError("download cost", err)
	}
	res.Cost = float64(head[0]) + r.dist[0]

	if r.opts.Debug {
		dbg, err := r.debugMatrices()
		if err != nil {
			return nil, err
		}
		res.Debug = dbg
	}

	r.log.Debug("alignment finished",
		"cost", res.Cost,
		"diagonals", res.Diagonals,
		"stopped", res.Stopped,
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (r *run) stepArgs(k int) device.Args {
	return device.Args{
		Buffers: []*device.Buffer{
			r.d[r.slot(0)], r.d[r.slot(1)], r.d[r.slot(2)],
			r.csm[r.slot(0)], r.csm[r.slot(1)],
			r.u, r.l, r.ul,
		},
		Ints: r.scalars(k),
	}
}

func (r *run) finalizeArgs(k int) device.Args {
	return device.Args{
		Buffers: []*device.Buffer{r.d[r.slot(2)], r.csm[r.slot(2)], r.s},
		Ints:    r.scalars(k),
	}
}

func (r *run) scalars(k int) []int {
	return []int{r.g.rows, r.g.cols, r.g.diagLen, k, boolInt(r.opts.Debug), boolInt(r.g.reverse)}
}

// distances gathers the point pairs of diagonal k, evaluates the distance
// function on them and stages the result in csmHost, zero padded.
func (r *run) distances(x, y *mat.Dense, k int) (int, error) {
	n := r.g.cells(k)
	_, dim := x.Dims()
	if cap(r.pairA) < n*dim {
		r.pairA = make([]float64, r.g.diagLen*dim)
		r.pairB = make([]float64, r.g.diagLen*dim)
	}
	a := mat.NewDense(n, dim, r.pairA[:n*dim])
	b := mat.NewDense(n, dim, r.pairB[:n*dim])

	i1, j1 := r.g.start(k)
	for idx := range n {
		xi, yj := r.g.points(i1-idx, j1+idx)
		a.SetRow(idx, x.RawRowView(xi))
		b.SetRow(idx, y.RawRowView(yj))
	}

	dist := r.opts.Distance(a, b)
	if len(dist) != n {
		return 0, fmt.Errorf("%w: diagonal %d: got %d distances for %d pairs", ErrDistance, k, len(dist), n)
	}
	r.dist = dist
	clear(r.csmHost)
	for idx, v := range dist {
		r.csmHost[idx] = float32(v)
	}
	return n, nil
}

// snapshot materializes the ring as it stands after diagonal k.
func (r *run) snapshot(k int) (*Snapshot, error) {
	snap := &Snapshot{
		Diagonal: k,
		Rows:     r.g.rows,
		Cols:     r.g.cols,
		RowStart: r.g.box.RowStart,
		ColStart: r.g.box.ColStart,
		Reverse:  r.g.reverse,
	}
	targets := []struct {
		dst *[]float32
		src *device.Buffer
	}{
		{&snap.D0, r.d[r.slot(0)]},
		{&snap.D1, r.d[r.slot(1)]},
		{&snap.D2, r.d[r.slot(2)]},
		{&snap.CSM0, r.csm[r.slot(0)]},
		{&snap.CSM1, r.csm[r.slot(1)]},
	}
	for _, t := range targets {
		*t.dst = make([]float32, r.g.diagLen)
		if err := r.stream.Download(*t.dst, t.src); err != nil {
			return nil, deviceError(fmt.Sprintf("snapshot diagonal %d", k), err)
		}
	}
	snap.CSM2 = slices.Clone(r.csmHost)
	return snap, nil
}

func (r *run) debugMatrices() (*DebugMatrices, error) {
	host := make([]float32, r.g.rows*r.g.cols)
	out := make([]*mat.Dense, 4)
	for i, b := range []*device.Buffer{r.u, r.l, r.ul, r.s} {
		if err := r.stream.Download(host, b); err != nil {
			return nil, deviceError("download debug matrices", err)
		}
		out[i] = denseFrom(r.g.rows, r.g.cols, host)
	}
	return &DebugMatrices{U: out[0], L: out[1], UL: out[2], S: out[3]}, nil
}

func (r *run) resumedAtEnd() *Result {
	res := &Result{Cost: r.opts.Resume.Cost()}
	if r.opts.Debug {
		res.Debug = &DebugMatrices{
			U:  mat.NewDense(r.g.rows, r.g.cols, nil),
			L:  mat.NewDense(r.g.rows, r.g.cols, nil),
			UL: mat.NewDense(r.g.rows, r.g.cols, nil),
			S:  mat.NewDense(r.g.rows, r.g.cols, nil),
		}
	}
	return res
}

// release waits for outstanding device work and frees every buffer.
func (r *run) release() {
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			r.log.Warn("closing alignment stream", "error", err)
		}
	}
	for _, b := range r.owned {
		if err := r.c.dev.Free(b); err != nil {
			r.log.Warn("freeing alignment buffer", "error", err)
		}
	}
	r.owned = nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
