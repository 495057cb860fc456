package device

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sys/cpu"
)

const cpuMaxThreadsPerBlock = 1024

// CPUDevice runs kernels on host goroutines. Each launch block is executed
// sequentially by one pool worker; blocks of a launch run concurrently.
type CPUDevice struct {
	mu      sync.Mutex
	workers int
	limit   int64
	inUse   int64
	kernels map[string]*Function
	streams map[*cpuStream]struct{}
	pool    *blockPool
	closed  bool
}

// NewCPU creates a CPU device. It never fails; limits are enforced on Alloc.
func NewCPU(opts Options) *CPUDevice {
	workers := opts.Workers
	if workers <= 0 {
		workers = max(runtime.GOMAXPROCS(0), 1)
	}
	return &CPUDevice{
		workers: workers,
		limit:   max(opts.MemoryLimit, 0),
		kernels: make(map[string]*Function),
		streams: make(map[*cpuStream]struct{}),
		pool:    newBlockPool(workers),
	}
}

func (d *CPUDevice) Name() string {
	return CPU
}

func (d *CPUDevice) Properties() Properties {
	d.mu.Lock()
	inUse := d.inUse
	d.mu.Unlock()
	return Properties{
		Name:               CPU,
		Workers:            d.workers,
		MaxThreadsPerBlock: cpuMaxThreadsPerBlock,
		MemoryLimit:        d.limit,
		MemoryInUse:        inUse,
		Features:           cpuFeatures(),
	}
}

func (d *CPUDevice) Alloc(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: allocation of %d elements", ErrBadBuffer, n)
	}
	if int64(n) > math.MaxInt64/4 {
		return nil, fmt.Errorf("%w: %d elements overflows the address space", ErrOutOfMemory, n)
	}
	size := int64(n) * 4

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if d.limit > 0 && d.inUse+size > d.limit {
		inUse := d.inUse
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: requested %d bytes with %d of %d in use", ErrOutOfMemory, size, inUse, d.limit)
	}
	d.inUse += size
	d.mu.Unlock()

	return &Buffer{data: make([]float32, n), owner: d}, nil
}

func (d *CPUDevice) Free(b *Buffer) error {
	if b == nil {
		return nil
	}
	if b.owner != d {
		return fmt.Errorf("%w: buffer belongs to another device", ErrBadBuffer)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.freed {
		return fmt.Errorf("%w: double free", ErrBadBuffer)
	}
	b.freed = true
	d.inUse -= b.Bytes()
	b.data = nil
	return nil
}

func (d *CPUDevice) LoadKernel(name string, fn KernelFunc) (*Function, error) {
	if name == "" || fn == nil {
		return nil, fmt.Errorf("%w: kernel needs a name and a body", ErrLaunch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if f, ok := d.kernels[name]; ok {
		return f, nil
	}
	f := &Function{name: name, fn: fn, owner: d}
	d.kernels[name] = f
	return f, nil
}

func (d *CPUDevice) NewStream() (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	s := newCPUStream(d)
	d.streams[s] = struct{}{}
	return s, nil
}

// Close waits for every stream to drain and stops the worker pool.
func (d *CPUDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	streams := make([]*cpuStream, 0, len(d.streams))
	for s := range d.streams {
		streams = append(streams, s)
	}
	d.mu.Unlock()

	var err error
	for _, s := range streams {
		if e := s.Close(); e != nil && err == nil {
			err = e
		}
	}
	d.pool.close()
	return err
}

func (d *CPUDevice) releaseStream(s *cpuStream) {
	d.mu.Lock()
	delete(d.streams, s)
	d.mu.Unlock()
}

func (d *CPUDevice) checkBuffer(b *Buffer) error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrBadBuffer)
	}
	if b.owner != d {
		return fmt.Errorf("%w: buffer belongs to another device", ErrBadBuffer)
	}
	d.mu.Lock()
	freed := b.freed
	d.mu.Unlock()
	if freed {
		return fmt.Errorf("%w: use after free", ErrBadBuffer)
	}
	return nil
}

type cpuStream struct {
	dev   *CPUDevice
	tasks chan func() error
	wg    sync.WaitGroup

	mu  sync.Mutex
	err error

	// sendMu orders submissions against Close; the worker never takes it.
	sendMu sync.Mutex
	closed bool
}

func newCPUStream(dev *CPUDevice) *cpuStream {
	s := &cpuStream{
		dev:   dev,
		tasks: make(chan func() error, 16),
	}
	go s.worker()
	return s
}

func (s *cpuStream) worker() {
	for task := range s.tasks {
		// A failed launch poisons the stream until the error is observed.
		if s.pending() == nil {
			if err := task(); err != nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
		}
		s.wg.Done()
	}
}

func (s *cpuStream) pending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *cpuStream) Launch(fn *Function, grid, block Dim3, args Args) error {
	if fn == nil || fn.fn == nil {
		return fmt.Errorf("%w: nil function", ErrLaunch)
	}
	if fn.owner != s.dev {
		return fmt.Errorf("%w: function %q was loaded on another device", ErrLaunch, fn.name)
	}
	if !grid.valid() || !block.valid() {
		return fmt.Errorf("%w: invalid launch geometry grid=%v block=%v", ErrLaunch, grid, block)
	}
	if block.Size() > cpuMaxThreadsPerBlock {
		return fmt.Errorf("%w: block of %d threads exceeds %d", ErrLaunch, block.Size(), cpuMaxThreadsPerBlock)
	}
	for i, b := range args.Buffers {
		if err := s.dev.checkBuffer(b); err != nil {
			return fmt.Errorf("%w: argument %d: %w", ErrLaunch, i, err)
		}
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// Arguments are captured at launch, as a driver would copy them.
	args = Args{Buffers: slices.Clone(args.Buffers), Ints: slices.Clone(args.Ints)}
	pool := s.dev.pool
	kernel := fn.fn
	s.wg.Add(1)
	s.tasks <- func() error {
		return pool.run(kernel, args, grid, block)
	}
	return nil
}

func (s *cpuStream) Upload(dst *Buffer, src []float32) error {
	if err := s.dev.checkBuffer(dst); err != nil {
		return err
	}
	if len(src) > dst.Len() {
		return fmt.Errorf("%w: upload of %d elements into buffer of %d", ErrBadBuffer, len(src), dst.Len())
	}
	if err := s.Synchronize(); err != nil {
		return err
	}
	copy(dst.data, src)
	return nil
}

func (s *cpuStream) Download(dst []float32, src *Buffer) error {
	if err := s.dev.checkBuffer(src); err != nil {
		return err
	}
	if err := s.Synchronize(); err != nil {
		return err
	}
	copy(dst, src.data)
	return nil
}

// Synchronize blocks until all enqueued work has retired and returns the
// first launch error since the previous synchronization.
func (s *cpuStream) Synchronize() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

func (s *cpuStream) Close() error {
	err := s.Synchronize()
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return err
	}
	s.closed = true
	close(s.tasks)
	s.sendMu.Unlock()
	s.dev.releaseStream(s)
	return err
}

func cpuFeatures() []string {
	var out []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			out = append(out, "sse4.1")
		}
		if cpu.X86.HasAVX {
			out = append(out, "avx")
		}
		if cpu.X86.HasAVX2 {
			out = append(out, "avx2")
		}
		if cpu.X86.HasFMA {
			out = append(out, "fma")
		}
		if cpu.X86.HasAVX512F {
			out = append(out, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			out = append(out, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			out = append(out, "fphp")
		}
		if cpu.ARM64.HasSVE {
			out = append(out, "sve")
		}
	}
	return out
}
