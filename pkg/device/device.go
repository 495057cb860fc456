// Package device provides the accelerator abstraction used by the diagonal
// sweep: device-resident float32 buffers, kernel launches over a grid of
// blocks, and streams that order launches and host transfers.
//
// Buffers are device owned. Host code never reads them directly; it
// materializes their contents with Stream.Download, which is the only
// synchronization point between device work and the host.
package device

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
	Auto = "auto"
)

var (
	ErrOutOfMemory = errors.New("device: out of memory")
	ErrLaunch      = errors.New("device: kernel launch failed")
	ErrUnavailable = errors.New("device: backend unavailable")
	ErrClosed      = errors.New("device: closed")
	ErrBadBuffer   = errors.New("device: invalid buffer")
)

// Device allocates memory, loads kernels and creates streams.
type Device interface {
	Name() string
	Properties() Properties
	// Alloc returns a zero-initialized buffer of n float32 elements.
	Alloc(n int) (*Buffer, error)
	Free(b *Buffer) error
	// LoadKernel registers fn under name. Loading the same name twice returns
	// the function registered first.
	LoadKernel(name string, fn KernelFunc) (*Function, error)
	NewStream() (Stream, error)
	Close() error
}

// Stream executes launches and transfers in submission order.
type Stream interface {
	// Launch enqueues fn over grid×block threads and returns without waiting.
	// Errors raised while the kernel runs are reported by the next
	// Synchronize, Upload or Download.
	Launch(fn *Function, grid, block Dim3, args Args) error
	// Upload waits for pending work, then copies src into dst.
	Upload(dst *Buffer, src []float32) error
	// Download waits for pending work, then copies src into dst.
	Download(dst []float32, src *Buffer) error
	Synchronize() error
	Close() error
}

// Options configures a device when it is opened.
type Options struct {
	// Workers bounds the number of blocks executing concurrently.
	// Zero means GOMAXPROCS.
	Workers int
	// MemoryLimit is the allocation budget in bytes. Zero means unlimited.
	MemoryLimit int64
}

// Properties describes an opened device.
type Properties struct {
	Name               string   `json:"name" yaml:"name"`
	Workers            int      `json:"workers" yaml:"workers"`
	MaxThreadsPerBlock int      `json:"max_threads_per_block" yaml:"max_threads_per_block"`
	MemoryLimit        int64    `json:"memory_limit" yaml:"memory_limit"`
	MemoryInUse        int64    `json:"memory_in_use" yaml:"memory_in_use"`
	Features           []string `json:"features,omitempty" yaml:"features,omitempty"`
}

// Normalize canonicalizes a backend name. An empty name selects Auto.
func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case CPU, CUDA, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, cpu, or cuda)", backend)
	}
}

// Open opens the named backend. Auto prefers CUDA when it is compiled in and
// falls back to the CPU device.
func Open(name string, opts Options) (Device, error) {
	backend, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	switch backend {
	case CUDA:
		return newCUDA(opts)
	case Auto:
		if Has(CUDA) {
			if dev, err := newCUDA(opts); err == nil {
				return dev, nil
			}
		}
		return NewCPU(opts), nil
	default:
		return NewCPU(opts), nil
	}
}

// Dim3 is a launch extent in up to three dimensions.
type Dim3 struct {
	X, Y, Z int
}

// D1 returns a one dimensional extent.
func D1(x int) Dim3 {
	return Dim3{X: x, Y: 1, Z: 1}
}

// Size returns the number of elements covered by d.
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}

func (d Dim3) valid() bool {
	return d.X > 0 && d.Y > 0 && d.Z > 0
}

// Thread identifies one work-item of a launch.
type Thread struct {
	BlockIdx  Dim3
	ThreadIdx Dim3
	BlockDim  Dim3
	GridDim   Dim3
}

// Global returns the flattened x index of the thread across the grid.
func (t Thread) Global() int {
	return t.BlockIdx.X*t.BlockDim.X + t.ThreadIdx.X
}

// KernelFunc is the body executed by every thread of a launch.
type KernelFunc func(t Thread, args Args)

// Function is a kernel loaded on a specific device.
type Function struct {
	name  string
	fn    KernelFunc
	owner any
}

func (f *Function) Name() string {
	if f == nil {
		return ""
	}
	return f.name
}

// Args are the positional launch arguments: device buffers and scalars.
type Args struct {
	Buffers []*Buffer
	Ints    []int
}

// Slice returns the device view of buffer i. It is only meaningful inside a
// kernel body; out of range indices yield nil.
func (a Args) Slice(i int) []float32 {
	if i < 0 || i >= len(a.Buffers) || a.Buffers[i] == nil {
		return nil
	}
	return a.Buffers[i].data
}

// Int returns scalar argument i, or 0 when it is absent.
func (a Args) Int(i int) int {
	if i < 0 || i >= len(a.Ints) {
		return 0
	}
	return a.Ints[i]
}

// Buffer is an opaque handle to device memory.
type Buffer struct {
	data  []float32
	owner any
	freed bool
}

// Len returns the number of float32 elements in b.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes returns the device memory footprint of b.
func (b *Buffer) Bytes() int64 {
	return int64(b.Len()) * 4
}
