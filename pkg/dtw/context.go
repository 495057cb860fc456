// Package dtw computes dynamic time warping alignments between two point
// clouds with a diagonal sweep on a device.
//
// Cells on one anti-diagonal of the cost matrix depend only on the two
// preceding diagonals, so each diagonal is one kernel launch with one thread
// per cell. The host drives the diagonals in order, computing the
// cross-distances of a diagonal while the device computes its costs.
package dtw

import (
	"fmt"

	"github.com/samcharles93/diagwarp/pkg/device"
)

// DefaultBlockSize is the largest number of threads per launch block.
const DefaultBlockSize = 512

// Context holds the kernels loaded on a device. It is safe for concurrent
// use; each Align call allocates its own buffers and stream.
type Context struct {
	dev      device.Device
	step     *device.Function
	finalize *device.Function
}

// NewContext loads the alignment kernels on dev.
func NewContext(dev device.Device) (*Context, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrKernelLaunch)
	}
	step, err := dev.LoadKernel(stepKernel, diagStep)
	if err != nil {
		return nil, deviceError("load "+stepKernel, err)
	}
	finalize, err := dev.LoadKernel(finalizeKernel, diagFinalize)
	if err != nil {
		return nil, deviceError("load "+finalizeKernel, err)
	}
	return &Context{dev: dev, step: step, finalize: finalize}, nil
}

// Device returns the device the context was created on.
func (c *Context) Device() device.Device {
	return c.dev
}

// Options configures one alignment. The zero value aligns the full grids
// with the Euclidean distance.
type Options struct {
	// SaveAt captures a Snapshot right after this diagonal is computed.
	SaveAt *int
	// StopAt ends the run right after this diagonal is computed.
	StopAt *int
	// Box restricts the alignment; nil means the full grid.
	Box *Box
	// Reverse traverses the box from its bottom-right corner.
	Reverse bool
	// Debug materializes the full U, L, UL and S matrices.
	Debug    bool
	Distance DistanceFunc
	Stats    StatsSink
	// BlockSize caps the threads per launch block. Zero means DefaultBlockSize.
	BlockSize int
	// Resume continues from a snapshot instead of diagonal 0. The snapshot
	// must come from the same box and direction, and SaveAt and StopAt, when
	// set, must lie after its diagonal.
	Resume *Snapshot
}

// At returns a pointer to k for Options.SaveAt and Options.StopAt.
func At(k int) *int {
	return &k
}

func diagonalOpt(p *int) int {
	if p == nil || *p < 0 {
		return -1
	}
	return *p
}
