package dtw

import (
	"errors"
	"fmt"

	"github.com/samcharles93/diagwarp/pkg/device"
)

var (
	ErrDimensionMismatch = errors.New("dtw: point clouds differ in dimensionality")
	ErrInvalidBox        = errors.New("dtw: invalid bounding box")
	ErrAllocation        = errors.New("dtw: device allocation failed")
	ErrKernelLaunch      = errors.New("dtw: kernel launch failed")
	ErrInvalidSnapshot   = errors.New("dtw: snapshot does not match alignment geometry")
	ErrDistance          = errors.New("dtw: distance function returned a bad result")
)

// deviceError maps a device failure onto the alignment error taxonomy.
func deviceError(op string, err error) error {
	if errors.Is(err, device.ErrOutOfMemory) {
		return fmt.Errorf("%w: %s: %w", ErrAllocation, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrKernelLaunch, op, err)
}
