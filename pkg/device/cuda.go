package device

import "fmt"

// Kernels are Go functions, so only host-executed devices can run them.
// A CUDA device needs the kernels compiled to PTX and is not part of this build.
const cudaEnabled = false

func newCUDA(Options) (Device, error) {
	return nil, fmt.Errorf("%w: cuda backend is not available in this build", ErrUnavailable)
}
