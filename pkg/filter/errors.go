// Package filter implements image filters as voxel functions run by the
// traversal engine: finite-difference gradients, kernel convolution,
// Gaussian and spectral smoothing, and intensity rescaling.
package filter

import "errors"

var (
	// ErrEmptyInput is returned when a filter is run without input voxels.
	ErrEmptyInput = errors.New("filter: input is empty")

	// ErrTimeSeries is returned by filters that only handle a single frame.
	ErrTimeSeries = errors.New("filter: only implemented for images with t = 1")

	// ErrBadKernel is returned for empty or even-sized kernels and
	// non-positive widths.
	ErrBadKernel = errors.New("filter: invalid kernel")

	// ErrUnknownGradient is returned for an unsupported gradient type.
	ErrUnknownGradient = errors.New("filter: unknown gradient computation")
)
