// Package volume provides the N-dimensional image grid consumed by the voxel
// traversal engine and the filters built on top of it.
//
// Voxels are stored contiguously in row-major order: x varies fastest,
// then y, then z, and t slowest. The fourth axis is either a temporal
// sequence of full 3D volumes (explicit time, DT != 0) or a set of parallel
// scalar channels over the same 3D domain (DT == 0), e.g. the three
// components of a gradient vector field.
package volume

import (
	"errors"
	"fmt"
)

var (
	// ErrBadShape is returned when an extent is not positive or a spacing
	// is negative.
	ErrBadShape = errors.New("volume: invalid shape")

	// ErrDataLength is returned when a buffer does not match the voxel
	// count of its attributes.
	ErrDataLength = errors.New("volume: data length does not match attributes")

	// ErrOutOfRange indicates a coordinate outside the image grid.
	ErrOutOfRange = errors.New("volume: coordinate out of range")
)

// Attributes describes the grid of an image.
type Attributes struct {
	// X, Y, Z are the spatial extents in voxels
	X, Y, Z int

	// T is the number of frames (explicit time) or channels
	T int

	// DX, DY, DZ are the voxel sizes in mm
	DX, DY, DZ float64

	// DT is the temporal spacing; zero means T counts channels rather than
	// time points
	DT float64
}

// NewAttributes returns attributes for a single-frame volume with unit
// voxel size.
func NewAttributes(x, y, z int) Attributes {
	return Attributes{X: x, Y: y, Z: z, T: 1, DX: 1, DY: 1, DZ: 1}
}

// Validate checks that all extents are positive and no spacing is negative.
func (a Attributes) Validate() error {
	if a.X <= 0 || a.Y <= 0 || a.Z <= 0 || a.T <= 0 {
		return fmt.Errorf("%w: extent %dx%dx%dx%d", ErrBadShape, a.X, a.Y, a.Z, a.T)
	}
	if a.DX < 0 || a.DY < 0 || a.DZ < 0 || a.DT < 0 {
		return fmt.Errorf("%w: spacing %gx%gx%gx%g", ErrBadShape, a.DX, a.DY, a.DZ, a.DT)
	}
	return nil
}

// ExplicitTime reports whether the fourth axis is a temporal sequence.
func (a Attributes) ExplicitTime() bool { return a.DT != 0 }

// TSize returns the temporal spacing.
func (a Attributes) TSize() float64 { return a.DT }

// NumberOfVoxels returns X*Y*Z*T.
func (a Attributes) NumberOfVoxels() int { return a.X * a.Y * a.Z * a.T }

// NumberOfSpatialVoxels returns X*Y*Z, the size of one frame or channel.
func (a Attributes) NumberOfSpatialVoxels() int { return a.X * a.Y * a.Z }

// Offset returns the flat index of (x, y, z, t).
func (a Attributes) Offset(x, y, z, t int) int {
	return ((t*a.Z+z)*a.Y+y)*a.X + x
}

// Coordinates decodes a flat index into (x, y, z, t).
func (a Attributes) Coordinates(offset int) (x, y, z, t int) {
	x = offset % a.X
	offset /= a.X
	y = offset % a.Y
	offset /= a.Y
	z = offset % a.Z
	t = offset / a.Z
	return x, y, z, t
}

// Contains reports whether (x, y, z, t) lies on the grid.
func (a Attributes) Contains(x, y, z, t int) bool {
	return x >= 0 && x < a.X && y >= 0 && y < a.Y && z >= 0 && z < a.Z && t >= 0 && t < a.T
}

// SameSpatialShape reports whether both grids share X, Y and Z.
func (a Attributes) SameSpatialShape(b Attributes) bool {
	return a.X == b.X && a.Y == b.Y && a.Z == b.Z
}

// WithFrames returns a copy with T frames or channels and the given
// temporal spacing.
func (a Attributes) WithFrames(t int, dt float64) Attributes {
	a.T = t
	a.DT = dt
	return a
}

func (a Attributes) String() string {
	return fmt.Sprintf("%dx%dx%dx%d (%.3gx%.3gx%.3gx%.3g)", a.X, a.Y, a.Z, a.T, a.DX, a.DY, a.DZ, a.DT)
}
