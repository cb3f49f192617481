// Package interpolation evaluates images at continuous voxel coordinates.
//
// Linear and CubicSpline interpolate in up to four dimensions; the time
// axis is only interpolated for images with more than one frame. All
// interpolators are read-only after construction and may be shared by
// parallel voxel functions.
package interpolation

import (
	"fmt"
	"math"

	"voxeltk/pkg/volume"
)

// Extrapolation selects the value of voxels outside the image.
type Extrapolation int

const (
	// Constant treats outside voxels as DefaultValue.
	Constant Extrapolation = iota

	// Nearest repeats the border voxel.
	Nearest

	// Mirror reflects the image at its borders.
	Mirror
)

func (e Extrapolation) String() string {
	switch e {
	case Constant:
		return "constant"
	case Nearest:
		return "nearest"
	case Mirror:
		return "mirror"
	}
	return fmt.Sprintf("Extrapolation(%d)", int(e))
}

// ParseExtrapolation returns the mode with the given name.
func ParseExtrapolation(s string) (Extrapolation, error) {
	for _, e := range []Extrapolation{Constant, Nearest, Mirror} {
		if e.String() == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("interpolation: unknown extrapolation mode %q", s)
}

// Interpolator is the read-only view used by resampling.
type Interpolator interface {
	Attributes() volume.Attributes

	// IsInside reports whether every voxel contributing to (x, y, z, t)
	// lies inside the image.
	IsInside(x, y, z, t float64) bool

	// Get returns the interpolated value, extrapolating where needed.
	Get(x, y, z, t float64) float64

	// GetWithPadding ignores background and outside voxels and returns
	// DefaultValue when they carry at least half of the weight.
	GetWithPadding(x, y, z, t float64) float64
}

// kernel returns the first voxel index and the weights of the taps along
// one axis.
type kernel func(c float64) (first int, w [4]float64, n int)

func linearKernel(c float64) (int, [4]float64, int) {
	i := math.Floor(c)
	f := c - i
	return int(i), [4]float64{1 - f, f}, 2
}

// cubicKernel is the Catmull-Rom spline, which interpolates the samples and
// reproduces linear functions.
func cubicKernel(c float64) (int, [4]float64, int) {
	i := math.Floor(c)
	f := c - i
	f2, f3 := f*f, f*f*f
	return int(i) - 1, [4]float64{
		(-f3 + 2*f2 - f) / 2,
		(3*f3 - 5*f2 + 2) / 2,
		(-3*f3 + 4*f2 + f) / 2,
		(f3 - f2) / 2,
	}, 4
}

// sampler holds what Linear and CubicSpline share.
type sampler[T volume.Scalar] struct {
	image  *volume.Image[T]
	attr   volume.Attributes
	kernel kernel
	// below and above are how far taps reach around the base voxel.
	below, above int

	// Extrapolation applies outside the image. Defaults to Constant.
	Extrapolation Extrapolation

	// DefaultValue is returned for outside voxels and by GetWithPadding.
	DefaultValue float64
}

func (s *sampler[T]) Attributes() volume.Attributes { return s.attr }

// Image returns the interpolated image.
func (s *sampler[T]) Image() *volume.Image[T] { return s.image }

func (s *sampler[T]) IsInside(x, y, z, t float64) bool {
	inside := func(c float64, n int) bool {
		if n == 1 {
			return true
		}
		i := int(math.Floor(c))
		if c == float64(n-1) {
			// The upper tap has zero weight on the last sample.
			return i-s.below >= 0 && i+s.above-1 <= n-1
		}
		return i-s.below >= 0 && i+s.above <= n-1
	}
	a := s.attr
	return inside(x, a.X) && inside(y, a.Y) && inside(z, a.Z) && inside(t, a.T)
}

// index maps i onto [0, n) according to the extrapolation mode and reports
// whether a voxel exists there.
func (s *sampler[T]) index(i, n int) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	switch s.Extrapolation {
	case Nearest:
		return min(max(i, 0), n-1), true
	case Mirror:
		if n == 1 {
			return 0, true
		}
		p := 2 * n
		i %= p
		if i < 0 {
			i += p
		}
		if i >= n {
			i = p - 1 - i
		}
		return i, true
	}
	return 0, false
}

// axis returns the taps along one axis; a single-sample axis always reads
// sample 0.
func (s *sampler[T]) axis(c float64, n int) (int, [4]float64, int) {
	if n == 1 {
		return 0, [4]float64{1}, 1
	}
	return s.kernel(c)
}

func direct(i, _ int) (int, bool) { return i, true }

// eval is the weighted sum over all taps. With padding set, outside and
// background voxels are skipped and the sum is renormalised. Inside points
// skip the extrapolation.
func (s *sampler[T]) eval(x, y, z, t float64, padding, inside bool) float64 {
	index := s.index
	if inside {
		index = direct
	}
	a := s.attr
	x0, wx, nx := s.axis(x, a.X)
	y0, wy, ny := s.axis(y, a.Y)
	z0, wz, nz := s.axis(z, a.Z)
	t0, wt, nt := s.axis(t, a.T)

	var val, fgw float64
	for l := range nt {
		it, okt := index(t0+l, a.T)
		for k := range nz {
			iz, okz := index(z0+k, a.Z)
			for j := range ny {
				iy, oky := index(y0+j, a.Y)
				for i := range nx {
					w := wt[l] * wz[k] * wy[j] * wx[i]
					if w == 0 {
						continue
					}
					ix, okx := index(x0+i, a.X)
					if !(okx && oky && okz && okt) {
						if !padding {
							val += w * s.DefaultValue
						}
						continue
					}
					off := a.Offset(ix, iy, iz, it)
					if padding && !s.image.IsForeground(off) {
						continue
					}
					val += w * s.image.Float(off)
					fgw += w
				}
			}
		}
	}
	if !padding {
		return val
	}
	if fgw < 0.5 {
		return s.DefaultValue
	}
	return val / fgw
}

// GetInside evaluates at a point for which IsInside holds.
func (s *sampler[T]) GetInside(x, y, z, t float64) float64 {
	return s.eval(x, y, z, t, false, true)
}

// GetOutside evaluates at any point using the extrapolation mode.
func (s *sampler[T]) GetOutside(x, y, z, t float64) float64 {
	return s.eval(x, y, z, t, false, false)
}

func (s *sampler[T]) Get(x, y, z, t float64) float64 {
	if s.IsInside(x, y, z, t) {
		return s.GetInside(x, y, z, t)
	}
	return s.GetOutside(x, y, z, t)
}

func (s *sampler[T]) GetWithPadding(x, y, z, t float64) float64 {
	return s.eval(x, y, z, t, true, false)
}

// Linear interpolates linearly along every axis.
type Linear[T volume.Scalar] struct {
	sampler[T]
}

// NewLinear returns a linear interpolator for im with Constant
// extrapolation and DefaultValue zero.
func NewLinear[T volume.Scalar](im *volume.Image[T]) *Linear[T] {
	return &Linear[T]{sampler[T]{
		image:  im,
		attr:   im.Attributes(),
		kernel: linearKernel,
		below:  0,
		above:  1,
	}}
}

// CubicSpline interpolates with a Catmull-Rom spline along every axis,
// using 4 samples per axis.
type CubicSpline[T volume.Scalar] struct {
	sampler[T]
}

// NewCubicSpline returns a cubic spline interpolator for im with Constant
// extrapolation and DefaultValue zero.
func NewCubicSpline[T volume.Scalar](im *volume.Image[T]) *CubicSpline[T] {
	return &CubicSpline[T]{sampler[T]{
		image:  im,
		attr:   im.Attributes(),
		kernel: cubicKernel,
		below:  1,
		above:  2,
	}}
}
