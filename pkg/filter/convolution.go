package filter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// Convolve3D convolves every frame of in with a dense 3D kernel centred on
// the voxel. Kernel extents must be odd.
//
// Neighbours outside the image and background voxels of in are skipped.
// With normalise set the weighted sum is divided by the sum of the weights
// actually used, so the kernel does not have to be normalised and borders
// do not darken. A voxel whose neighbourhood contributed no weight keeps the
// background value (zero if in has none). The traversal runs on s; nil uses
// voxel.DefaultScheduler.
func Convolve3D[T volume.Scalar](in *volume.Image[T], kernel *volume.Image[float64], normalise bool, s *voxel.Scheduler) (*volume.Image[T], error) {
	if in.IsEmpty() {
		return nil, ErrEmptyInput
	}
	if kernel.IsEmpty() || kernel.T() != 1 {
		return nil, fmt.Errorf("%w: kernel must be a non-empty single frame", ErrBadKernel)
	}
	if kernel.X()%2 == 0 || kernel.Y()%2 == 0 || kernel.Z()%2 == 0 {
		return nil, fmt.Errorf("%w: extents %dx%dx%d are not odd", ErrBadKernel, kernel.X(), kernel.Y(), kernel.Z())
	}

	out := in.Clone()
	fn := &convolveFunc[T]{
		in:        in,
		attr:      in.Attributes(),
		kernel:    kernel.Data(),
		kattr:     kernel.Attributes(),
		normalise: normalise,
	}
	if err := s.ForEachVoxel(voxel.Binary(voxel.In(in), voxel.Out(out), fn)); err != nil {
		return nil, err
	}
	return out, nil
}

type convolveFunc[T volume.Scalar] struct {
	voxel.Function

	in        *volume.Image[T]
	attr      volume.Attributes
	kernel    []float64
	kattr     volume.Attributes
	normalise bool
}

func (f *convolveFunc[T]) Voxel(v voxel.Index, _ *T, out *T) {
	a, k := f.attr, f.kattr
	rx, ry, rz := k.X/2, k.Y/2, k.Z/2

	var sum, wsum float64
	i := 0
	for kz := -rz; kz <= rz; kz++ {
		for ky := -ry; ky <= ry; ky++ {
			for kx := -rx; kx <= rx; kx++ {
				w := f.kernel[i]
				i++
				x, y, z := v.X+kx, v.Y+ky, v.Z+kz
				if x < 0 || y < 0 || z < 0 || x >= a.X || y >= a.Y || z >= a.Z {
					continue
				}
				off := a.Offset(x, y, z, v.T)
				if !f.in.IsForeground(off) {
					continue
				}
				sum += w * f.in.Float(off)
				wsum += w
			}
		}
	}

	switch {
	case !f.normalise:
		*out = volume.FromFloat[T](sum)
	case wsum != 0:
		*out = volume.FromFloat[T](sum / wsum)
	default:
		*out = volume.FromFloat[T](f.in.Background())
	}
}

// ConvolveSeparable convolves in with the 1D kernels kx, ky and kz along x,
// y and z in turn. A nil kernel leaves that axis untouched. Intermediate
// results are kept in float64 and converted back to T once. Every pass runs
// on s.
func ConvolveSeparable[T volume.Scalar](in *volume.Image[T], kx, ky, kz []float64, normalise bool, s *voxel.Scheduler) (*volume.Image[T], error) {
	if in.IsEmpty() {
		return nil, ErrEmptyInput
	}
	for _, k := range [][]float64{kx, ky, kz} {
		if k != nil && len(k)%2 == 0 {
			return nil, fmt.Errorf("%w: 1D kernel of length %d", ErrBadKernel, len(k))
		}
	}

	attr := in.Attributes()
	src := volume.MustNew[float64](attr)
	mask := make([]bool, attr.NumberOfVoxels())
	err := s.ForEachScalar(voxel.Binary(voxel.Out(src), voxel.In(in),
		voxel.Func2Of[float64, T](func(v voxel.Index, dst *float64, s *T) {
			*dst = float64(*s)
			mask[v.Offset] = in.IsForeground(v.Offset)
		})))
	if err != nil {
		return nil, err
	}

	for axis, k := range [][]float64{kx, ky, kz} {
		if k == nil {
			continue
		}
		dst := volume.MustNew[float64](attr)
		fn := &axisFunc{src: src.Data(), mask: mask, attr: attr, kernel: k, axis: volume.Axis(axis), normalise: normalise}
		if err := s.ForEachVoxel(voxel.Unary(voxel.Out(dst), fn)); err != nil {
			return nil, err
		}
		src = dst
	}

	out := in.Clone()
	err = s.ForEachScalar(voxel.Binary(voxel.In(src), voxel.Out(out),
		voxel.Func2Of[float64, T](func(v voxel.Index, s *float64, dst *T) {
			if mask[v.Offset] {
				*dst = volume.FromFloat[T](*s)
			}
		})))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// axisFunc convolves along one axis, skipping masked and outside voxels.
type axisFunc struct {
	voxel.Function

	src       []float64
	mask      []bool
	attr      volume.Attributes
	kernel    []float64
	axis      volume.Axis
	normalise bool
}

func (f *axisFunc) Voxel(v voxel.Index, out *float64) {
	if !f.mask[v.Offset] {
		*out = f.src[v.Offset]
		return
	}
	r := len(f.kernel) / 2
	var pos, n, step int
	switch f.axis {
	case volume.AxisX:
		pos, n, step = v.X, f.attr.X, 1
	case volume.AxisY:
		pos, n, step = v.Y, f.attr.Y, f.attr.X
	default:
		pos, n, step = v.Z, f.attr.Z, f.attr.X*f.attr.Y
	}

	var sum, wsum float64
	for i, w := range f.kernel {
		p := pos + i - r
		if p < 0 || p >= n {
			continue
		}
		off := v.Offset + (p-pos)*step
		if !f.mask[off] {
			continue
		}
		sum += w * f.src[off]
		wsum += w
	}
	if f.normalise && wsum != 0 {
		sum /= wsum
	}
	*out = sum
}

// GaussianKernel returns a normalised 1D Gaussian with standard deviation
// sigma in world units sampled at the given voxel spacing. The kernel
// reaches three standard deviations to either side.
func GaussianKernel(sigma, spacing float64) ([]float64, error) {
	if sigma <= 0 || spacing <= 0 {
		return nil, fmt.Errorf("%w: sigma %g, spacing %g", ErrBadKernel, sigma, spacing)
	}
	g := distuv.Normal{Mu: 0, Sigma: sigma / spacing}
	r := int(math.Ceil(3 * g.Sigma))
	k := make([]float64, 2*r+1)
	for i := range k {
		k[i] = g.Prob(float64(i - r))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k, nil
}

// Smooth applies an isotropic Gaussian with standard deviation sigma in
// world units. Axes with zero spacing are treated as unit spaced.
func Smooth[T volume.Scalar](in *volume.Image[T], sigma float64, s *voxel.Scheduler) (*volume.Image[T], error) {
	if in.IsEmpty() {
		return nil, ErrEmptyInput
	}
	attr := in.Attributes()
	kernels := make([][]float64, 3)
	for i, d := range []float64{attr.DX, attr.DY, attr.DZ} {
		if d <= 0 {
			d = 1
		}
		k, err := GaussianKernel(sigma, d)
		if err != nil {
			return nil, err
		}
		kernels[i] = k
	}
	return ConvolveSeparable(in, kernels[0], kernels[1], kernels[2], true, s)
}
