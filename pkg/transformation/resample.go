package transformation

import (
	"voxeltk/pkg/interpolation"
	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// ResampleOptions configures Resample.
type ResampleOptions struct {
	// Padding evaluates the source with GetWithPadding.
	Padding bool

	// DefaultValue becomes the background of the result when Padding is
	// set. It should match the interpolator's DefaultValue.
	DefaultValue float64

	// Scheduler runs the traversal; nil uses voxel.DefaultScheduler.
	Scheduler *voxel.Scheduler
}

// Resample fills an image with attributes attr by mapping each voxel centre
// to world coordinates, through tr, and into the voxel space of the source
// behind ip. World coordinates are voxel indices scaled by the spacing;
// zero spacings count as one. Frame t of the result samples frame t of a
// multi-frame source and frame 0 otherwise.
func Resample[T volume.Scalar](attr volume.Attributes, tr Transformation, ip interpolation.Interpolator, opts ResampleOptions) (*volume.Image[T], error) {
	out, err := volume.New[T](attr)
	if err != nil {
		return nil, err
	}
	if opts.Padding {
		out.SetBackground(opts.DefaultValue)
	}
	s := opts.Scheduler
	if s == nil {
		s = voxel.DefaultScheduler
	}
	fn := &resampleFunc[T]{
		tr:      tr,
		ip:      ip,
		padding: opts.Padding,
		target:  spacing(attr),
		source:  spacing(ip.Attributes()),
		frames:  ip.Attributes().T,
	}
	if err := s.ForEachVoxel(voxel.Unary(voxel.Out(out), fn)); err != nil {
		return nil, err
	}
	return out, nil
}

func spacing(a volume.Attributes) [3]float64 {
	d := [3]float64{a.DX, a.DY, a.DZ}
	for i := range d {
		if d[i] <= 0 {
			d[i] = 1
		}
	}
	return d
}

type resampleFunc[T volume.Scalar] struct {
	voxel.Function

	tr      Transformation
	ip      interpolation.Interpolator
	padding bool
	target  [3]float64
	source  [3]float64
	frames  int
}

func (f *resampleFunc[T]) Voxel(v voxel.Index, out *T) {
	x, y, z := f.tr.Transform(float64(v.X)*f.target[0], float64(v.Y)*f.target[1], float64(v.Z)*f.target[2])
	x, y, z = x/f.source[0], y/f.source[1], z/f.source[2]
	t := 0.0
	if f.frames > 1 {
		t = float64(v.T)
	}
	if f.padding {
		*out = volume.FromFloat[T](f.ip.GetWithPadding(x, y, z, t))
	} else {
		*out = volume.FromFloat[T](f.ip.Get(x, y, z, t))
	}
}
