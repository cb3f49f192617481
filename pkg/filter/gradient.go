package filter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// GradientType selects what the gradient filter writes.
type GradientType int

const (
	GradientX GradientType = iota
	GradientY
	GradientZ
	GradientMagnitude
	GradientVector
	NormalisedGradientVector
)

func (t GradientType) String() string {
	switch t {
	case GradientX:
		return "x"
	case GradientY:
		return "y"
	case GradientZ:
		return "z"
	case GradientMagnitude:
		return "magnitude"
	case GradientVector:
		return "vector"
	case NormalisedGradientVector:
		return "normalised vector"
	}
	return fmt.Sprintf("GradientType(%d)", int(t))
}

// Channels returns the number of output channels.
func (t GradientType) Channels() int {
	if t == GradientVector || t == NormalisedGradientVector {
		return 3
	}
	return 1
}

// MinGrey is the default padding: any voxel at or below it is excluded
// from finite differences.
const MinGrey = math.MinInt16

// Gradient computes central finite differences, falling back to one-sided
// differences at the border.
type Gradient struct {
	Type GradientType

	// UseVoxelSize divides the differences by the voxel spacing.
	UseVoxelSize bool

	// Orientation, when set, is the 3x3 world-to-image rotation used to
	// express the gradient in world coordinates.
	Orientation *mat.Dense

	// Padding excludes voxels with values <= Padding from the differences.
	Padding float64

	// Scheduler runs the traversal; nil uses voxel.DefaultScheduler.
	Scheduler *voxel.Scheduler
}

// NewGradient returns a gradient filter with voxel-size scaling and the
// MinGrey padding.
func NewGradient(t GradientType) *Gradient {
	return &Gradient{Type: t, UseVoxelSize: true, Padding: MinGrey}
}

// ComputeGradient applies g to a single-frame image. Vector types return a
// three-channel image (T=3, DT=0) holding dx, dy and dz.
func ComputeGradient[T volume.Scalar](g *Gradient, in *volume.Image[T]) (*volume.Image[float64], error) {
	if in.IsEmpty() {
		return nil, ErrEmptyInput
	}
	attr := in.Attributes()
	if attr.T > 1 {
		return nil, fmt.Errorf("%w: got %d frames", ErrTimeSeries, attr.T)
	}
	if g.Type < GradientX || g.Type > NormalisedGradientVector {
		return nil, fmt.Errorf("%w: %v", ErrUnknownGradient, g.Type)
	}

	out, err := volume.New[float64](attr.WithFrames(g.Type.Channels(), 0))
	if err != nil {
		return nil, err
	}

	fn := &gradientFunc[T]{
		Gradient: g,
		in:       in,
		attr:     attr,
		out:      out.Data(),
		stride:   attr.NumberOfSpatialVoxels(),
	}
	if g.Orientation != nil {
		r, c := g.Orientation.Dims()
		if r != 3 || c != 3 {
			return nil, fmt.Errorf("filter: orientation must be 3x3, got %dx%d", r, c)
		}
	}

	s := g.Scheduler
	if s == nil {
		s = voxel.DefaultScheduler
	}
	// The input is the reference: the output has up to three channels per
	// input voxel, written through the stride.
	if err := s.ForEachVoxelAttr(attr, voxel.Binary(voxel.Out(out), voxel.In(in), fn)); err != nil {
		return nil, err
	}
	return out, nil
}

type gradientFunc[T volume.Scalar] struct {
	voxel.Function
	*Gradient

	in     *volume.Image[T]
	attr   volume.Attributes
	out    []float64
	stride int
}

// diff returns the difference quotient between the voxels at offsets a
// and b, d voxels apart, or zero if either is padding.
func (f *gradientFunc[T]) diff(a, b, d int) float64 {
	if d == 0 {
		return 0
	}
	va, vb := f.in.Float(a), f.in.Float(b)
	if va <= f.Padding || vb <= f.Padding {
		return 0
	}
	return (va - vb) / float64(d)
}

func (f *gradientFunc[T]) Voxel(v voxel.Index, out *float64, _ *T) {
	a := f.attr
	x1, x2 := max(v.X-1, 0), min(v.X+1, a.X-1)
	y1, y2 := max(v.Y-1, 0), min(v.Y+1, a.Y-1)
	z1, z2 := max(v.Z-1, 0), min(v.Z+1, a.Z-1)

	// Only the two neighbours are tested against the padding, not the centre.
	dx := f.diff(a.Offset(x2, v.Y, v.Z, 0), a.Offset(x1, v.Y, v.Z, 0), x2-x1)
	dy := f.diff(a.Offset(v.X, y2, v.Z, 0), a.Offset(v.X, y1, v.Z, 0), y2-y1)
	dz := f.diff(a.Offset(v.X, v.Y, z2, 0), a.Offset(v.X, v.Y, z1, 0), z2-z1)

	if f.UseVoxelSize {
		if a.DX > 0 {
			dx /= a.DX
		}
		if a.DY > 0 {
			dy /= a.DY
		}
		if a.DZ > 0 {
			dz /= a.DZ
		}
	}
	if r := f.Orientation; r != nil {
		// Numerator layout: the gradient is a row vector times R
		di, dj, dk := dx, dy, dz
		dx = di*r.At(0, 0) + dj*r.At(1, 0) + dk*r.At(2, 0)
		dy = di*r.At(0, 1) + dj*r.At(1, 1) + dk*r.At(2, 1)
		dz = di*r.At(0, 2) + dj*r.At(1, 2) + dk*r.At(2, 2)
	}

	switch f.Type {
	case GradientX:
		*out = dx
	case GradientY:
		*out = dy
	case GradientZ:
		*out = dz
	case GradientMagnitude:
		*out = math.Sqrt(dx*dx + dy*dy + dz*dz)
	case NormalisedGradientVector:
		norm := math.Sqrt(dx*dx+dy*dy+dz*dz) + 1e-10
		dx, dy, dz = dx/norm, dy/norm, dz/norm
		fallthrough
	case GradientVector:
		*out = dx
		f.out[v.Offset+f.stride] = dy
		f.out[v.Offset+2*f.stride] = dz
	}
}
