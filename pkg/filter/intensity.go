package filter

import (
	"fmt"
	"math"

	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// MinMax is a reduction collecting the intensity range of the voxels it
// visits. NaN voxels are ignored.
type MinMax[T volume.Scalar] struct {
	voxel.Reduction

	Min, Max float64
	Count    int
}

// NewMinMax returns an empty accumulator.
func NewMinMax[T volume.Scalar]() *MinMax[T] {
	return &MinMax[T]{Min: math.Inf(1), Max: math.Inf(-1)}
}

func (m *MinMax[T]) Voxel(_ voxel.Index, a *T) {
	v := float64(*a)
	if math.IsNaN(v) {
		return
	}
	m.Min = min(m.Min, v)
	m.Max = max(m.Max, v)
	m.Count++
}

func (m *MinMax[T]) Split() *MinMax[T] { return NewMinMax[T]() }

func (m *MinMax[T]) Join(o *MinMax[T]) {
	m.Min = min(m.Min, o.Min)
	m.Max = max(m.Max, o.Max)
	m.Count += o.Count
}

// Threshold returns a copy of in where voxels within [lo, hi] are set to
// inside and all others to outside. The background setting is kept.
func Threshold[T volume.Scalar](in *volume.Image[T], lo, hi float64, inside, outside T, s *voxel.Scheduler) (*volume.Image[T], error) {
	if in.IsEmpty() {
		return nil, ErrEmptyInput
	}
	out := in.Clone()
	err := s.ForEachScalar(voxel.Unary(voxel.Out(out), voxel.Func1Of[T](func(_ voxel.Index, a *T) {
		if v := float64(*a); v >= lo && v <= hi {
			*a = inside
		} else {
			*a = outside
		}
	})))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rescale linearly maps the foreground intensities of in onto [lo, hi].
// Background voxels are copied unchanged. A constant foreground maps to lo.
func Rescale[T volume.Scalar](in *volume.Image[T], lo, hi float64, s *voxel.Scheduler) (*volume.Image[T], error) {
	if in.IsEmpty() {
		return nil, ErrEmptyInput
	}
	if hi < lo {
		return nil, fmt.Errorf("filter: rescale range [%g, %g] is inverted", lo, hi)
	}

	mm := NewMinMax[T]()
	if err := s.ForEachScalar(voxel.If[voxel.Foreground](voxel.Unary(voxel.In(in), mm), nil)); err != nil {
		return nil, err
	}

	out := in.Clone()
	if mm.Count == 0 {
		return out, nil
	}
	scale := 0.0
	if mm.Max > mm.Min {
		scale = (hi - lo) / (mm.Max - mm.Min)
	}
	// The mask is evaluated on the reference, which is in, not the output
	// being written.
	err := s.ForEachScalar(voxel.If[voxel.Foreground](voxel.Binary(voxel.Out(out), voxel.In(in),
		voxel.Func2Of[T, T](func(_ voxel.Index, o *T, a *T) {
			*o = volume.FromFloat[T](lo + (float64(*a)-mm.Min)*scale)
		})), nil))
	if err != nil {
		return nil, err
	}
	return out, nil
}
