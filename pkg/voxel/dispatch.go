package voxel

import (
	"fmt"

	"voxeltk/pkg/volume"
)

// plan is the validated work of one dispatch call: the attributes used to
// decode offsets and the root ranges to visit, in order.
type plan struct {
	attr  volume.Attributes
	roots []Range
}

func (p plan) len() int {
	n := 0
	for _, r := range p.roots {
		n += r.Len()
	}
	return n
}

func scalarPlan(b Body) (plan, error) {
	if err := b.Validate(); err != nil {
		return plan{}, err
	}
	attr := b.Reference().Attributes()
	return plan{attr: attr, roots: []Range{Buffer(attr)}}, nil
}

// voxelPlan covers the whole buffer. Explicit time series are visited frame
// by frame; channel images are visited as one flat buffer.
func voxelPlan(b Body) (plan, error) {
	if err := b.Validate(); err != nil {
		return plan{}, err
	}
	attr := b.Reference().Attributes()
	if !attr.ExplicitTime() {
		return plan{attr: attr, roots: []Range{Buffer(attr)}}, nil
	}
	roots := make([]Range, attr.T)
	for t := range attr.T {
		roots[t] = Frame(attr, t)
	}
	return plan{attr: attr, roots: roots}, nil
}

// attrPlan loops over the frames of attr when it has explicit time and
// visits frame 0 only otherwise.
func attrPlan(attr volume.Attributes, b Body) (plan, error) {
	if err := b.Validate(); err != nil {
		return plan{}, err
	}
	if err := attr.Validate(); err != nil {
		return plan{}, err
	}
	frames := 1
	if attr.ExplicitTime() {
		frames = attr.T
	}
	ref := b.Reference()
	if need := attr.NumberOfSpatialVoxels() * frames; need > ref.NumberOfVoxels() {
		return plan{}, fmt.Errorf("%w: attributes %v need %d voxels, reference has %d",
			ErrShapeMismatch, attr, need, ref.NumberOfVoxels())
	}
	roots := make([]Range, frames)
	for t := range frames {
		roots[t] = Frame(attr, t)
	}
	return plan{attr: attr, roots: roots}, nil
}

func rangePlan(b Body, r Range) (plan, error) {
	if err := b.Validate(); err != nil {
		return plan{}, err
	}
	attr := b.Reference().Attributes()
	if !r.within(attr) {
		return plan{}, fmt.Errorf("%w: range %+v outside %v", ErrShapeMismatch, r, attr)
	}
	return plan{attr: attr, roots: []Range{r}}, nil
}

func (p plan) run(b Body) {
	for _, r := range p.roots {
		r.walk(p.attr, b.Visit)
	}
}

// ForEachScalar visits every voxel of the reference buffer in a single
// flat pass, frames and channels included.
func ForEachScalar(b Body) error {
	p, err := scalarPlan(b)
	if err != nil {
		return err
	}
	p.run(b)
	return nil
}

// ForEachVoxel visits every voxel of the reference image in row-major
// order. An explicit time series is visited one frame at a time; the
// channels of a vector image are visited as independent scalar fields.
func ForEachVoxel(b Body) error {
	p, err := voxelPlan(b)
	if err != nil {
		return err
	}
	p.run(b)
	return nil
}

// ForEachVoxelAttr visits the volume described by attr. With explicit time
// it runs one 3D pass per frame, t = 0..attr.T-1; otherwise it runs a single
// pass over frame 0 and the function handles the channels itself.
func ForEachVoxelAttr(attr volume.Attributes, b Body) error {
	p, err := attrPlan(attr, b)
	if err != nil {
		return err
	}
	p.run(b)
	return nil
}

// ForEachInRange visits the voxels of r only. r must lie inside the
// reference grid.
func ForEachInRange(b Body, r Range) error {
	p, err := rangePlan(b, r)
	if err != nil {
		return err
	}
	p.run(b)
	return nil
}

// ForEachScalarIf is ForEachScalar with voxels routed by the domain D.
func ForEachScalarIf[D Domain](inside, outside Body) error {
	return ForEachScalar(If[D](inside, outside))
}

// ForEachVoxelIf is ForEachVoxel with voxels routed by the domain D.
func ForEachVoxelIf[D Domain](inside, outside Body) error {
	return ForEachVoxel(If[D](inside, outside))
}

// ForEachVoxelAttrIf is ForEachVoxelAttr with voxels routed by the domain D.
func ForEachVoxelAttrIf[D Domain](attr volume.Attributes, inside, outside Body) error {
	return ForEachVoxelAttr(attr, If[D](inside, outside))
}

// ParallelForEachScalar runs ForEachScalar on DefaultScheduler.
func ParallelForEachScalar(b Body) error { return DefaultScheduler.ForEachScalar(b) }

// ParallelForEachVoxel runs ForEachVoxel on DefaultScheduler.
func ParallelForEachVoxel(b Body) error { return DefaultScheduler.ForEachVoxel(b) }

// ParallelForEachVoxelAttr runs ForEachVoxelAttr on DefaultScheduler.
func ParallelForEachVoxelAttr(attr volume.Attributes, b Body) error {
	return DefaultScheduler.ForEachVoxelAttr(attr, b)
}

// ParallelForEachInRange runs ForEachInRange on DefaultScheduler.
func ParallelForEachInRange(b Body, r Range) error { return DefaultScheduler.ForEachInRange(b, r) }

// ParallelForEachScalarIf runs ForEachScalarIf on DefaultScheduler.
func ParallelForEachScalarIf[D Domain](inside, outside Body) error {
	return DefaultScheduler.ForEachScalar(If[D](inside, outside))
}

// ParallelForEachVoxelIf runs ForEachVoxelIf on DefaultScheduler.
func ParallelForEachVoxelIf[D Domain](inside, outside Body) error {
	return DefaultScheduler.ForEachVoxel(If[D](inside, outside))
}

// ParallelForEachVoxelAttrIf runs ForEachVoxelAttrIf on DefaultScheduler.
func ParallelForEachVoxelAttrIf[D Domain](attr volume.Attributes, inside, outside Body) error {
	return DefaultScheduler.ForEachVoxelAttr(attr, If[D](inside, outside))
}
