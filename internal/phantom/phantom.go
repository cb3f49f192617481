// Package phantom generates synthetic test volumes: a 3D Shepp-Logan head
// made of ellipsoids, optionally moving over time and corrupted by noise.
package phantom

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// Ellipsoid is an additive intensity region in normalised coordinates,
// where the volume spans [-1, 1] along every axis.
type Ellipsoid struct {
	Value   float64
	Radii   [3]float64
	Centre  [3]float64
	Degrees float64 // rotation about z
}

// SheppLogan returns the ellipsoids of the 3D Shepp-Logan head phantom with
// intensities scaled for int16 storage.
func SheppLogan() []Ellipsoid {
	return []Ellipsoid{
		{Value: 2000, Radii: [3]float64{0.69, 0.92, 0.9}},
		{Value: -980, Radii: [3]float64{0.6624, 0.874, 0.88}, Centre: [3]float64{0, -0.0184, 0}},
		{Value: -200, Radii: [3]float64{0.11, 0.31, 0.22}, Centre: [3]float64{0.22, 0, 0}, Degrees: -18},
		{Value: -200, Radii: [3]float64{0.16, 0.41, 0.28}, Centre: [3]float64{-0.22, 0, -0.25}, Degrees: 18},
		{Value: 100, Radii: [3]float64{0.21, 0.25, 0.41}, Centre: [3]float64{0, 0.35, -0.25}},
		{Value: 100, Radii: [3]float64{0.046, 0.046, 0.05}, Centre: [3]float64{0, 0.1, -0.25}},
		{Value: 100, Radii: [3]float64{0.046, 0.023, 0.05}, Centre: [3]float64{-0.08, -0.605, -0.25}},
		{Value: 100, Radii: [3]float64{0.023, 0.023, 0.02}, Centre: [3]float64{0.06, -0.605, -0.25}},
	}
}

// Options controls Generate.
type Options struct {
	// Noise is the standard deviation of additive Gaussian noise.
	Noise float64

	// Seed makes the noise reproducible.
	Seed uint64

	// Motion is the displacement per frame in mm along x, y and z.
	Motion [3]float64

	// Padding, when set, marks voxels outside every ellipsoid as background
	// with value PaddingValue.
	Padding      bool
	PaddingValue float64

	// Scheduler renders the voxels; nil uses voxel.DefaultScheduler.
	Scheduler *voxel.Scheduler
}

// Generate renders shapes into an int16 image with attributes attr. Frame t
// is displaced by t*Motion.
func Generate(attr volume.Attributes, shapes []Ellipsoid, opts Options) (*volume.Image[int16], error) {
	if err := attr.Validate(); err != nil {
		return nil, fmt.Errorf("phantom: %w", err)
	}
	if attr.T > 1 && attr.DT <= 0 {
		attr.DT = 1
	}
	im, err := volume.New[int16](attr)
	if err != nil {
		return nil, err
	}
	if opts.Padding {
		im.SetBackground(opts.PaddingValue)
	}

	fn := newRenderFunc(attr, shapes, opts)
	if err := opts.Scheduler.ForEachVoxel(voxel.Unary(voxel.Out(im), fn)); err != nil {
		return nil, err
	}

	if opts.Noise > 0 {
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
		data := im.Data()
		for i := range data {
			if !im.IsForeground(i) {
				continue
			}
			data[i] = volume.FromFloat[int16](float64(data[i]) + rng.NormFloat64()*opts.Noise)
		}
	}
	slog.Default().With(slog.String("component", "phantom")).Debug("phantom generated", slog.String("attributes", attr.String()), slog.Int("shapes", len(shapes)))
	return im, nil
}

type renderFunc struct {
	voxel.Function

	attr   volume.Attributes
	shapes []Ellipsoid
	opts   Options
	cs     [][2]float64 // cos, sin of each rotation
	half   [3]float64   // half extent in mm
}

func newRenderFunc(attr volume.Attributes, shapes []Ellipsoid, opts Options) *renderFunc {
	f := &renderFunc{attr: attr, shapes: shapes, opts: opts, cs: make([][2]float64, len(shapes))}
	for i, e := range shapes {
		s, c := math.Sincos(e.Degrees * math.Pi / 180)
		f.cs[i] = [2]float64{c, s}
	}
	n := [3]int{attr.X, attr.Y, attr.Z}
	for i, d := range [3]float64{attr.DX, attr.DY, attr.DZ} {
		if d <= 0 {
			d = 1
		}
		f.half[i] = float64(n[i]) * d / 2
	}
	return f
}

func (f *renderFunc) Voxel(v voxel.Index, out *int16) {
	t := float64(v.T)
	p := [3]float64{
		(float64(2*v.X+1)/float64(f.attr.X) - 1) - t*f.opts.Motion[0]/f.half[0],
		(float64(2*v.Y+1)/float64(f.attr.Y) - 1) - t*f.opts.Motion[1]/f.half[1],
		(float64(2*v.Z+1)/float64(f.attr.Z) - 1) - t*f.opts.Motion[2]/f.half[2],
	}

	var sum float64
	inside := false
	for i, e := range f.shapes {
		dx, dy, dz := p[0]-e.Centre[0], p[1]-e.Centre[1], p[2]-e.Centre[2]
		c, s := f.cs[i][0], f.cs[i][1]
		u, w := c*dx+s*dy, -s*dx+c*dy
		u, w, dz = u/e.Radii[0], w/e.Radii[1], dz/e.Radii[2]
		if u*u+w*w+dz*dz <= 1 {
			sum += e.Value
			inside = true
		}
	}
	if !inside && f.opts.Padding {
		*out = volume.FromFloat[int16](f.opts.PaddingValue)
		return
	}
	*out = volume.FromFloat[int16](sum)
}
