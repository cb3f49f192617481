// Package pipeline runs voxeltk end to end on a synthetic volume.
//
// A run goes through the following stages:
// 1. Generating a Shepp-Logan phantom, optionally moving and noisy
// 2. Smoothing it with a Gaussian or a spectral low-pass
// 3. Computing the gradient magnitude of the first frame
// 4. Resampling it through the configured affine transformation
// 5. Restoring it through the inverse transformation
// 6. Comparing the results with the smoothed volume and measuring landmark errors
// 7. Writing VTK volumes and TIFF slices concurrently
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"voxeltk/internal/phantom"
	"voxeltk/pkg/config"
	"voxeltk/pkg/filter"
	"voxeltk/pkg/imageio"
	"voxeltk/pkg/interpolation"
	"voxeltk/pkg/registration"
	"voxeltk/pkg/transformation"
	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// Stage records how long one pipeline stage took.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Result holds the images and measurements of a run.
type Result struct {
	Phantom   *volume.Image[int16]
	Smoothed  *volume.Image[int16]
	Gradient  *volume.Image[float64]
	Resampled *volume.Image[int16]
	Restored  *volume.Image[int16]

	// Misaligned compares the resampled volume with the smoothed one.
	Misaligned registration.Metrics

	// Aligned compares the restored volume with the smoothed one.
	Aligned registration.Metrics

	// LandmarkError is the mean radial error between the phantom's ellipsoid
	// centres and their transformed positions.
	LandmarkError float64

	// ClosestPointError is LandmarkError without known correspondences.
	ClosestPointError float64

	// LandmarkResidual is the error left after transforming the centres
	// forward and back.
	LandmarkResidual float64

	Stages []Stage
	Files  []string
}

// Pipeline runs the stages configured by a config.Config.
type Pipeline struct {
	cfg       *config.Config
	scheduler *voxel.Scheduler
	logger    *slog.Logger
}

// New validates cfg and returns a pipeline for it.
func New(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default().With(slog.String("component", "pipeline"))
	return &Pipeline{
		cfg: cfg,
		scheduler: &voxel.Scheduler{
			Workers: cfg.Parallel.Workers,
			Grain:   cfg.Parallel.Grain,
			Logger:  slog.Default(),
		},
		logger: logger,
	}, nil
}

// Run executes every stage. The context is checked between stages and
// cancels the spectral smoothing and the output writers.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	shapes := phantom.SheppLogan()

	stage := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		d := time.Since(start)
		res.Stages = append(res.Stages, Stage{Name: name, Duration: d})
		p.logger.Info("stage complete", slog.String("stage", name), slog.Duration("duration", d))
		return nil
	}

	if err := stage("phantom", func() error {
		var err error
		res.Phantom, err = phantom.Generate(p.attributes(), shapes, phantom.Options{
			Noise:        p.cfg.Phantom.Noise,
			Seed:         p.cfg.Phantom.Seed,
			Motion:       [3]float64(p.cfg.Phantom.Motion),
			Padding:      true,
			PaddingValue: p.cfg.Filter.Padding,
			Scheduler:    p.scheduler,
		})
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("smooth", func() error {
		var err error
		switch {
		case p.cfg.Filter.Sigma == 0:
			res.Smoothed = res.Phantom.Clone()
		case p.cfg.Filter.Spectral:
			res.Smoothed, err = filter.SpectralSmooth(ctx, res.Phantom, p.cfg.Filter.Cutoff, p.cfg.Parallel.Workers)
		default:
			res.Smoothed, err = filter.Smooth(res.Phantom, p.cfg.Filter.Sigma, p.scheduler)
		}
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("gradient", func() error {
		first, err := res.Smoothed.Frame(0)
		if err != nil {
			return err
		}
		g := filter.NewGradient(filter.GradientMagnitude)
		g.Padding = p.cfg.Filter.Padding
		g.Scheduler = p.scheduler
		res.Gradient, err = filter.ComputeGradient(g, first)
		return err
	}); err != nil {
		return nil, err
	}

	affine := transformation.NewAffine()
	if err := affine.SetParameters(p.cfg.Registration.Parameters); err != nil {
		return nil, err
	}
	inverse, err := transformation.NewInverseAffine(affine)
	if err != nil {
		return nil, err
	}

	if err := stage("resample", func() error {
		var err error
		res.Resampled, err = p.resample(res.Smoothed, affine)
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("restore", func() error {
		var err error
		res.Restored, err = p.resample(res.Resampled, inverse)
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("similarity", func() error {
		opts := registration.Options{Bins: p.cfg.Registration.Bins, Scheduler: p.scheduler}
		var err error
		if res.Misaligned, err = registration.Evaluate(res.Smoothed, res.Resampled, opts); err != nil {
			return err
		}
		res.Aligned, err = registration.Evaluate(res.Smoothed, res.Restored, opts)
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("landmarks", func() error {
		return p.landmarks(res, shapes, affine, inverse)
	}); err != nil {
		return nil, err
	}

	if err := stage("output", func() error {
		return p.write(ctx, res)
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) attributes() volume.Attributes {
	ph := p.cfg.Phantom
	attr := volume.Attributes{
		X: ph.Size[0], Y: ph.Size[1], Z: ph.Size[2], T: ph.Frames,
		DX: ph.Spacing[0], DY: ph.Spacing[1], DZ: ph.Spacing[2],
	}
	if attr.T > 1 {
		attr.DT = 1
	}
	return attr
}

func (p *Pipeline) interpolator(im *volume.Image[int16]) interpolation.Interpolator {
	if p.cfg.Registration.Interpolation == "cubic" {
		ip := interpolation.NewCubicSpline(im)
		ip.DefaultValue = p.cfg.Filter.Padding
		return ip
	}
	ip := interpolation.NewLinear(im)
	ip.DefaultValue = p.cfg.Filter.Padding
	return ip
}

func (p *Pipeline) resample(im *volume.Image[int16], tr transformation.Transformation) (*volume.Image[int16], error) {
	return transformation.Resample[int16](im.Attributes(), tr, p.interpolator(im), transformation.ResampleOptions{
		Padding:      true,
		DefaultValue: p.cfg.Filter.Padding,
		Scheduler:    p.scheduler,
	})
}

// errorFunction returns the configured radial error function with its
// distance parameter set.
func (p *Pipeline) errorFunction() (registration.RadialErrorFunction, error) {
	kind, err := registration.ParseKind(p.cfg.Registration.ErrorFunction)
	if err != nil {
		return nil, err
	}
	fn, err := registration.New(kind)
	if err != nil {
		return nil, err
	}
	v := strconv.FormatFloat(p.cfg.Registration.Threshold, 'g', -1, 64)
	if kind != registration.Distance && !fn.Set("Threshold", v) && !fn.Set("Sigma", v) {
		return nil, fmt.Errorf("invalid %v parameter %s", kind, v)
	}
	return fn, nil
}

// landmarks measures the transformation on the ellipsoid centres, given in
// the world coordinates Resample uses.
func (p *Pipeline) landmarks(res *Result, shapes []phantom.Ellipsoid, fwd, inv transformation.Transformation) error {
	fn, err := p.errorFunction()
	if err != nil {
		return err
	}
	attr := p.attributes()
	n := [3]int{attr.X, attr.Y, attr.Z}
	d := [3]float64{attr.DX, attr.DY, attr.DZ}

	centres := make([][3]float64, len(shapes))
	moved := make([][3]float64, len(shapes))
	back := make([][3]float64, len(shapes))
	for i, e := range shapes {
		for k := range 3 {
			s := d[k]
			if s <= 0 {
				s = 1
			}
			centres[i][k] = ((e.Centre[k]+1)*float64(n[k]) - 1) / 2 * s
		}
		c := centres[i]
		moved[i][0], moved[i][1], moved[i][2] = fwd.Transform(c[0], c[1], c[2])
		m := moved[i]
		back[i][0], back[i][1], back[i][2] = inv.Transform(m[0], m[1], m[2])
	}

	if res.LandmarkError, err = registration.FiducialError(centres, moved, fn); err != nil {
		return err
	}
	if res.ClosestPointError, err = registration.ClosestPointError(centres, moved, fn); err != nil {
		return err
	}
	res.LandmarkResidual, err = registration.FiducialError(centres, back, fn)
	return err
}

// write saves the configured outputs, one goroutine per file or slice
// sequence.
func (p *Pipeline) write(ctx context.Context, res *Result) error {
	out := p.cfg.Output
	if !out.VTK && !out.Slices {
		return nil
	}
	if err := os.MkdirAll(out.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var mu sync.Mutex
	record := func(paths ...string) {
		mu.Lock()
		res.Files = append(res.Files, paths...)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.Parallel.Workers, 1))

	if out.VTK {
		volumes := []struct {
			name string
			save func(string) error
		}{
			{"phantom", func(path string) error { return imageio.SaveVTK(path, res.Phantom) }},
			{"smoothed", func(path string) error { return imageio.SaveVTK(path, res.Smoothed) }},
			{"gradient", func(path string) error { return imageio.SaveVTK(path, res.Gradient) }},
			{"resampled", func(path string) error { return imageio.SaveVTK(path, res.Resampled) }},
			{"restored", func(path string) error { return imageio.SaveVTK(path, res.Restored) }},
		}
		for _, v := range volumes {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				path := filepath.Join(out.Dir, v.name+".vtk")
				if err := v.save(path); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
				record(path)
				return nil
			})
		}
	}

	if out.Slices {
		axis, err := volume.ParseAxis(out.SliceAxis)
		if err != nil {
			return err
		}
		for _, v := range []struct {
			name string
			im   *volume.Image[int16]
		}{{"resampled", res.Resampled}, {"restored", res.Restored}} {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				dir := filepath.Join(out.Dir, "slices", v.name)
				paths, err := imageio.SaveSliceSequence(v.im, axis, 0, dir, p.scheduler)
				record(paths...)
				if err != nil {
					return fmt.Errorf("writing %s slices: %w", v.name, err)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	p.logger.Debug("outputs written", slog.Int("files", len(res.Files)), slog.String("dir", out.Dir))
	return nil
}
