package filter

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"

	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// SpectralSmooth low-pass filters every 2D slice of in in the frequency
// domain. The transfer function is a Gaussian exp(-f²/(2c²)) where f is the
// radial frequency in cycles per voxel and c is cutoff, so the mean of each
// slice is preserved.
//
// Slices are independent: up to workers slices (GOMAXPROCS if <= 0) are
// transformed concurrently and each is written back through a 2D range
// traversal of its own (z, t) slice. Background voxels keep their value.
func SpectralSmooth[T volume.Scalar](ctx context.Context, in *volume.Image[T], cutoff float64, workers int) (*volume.Image[T], error) {
	if in.IsEmpty() {
		return nil, ErrEmptyInput
	}
	if cutoff <= 0 {
		return nil, fmt.Errorf("filter: cutoff must be positive, got %g", cutoff)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	attr := in.Attributes()
	out := in.Clone()
	h := lowPass(attr.X, attr.Y, cutoff)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for t := range attr.T {
		for z := range attr.Z {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				slice := smoothSlice(in, z, t, h)
				return voxel.ForEachInRange(voxel.Unary(voxel.Out(out),
					voxel.Func1Of[T](func(v voxel.Index, o *T) {
						if in.IsForeground(v.Offset) {
							*o = volume.FromFloat[T](slice[v.Y*attr.X+v.X])
						}
					})), voxel.Slice(attr, z, t))
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// lowPass samples the Gaussian transfer function on the unshifted FFT grid.
func lowPass(nx, ny int, cutoff float64) []float64 {
	h := make([]float64, nx*ny)
	for j := range ny {
		fy := freq(j, ny)
		for i := range nx {
			fx := freq(i, nx)
			h[j*nx+i] = math.Exp(-(fx*fx + fy*fy) / (2 * cutoff * cutoff))
		}
	}
	return h
}

// freq returns the signed frequency of coefficient i of an n-point FFT in
// cycles per sample.
func freq(i, n int) float64 {
	if i > n/2 {
		i -= n
	}
	return float64(i) / float64(n)
}

// smoothSlice transforms the (z, t) slice of in, applies h and returns the
// real part of the inverse transform in row-major order.
func smoothSlice[T volume.Scalar](in *volume.Image[T], z, t int, h []float64) []float64 {
	attr := in.Attributes()
	nx, ny := attr.X, attr.Y
	data := make([]complex128, nx*ny)
	base := attr.Offset(0, 0, z, t)
	for i := range data {
		data[i] = complex(in.Float(base+i), 0)
	}

	fft2D(data, nx, ny, false)
	for i := range data {
		data[i] *= complex(h[i], 0)
	}
	fft2D(data, nx, ny, true)

	// The inverse transform is not normalised.
	scale := 1 / float64(nx*ny)
	res := make([]float64, nx*ny)
	for i, c := range data {
		res[i] = real(c) * scale
	}
	return res
}

// fft2D transforms data in place, rows first, then columns.
func fft2D(data []complex128, nx, ny int, inverse bool) {
	row := fourier.NewCmplxFFT(nx)
	buf := make([]complex128, nx)
	for j := range ny {
		r := data[j*nx : (j+1)*nx]
		if inverse {
			row.Sequence(buf, r)
		} else {
			row.Coefficients(buf, r)
		}
		copy(r, buf)
	}

	col := fourier.NewCmplxFFT(ny)
	in := make([]complex128, ny)
	res := make([]complex128, ny)
	for i := range nx {
		for j := range ny {
			in[j] = data[j*nx+i]
		}
		if inverse {
			col.Sequence(res, in)
		} else {
			col.Coefficients(res, in)
		}
		for j := range ny {
			data[j*nx+i] = res[j]
		}
	}
}
