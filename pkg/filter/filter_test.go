package filter

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// ramp returns an image with value ax*x + ay*y + az*z.
func ramp(attr volume.Attributes, ax, ay, az float64) *volume.Image[float32] {
	im := volume.MustNew[float32](attr)
	for z := range attr.Z {
		for y := range attr.Y {
			for x := range attr.X {
				im.Set(x, y, z, 0, float32(ax*float64(x)+ay*float64(y)+az*float64(z)))
			}
		}
	}
	return im
}

func TestGradientOfRamp(t *testing.T) {
	attr := volume.NewAttributes(6, 5, 4)
	im := ramp(attr, 2, -1, 0.5)

	tests := []struct {
		typ  GradientType
		want float64
	}{
		{GradientX, 2},
		{GradientY, -1},
		{GradientZ, 0.5},
		{GradientMagnitude, math.Sqrt(4 + 1 + 0.25)},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			out, err := ComputeGradient(NewGradient(tt.typ), im)
			require.NoError(t, err)
			require.Equal(t, 1, out.T())
			for i, v := range out.Data() {
				assert.InDelta(t, tt.want, v, 1e-5, "offset %d", i)
			}
		})
	}
}

func TestGradientVoxelSize(t *testing.T) {
	attr := volume.NewAttributes(5, 5, 5)
	attr.DX = 2
	im := ramp(attr, 4, 0, 0)

	out, err := ComputeGradient(NewGradient(GradientX), im)
	require.NoError(t, err)
	assert.InDelta(t, 2, out.At(2, 2, 2, 0), 1e-9)

	g := NewGradient(GradientX)
	g.UseVoxelSize = false
	out, err = ComputeGradient(g, im)
	require.NoError(t, err)
	assert.InDelta(t, 4, out.At(2, 2, 2, 0), 1e-9)
}

func TestGradientVectorChannels(t *testing.T) {
	attr := volume.NewAttributes(4, 4, 4)
	im := ramp(attr, 1, 2, 3)

	out, err := ComputeGradient(NewGradient(GradientVector), im)
	require.NoError(t, err)
	require.Equal(t, 3, out.T())
	assert.False(t, out.Attributes().ExplicitTime())
	assert.InDelta(t, 1, out.At(1, 1, 1, 0), 1e-6)
	assert.InDelta(t, 2, out.At(1, 1, 1, 1), 1e-6)
	assert.InDelta(t, 3, out.At(1, 1, 1, 2), 1e-6)

	out, err = ComputeGradient(NewGradient(NormalisedGradientVector), im)
	require.NoError(t, err)
	n := math.Sqrt(14)
	assert.InDelta(t, 1/n, out.At(2, 2, 2, 0), 1e-6)
	assert.InDelta(t, 3/n, out.At(2, 2, 2, 2), 1e-6)
}

func TestGradientOrientation(t *testing.T) {
	attr := volume.NewAttributes(4, 4, 4)
	im := ramp(attr, 1, 0, 0)

	g := NewGradient(GradientY)
	// Swap the x and y axes
	g.Orientation = mat.NewDense(3, 3, []float64{
		0, 1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	out, err := ComputeGradient(g, im)
	require.NoError(t, err)
	assert.InDelta(t, 1, out.At(1, 2, 1, 0), 1e-9)

	g.Orientation = mat.NewDense(2, 2, nil)
	_, err = ComputeGradient(g, im)
	assert.Error(t, err)
}

func TestGradientPadding(t *testing.T) {
	attr := volume.NewAttributes(5, 1, 1)
	im, err := volume.FromData(attr, []int16{1, 2, math.MinInt16, 4, 5})
	require.NoError(t, err)

	out, err := ComputeGradient(NewGradient(GradientX), im)
	require.NoError(t, err)
	// A padded voxel between two valid neighbours still gets a difference.
	assert.Equal(t, []float64{1, 0, 1, 0, 1}, out.Data())
}

func TestGradientErrors(t *testing.T) {
	attr := volume.NewAttributes(3, 3, 3).WithFrames(2, 1)
	im := volume.MustNew[float32](attr)

	_, err := ComputeGradient(NewGradient(GradientX), im)
	assert.ErrorIs(t, err, ErrTimeSeries)

	var empty *volume.Image[float32]
	_, err = ComputeGradient(NewGradient(GradientX), empty)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = ComputeGradient(&Gradient{Type: GradientType(42)}, volume.MustNew[float32](volume.NewAttributes(2, 2, 2)))
	assert.ErrorIs(t, err, ErrUnknownGradient)
}

func TestGaussianKernel(t *testing.T) {
	k, err := GaussianKernel(1, 1)
	require.NoError(t, err)
	assert.Len(t, k, 7)
	assert.InDelta(t, 1, floats.Sum(k), 1e-12)
	assert.Equal(t, 3, floats.MaxIdx(k))
	assert.InDelta(t, k[0], k[6], 1e-15)

	k, err = GaussianKernel(2, 0.5)
	require.NoError(t, err)
	assert.Len(t, k, 25)

	_, err = GaussianKernel(0, 1)
	assert.ErrorIs(t, err, ErrBadKernel)
}

func TestConvolveDeltaIsIdentity(t *testing.T) {
	attr := volume.NewAttributes(5, 4, 3)
	im := ramp(attr, 1, 10, 100)

	kernel := volume.MustNew[float64](volume.NewAttributes(3, 3, 3))
	kernel.Set(1, 1, 1, 0, 1)

	for _, normalise := range []bool{false, true} {
		out, err := Convolve3D(im, kernel, normalise, nil)
		require.NoError(t, err)
		assert.Equal(t, im.Data(), out.Data())
	}
}

func TestConvolveBoxMean(t *testing.T) {
	attr := volume.NewAttributes(3, 3, 3)
	im := volume.MustNew[float64](attr)
	im.Fill(2)
	im.Set(1, 1, 1, 0, 29)

	kernel := volume.MustNew[float64](volume.NewAttributes(3, 3, 3))
	kernel.Fill(1)

	out, err := Convolve3D(im, kernel, true, nil)
	require.NoError(t, err)
	// Centre sees all 27 voxels, a corner only its 8 neighbours.
	assert.InDelta(t, 3, out.At(1, 1, 1, 0), 1e-12)
	assert.InDelta(t, (7*2+29)/8.0, out.At(0, 0, 0, 0), 1e-12)

	_, err = Convolve3D(im, volume.MustNew[float64](volume.NewAttributes(2, 3, 3)), true, nil)
	assert.ErrorIs(t, err, ErrBadKernel)
}

func TestConvolveSkipsBackground(t *testing.T) {
	attr := volume.NewAttributes(3, 1, 1)
	im, err := volume.FromData(attr, []float64{4, 6, -1})
	require.NoError(t, err)
	im.SetBackground(-1)

	out, err := ConvolveSeparable(im, []float64{1, 1, 1}, nil, nil, true, &voxel.Scheduler{Workers: 2, Grain: 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5, -1}, out.Data())
}

func TestSmoothKeepsConstant(t *testing.T) {
	attr := volume.NewAttributes(8, 7, 6)
	attr.DZ = 2
	im := volume.MustNew[uint8](attr)
	im.Fill(100)

	out, err := Smooth(im, 1.5, nil)
	require.NoError(t, err)
	for _, v := range out.Data() {
		require.Equal(t, uint8(100), v)
	}
}

func TestSpectralSmooth(t *testing.T) {
	attr := volume.NewAttributes(8, 6, 3).WithFrames(2, 1)
	im := volume.MustNew[float64](attr)
	im.Fill(7)

	out, err := SpectralSmooth(context.Background(), im, 0.1, 2)
	require.NoError(t, err)
	for _, v := range out.Data() {
		require.InDelta(t, 7, v, 1e-9)
	}

	// An alternating pattern is attenuated, its mean is not.
	for i := range im.Data() {
		im.Data()[i] = float64(i%2) * 2
	}
	out, err = SpectralSmooth(context.Background(), im, 0.1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, out.At(3, 2, 1, 1), 0.05)
	assert.InDelta(t, floats.Sum(im.Data()), floats.Sum(out.Data()), 1e-6)

	// Background voxels are left alone.
	im.Fill(3)
	im.Set(0, 0, 0, 0, 0)
	im.SetBackground(0)
	out, err = SpectralSmooth(context.Background(), im, 0.1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.At(0, 0, 0, 0))
	assert.False(t, out.IsForeground(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SpectralSmooth(ctx, im, 0.1, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThreshold(t *testing.T) {
	im, err := volume.FromData(volume.NewAttributes(5, 1, 1), []int16{-3, 0, 5, 10, 11})
	require.NoError(t, err)

	out, err := Threshold(im, 0, 10, 1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 1, 1, 1, 0}, out.Data())
	assert.Equal(t, []int16{-3, 0, 5, 10, 11}, im.Data())
}

func TestRescale(t *testing.T) {
	im, err := volume.FromData(volume.NewAttributes(5, 1, 1), []float32{-1, 2, 4, -1, 6})
	require.NoError(t, err)
	im.SetBackground(-1)

	out, err := Rescale(im, 0, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 0, 50, -1, 100}, out.Data())

	_, err = Rescale(im, 1, 0, nil)
	assert.Error(t, err)
}
