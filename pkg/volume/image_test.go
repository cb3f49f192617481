package volume

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesOffsetRoundTrip(t *testing.T) {
	attr := Attributes{X: 4, Y: 3, Z: 2, T: 5, DX: 1, DY: 1, DZ: 1, DT: 1}

	next := 0
	for l := 0; l < attr.T; l++ {
		for k := 0; k < attr.Z; k++ {
			for j := 0; j < attr.Y; j++ {
				for i := 0; i < attr.X; i++ {
					// Row-major order means offsets increase by one per x step
					require.Equal(t, next, attr.Offset(i, j, k, l))
					x, y, z, tt := attr.Coordinates(next)
					assert.Equal(t, [4]int{i, j, k, l}, [4]int{x, y, z, tt})
					next++
				}
			}
		}
	}
	assert.Equal(t, attr.NumberOfVoxels(), next)
	assert.Equal(t, 24, attr.NumberOfSpatialVoxels())
}

func TestAttributesValidate(t *testing.T) {
	tests := []struct {
		name string
		attr Attributes
		ok   bool
	}{
		{"unit", NewAttributes(1, 1, 1), true},
		{"zero extent", Attributes{X: 0, Y: 1, Z: 1, T: 1}, false},
		{"zero frames", Attributes{X: 2, Y: 2, Z: 2}, false},
		{"negative spacing", Attributes{X: 2, Y: 2, Z: 2, T: 1, DX: -1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.attr.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrBadShape)
			}
		})
	}
}

func TestExplicitTime(t *testing.T) {
	attr := NewAttributes(2, 2, 2)
	assert.False(t, attr.ExplicitTime())

	series := attr.WithFrames(5, 0.5)
	assert.True(t, series.ExplicitTime())
	assert.Equal(t, 0.5, series.TSize())
	assert.Equal(t, 40, series.NumberOfVoxels())
}

func TestFromDataLength(t *testing.T) {
	_, err := FromData(NewAttributes(2, 2, 2), make([]float32, 7))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataLength))

	im, err := FromData(NewAttributes(2, 2, 2), make([]float32, 8))
	require.NoError(t, err)
	assert.Equal(t, 8, im.NumberOfVoxels())
}

func TestEmptyImage(t *testing.T) {
	var im *Image[int16]
	assert.True(t, im.IsEmpty())
	assert.Nil(t, im.Ptr(0))
	assert.Equal(t, 0, im.NumberOfVoxels())
	assert.Nil(t, im.Clone())
}

func TestForeground(t *testing.T) {
	im := MustNew[float32](NewAttributes(3, 1, 1))
	copy(im.Data(), []float32{0, 1, float32(math.NaN())})

	assert.True(t, im.IsForeground(0), "without background every value is foreground")

	im.SetBackground(0)
	assert.False(t, im.IsForeground(0))
	assert.True(t, im.IsForeground(1))
	assert.False(t, im.IsForeground(2), "NaN is never foreground")

	im.ClearBackground()
	assert.True(t, im.IsForeground(0))
}

func TestFromFloatSaturates(t *testing.T) {
	assert.Equal(t, uint8(255), FromFloat[uint8](300))
	assert.Equal(t, uint8(0), FromFloat[uint8](-4))
	assert.Equal(t, int16(-3), FromFloat[int16](-2.6))
	assert.Equal(t, float32(2.5), FromFloat[float32](2.5))
	assert.Equal(t, uint16(0), FromFloat[uint16](math.NaN()))
}

type (
	intensity float32
	label     uint8
	signal    int16
)

func TestFromFloatNamedTypes(t *testing.T) {
	assert.Equal(t, intensity(1.25), FromFloat[intensity](1.25))
	assert.Equal(t, label(255), FromFloat[label](300))
	assert.Equal(t, label(0), FromFloat[label](-1))
	assert.Equal(t, signal(math.MinInt16), FromFloat[signal](-1e6))
	assert.Equal(t, signal(-3), FromFloat[signal](-2.6))
	assert.Equal(t, signal(0), FromFloat[signal](math.NaN()))

	im := MustNew[intensity](NewAttributes(2, 1, 1))
	im.Set(1, 0, 0, 0, FromFloat[intensity](0.5))
	assert.Equal(t, 0.5, im.Float(1))
}

func TestFrame(t *testing.T) {
	attr := NewAttributes(2, 1, 1).WithFrames(3, 0.5)
	im, err := FromData(attr, []int16{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	im.SetBackground(3)

	f, err := im.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, []int16{3, 4}, f.Data())
	assert.Equal(t, 1, f.T())
	assert.False(t, f.Attributes().ExplicitTime())
	assert.False(t, f.IsForeground(0))

	f.Set(0, 0, 0, 0, 9)
	assert.Equal(t, int16(3), im.At(0, 0, 0, 1))

	_, err = im.Frame(3)
	assert.ErrorIs(t, err, ErrBadShape)
}

func TestCloneIsDeep(t *testing.T) {
	im := MustNew[uint16](NewAttributes(2, 2, 1))
	im.Fill(7)
	im.SetBackground(7)

	c := im.Clone()
	c.Set(0, 0, 0, 0, 9)
	assert.Equal(t, uint16(7), im.At(0, 0, 0, 0))
	assert.Equal(t, uint16(9), c.At(0, 0, 0, 0))
	assert.True(t, c.HasBackground())
}

func TestParseAxis(t *testing.T) {
	attr := NewAttributes(4, 5, 6)
	for i, s := range []string{"x", "Y", "z"} {
		a, err := ParseAxis(s)
		require.NoError(t, err)
		assert.Equal(t, Axis(i), a)
		assert.Equal(t, 4+i, attr.Len(a))
	}
	assert.Equal(t, "y", AxisY.String())

	_, err := ParseAxis("t")
	assert.Error(t, err)
	assert.Equal(t, 0, attr.Len(Axis(7)))
}
