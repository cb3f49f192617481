package imageio

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

func ramp(x, y, z int) *volume.Image[float32] {
	attr := volume.NewAttributes(x, y, z)
	im := volume.MustNew[float32](attr)
	for i := range im.Data() {
		im.Data()[i] = float32(i)
	}
	return im
}

func TestWriteVTK(t *testing.T) {
	attr := volume.NewAttributes(2, 1, 1).WithFrames(2, 1)
	attr.DX = 0.5
	im, err := volume.FromData(attr, []uint16{1, 2, 3, 4})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteVTK(&buf, im))

	header, data, ok := strings.Cut(buf.String(), "LOOKUP_TABLE default\n")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(header, "# vtk DataFile Version 3.0\n"))
	assert.Contains(t, header, "BINARY\n")
	assert.Contains(t, header, "DIMENSIONS 2 1 1\n")
	assert.Contains(t, header, "SPACING 0.5 1 1\n")
	assert.Contains(t, header, "POINT_DATA 2\n")
	assert.Contains(t, header, "SCALARS scalars unsigned_short 2\n")

	// Components are interleaved per point, big-endian.
	require.Len(t, data, 4*2+1)
	got := make([]uint16, 4)
	require.NoError(t, binary.Read(strings.NewReader(data[:8]), binary.BigEndian, got))
	assert.Equal(t, []uint16{1, 3, 2, 4}, got)
}

func TestWriteVTKErrors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteVTK(&buf, &volume.Image[uint8]{}))

	wide := volume.MustNew[uint8](volume.NewAttributes(1, 1, 1).WithFrames(5, 1))
	assert.Error(t, WriteVTK(&buf, wide))
}

func TestVTKTypeNames(t *testing.T) {
	assert.Equal(t, "unsigned_char", vtkType[uint8]())
	assert.Equal(t, "short", vtkType[int16]())
	assert.Equal(t, "int", vtkType[int32]())
	assert.Equal(t, "float", vtkType[float32]())
	assert.Equal(t, "double", vtkType[float64]())
}

func TestExtractSlice(t *testing.T) {
	im := ramp(4, 3, 2)
	w := Window{Lo: 0, Hi: 23}

	tests := []struct {
		axis    volume.Axis
		pos     int
		dx, dy  int
		px, py  int
		x, y, z int
	}{
		{volume.AxisZ, 1, 4, 3, 2, 1, 2, 1, 1},
		{volume.AxisY, 2, 4, 2, 3, 1, 3, 2, 1},
		{volume.AxisX, 3, 2, 3, 1, 2, 3, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.axis.String(), func(t *testing.T) {
			img, err := ExtractSlice(im, tt.axis, tt.pos, 0, w, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.dx, img.Bounds().Dx())
			assert.Equal(t, tt.dy, img.Bounds().Dy())

			want := w.grey(float64(im.At(tt.x, tt.y, tt.z, 0)))
			assert.Equal(t, want, img.Gray16At(tt.px, tt.py).Y)
		})
	}

	_, err := ExtractSlice(im, volume.AxisZ, 2, 0, w, nil)
	assert.Error(t, err)
	_, err = ExtractSlice(im, volume.AxisZ, 0, 1, w, nil)
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	w := Window{Lo: 10, Hi: 20}
	assert.Equal(t, uint16(0), w.grey(5))
	assert.Equal(t, uint16(65535), w.grey(25))
	assert.Equal(t, uint16(32768), w.grey(15))
	assert.Equal(t, uint16(0), Window{Lo: 1, Hi: 1}.grey(1))

	im := ramp(3, 3, 1)
	im.SetBackground(8)
	got, err := AutoWindow(im, nil)
	require.NoError(t, err)
	assert.Equal(t, Window{Lo: 0, Hi: 7}, got)
}

func TestSaveSliceSequence(t *testing.T) {
	dir := t.TempDir()
	im := ramp(5, 4, 3)

	paths, err := SaveSliceSequence(im, volume.AxisZ, 0, filepath.Join(dir, "z"), &voxel.Scheduler{Workers: 1})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "slice_z_002.tiff", filepath.Base(paths[2]))

	f, err := os.Open(paths[2])
	require.NoError(t, err)
	defer f.Close()
	img, err := tiff.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())

	// The last voxel of the last slice is the brightest of the volume.
	last := color.Gray16Model.Convert(img.At(4, 3)).(color.Gray16)
	assert.Equal(t, uint16(65535), last.Y)
	first := color.Gray16Model.Convert(img.At(0, 0)).(color.Gray16)
	assert.Equal(t, Window{0, 59}.grey(40), first.Y)
}

func TestSaveVTK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramp.vtk")
	require.NoError(t, SaveVTK(path, ramp(2, 2, 2)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "SCALARS scalars float 1\n")
}
