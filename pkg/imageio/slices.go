package imageio

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"voxeltk/pkg/filter"
	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// Window is the intensity range mapped onto the 16-bit grey scale.
type Window struct {
	Lo, Hi float64
}

// AutoWindow returns the foreground intensity range of im. The reduction runs
// on s; nil uses voxel.DefaultScheduler.
func AutoWindow[T volume.Scalar](im *volume.Image[T], s *voxel.Scheduler) (Window, error) {
	mm := filter.NewMinMax[T]()
	if err := s.ForEachScalar(voxel.If[voxel.Foreground](voxel.Unary(voxel.In(im), mm), nil)); err != nil {
		return Window{}, err
	}
	if mm.Count == 0 {
		return Window{0, 1}, nil
	}
	return Window{mm.Min, mm.Max}, nil
}

func (w Window) grey(v float64) uint16 {
	if w.Hi <= w.Lo {
		return 0
	}
	g := (v - w.Lo) / (w.Hi - w.Lo) * math.MaxUint16
	return uint16(math.Round(math.Max(0, math.Min(math.MaxUint16, g))))
}

// planeRange returns the voxels of the plane at pos along axis in frame t.
func planeRange(a volume.Attributes, axis volume.Axis, pos, t int) voxel.Box {
	b := voxel.Frame(a, t)
	switch axis {
	case volume.AxisX:
		b.Cols = voxel.Interval{Lo: pos, Hi: pos + 1}
	case volume.AxisY:
		b.Rows = voxel.Interval{Lo: pos, Hi: pos + 1}
	default:
		b.Pages = voxel.Interval{Lo: pos, Hi: pos + 1}
	}
	return b
}

// ExtractSlice returns the plane at pos along axis of frame t as a 16-bit
// grey image. Planes normal to x are laid out (z, y), normal to y (x, z) and
// normal to z (x, y).
func ExtractSlice[T volume.Scalar](im *volume.Image[T], axis volume.Axis, pos, t int, w Window, s *voxel.Scheduler) (*image.Gray16, error) {
	if im.IsEmpty() {
		return nil, fmt.Errorf("imageio: cannot slice empty image")
	}
	a := im.Attributes()
	n := a.Len(axis)
	if n == 0 {
		return nil, fmt.Errorf("imageio: invalid axis %v", axis)
	}
	if pos < 0 || pos >= n {
		return nil, fmt.Errorf("imageio: position %d outside [0, %d) along %v", pos, n, axis)
	}
	if t < 0 || t >= a.T {
		return nil, fmt.Errorf("imageio: frame %d outside [0, %d)", t, a.T)
	}

	var img *image.Gray16
	var at func(v voxel.Index) (int, int)
	switch axis {
	case volume.AxisX:
		img = image.NewGray16(image.Rect(0, 0, a.Z, a.Y))
		at = func(v voxel.Index) (int, int) { return v.Z, v.Y }
	case volume.AxisY:
		img = image.NewGray16(image.Rect(0, 0, a.X, a.Z))
		at = func(v voxel.Index) (int, int) { return v.X, v.Z }
	default:
		img = image.NewGray16(image.Rect(0, 0, a.X, a.Y))
		at = func(v voxel.Index) (int, int) { return v.X, v.Y }
	}

	err := s.ForEachInRange(voxel.Unary(voxel.In(im), voxel.Func1Of[T](func(v voxel.Index, p *T) {
		x, y := at(v)
		img.SetGray16(x, y, color.Gray16{Y: w.grey(float64(*p))})
	})), planeRange(a, axis, pos, t))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// SaveSlice writes img as a deflate-compressed TIFF file.
func SaveSlice(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveSliceSequence writes every plane along axis of frame t to dir as
// slice_<axis>_<pos>.tiff, sharing the window of the whole image. It returns
// the written paths. Windowing and extraction run on s.
func SaveSliceSequence[T volume.Scalar](im *volume.Image[T], axis volume.Axis, t int, dir string, s *voxel.Scheduler) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := AutoWindow(im, s)
	if err != nil {
		return nil, err
	}

	n := im.Attributes().Len(axis)
	paths := make([]string, 0, n)
	for pos := range n {
		img, err := ExtractSlice(im, axis, pos, t, w, s)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, fmt.Sprintf("slice_%v_%03d.tiff", axis, pos))
		if err := SaveSlice(img, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
