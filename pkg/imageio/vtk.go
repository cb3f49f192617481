// Package imageio writes images for inspection in external viewers: legacy
// VTK structured points volumes and 16-bit TIFF slice sequences.
package imageio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"reflect"

	"voxeltk/pkg/volume"
)

// vtkType returns the VTK scalar type name of T.
func vtkType[T volume.Scalar]() string {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Uint8:
		return "unsigned_char"
	case reflect.Int16:
		return "short"
	case reflect.Uint16:
		return "unsigned_short"
	case reflect.Int32:
		return "int"
	case reflect.Float32:
		return "float"
	}
	return "double"
}

// WriteVTK writes im as a binary legacy VTK STRUCTURED_POINTS dataset.
// Frames or channels become the components of the point scalars, so a
// three-channel gradient image is written as one 3-component field.
func WriteVTK[T volume.Scalar](w io.Writer, im *volume.Image[T]) error {
	if im.IsEmpty() {
		return fmt.Errorf("imageio: cannot write empty image")
	}
	a := im.Attributes()
	if a.T > 4 {
		return fmt.Errorf("imageio: VTK scalars support at most 4 components, got %d", a.T)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# vtk DataFile Version 3.0\n")
	fmt.Fprintf(bw, "voxeltk image %v\n", a)
	fmt.Fprintf(bw, "BINARY\n")
	fmt.Fprintf(bw, "DATASET STRUCTURED_POINTS\n")
	fmt.Fprintf(bw, "DIMENSIONS %d %d %d\n", a.X, a.Y, a.Z)
	fmt.Fprintf(bw, "ORIGIN 0 0 0\n")
	fmt.Fprintf(bw, "SPACING %g %g %g\n", unit(a.DX), unit(a.DY), unit(a.DZ))
	fmt.Fprintf(bw, "POINT_DATA %d\n", a.NumberOfSpatialVoxels())
	fmt.Fprintf(bw, "SCALARS scalars %s %d\n", vtkType[T](), a.T)
	fmt.Fprintf(bw, "LOOKUP_TABLE default\n")

	data := im.Data()
	if a.T > 1 {
		// Interleave components per point.
		n := a.NumberOfSpatialVoxels()
		interleaved := make([]T, len(data))
		for t := range a.T {
			for i := range n {
				interleaved[i*a.T+t] = data[t*n+i]
			}
		}
		data = interleaved
	}
	if err := binary.Write(bw, binary.BigEndian, data); err != nil {
		return fmt.Errorf("imageio: writing scalars: %w", err)
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// SaveVTK writes im to the file at path.
func SaveVTK[T volume.Scalar](path string, im *volume.Image[T]) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteVTK(f, im); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func unit(d float64) float64 {
	if d <= 0 {
		return 1
	}
	return d
}
