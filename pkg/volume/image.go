package volume

import (
	"fmt"
	"math"
	"reflect"
)

// Scalar lists the voxel element types an Image can hold.
type Scalar interface {
	~uint8 | ~int16 | ~uint16 | ~int32 | ~float32 | ~float64
}

// Base is the element-type independent view of an image. Domain predicates
// and other code that does not care about the voxel type work through it.
type Base interface {
	Attributes() Attributes
	IsEmpty() bool
	NumberOfVoxels() int
	Float(offset int) float64
	IsForeground(offset int) bool
}

// Image is a voxel grid with element type T.
type Image[T Scalar] struct {
	attr Attributes
	data []T

	// background value, only meaningful when hasBackground is set
	background    float64
	hasBackground bool
}

// New allocates a zero-filled image.
func New[T Scalar](attr Attributes) (*Image[T], error) {
	if err := attr.Validate(); err != nil {
		return nil, err
	}
	return &Image[T]{attr: attr, data: make([]T, attr.NumberOfVoxels())}, nil
}

// MustNew is like New but panics on invalid attributes. It is meant for
// tests and fixed-size scratch images.
func MustNew[T Scalar](attr Attributes) *Image[T] {
	im, err := New[T](attr)
	if err != nil {
		panic(err)
	}
	return im
}

// FromData wraps an existing buffer. The buffer is not copied.
func FromData[T Scalar](attr Attributes, data []T) (*Image[T], error) {
	if err := attr.Validate(); err != nil {
		return nil, err
	}
	if len(data) != attr.NumberOfVoxels() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDataLength, len(data), attr.NumberOfVoxels())
	}
	return &Image[T]{attr: attr, data: data}, nil
}

// IsEmpty reports whether the image has no voxels. A nil image is empty.
func (im *Image[T]) IsEmpty() bool {
	return im == nil || len(im.data) == 0
}

// Attributes returns the grid description.
func (im *Image[T]) Attributes() Attributes {
	if im == nil {
		return Attributes{}
	}
	return im.attr
}

func (im *Image[T]) X() int { return im.attr.X }
func (im *Image[T]) Y() int { return im.attr.Y }
func (im *Image[T]) Z() int { return im.attr.Z }
func (im *Image[T]) T() int { return im.attr.T }

// NumberOfVoxels returns the length of the voxel buffer.
func (im *Image[T]) NumberOfVoxels() int {
	if im == nil {
		return 0
	}
	return len(im.data)
}

// Stride returns the offset between consecutive frames or channels.
func (im *Image[T]) Stride() int { return im.attr.NumberOfSpatialVoxels() }

// Data returns the raw voxel buffer.
func (im *Image[T]) Data() []T {
	if im == nil {
		return nil
	}
	return im.data
}

// Ptr returns a pointer to the voxel at offset, or nil for an empty image.
func (im *Image[T]) Ptr(offset int) *T {
	if im.IsEmpty() {
		return nil
	}
	return &im.data[offset]
}

// At returns the voxel at (x, y, z, t).
func (im *Image[T]) At(x, y, z, t int) T {
	return im.data[im.attr.Offset(x, y, z, t)]
}

// Set stores v at (x, y, z, t).
func (im *Image[T]) Set(x, y, z, t int, v T) {
	im.data[im.attr.Offset(x, y, z, t)] = v
}

// Float returns the voxel at offset as float64.
func (im *Image[T]) Float(offset int) float64 {
	return float64(im.data[offset])
}

// SetFloat stores v at offset, converting to the voxel type. Values are
// rounded and clamped for integer voxel types.
func (im *Image[T]) SetFloat(offset int, v float64) {
	im.data[offset] = FromFloat[T](v)
}

// Fill sets every voxel to v.
func (im *Image[T]) Fill(v T) {
	for i := range im.data {
		im.data[i] = v
	}
}

// Clone returns a deep copy including the background setting.
func (im *Image[T]) Clone() *Image[T] {
	if im == nil {
		return nil
	}
	out := *im
	out.data = make([]T, len(im.data))
	copy(out.data, im.data)
	return &out
}

// Frame returns a deep copy of frame t as a single-frame image with the
// same spacing and background setting.
func (im *Image[T]) Frame(t int) (*Image[T], error) {
	if t < 0 || t >= im.attr.T {
		return nil, fmt.Errorf("%w: frame %d of %d", ErrBadShape, t, im.attr.T)
	}
	n := im.attr.NumberOfSpatialVoxels()
	out := *im
	out.attr = im.attr.WithFrames(1, 0)
	out.data = make([]T, n)
	copy(out.data, im.data[t*n:(t+1)*n])
	return &out, nil
}

// SetBackground marks v as the background value.
func (im *Image[T]) SetBackground(v float64) {
	im.background = v
	im.hasBackground = true
}

// ClearBackground removes the background value; every voxel becomes
// foreground.
func (im *Image[T]) ClearBackground() { im.hasBackground = false }

// HasBackground reports whether a background value is set.
func (im *Image[T]) HasBackground() bool { return im.hasBackground }

// Background returns the background value.
func (im *Image[T]) Background() float64 { return im.background }

// IsForeground reports whether the voxel at offset differs from the
// background value. NaN voxels are never foreground.
func (im *Image[T]) IsForeground(offset int) bool {
	v := float64(im.data[offset])
	if math.IsNaN(v) {
		return false
	}
	return !im.hasBackground || v != im.background
}

// FromFloat converts v to T, rounding and saturating for integer types.
func FromFloat[T Scalar](v float64) T {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Float32, reflect.Float64:
		return T(v)
	}
	if math.IsNaN(v) {
		return 0
	}
	lo, hi := limits[T]()
	v = math.Round(v)
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	return T(v)
}

// limits switches on the kind so that named types share the range of their
// underlying type.
func limits[T Scalar]() (lo, hi float64) {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Uint8:
		return 0, math.MaxUint8
	case reflect.Int16:
		return math.MinInt16, math.MaxInt16
	case reflect.Uint16:
		return 0, math.MaxUint16
	case reflect.Int32:
		return math.MinInt32, math.MaxInt32
	}
	return -math.MaxFloat64, math.MaxFloat64
}
