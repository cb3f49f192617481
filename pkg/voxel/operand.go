package voxel

import "voxeltk/pkg/volume"

// Operand is an image bound to a traversal, tagged read-only or mutable.
// The engine borrows the image for the duration of one dispatch call.
type Operand[T volume.Scalar] struct {
	image   *volume.Image[T]
	data    []T
	mutable bool
}

// In binds im as a read-only operand. A nil or empty image yields a nil
// pointer at every voxel.
func In[T volume.Scalar](im *volume.Image[T]) Operand[T] {
	return Operand[T]{image: im, data: im.Data()}
}

// Out binds im as a mutable operand. Every voxel is written at most once per
// traversal, by exactly one worker.
func Out[T volume.Scalar](im *volume.Image[T]) Operand[T] {
	return Operand[T]{image: im, data: im.Data(), mutable: true}
}

// Image returns the bound image.
func (o Operand[T]) Image() *volume.Image[T] { return o.image }

// Mutable reports whether the operand was bound with Out.
func (o Operand[T]) Mutable() bool { return o.mutable }

// IsEmpty reports whether the operand yields nil pointers.
func (o Operand[T]) IsEmpty() bool { return len(o.data) == 0 }

func (o Operand[T]) at(offset int) *T {
	if o.data == nil {
		return nil
	}
	return &o.data[offset]
}

// base returns the image as a volume.Base, or nil when the operand is empty.
// A nil *Image must not leak into an interface value here.
func (o Operand[T]) base() volume.Base {
	if o.image.IsEmpty() {
		return nil
	}
	return o.image
}
