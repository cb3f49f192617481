package voxel

import (
	"fmt"

	"voxeltk/pkg/volume"
)

// Body binds one to three operands and a voxel function. The last operand
// is the reference image whose address space is traversed.
//
// Fork and Join form the parallel protocol: every worker visits its ranges
// through its own fork, and after all workers are done the forks are joined
// back into the body the caller built. For functions that are not
// reductions Fork returns the receiver and Join does nothing.
type Body interface {
	// Reference returns the image that defines the traversal's address
	// space, or nil if it is empty.
	Reference() volume.Base

	// Visit calls the voxel function at v.
	Visit(v Index)

	// Fork returns a body sharing the operands with an independent copy of
	// any reduction state.
	Fork() Body

	// Join merges the reduction state of a body returned by Fork.
	Join(other Body)

	// IsReduction reports whether forks have to be joined.
	IsReduction() bool

	// Validate reports misuse before any voxel is visited.
	Validate() error
}

type body1[T volume.Scalar, F Func1[T]] struct {
	a  Operand[T]
	fn F
}

// Unary binds a single operand, which is also the reference image.
func Unary[T volume.Scalar, F Func1[T]](a Operand[T], fn F) Body {
	return &body1[T, F]{a: a, fn: fn}
}

func (b *body1[T, F]) Reference() volume.Base { return b.a.base() }
func (b *body1[T, F]) Visit(v Index) { b.fn.Voxel(v, b.a.at(v.Offset)) }
func (b *body1[T, F]) IsReduction() bool { return isReduction(b.fn) }

func (b *body1[T, F]) Fork() Body {
	if !b.IsReduction() {
		return b
	}
	return &body1[T, F]{a: b.a, fn: split(b.fn)}
}

func (b *body1[T, F]) Join(other Body) {
	if o, ok := other.(*body1[T, F]); ok && o != b {
		join(b.fn, o.fn)
	}
}

func (b *body1[T, F]) Validate() error {
	if err := validateFunc(b.fn); err != nil {
		return err
	}
	return validateOperands(b.Reference())
}

type body2[T1, T2 volume.Scalar, F Func2[T1, T2]] struct {
	a  Operand[T1]
	b  Operand[T2]
	fn F
}

// Binary binds two operands; b is the reference image.
func Binary[T1, T2 volume.Scalar, F Func2[T1, T2]](a Operand[T1], b Operand[T2], fn F) Body {
	return &body2[T1, T2, F]{a: a, b: b, fn: fn}
}

func (b *body2[T1, T2, F]) Reference() volume.Base { return b.b.base() }
func (b *body2[T1, T2, F]) IsReduction() bool { return isReduction(b.fn) }

func (b *body2[T1, T2, F]) Visit(v Index) {
	b.fn.Voxel(v, b.a.at(v.Offset), b.b.at(v.Offset))
}

func (b *body2[T1, T2, F]) Fork() Body {
	if !b.IsReduction() {
		return b
	}
	return &body2[T1, T2, F]{a: b.a, b: b.b, fn: split(b.fn)}
}

func (b *body2[T1, T2, F]) Join(other Body) {
	if o, ok := other.(*body2[T1, T2, F]); ok && o != b {
		join(b.fn, o.fn)
	}
}

func (b *body2[T1, T2, F]) Validate() error {
	if err := validateFunc(b.fn); err != nil {
		return err
	}
	return validateOperands(b.Reference(), b.a.base())
}

type body3[T1, T2, T3 volume.Scalar, F Func3[T1, T2, T3]] struct {
	a  Operand[T1]
	b  Operand[T2]
	c  Operand[T3]
	fn F
}

// Ternary binds three operands; c is the reference image.
func Ternary[T1, T2, T3 volume.Scalar, F Func3[T1, T2, T3]](a Operand[T1], b Operand[T2], c Operand[T3], fn F) Body {
	return &body3[T1, T2, T3, F]{a: a, b: b, c: c, fn: fn}
}

func (b *body3[T1, T2, T3, F]) Reference() volume.Base { return b.c.base() }
func (b *body3[T1, T2, T3, F]) IsReduction() bool { return isReduction(b.fn) }

func (b *body3[T1, T2, T3, F]) Visit(v Index) {
	b.fn.Voxel(v, b.a.at(v.Offset), b.b.at(v.Offset), b.c.at(v.Offset))
}

func (b *body3[T1, T2, T3, F]) Fork() Body {
	if !b.IsReduction() {
		return b
	}
	return &body3[T1, T2, T3, F]{a: b.a, b: b.b, c: b.c, fn: split(b.fn)}
}

func (b *body3[T1, T2, T3, F]) Join(other Body) {
	if o, ok := other.(*body3[T1, T2, T3, F]); ok && o != b {
		join(b.fn, o.fn)
	}
}

func (b *body3[T1, T2, T3, F]) Validate() error {
	if err := validateFunc(b.fn); err != nil {
		return err
	}
	return validateOperands(b.Reference(), b.a.base(), b.b.base())
}

// validateOperands checks that the reference exists and that every
// non-empty operand buffer is large enough to be indexed with reference
// offsets. Operands of equal length but different shape are not detected.
func validateOperands(ref volume.Base, others ...volume.Base) error {
	if ref == nil || ref.IsEmpty() {
		return ErrEmptyReference
	}
	n := ref.NumberOfVoxels()
	for _, o := range others {
		if o == nil {
			continue
		}
		if o.NumberOfVoxels() < n {
			return fmt.Errorf("%w: operand has %d voxels, reference %d", ErrShapeMismatch, o.NumberOfVoxels(), n)
		}
	}
	return nil
}
