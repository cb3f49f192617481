package voxel

import (
	"fmt"
	"reflect"

	"voxeltk/pkg/volume"
)

// Func1 is a voxel function over one image.
type Func1[T volume.Scalar] interface {
	Voxel(v Index, a *T)
}

// Func2 is a voxel function over two images.
type Func2[T1, T2 volume.Scalar] interface {
	Voxel(v Index, a *T1, b *T2)
}

// Func3 is a voxel function over three images.
type Func3[T1, T2, T3 volume.Scalar] interface {
	Voxel(v Index, a *T1, b *T2, c *T3)
}

// Func1Of adapts an ordinary function to Func1.
type Func1Of[T volume.Scalar] func(v Index, a *T)

func (f Func1Of[T]) Voxel(v Index, a *T) { f(v, a) }

// Func2Of adapts an ordinary function to Func2.
type Func2Of[T1, T2 volume.Scalar] func(v Index, a *T1, b *T2)

func (f Func2Of[T1, T2]) Voxel(v Index, a *T1, b *T2) { f(v, a, b) }

// Func3Of adapts an ordinary function to Func3.
type Func3Of[T1, T2, T3 volume.Scalar] func(v Index, a *T1, b *T2, c *T3)

func (f Func3Of[T1, T2, T3]) Voxel(v Index, a *T1, b *T2, c *T3) { f(v, a, b, c) }

// Marker is implemented by voxel functions that declare whether they are
// reductions. Functions without the method are not reductions.
type Marker interface {
	IsReduction() bool
}

// Function can be embedded by voxel functions that carry no reduction
// state.
type Function struct{}

func (Function) IsReduction() bool { return false }

// Reduction can be embedded by voxel functions whose per-worker state has
// to be joined. The embedding type must also implement Reducer.
type Reduction struct{}

func (Reduction) IsReduction() bool { return true }

// Reducer is implemented by reduction functions. Split returns a fresh
// accumulator with the receiver's configuration; Join merges the state of
// other into the receiver. Join must be associative and commutative so the
// final result does not depend on how the range was partitioned.
type Reducer[F any] interface {
	Split() F
	Join(other F)
}

func isReduction(fn any) bool {
	m, ok := fn.(Marker)
	return ok && m.IsReduction()
}

func validateFunc[F any](fn F) error {
	rv := reflect.ValueOf(any(fn))
	if !rv.IsValid() {
		return ErrNilFunction
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Interface, reflect.Map:
		if rv.IsNil() {
			return ErrNilFunction
		}
	}
	if !isReduction(fn) {
		return nil
	}
	if rv.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: %T", ErrReductionByValue, fn)
	}
	if _, ok := any(fn).(Reducer[F]); !ok {
		return fmt.Errorf("%w: %T", ErrNotJoinable, fn)
	}
	return nil
}

// split returns an independent accumulator for a reduction and the shared
// function otherwise.
func split[F any](fn F) F {
	if r, ok := any(fn).(Reducer[F]); ok && isReduction(fn) {
		return r.Split()
	}
	return fn
}

func join[F any](fn, other F) {
	if r, ok := any(fn).(Reducer[F]); ok {
		r.Join(other)
	}
}
