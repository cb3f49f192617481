package voxel

import "errors"

var (
	// ErrReductionByValue is returned when a function marked as reduction is
	// passed by value. The per-worker results would be joined into a copy
	// the caller never sees.
	ErrReductionByValue = errors.New("voxel: reduction function passed by value")

	// ErrNotJoinable is returned when a function marked as reduction does
	// not implement Reducer for its own type.
	ErrNotJoinable = errors.New("voxel: reduction function does not implement Split/Join")

	// ErrNilFunction is returned when a nil function is bound.
	ErrNilFunction = errors.New("voxel: nil voxel function")

	// ErrEmptyReference is returned when the reference image is empty, so
	// there is no address space to traverse.
	ErrEmptyReference = errors.New("voxel: reference image is empty")

	// ErrShapeMismatch is returned when an operand buffer, the traversal
	// attributes or a range do not fit the reference image.
	ErrShapeMismatch = errors.New("voxel: shape mismatch")
)
