package voxel

import (
	"fmt"

	"voxeltk/pkg/volume"
)

// Domain classifies voxels of the reference image as inside (foreground)
// or outside. Implementations are stateless; the engine evaluates the zero
// value of the domain type.
type Domain interface {
	IsInside(ref volume.Base, v Index) bool
}

// Everywhere places every voxel inside.
type Everywhere struct{}

func (Everywhere) IsInside(volume.Base, Index) bool { return true }

// Foreground places a voxel inside when the reference reports it as
// foreground, i.e. it differs from the background value.
type Foreground struct{}

func (Foreground) IsInside(ref volume.Base, v Index) bool { return ref.IsForeground(v.Offset) }

// Background is the complement of Foreground.
type Background struct{}

func (Background) IsInside(ref volume.Base, v Index) bool { return !ref.IsForeground(v.Offset) }

// NonZero places a voxel inside when its reference value is not zero.
type NonZero struct{}

func (NonZero) IsInside(ref volume.Base, v Index) bool { return ref.Float(v.Offset) != 0 }

// Not negates the domain D.
type Not[D Domain] struct{}

func (Not[D]) IsInside(ref volume.Base, v Index) bool {
	var d D
	return !d.IsInside(ref, v)
}

// If returns a body that visits inside where D holds and outside elsewhere.
// Both bodies must share the reference image. A nil outside body does
// nothing.
func If[D Domain](inside, outside Body) Body {
	if outside == nil {
		outside = nop{}
	}
	return &masked[D]{inside: inside, outside: outside}
}

type masked[D Domain] struct {
	inside, outside Body
	ref             volume.Base
}

func (m *masked[D]) Reference() volume.Base { return m.inside.Reference() }

func (m *masked[D]) Visit(v Index) {
	var d D
	if d.IsInside(m.ref, v) {
		m.inside.Visit(v)
	} else {
		m.outside.Visit(v)
	}
}

func (m *masked[D]) IsReduction() bool {
	return m.inside.IsReduction() || m.outside.IsReduction()
}

func (m *masked[D]) Fork() Body {
	if !m.IsReduction() {
		return m
	}
	return &masked[D]{inside: m.inside.Fork(), outside: m.outside.Fork(), ref: m.ref}
}

func (m *masked[D]) Join(other Body) {
	o, ok := other.(*masked[D])
	if !ok || o == m {
		return
	}
	m.inside.Join(o.inside)
	m.outside.Join(o.outside)
}

// Validate also caches the reference so Visit does not go through the
// inside body for every voxel.
func (m *masked[D]) Validate() error {
	if m.inside == nil {
		return ErrNilFunction
	}
	if err := m.inside.Validate(); err != nil {
		return err
	}
	if err := m.outside.Validate(); err != nil {
		return err
	}
	ref := m.inside.Reference()
	if out := m.outside.Reference(); out != nil && out.NumberOfVoxels() != ref.NumberOfVoxels() {
		return fmt.Errorf("%w: inside reference has %d voxels, outside %d",
			ErrShapeMismatch, ref.NumberOfVoxels(), out.NumberOfVoxels())
	}
	m.ref = ref
	return nil
}

// nop is the outside body substituted when none is given. It has no
// reference of its own and accepts any.
type nop struct{}

func (nop) Reference() volume.Base { return nil }
func (nop) Visit(Index) {}
func (n nop) Fork() Body { return n }
func (nop) Join(Body) {}
func (nop) IsReduction() bool { return false }
func (nop) Validate() error { return nil }
