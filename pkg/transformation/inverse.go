package transformation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// InverseAffine is the inverse of a decorated Affine. It shares the
// parameters of the decorated transformation and follows their changes.
// Without a decorated transformation it is the identity.
type InverseAffine struct {
	affine  *Affine
	inverse *mat.Dense
	err     error

	// observed holds every Affine this inverse has registered with.
	observed map[*Affine]bool
}

// NewInverseAffine returns the inverse of a.
func NewInverseAffine(a *Affine) (*InverseAffine, error) {
	inv := &InverseAffine{}
	if err := inv.SetTransformation(a); err != nil {
		return nil, err
	}
	return inv, nil
}

// SetTransformation replaces the decorated transformation. A nil a makes
// t the identity. Rebinding a previously decorated Affine does not register
// another observer on it.
func (t *InverseAffine) SetTransformation(a *Affine) error {
	t.affine = a
	if a == nil {
		t.inverse, t.err = mat.NewDense(4, 4, []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}), nil
		return nil
	}
	if !t.observed[a] {
		if t.observed == nil {
			t.observed = make(map[*Affine]bool)
		}
		t.observed[a] = true
		a.OnChange(func() {
			if t.affine == a {
				t.update()
			}
		})
	}
	t.update()
	return t.err
}

// Transformation returns the decorated transformation.
func (t *InverseAffine) Transformation() *Affine { return t.affine }

// Err reports whether the decorated matrix could not be inverted after its
// last change. The previous inverse is kept in that case.
func (t *InverseAffine) Err() error { return t.err }

func (t *InverseAffine) update() {
	var inv mat.Dense
	if err := inv.Inverse(t.affine.matrix); err != nil {
		t.err = fmt.Errorf("%w: %v", ErrSingular, err)
		return
	}
	t.inverse, t.err = &inv, nil
}

// Matrix returns a copy of the inverse matrix.
func (t *InverseAffine) Matrix() *mat.Dense { return mat.DenseCopyOf(t.inverse) }

// Parameters returns the parameters of the decorated transformation, or nil
// without one.
func (t *InverseAffine) Parameters() []float64 {
	if t.affine == nil {
		return nil
	}
	return t.affine.Parameters()
}

func (t *InverseAffine) Transform(x, y, z float64) (float64, float64, float64) {
	return apply(t.inverse, x, y, z)
}

// HasSameDOFsAs reports whether other depends on the same parameters: the
// decorated transformation itself or another inverse of it.
func (t *InverseAffine) HasSameDOFsAs(other Transformation) bool {
	if t.affine == nil {
		return false
	}
	switch o := other.(type) {
	case *Affine:
		return o == t.affine
	case *InverseAffine:
		return o.affine == t.affine
	}
	return false
}

// JacobianDOFs returns the derivative of the transformed point with respect
// to parameter dof of the decorated transformation:
//
//	∂(A⁻¹x)/∂p = -A⁻¹ (∂A/∂p) A⁻¹ x
func (t *InverseAffine) JacobianDOFs(dof int, x, y, z float64) [3]float64 {
	if t.affine == nil {
		return [3]float64{}
	}
	ix, iy, iz := t.Transform(x, y, z)
	d := mulVec3(derivative(t.affine.params, dof), ix, iy, iz, 1)
	// ∂A/∂p has a zero last row, so the intermediate is a direction.
	r := mulVec3(t.inverse, d[0], d[1], d[2], 0)
	return [3]float64{-r[0], -r[1], -r[2]}
}
