// Package transformation implements spatial transformations between world
// coordinates and resampling of images through them.
package transformation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when an affine matrix cannot be inverted.
var ErrSingular = errors.New("transformation: matrix is singular")

// Transformation maps world coordinates.
type Transformation interface {
	Transform(x, y, z float64) (float64, float64, float64)
}

// Degrees of freedom of an affine transformation. Rotations and shears are
// in degrees, scalings in percent.
const (
	TX = iota
	TY
	TZ
	RX
	RY
	RZ
	SX
	SY
	SZ
	SXY
	SXZ
	SYZ

	NumberOfDOFs
)

var dofNames = [NumberOfDOFs]string{"tx", "ty", "tz", "rx", "ry", "rz", "sx", "sy", "sz", "sxy", "sxz", "syz"}

// DOFName returns the short name of parameter dof.
func DOFName(dof int) string {
	if dof < 0 || dof >= NumberOfDOFs {
		return fmt.Sprintf("dof(%d)", dof)
	}
	return dofNames[dof]
}

// Affine is a 12 parameter affine transformation
//
//	A = T · Rz · Ry · Rx · S · H
//
// with translation T, rotations R, scaling S and shear H. An Affine must not
// be modified while a traversal uses it.
type Affine struct {
	params    [NumberOfDOFs]float64
	matrix    *mat.Dense
	version   uint64
	observers []func()
}

// NewAffine returns the identity.
func NewAffine() *Affine {
	a := &Affine{}
	a.params[SX], a.params[SY], a.params[SZ] = 100, 100, 100
	a.matrix = matrixOf(a.params)
	return a
}

// Parameters returns a copy of the parameters indexed by the DOF constants.
func (a *Affine) Parameters() []float64 {
	p := make([]float64, NumberOfDOFs)
	copy(p, a.params[:])
	return p
}

// Get returns parameter dof.
func (a *Affine) Get(dof int) float64 { return a.params[dof] }

// Set assigns parameter dof.
func (a *Affine) Set(dof int, v float64) {
	if a.params[dof] == v {
		return
	}
	a.params[dof] = v
	a.changed()
}

// SetParameters assigns all parameters.
func (a *Affine) SetParameters(p []float64) error {
	if len(p) != NumberOfDOFs {
		return fmt.Errorf("transformation: got %d parameters, want %d", len(p), NumberOfDOFs)
	}
	copy(a.params[:], p)
	a.changed()
	return nil
}

// Version counts parameter changes.
func (a *Affine) Version() uint64 { return a.version }

// OnChange registers fn to be called after every parameter change.
func (a *Affine) OnChange(fn func()) { a.observers = append(a.observers, fn) }

func (a *Affine) changed() {
	a.matrix = matrixOf(a.params)
	a.version++
	for _, fn := range a.observers {
		fn()
	}
}

// Matrix returns a copy of the homogeneous 4x4 matrix.
func (a *Affine) Matrix() *mat.Dense { return mat.DenseCopyOf(a.matrix) }

func (a *Affine) Transform(x, y, z float64) (float64, float64, float64) {
	return apply(a.matrix, x, y, z)
}

// JacobianDOFs returns the derivative of the transformed point (x, y, z)
// with respect to parameter dof.
func (a *Affine) JacobianDOFs(dof int, x, y, z float64) [3]float64 {
	return mulVec3(derivative(a.params, dof), x, y, z, 1)
}

// apply multiplies the homogeneous point (x, y, z, 1) by m.
func apply(m *mat.Dense, x, y, z float64) (float64, float64, float64) {
	r := m.RawMatrix()
	d, s := r.Data, r.Stride
	return d[0]*x + d[1]*y + d[2]*z + d[3],
		d[s]*x + d[s+1]*y + d[s+2]*z + d[s+3],
		d[2*s]*x + d[2*s+1]*y + d[2*s+2]*z + d[2*s+3]
}

func mulVec3(m mat.Matrix, x, y, z, w float64) [3]float64 {
	var v mat.VecDense
	v.MulVec(m, mat.NewVecDense(4, []float64{x, y, z, w}))
	return [3]float64{v.AtVec(0), v.AtVec(1), v.AtVec(2)}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// matrixOf composes the affine matrix from its parameters.
func matrixOf(p [NumberOfDOFs]float64) *mat.Dense {
	t := mat.NewDense(4, 4, []float64{
		1, 0, 0, p[TX],
		0, 1, 0, p[TY],
		0, 0, 1, p[TZ],
		0, 0, 0, 1,
	})
	sx, cx := math.Sincos(radians(p[RX]))
	rx := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, cx, -sx, 0,
		0, sx, cx, 0,
		0, 0, 0, 1,
	})
	sy, cy := math.Sincos(radians(p[RY]))
	ry := mat.NewDense(4, 4, []float64{
		cy, 0, sy, 0,
		0, 1, 0, 0,
		-sy, 0, cy, 0,
		0, 0, 0, 1,
	})
	sz, cz := math.Sincos(radians(p[RZ]))
	rz := mat.NewDense(4, 4, []float64{
		cz, -sz, 0, 0,
		sz, cz, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	s := mat.NewDense(4, 4, []float64{
		p[SX] / 100, 0, 0, 0,
		0, p[SY] / 100, 0, 0,
		0, 0, p[SZ] / 100, 0,
		0, 0, 0, 1,
	})
	h := mat.NewDense(4, 4, []float64{
		1, math.Tan(radians(p[SXY])), math.Tan(radians(p[SXZ])), 0,
		0, 1, math.Tan(radians(p[SYZ])), 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	var m mat.Dense
	m.Product(t, rz, ry, rx, s, h)
	return &m
}

// derivative returns ∂A/∂p for parameter dof by central differences.
func derivative(p [NumberOfDOFs]float64, dof int) *mat.Dense {
	const h = 1e-5
	lo, hi := p, p
	lo[dof] -= h
	hi[dof] += h

	var d mat.Dense
	d.Sub(matrixOf(hi), matrixOf(lo))
	d.Scale(1/(2*h), &d)
	return &d
}
