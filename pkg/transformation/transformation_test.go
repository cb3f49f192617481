package transformation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"voxeltk/pkg/interpolation"
	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

func assertPoint(t *testing.T, want [3]float64, x, y, z float64, msgAndArgs ...any) {
	t.Helper()
	assert.InDelta(t, want[0], x, 1e-9, msgAndArgs...)
	assert.InDelta(t, want[1], y, 1e-9, msgAndArgs...)
	assert.InDelta(t, want[2], z, 1e-9, msgAndArgs...)
}

func TestAffineIdentity(t *testing.T) {
	a := NewAffine()
	assert.True(t, mat.EqualApprox(a.Matrix(), mat.NewDiagDense(4, []float64{1, 1, 1, 1}), 1e-15))

	x, y, z := a.Transform(1, -2, 3)
	assertPoint(t, [3]float64{1, -2, 3}, x, y, z)
}

func TestAffineParameters(t *testing.T) {
	tests := []struct {
		dof   int
		value float64
		in    [3]float64
		want  [3]float64
	}{
		{TX, 2, [3]float64{1, 1, 1}, [3]float64{3, 1, 1}},
		{TZ, -1, [3]float64{0, 0, 0}, [3]float64{0, 0, -1}},
		{RZ, 90, [3]float64{1, 0, 0}, [3]float64{0, 1, 0}},
		{RX, 90, [3]float64{0, 1, 0}, [3]float64{0, 0, 1}},
		{RY, 90, [3]float64{0, 0, 1}, [3]float64{1, 0, 0}},
		{SY, 200, [3]float64{1, 2, 3}, [3]float64{1, 4, 3}},
		{SXY, 45, [3]float64{0, 1, 0}, [3]float64{1, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(DOFName(tt.dof), func(t *testing.T) {
			a := NewAffine()
			a.Set(tt.dof, tt.value)
			x, y, z := a.Transform(tt.in[0], tt.in[1], tt.in[2])
			assertPoint(t, tt.want, x, y, z)
		})
	}
}

func TestAffineChangeTracking(t *testing.T) {
	a := NewAffine()
	calls := 0
	a.OnChange(func() { calls++ })

	a.Set(TX, 1)
	a.Set(TX, 1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), a.Version())

	p := a.Parameters()
	p[RZ] = 30
	require.NoError(t, a.SetParameters(p))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 30.0, a.Get(RZ))

	assert.Error(t, a.SetParameters(p[:5]))
	assert.Equal(t, 2, calls)
}

func TestAffineJacobian(t *testing.T) {
	a := NewAffine()
	j := a.JacobianDOFs(TY, 4, 5, 6)
	assertPoint(t, [3]float64{0, 1, 0}, j[0], j[1], j[2])

	j = a.JacobianDOFs(SX, 4, 5, 6)
	assertPoint(t, [3]float64{0.04, 0, 0}, j[0], j[1], j[2])
}

// rotated returns an affine with every parameter away from identity.
func rotated() *Affine {
	a := NewAffine()
	_ = a.SetParameters([]float64{1, -2, 3, 10, -20, 30, 90, 110, 105, 5, -3, 2})
	return a
}

func TestInverseAffine(t *testing.T) {
	a := rotated()
	inv, err := NewInverseAffine(a)
	require.NoError(t, err)

	for _, p := range [][3]float64{{0, 0, 0}, {1, 2, 3}, {-7, 4.5, 10}} {
		x, y, z := a.Transform(p[0], p[1], p[2])
		x, y, z = inv.Transform(x, y, z)
		assertPoint(t, p, x, y, z, "%v", p)
	}

	var prod mat.Dense
	prod.Mul(a.Matrix(), inv.Matrix())
	assert.True(t, mat.EqualApprox(&prod, mat.NewDiagDense(4, []float64{1, 1, 1, 1}), 1e-12))

	// The inverse follows changes of the decorated transformation.
	a.Set(TX, 5)
	x, y, z := inv.Transform(a.Transform(1, 1, 1))
	assertPoint(t, [3]float64{1, 1, 1}, x, y, z)
	assert.Equal(t, a.Parameters(), inv.Parameters())
}

func TestInverseAffineSingular(t *testing.T) {
	a := NewAffine()
	a.Set(SZ, 0)
	_, err := NewInverseAffine(a)
	assert.ErrorIs(t, err, ErrSingular)

	b := NewAffine()
	inv, err := NewInverseAffine(b)
	require.NoError(t, err)
	b.Set(SX, 0)
	assert.ErrorIs(t, inv.Err(), ErrSingular)
	b.Set(SX, 50)
	assert.NoError(t, inv.Err())
}

func TestInverseAffineJacobian(t *testing.T) {
	a := rotated()
	inv, err := NewInverseAffine(a)
	require.NoError(t, err)

	const h = 1e-6
	x, y, z := 3.0, -1.0, 2.0
	for dof := range NumberOfDOFs {
		p := a.Get(dof)
		a.Set(dof, p+h)
		x1, y1, z1 := inv.Transform(x, y, z)
		a.Set(dof, p-h)
		x0, y0, z0 := inv.Transform(x, y, z)
		a.Set(dof, p)

		j := inv.JacobianDOFs(dof, x, y, z)
		assert.InDelta(t, (x1-x0)/(2*h), j[0], 1e-5, DOFName(dof))
		assert.InDelta(t, (y1-y0)/(2*h), j[1], 1e-5, DOFName(dof))
		assert.InDelta(t, (z1-z0)/(2*h), j[2], 1e-5, DOFName(dof))
	}

	ik, err := NewInverseAffine(NewAffine())
	require.NoError(t, err)
	j := ik.JacobianDOFs(TX, 0, 0, 0)
	assertPoint(t, [3]float64{-1, 0, 0}, j[0], j[1], j[2])
}

func TestInverseAffineRebinding(t *testing.T) {
	a, b := rotated(), NewAffine()
	inv, err := NewInverseAffine(a)
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, inv.SetTransformation(b))
		require.NoError(t, inv.SetTransformation(a))
	}
	assert.Len(t, a.observers, 1)
	assert.Len(t, b.observers, 1)

	// Only the current binding drives updates.
	a.Set(TX, 7)
	x, y, z := inv.Transform(a.Transform(2, -1, 4))
	assertPoint(t, [3]float64{2, -1, 4}, x, y, z)

	require.NoError(t, inv.SetTransformation(b))
	b.Set(TY, -3)
	x, y, z = inv.Transform(b.Transform(2, -1, 4))
	assertPoint(t, [3]float64{2, -1, 4}, x, y, z)
	a.Set(SX, 0)
	assert.NoError(t, inv.Err())
}

func TestInverseAffineWithoutTransformation(t *testing.T) {
	inv, err := NewInverseAffine(nil)
	require.NoError(t, err)
	assert.Nil(t, inv.Transformation())
	assert.Nil(t, inv.Parameters())
	assert.False(t, inv.HasSameDOFsAs(NewAffine()))

	x, y, z := inv.Transform(1, -2, 3)
	assertPoint(t, [3]float64{1, -2, 3}, x, y, z)
	assert.Equal(t, [3]float64{}, inv.JacobianDOFs(TX, 1, -2, 3))

	// Binding an Affine later turns it into a proper inverse.
	a := rotated()
	require.NoError(t, inv.SetTransformation(a))
	x, y, z = inv.Transform(a.Transform(1, -2, 3))
	assertPoint(t, [3]float64{1, -2, 3}, x, y, z)
}

func TestHasSameDOFsAs(t *testing.T) {
	a, b := NewAffine(), NewAffine()
	inv, err := NewInverseAffine(a)
	require.NoError(t, err)
	other, err := NewInverseAffine(a)
	require.NoError(t, err)

	assert.True(t, inv.HasSameDOFsAs(a))
	assert.True(t, inv.HasSameDOFsAs(other))
	assert.False(t, inv.HasSameDOFsAs(b))

	require.NoError(t, other.SetTransformation(b))
	assert.False(t, inv.HasSameDOFsAs(other))
	assert.Same(t, b, other.Transformation())
}

func TestResample(t *testing.T) {
	attr := volume.NewAttributes(6, 5, 4)
	attr.DX, attr.DY, attr.DZ = 2, 1, 1
	src := volume.MustNew[float32](attr)
	for i := range src.Data() {
		x, y, z, _ := attr.Coordinates(i)
		src.Data()[i] = float32(x + 10*y + 100*z)
	}

	ip := interpolation.NewLinear(src)
	s := &voxel.Scheduler{Workers: 3, Grain: 7}

	out, err := Resample[float32](attr, NewAffine(), ip, ResampleOptions{Scheduler: s})
	require.NoError(t, err)
	assert.Equal(t, src.Data(), out.Data())

	// Translating by one voxel in x (2mm) reads the next column.
	a := NewAffine()
	a.Set(TX, 2)
	ip.DefaultValue = -1
	out, err = Resample[float32](attr, a, ip, ResampleOptions{Padding: true, DefaultValue: -1})
	require.NoError(t, err)
	assert.Equal(t, float32(1+10+100), out.At(0, 1, 1, 0))
	assert.Equal(t, float32(-1), out.At(5, 1, 1, 0))
	assert.False(t, out.IsForeground(attr.Offset(5, 1, 1, 0)))

	_, err = Resample[float32](volume.Attributes{}, a, ip, ResampleOptions{})
	assert.Error(t, err)
}
