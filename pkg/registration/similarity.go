package registration

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"voxeltk/pkg/filter"
	"voxeltk/pkg/volume"
	"voxeltk/pkg/voxel"
)

// ErrNoOverlap is returned when no voxel is foreground in both images.
var ErrNoOverlap = errors.New("registration: images do not overlap")

// Metrics holds the similarity between a target and a source image,
// evaluated over the voxels that are foreground in both.
type Metrics struct {
	// Count is the number of voxels compared.
	Count int

	// SSD is the sum of squared intensity differences.
	SSD float64

	// RMSE is the root mean square intensity difference.
	RMSE float64

	// NCC is the normalised cross-correlation in [-1, 1].
	NCC float64

	// SSIM is the global structural similarity index, with the target's
	// intensity range as dynamic range.
	SSIM float64

	// MI is the mutual information in nats.
	MI float64

	// NMI is the normalised mutual information (H(T)+H(S))/H(T,S) in [1, 2],
	// or zero when both images are constant.
	NMI float64
}

// Options configures Evaluate.
type Options struct {
	// Bins is the number of joint histogram bins per image. Zero means 64.
	Bins int

	// Scheduler runs the reductions; nil uses voxel.DefaultScheduler.
	Scheduler *voxel.Scheduler
}

// Evaluate compares source against target. Both must have the same shape.
// The traversal is masked by the target foreground; source background
// voxels are skipped by the reductions.
func Evaluate[T, S volume.Scalar](target *volume.Image[T], source *volume.Image[S], opts Options) (Metrics, error) {
	if target.IsEmpty() || source.IsEmpty() {
		return Metrics{}, voxel.ErrEmptyReference
	}
	ta, sa := target.Attributes(), source.Attributes()
	if !ta.SameSpatialShape(sa) || ta.T != sa.T {
		return Metrics{}, fmt.Errorf("%w: target %v, source %v", voxel.ErrShapeMismatch, ta, sa)
	}
	bins := opts.Bins
	if bins <= 0 {
		bins = 64
	}
	s := opts.Scheduler
	if s == nil {
		s = voxel.DefaultScheduler
	}

	tr := filter.NewMinMax[T]()
	if err := s.ForEachScalar(voxel.If[voxel.Foreground](voxel.Unary(voxel.In(target), tr), nil)); err != nil {
		return Metrics{}, err
	}
	sr := filter.NewMinMax[S]()
	if err := s.ForEachScalar(voxel.If[voxel.Foreground](voxel.Unary(voxel.In(source), sr), nil)); err != nil {
		return Metrics{}, err
	}

	m := NewMoments[S, T](source)
	if err := s.ForEachScalar(voxel.If[voxel.Foreground](voxel.Binary(voxel.In(source), voxel.In(target), m), nil)); err != nil {
		return Metrics{}, err
	}
	if m.N == 0 {
		return Metrics{}, ErrNoOverlap
	}

	h := NewJointHistogram[S, T](source, bins, tr.Min, tr.Max, sr.Min, sr.Max)
	if err := s.ForEachScalar(voxel.If[voxel.Foreground](voxel.Binary(voxel.In(source), voxel.In(target), h), nil)); err != nil {
		return Metrics{}, err
	}

	res := Metrics{
		Count: int(m.N),
		SSD:   m.SSD,
		RMSE:  math.Sqrt(m.SSD / m.N),
		NCC:   m.NCC(),
		SSIM:  m.SSIM(tr.Max - tr.Min),
	}
	res.MI, res.NMI = h.MutualInformation()

	slog.Default().With(slog.String("component", "registration")).Debug("similarity",
		slog.Int("voxels", res.Count),
		slog.Float64("ssd", res.SSD),
		slog.Float64("ncc", res.NCC),
		slog.Float64("nmi", res.NMI),
	)
	return res, nil
}

// Moments accumulates the sums needed for SSD, NCC and SSIM over pairs of
// source and target intensities.
type Moments[S, T volume.Scalar] struct {
	voxel.Reduction

	source volume.Base

	N          float64
	SumS, SumT float64
	SumSS      float64
	SumTT      float64
	SumST      float64
	SSD        float64
}

// NewMoments returns an empty accumulator. Source voxels that are not
// foreground in source are skipped.
func NewMoments[S, T volume.Scalar](source volume.Base) *Moments[S, T] {
	return &Moments[S, T]{source: source}
}

func (m *Moments[S, T]) Voxel(v voxel.Index, s *S, t *T) {
	if !m.source.IsForeground(v.Offset) {
		return
	}
	a, b := float64(*s), float64(*t)
	m.N++
	m.SumS += a
	m.SumT += b
	m.SumSS += a * a
	m.SumTT += b * b
	m.SumST += a * b
	m.SSD += (a - b) * (a - b)
}

func (m *Moments[S, T]) Split() *Moments[S, T] { return NewMoments[S, T](m.source) }

func (m *Moments[S, T]) Join(o *Moments[S, T]) {
	m.N += o.N
	m.SumS += o.SumS
	m.SumT += o.SumT
	m.SumSS += o.SumSS
	m.SumTT += o.SumTT
	m.SumST += o.SumST
	m.SSD += o.SSD
}

// covariances returns the sample variances and covariance.
func (m *Moments[S, T]) covariances() (vs, vt, cst float64) {
	if m.N < 2 {
		return 0, 0, 0
	}
	n := m.N
	vs = (m.SumSS - m.SumS*m.SumS/n) / (n - 1)
	vt = (m.SumTT - m.SumT*m.SumT/n) / (n - 1)
	cst = (m.SumST - m.SumS*m.SumT/n) / (n - 1)
	return max(vs, 0), max(vt, 0), cst
}

// NCC returns the normalised cross-correlation, zero if either image is
// constant.
func (m *Moments[S, T]) NCC() float64 {
	vs, vt, cst := m.covariances()
	if vs == 0 || vt == 0 {
		return 0
	}
	return cst / math.Sqrt(vs*vt)
}

// SSIM returns the global structural similarity for dynamic range l.
func (m *Moments[S, T]) SSIM(l float64) float64 {
	if m.N == 0 {
		return 0
	}
	if l <= 0 {
		l = 1
	}
	c1 := (0.01 * l) * (0.01 * l)
	c2 := (0.03 * l) * (0.03 * l)
	mus, mut := m.SumS/m.N, m.SumT/m.N
	vs, vt, cst := m.covariances()
	num := (2*mus*mut + c1) * (2*cst + c2)
	den := (mus*mus + mut*mut + c1) * (vs + vt + c2)
	return num / den
}

// JointHistogram is a reduction binning pairs of target and source
// intensities into equal-width bins over fixed ranges.
type JointHistogram[S, T volume.Scalar] struct {
	voxel.Reduction

	source     volume.Base
	bins       int
	tmin, tbin float64
	smin, sbin float64

	// Counts is indexed [target bin * bins + source bin].
	Counts []float64
	N      float64
}

// NewJointHistogram returns an empty histogram with bins bins per axis
// spanning [tmin, tmax] for the target and [smin, smax] for the source.
func NewJointHistogram[S, T volume.Scalar](source volume.Base, bins int, tmin, tmax, smin, smax float64) *JointHistogram[S, T] {
	return &JointHistogram[S, T]{
		source: source,
		bins:   bins,
		tmin:   tmin,
		tbin:   (tmax - tmin) / float64(bins),
		smin:   smin,
		sbin:   (smax - smin) / float64(bins),
		Counts: make([]float64, bins*bins),
	}
}

// Bins returns the number of bins per axis.
func (h *JointHistogram[S, T]) Bins() int { return h.bins }

func (h *JointHistogram[S, T]) bin(v, lo, width float64) int {
	if width <= 0 {
		return 0
	}
	return min(max(int((v-lo)/width), 0), h.bins-1)
}

func (h *JointHistogram[S, T]) Voxel(v voxel.Index, s *S, t *T) {
	if !h.source.IsForeground(v.Offset) {
		return
	}
	i := h.bin(float64(*t), h.tmin, h.tbin)
	j := h.bin(float64(*s), h.smin, h.sbin)
	h.Counts[i*h.bins+j]++
	h.N++
}

func (h *JointHistogram[S, T]) Split() *JointHistogram[S, T] {
	c := *h
	c.Counts = make([]float64, len(h.Counts))
	c.N = 0
	return &c
}

func (h *JointHistogram[S, T]) Join(o *JointHistogram[S, T]) {
	floats.Add(h.Counts, o.Counts)
	h.N += o.N
}

// Entropies returns the marginal target, marginal source and joint
// entropies in nats.
func (h *JointHistogram[S, T]) Entropies() (ht, hs, hj float64) {
	if h.N == 0 {
		return 0, 0, 0
	}
	pt := make([]float64, h.bins)
	ps := make([]float64, h.bins)
	pj := make([]float64, len(h.Counts))
	for i := range h.bins {
		for j := range h.bins {
			p := h.Counts[i*h.bins+j] / h.N
			pj[i*h.bins+j] = p
			pt[i] += p
			ps[j] += p
		}
	}
	return stat.Entropy(pt), stat.Entropy(ps), stat.Entropy(pj)
}

// MutualInformation returns MI and NMI.
func (h *JointHistogram[S, T]) MutualInformation() (mi, nmi float64) {
	ht, hs, hj := h.Entropies()
	mi = ht + hs - hj
	if hj > 0 {
		nmi = (ht + hs) / hj
	}
	return mi, nmi
}

// FiducialError returns the mean error fn assigns to the squared distances
// between corresponding target and source points.
func FiducialError(target, source [][3]float64, fn RadialErrorFunction) (float64, error) {
	if len(target) != len(source) {
		return 0, fmt.Errorf("registration: %d target points, %d source points", len(target), len(source))
	}
	if len(target) == 0 {
		return 0, nil
	}
	var sum float64
	for i := range target {
		d := floats.Distance(target[i][:], source[i][:], 2)
		sum += fn.Value(d * d)
	}
	return sum / float64(len(target)), nil
}
