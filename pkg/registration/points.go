package registration

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// point is a 3D point that remembers its position in the input set.
type point struct {
	p [3]float64
	i int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.p[d] - c.(point).p[d]
}

func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx, dy, dz := p.p[0]-q.p[0], p.p[1]-q.p[1], p.p[2]-q.p[2]
	return dx*dx + dy*dy + dz*dz
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p points) Pivot(d kdtree.Dim) int {
	pl := plane{points: p, Dim: d}
	return kdtree.Partition(pl, kdtree.MedianOfRandoms(pl, 100))
}

// plane sorts points along one dimension.
type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool { return p.points[i].p[p.Dim] < p.points[j].p[p.Dim] }
func (p plane) Swap(i, j int)      { p.points[i], p.points[j] = p.points[j], p.points[i] }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

// PointLocator finds the closest point of a fixed point set.
type PointLocator struct {
	tree *kdtree.Tree
	n    int
}

// NewPointLocator indexes pts. The slice is copied and may be reused.
func NewPointLocator(pts [][3]float64) *PointLocator {
	set := make(points, len(pts))
	for i, p := range pts {
		set[i] = point{p: p, i: i}
	}
	l := &PointLocator{n: len(pts)}
	if len(set) > 0 {
		l.tree = kdtree.New(set, false)
	}
	return l
}

// Len returns the number of indexed points.
func (l *PointLocator) Len() int { return l.n }

// Nearest returns the index of the point closest to q and the squared
// distance to it, or -1 if the set is empty.
func (l *PointLocator) Nearest(q [3]float64) (int, float64) {
	if l.tree == nil {
		return -1, 0
	}
	c, d := l.tree.Nearest(point{p: q})
	return c.(point).i, d
}

// ClosestPointError is the mean radial error between every source point
// and its closest target point. Unlike FiducialError the two sets need not
// correspond or be of equal size.
func ClosestPointError(target, source [][3]float64, fn RadialErrorFunction) (float64, error) {
	if len(target) == 0 {
		return 0, fmt.Errorf("registration: empty target point set")
	}
	if len(source) == 0 {
		return 0, nil
	}
	l := NewPointLocator(target)
	var sum float64
	for _, p := range source {
		_, d := l.Nearest(p)
		sum += fn.Value(d)
	}
	return sum / float64(len(source)), nil
}
