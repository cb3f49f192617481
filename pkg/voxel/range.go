package voxel

import "voxeltk/pkg/volume"

// Index locates the voxel passed to a voxel function: its flat offset in the
// reference buffer and its grid coordinates.
type Index struct {
	Offset     int
	X, Y, Z, T int
}

// Range is a splittable set of voxel addresses.
//
// Splitting never loses or duplicates an address, and both halves keep the
// slice or frame the parent belongs to.
type Range interface {
	// Len returns the number of voxels in the range.
	Len() int

	// Split divides the range into two halves of roughly equal size.
	// ok is false when the range cannot be split any further.
	Split() (left, right Range, ok bool)

	walk(a volume.Attributes, visit func(Index))
	within(a volume.Attributes) bool
}

// Interval is a half-open interval [Lo, Hi) along one axis.
type Interval struct {
	Lo, Hi int
}

// Len returns Hi-Lo, or zero for an inverted interval.
func (i Interval) Len() int { return max(i.Hi-i.Lo, 0) }

func (i Interval) halves() (Interval, Interval) {
	mid := i.Lo + i.Len()/2
	return Interval{i.Lo, mid}, Interval{mid, i.Hi}
}

// Flat is a range [Lo, Hi) of flat buffer offsets.
type Flat struct {
	Lo, Hi int
}

// Buffer returns the flat range covering every voxel of the grid.
func Buffer(a volume.Attributes) Flat {
	return Flat{0, a.NumberOfVoxels()}
}

func (r Flat) Len() int { return max(r.Hi-r.Lo, 0) }

func (r Flat) Split() (Range, Range, bool) {
	if r.Len() < 2 {
		return r, nil, false
	}
	mid := r.Lo + r.Len()/2
	return Flat{r.Lo, mid}, Flat{mid, r.Hi}, true
}

func (r Flat) within(a volume.Attributes) bool {
	return r.Lo >= 0 && r.Hi <= a.NumberOfVoxels()
}

func (r Flat) walk(a volume.Attributes, visit func(Index)) {
	if r.Len() == 0 {
		return
	}
	var v Index
	v.X, v.Y, v.Z, v.T = a.Coordinates(r.Lo)
	for v.Offset = r.Lo; v.Offset < r.Hi; v.Offset++ {
		visit(v)
		if v.X++; v.X < a.X {
			continue
		}
		v.X = 0
		if v.Y++; v.Y < a.Y {
			continue
		}
		v.Y = 0
		if v.Z++; v.Z < a.Z {
			continue
		}
		v.Z = 0
		v.T++
	}
}

// Rect is a (row, column) sub-rectangle of the slice at (Z, T).
type Rect struct {
	Rows, Cols Interval
	Z, T       int
}

// Slice returns the rectangle covering slice z of frame t.
func Slice(a volume.Attributes, z, t int) Rect {
	return Rect{Rows: Interval{0, a.Y}, Cols: Interval{0, a.X}, Z: z, T: t}
}

func (r Rect) Len() int { return r.Rows.Len() * r.Cols.Len() }

func (r Rect) Split() (Range, Range, bool) {
	switch {
	case r.Rows.Len() > 1 && r.Rows.Len() >= r.Cols.Len():
		lo, hi := r.Rows.halves()
		a, b := r, r
		a.Rows, b.Rows = lo, hi
		return a, b, true
	case r.Cols.Len() > 1:
		lo, hi := r.Cols.halves()
		a, b := r, r
		a.Cols, b.Cols = lo, hi
		return a, b, true
	}
	return r, nil, false
}

func (r Rect) within(a volume.Attributes) bool {
	return r.Rows.Lo >= 0 && r.Rows.Hi <= a.Y &&
		r.Cols.Lo >= 0 && r.Cols.Hi <= a.X &&
		r.Z >= 0 && r.Z < a.Z && r.T >= 0 && r.T < a.T
}

func (r Rect) walk(a volume.Attributes, visit func(Index)) {
	if r.Len() == 0 {
		return
	}
	rowStride := a.X - r.Cols.Len()
	v := Index{Offset: a.Offset(r.Cols.Lo, r.Rows.Lo, r.Z, r.T), Z: r.Z, T: r.T}
	for v.Y = r.Rows.Lo; v.Y < r.Rows.Hi; v.Y++ {
		for v.X = r.Cols.Lo; v.X < r.Cols.Hi; v.X++ {
			visit(v)
			v.Offset++
		}
		v.Offset += rowStride
	}
}

// Box is a (page, row, column) sub-volume of frame T.
type Box struct {
	Pages, Rows, Cols Interval
	T                 int
}

// Frame returns the box covering the whole frame t.
func Frame(a volume.Attributes, t int) Box {
	return Box{Pages: Interval{0, a.Z}, Rows: Interval{0, a.Y}, Cols: Interval{0, a.X}, T: t}
}

func (r Box) Len() int { return r.Pages.Len() * r.Rows.Len() * r.Cols.Len() }

// Split halves the longest axis. Ties go to the outer axis so that halves
// stay contiguous in memory for as long as possible.
func (r Box) Split() (Range, Range, bool) {
	p, q, c := r.Pages.Len(), r.Rows.Len(), r.Cols.Len()
	a, b := r, r
	switch {
	case p > 1 && p >= q && p >= c:
		a.Pages, b.Pages = r.Pages.halves()
	case q > 1 && q >= c:
		a.Rows, b.Rows = r.Rows.halves()
	case c > 1:
		a.Cols, b.Cols = r.Cols.halves()
	default:
		return r, nil, false
	}
	return a, b, true
}

func (r Box) within(a volume.Attributes) bool {
	return r.Pages.Lo >= 0 && r.Pages.Hi <= a.Z &&
		r.Rows.Lo >= 0 && r.Rows.Hi <= a.Y &&
		r.Cols.Lo >= 0 && r.Cols.Hi <= a.X &&
		r.T >= 0 && r.T < a.T
}

func (r Box) walk(a volume.Attributes, visit func(Index)) {
	if r.Len() == 0 {
		return
	}
	rowStride := a.X - r.Cols.Len()
	pageStride := (a.Y - r.Rows.Len()) * a.X
	v := Index{Offset: a.Offset(r.Cols.Lo, r.Rows.Lo, r.Pages.Lo, r.T), T: r.T}
	for v.Z = r.Pages.Lo; v.Z < r.Pages.Hi; v.Z++ {
		for v.Y = r.Rows.Lo; v.Y < r.Rows.Hi; v.Y++ {
			for v.X = r.Cols.Lo; v.X < r.Cols.Hi; v.X++ {
				visit(v)
				v.Offset++
			}
			v.Offset += rowStride
		}
		v.Offset += pageStride
	}
}

// Partition splits r recursively until every piece holds at most grain
// voxels. The pieces are returned in split order and cover r exactly once.
// A grain below one is treated as one.
func Partition(r Range, grain int) []Range {
	grain = max(grain, 1)
	var leaves []Range
	var split func(Range)
	split = func(r Range) {
		if r.Len() <= grain {
			leaves = append(leaves, r)
			return
		}
		left, right, ok := r.Split()
		if !ok {
			leaves = append(leaves, r)
			return
		}
		split(left)
		split(right)
	}
	split(r)
	return leaves
}
