package voxel

import (
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"voxeltk/pkg/volume"
)

// DefaultScheduler is used by the package-level Parallel functions.
var DefaultScheduler = &Scheduler{}

// Scheduler runs traversals in parallel.
//
// Each call partitions the traversal's ranges into leaves of at most Grain
// voxels and starts up to Workers goroutines that claim leaves through a
// shared atomic cursor, so fast workers steal the remaining leaves of slow
// ones. A call blocks until every leaf has been visited. Reductions get one
// fork per worker; the forks are joined into the caller's body in worker
// order after all workers returned, on the calling goroutine.
//
// A Scheduler holds no state between calls and is safe for concurrent use.
// A nil *Scheduler runs on DefaultScheduler.
type Scheduler struct {
	// Workers is the maximum number of goroutines per call.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int

	// Grain is the maximum number of voxels per leaf. Zero picks a grain that
	// gives every worker about eight leaves.
	Grain int

	// Logger receives a debug record per call. Nil means slog.Default().
	Logger *slog.Logger
}

func (s *Scheduler) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (s *Scheduler) grain(n, workers int) int {
	if s.Grain > 0 {
		return s.Grain
	}
	return max(n/(workers*8), 1)
}

func (s *Scheduler) logger() *slog.Logger {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", "voxel"))
}

// ForEachScalar is the parallel version of ForEachScalar.
func (s *Scheduler) ForEachScalar(b Body) error {
	p, err := scalarPlan(b)
	if err != nil {
		return err
	}
	s.run(p, b)
	return nil
}

// ForEachVoxel is the parallel version of ForEachVoxel.
func (s *Scheduler) ForEachVoxel(b Body) error {
	p, err := voxelPlan(b)
	if err != nil {
		return err
	}
	s.run(p, b)
	return nil
}

// ForEachVoxelAttr is the parallel version of ForEachVoxelAttr. The frames
// share one fork-join region.
func (s *Scheduler) ForEachVoxelAttr(attr volume.Attributes, b Body) error {
	p, err := attrPlan(attr, b)
	if err != nil {
		return err
	}
	s.run(p, b)
	return nil
}

// ForEachInRange is the parallel version of ForEachInRange.
func (s *Scheduler) ForEachInRange(b Body, r Range) error {
	p, err := rangePlan(b, r)
	if err != nil {
		return err
	}
	s.run(p, b)
	return nil
}

func (s *Scheduler) run(p plan, b Body) {
	if s == nil {
		s = DefaultScheduler
	}
	start := time.Now()
	workers := s.workers()
	grain := s.grain(p.len(), workers)

	var leaves []Range
	for _, r := range p.roots {
		leaves = append(leaves, Partition(r, grain)...)
	}
	workers = max(min(workers, len(leaves)), 1)

	if workers == 1 {
		p.run(b)
	} else {
		s.fork(p, b, leaves, workers)
	}

	s.logger().Debug("parallel traversal",
		slog.Int("voxels", p.len()),
		slog.Int("leaves", len(leaves)),
		slog.Int("workers", workers),
		slog.Bool("reduction", b.IsReduction()),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// fork visits leaves on workers goroutines and joins reduction forks back
// into b in worker order.
func (s *Scheduler) fork(p plan, b Body, leaves []Range, workers int) {
	forks := make([]Body, workers)
	var next atomic.Int64
	var g errgroup.Group
	for w := range workers {
		fork := b.Fork()
		forks[w] = fork
		g.Go(func() error {
			for {
				i := int(next.Add(1)) - 1
				if i >= len(leaves) {
					return nil
				}
				leaves[i].walk(p.attr, fork.Visit)
			}
		})
	}
	// Workers never fail; Wait is the join point.
	_ = g.Wait()

	if b.IsReduction() {
		for _, fork := range forks {
			b.Join(fork)
		}
	}
}
