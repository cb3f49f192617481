// Package voxel applies per-voxel functions across one, two or three
// co-registered images, sequentially or in parallel, optionally restricted
// to a domain and optionally reducing per-worker partial results.
//
// A traversal is built in two steps. First the operands and the function are
// bound into a Body:
//
//	body := voxel.Binary(voxel.In(src), voxel.Out(dst), voxel.Func2Of[float32, float32](
//		func(v voxel.Index, in, out *float32) {
//			*out = 2 * *in
//		}))
//
// Then a dispatch function walks the address space of the reference image
// (the last operand) and calls the function once per voxel:
//
//	err := voxel.ParallelForEachVoxel(body)
//
// Functions that accumulate state declare themselves reductions by
// returning true from IsReduction (embed Reduction) and implement
// Reducer. Every parallel worker then runs on its own copy created by Split,
// and the copies are joined into the caller's function once all workers are
// done. Reductions must be passed as pointers, otherwise the merged result
// would be lost; dispatch returns ErrReductionByValue in that case.
//
// Masked traversals route each voxel either to an inside body or an outside
// body depending on a Domain predicate evaluated on the reference image:
//
//	err := voxel.ForEachVoxelIf[voxel.Foreground](inside, nil)
package voxel
