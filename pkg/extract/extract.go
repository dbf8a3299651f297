// Package extract walks a uniform octree over a field's bounding box and
// emits surface geometry from the leaf cells whose center lies inside the
// isosurface.
//
// Two outputs are supported: the inside leaf cells themselves (Cubify) and
// a triangulated skin of boundary-facing cell faces whose vertices are
// projected onto the isosurface (Triangulate). The skin is a best-effort
// approximation: faces are culled by sampling the neighboring cell center,
// which can keep spurious faces in concave regions and gives no manifold
// guarantee.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/metaball/pkg/field"
	"github.com/deadsy/sdfx/sdf"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxDepth caps subdivision when Options.MaxDepth is unset.
const DefaultMaxDepth = 10

// ctxCheckInterval is how many cells are visited between context checks.
const ctxCheckInterval = 4096

// ErrInvalidResolution is returned for a non-positive or non-finite MinSize.
var ErrInvalidResolution = errors.New("extract: min size must be positive and finite")

// Options controls the octree walk.
type Options struct {
	// MinSize is the leaf resolution: cells whose largest extent exceeds
	// it are split into octants.
	MinSize float64
	// MaxDepth caps subdivision. Cells at this depth are leaves regardless
	// of their size. Zero means DefaultMaxDepth.
	MaxDepth int
	// Parallel walks the eight top-level octants concurrently. Output is
	// identical to the sequential walk.
	Parallel bool
}

func (o Options) validate() (Options, error) {
	if !(o.MinSize > 0) || math.IsInf(o.MinSize, 0) {
		return o, fmt.Errorf("%w: got %v", ErrInvalidResolution, o.MinSize)
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o, nil
}

// Result holds the geometry produced by one extraction pass.
type Result struct {
	// Triangles is the projected skin (Triangulate only).
	Triangles []sdf.Triangle3
	// Cells are the inside leaf boxes (Cubify only).
	Cells []sdf.Box3
	// Leaves is the number of leaf cells sampled.
	Leaves int
	// Approximate counts triangle vertices whose projection did not
	// converge; they are kept at their best-effort position.
	Approximate int
	// DepthCapped is set when MaxDepth stopped subdivision before MinSize.
	DepthCapped bool
}

func (r *Result) merge(o *Result) {
	r.Triangles = append(r.Triangles, o.Triangles...)
	r.Cells = append(r.Cells, o.Cells...)
	r.Leaves += o.Leaves
	r.Approximate += o.Approximate
	r.DepthCapped = r.DepthCapped || o.DepthCapped
}

// leafFunc emits geometry for a leaf cell whose center is inside.
type leafFunc func(s *field.Shape, box sdf.Box3, out *Result)

// Triangulate extracts a triangulated skin of the shape's isosurface.
func Triangulate(ctx context.Context, s *field.Shape, opts Options) (*Result, error) {
	return run(ctx, s, opts, emitSkin)
}

// Cubify returns the leaf cells whose center lies inside the isosurface.
func Cubify(ctx context.Context, s *field.Shape, opts Options) (*Result, error) {
	return run(ctx, s, opts, emitCell)
}

func emitCell(_ *field.Shape, box sdf.Box3, out *Result) {
	out.Cells = append(out.Cells, box)
}

// cell is one entry of the octree work-list.
type cell struct {
	box   sdf.Box3
	depth int
}

func run(ctx context.Context, s *field.Shape, opts Options, leaf leafFunc) (*Result, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	if s == nil || s.Len() == 0 {
		return &Result{}, nil
	}

	root := cell{box: s.Bounds()}
	if !opts.Parallel || isLeaf(root, opts) {
		return walk(ctx, s, root, opts, leaf)
	}

	octants := split(root)
	parts := make([]*Result, len(octants))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range octants {
		i, c := i, c
		g.Go(func() error {
			r, err := walk(gctx, s, c, opts, leaf)
			if err != nil {
				return err
			}
			parts[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{}
	for _, r := range parts {
		out.merge(r)
	}
	return out, nil
}

// walk visits the subtree under start depth-first, octants in index order,
// using an explicit stack instead of recursion.
func walk(ctx context.Context, s *field.Shape, start cell, opts Options, leaf leafFunc) (*Result, error) {
	out := &Result{}
	stack := []cell{start}
	visited := 0

	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		visited++
		if visited%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("extract: %w", err)
			}
		}

		if !isLeaf(c, opts) {
			children := split(c)
			// Push in reverse so octant 0 is popped first.
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
			continue
		}

		if c.depth >= opts.MaxDepth && c.box.Size().MaxComponent() > opts.MinSize {
			out.DepthCapped = true
		}
		out.Leaves++
		if s.Inside(c.box.Center()) {
			leaf(s, c.box, out)
		}
	}
	return out, nil
}

func isLeaf(c cell, opts Options) bool {
	return c.depth >= opts.MaxDepth || c.box.Size().MaxComponent() <= opts.MinSize
}

// split partitions a cell into its eight octants. Bit 2 of the index
// selects the upper x half, bit 1 y, bit 0 z.
func split(c cell) [8]cell {
	bmin, bmax, mid := c.box.Min, c.box.Max, c.box.Center()
	var out [8]cell
	for i := range out {
		lo, hi := bmin, mid
		if i&0b100 != 0 {
			lo.X, hi.X = mid.X, bmax.X
		}
		if i&0b010 != 0 {
			lo.Y, hi.Y = mid.Y, bmax.Y
		}
		if i&0b001 != 0 {
			lo.Z, hi.Z = mid.Z, bmax.Z
		}
		out[i] = cell{box: sdf.Box3{Min: lo, Max: hi}, depth: c.depth + 1}
	}
	return out
}
