// Package octree implements kernel.Kernel on top of the uniform octree
// extractor: either the projected voxel skin or the inside cells as boxes.
package octree

import (
	"context"
	"fmt"

	"github.com/chazu/metaball/pkg/extract"
	"github.com/chazu/metaball/pkg/field"
	"github.com/chazu/metaball/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
)

// Compile-time interface check.
var _ kernel.Kernel = (*OctreeKernel)(nil)

// OctreeKernel meshes a field with the octree extractor.
type OctreeKernel struct {
	mode     kernel.Mode
	maxDepth int
	parallel bool
}

// Option configures an OctreeKernel.
type Option func(*OctreeKernel)

// WithMaxDepth overrides the extractor's subdivision cap.
func WithMaxDepth(d int) Option {
	return func(k *OctreeKernel) { k.maxDepth = d }
}

// WithParallel walks the top-level octants concurrently.
func WithParallel() Option {
	return func(k *OctreeKernel) { k.parallel = true }
}

// NewSkin returns a kernel producing the projected voxel skin.
func NewSkin(opts ...Option) *OctreeKernel {
	return newKernel(kernel.ModeSkin, opts)
}

// NewCubes returns a kernel producing one box per inside leaf cell.
func NewCubes(opts ...Option) *OctreeKernel {
	return newKernel(kernel.ModeCubes, opts)
}

func newKernel(mode kernel.Mode, opts []Option) *OctreeKernel {
	k := &OctreeKernel{mode: mode}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Mode implements kernel.Kernel.
func (k *OctreeKernel) Mode() kernel.Mode {
	return k.mode
}

// ToMesh implements kernel.Kernel.
func (k *OctreeKernel) ToMesh(ctx context.Context, s *field.Shape, minSize float64) (*kernel.Mesh, error) {
	opts := extract.Options{MinSize: minSize, MaxDepth: k.maxDepth, Parallel: k.parallel}

	if k.mode == kernel.ModeCubes {
		res, err := extract.Cubify(ctx, s, opts)
		if err != nil {
			return nil, fmt.Errorf("octree: cubify: %w", err)
		}
		tris := make([]sdf.Triangle3, 0, len(res.Cells)*12)
		for _, c := range res.Cells {
			tris = append(tris, extract.BoxTriangles(c)...)
		}
		// Boxes keep flat face normals.
		return kernel.FromTriangles(tris, nil), nil
	}

	res, err := extract.Triangulate(ctx, s, opts)
	if err != nil {
		return nil, fmt.Errorf("octree: triangulate: %w", err)
	}
	m := kernel.FromTriangles(res.Triangles, kernel.OutwardNormal(s))
	m.Approximate = res.Approximate
	return m, nil
}
