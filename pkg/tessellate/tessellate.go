// Package tessellate walks a scene and produces triangle meshes using a
// geometry kernel. One mesh is produced per blob.
package tessellate

import (
	"context"
	"fmt"

	"github.com/chazu/metaball/pkg/kernel"
	"github.com/chazu/metaball/pkg/kernel/octree"
	"github.com/chazu/metaball/pkg/kernel/sdfx"
	"github.com/chazu/metaball/pkg/scene"
)

// KernelFor returns the kernel implementing mode. Octree kernels fan the
// top-level octants out in parallel.
func KernelFor(mode kernel.Mode) (kernel.Kernel, error) {
	switch mode {
	case kernel.ModeSkin:
		return octree.NewSkin(octree.WithParallel()), nil
	case kernel.ModeCubes:
		return octree.NewCubes(octree.WithParallel()), nil
	case kernel.ModeMarching:
		return sdfx.New(), nil
	}
	return nil, fmt.Errorf("tessellate: unknown mode %q", mode)
}

// Scene tessellates sc with the kernel named by its settings.
func Scene(ctx context.Context, sc *scene.Scene) ([]*kernel.Mesh, error) {
	if sc == nil {
		return nil, nil
	}
	k, err := KernelFor(sc.Settings.Mode)
	if err != nil {
		return nil, err
	}
	return Tessellate(ctx, sc, k)
}

// Tessellate produces one mesh per blob, in blob order, using k at the
// scene's resolution. Empty blobs yield empty meshes. The scene is never
// mutated.
func Tessellate(ctx context.Context, sc *scene.Scene, k kernel.Kernel) ([]*kernel.Mesh, error) {
	if sc == nil {
		return nil, nil
	}

	meshes := make([]*kernel.Mesh, 0, len(sc.Blobs))
	for _, b := range sc.Blobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		shape, err := b.Shape()
		if err != nil {
			return nil, fmt.Errorf("tessellate: %w", err)
		}
		mesh, err := k.ToMesh(ctx, shape, sc.Settings.MinSize)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for blob %q: %w", b.Name, err)
		}
		mesh.PartName = b.Name
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}
