// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx marching cubes renderer. The metaball Shape is an
// sdf.SDF3 whose value is the threshold offset, so sdfx polygonizes its
// zero level set directly.
package sdfx

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/metaball/pkg/field"
	"github.com/chazu/metaball/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// maxMeshCells bounds the marching cubes grid along the longest axis.
const maxMeshCells = 400

// SdfxKernel implements kernel.Kernel using sdfx marching cubes.
type SdfxKernel struct{}

// New returns a new SdfxKernel.
func New() *SdfxKernel {
	return &SdfxKernel{}
}

// Mode implements kernel.Kernel.
func (k *SdfxKernel) Mode() kernel.Mode {
	return kernel.ModeMarching
}

// meshCells converts a leaf size into a cell count along the longest axis.
func meshCells(s *field.Shape, minSize float64) (int, error) {
	if !(minSize > 0) || math.IsInf(minSize, 0) {
		return 0, fmt.Errorf("sdfx: min size must be positive and finite, got %v", minSize)
	}
	n := int(math.Ceil(s.Bounds().Size().MaxComponent() / minSize))
	if n < 1 {
		n = 1
	}
	if n > maxMeshCells {
		n = maxMeshCells
	}
	return n, nil
}

// ToMesh converts the shape's isosurface to a triangle mesh using marching
// cubes on a uniform grid with cells about minSize wide. Vertex normals
// come from the field gradient, falling back to the face normal.
func (k *SdfxKernel) ToMesh(ctx context.Context, s *field.Shape, minSize float64) (*kernel.Mesh, error) {
	cells, err := meshCells(s, minSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sdfx: %w", err)
	}
	if s.Len() == 0 {
		return &kernel.Mesh{}, nil
	}

	return kernel.FromTriangles(march(s, cells), kernel.OutwardNormal(s)), nil
}

// march polygonizes the shape's zero level set on a cells-wide grid.
func march(s *field.Shape, cells int) []sdf.Triangle3 {
	rendered := render.ToTriangles(s, render.NewMarchingCubesUniform(cells))
	tris := make([]sdf.Triangle3, len(rendered))
	for i, t := range rendered {
		tris[i] = *t
	}
	return tris
}
