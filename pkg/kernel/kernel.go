// Package kernel defines the meshing kernel interface. Implementations
// (the octree skin and cube kernels, the sdfx marching cubes kernel) turn a
// metaball field into a triangle mesh behind this interface, so the
// extractor can be swapped without changing the rest of the system.
package kernel

import (
	"context"
	"fmt"

	"github.com/chazu/metaball/pkg/field"
)

// Mode names a meshing strategy.
type Mode string

const (
	ModeSkin     Mode = "skin"     // octree voxel skin projected onto the surface
	ModeCubes    Mode = "cubes"    // inside octree cells as boxes
	ModeMarching Mode = "marching" // sdfx marching cubes
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSkin, ModeCubes, ModeMarching:
		return m, nil
	}
	return "", fmt.Errorf("kernel: unknown mode %q, expected skin, cubes or marching", s)
}

// Kernel is the abstract meshing kernel interface.
type Kernel interface {
	// Mode reports which strategy the kernel implements.
	Mode() Mode
	// ToMesh polygonizes the shape's isosurface at the given resolution.
	ToMesh(ctx context.Context, s *field.Shape, minSize float64) (*Mesh, error)
}
