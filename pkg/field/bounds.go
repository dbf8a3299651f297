package field

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ sdf.SDF3 = (*Shape)(nil)

// Bounds returns the axis-aligned box enclosing every point of nonzero
// influence: the source extents padded by SupportRadius on each side.
// An empty shape yields [-1,1] on every axis.
func (s *Shape) Bounds() sdf.Box3 {
	if len(s.sources) == 0 {
		pad := v3.Vec{X: SupportRadius, Y: SupportRadius, Z: SupportRadius}
		return sdf.Box3{Min: pad.Neg(), Max: pad}
	}

	min := v3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := v3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, src := range s.sources {
		min = min.Min(src.Pos)
		max = max.Max(src.Pos)
	}

	pad := v3.Vec{X: SupportRadius, Y: SupportRadius, Z: SupportRadius}
	return sdf.Box3{Min: min.Sub(pad), Max: max.Add(pad)}
}

// Evaluate implements sdf.SDF3. The value is Threshold minus the influence,
// so it is negative inside the isosurface and zero on it. It is not a true
// distance, only a sign-correct level function.
func (s *Shape) Evaluate(p v3.Vec) float64 {
	return Threshold - s.Influence(p)
}

// BoundingBox implements sdf.SDF3.
func (s *Shape) BoundingBox() sdf.Box3 {
	return s.Bounds()
}
