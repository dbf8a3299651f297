package extract

import (
	"math"

	"github.com/chazu/metaball/pkg/field"
	"github.com/chazu/metaball/pkg/surface"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// cubeFaces lists the 12 triangles of a cell as corner indices, two per
// face, wound so the face normal points out of the cell. Corner index bits
// follow split: bit 2 = +x, bit 1 = +y, bit 0 = +z.
var cubeFaces = [12][3]int{
	{0b000, 0b001, 0b010}, {0b010, 0b001, 0b011}, // -x
	{0b100, 0b110, 0b101}, {0b110, 0b111, 0b101}, // +x
	{0b000, 0b100, 0b001}, {0b100, 0b101, 0b001}, // -y
	{0b010, 0b011, 0b110}, {0b110, 0b011, 0b111}, // +y
	{0b000, 0b010, 0b100}, {0b100, 0b010, 0b110}, // -z
	{0b001, 0b101, 0b011}, {0b101, 0b111, 0b011}, // +z
}

// cubeCorners returns the 8 corners of box indexed like cubeFaces.
func cubeCorners(box sdf.Box3) [8]v3.Vec {
	var out [8]v3.Vec
	for i := range out {
		p := box.Min
		if i&0b100 != 0 {
			p.X = box.Max.X
		}
		if i&0b010 != 0 {
			p.Y = box.Max.Y
		}
		if i&0b001 != 0 {
			p.Z = box.Max.Z
		}
		out[i] = p
	}
	return out
}

// BoxTriangles returns the 12 outward-wound triangles of box's surface.
func BoxTriangles(box sdf.Box3) []sdf.Triangle3 {
	corners := cubeCorners(box)
	tris := make([]sdf.Triangle3, len(cubeFaces))
	for i, f := range cubeFaces {
		tris[i] = sdf.Triangle3{corners[f[0]], corners[f[1]], corners[f[2]]}
	}
	return tris
}

// emitSkin appends the boundary-facing faces of an inside leaf. A face
// survives when the point one cell width beyond it along its normal is
// outside the isosurface. Survivors have their vertices projected.
func emitSkin(s *field.Shape, box sdf.Box3, out *Result) {
	c := box.Center()
	he := box.Size().MulScalar(0.5)
	corners := cubeCorners(box)

	for _, f := range cubeFaces {
		a, b, d := corners[f[0]], corners[f[1]], corners[f[2]]

		n := b.Sub(a).Cross(d.Sub(a))
		l := n.Length()
		if l == 0 {
			continue
		}
		n = n.DivScalar(l)

		probe := c.Add(n.MulScalar(math.Abs(n.Dot(he)) * 2))
		if s.Inside(probe) {
			continue
		}

		var tri sdf.Triangle3
		for j, v := range [3]v3.Vec{a, b, d} {
			pr := surface.Project(s, v)
			if !pr.Converged {
				out.Approximate++
			}
			tri[j] = pr.Point
		}
		out.Triangles = append(out.Triangles, tri)
	}
}
