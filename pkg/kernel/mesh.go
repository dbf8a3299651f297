package kernel

import (
	"fmt"

	"github.com/chazu/metaball/pkg/field"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
// Vertices are not shared between triangles.
type Mesh struct {
	Vertices    []float32 `json:"vertices"`    // [x0,y0,z0, x1,y1,z1, ...]
	Normals     []float32 `json:"normals"`     // [nx0,ny0,nz0, ...]
	Indices     []uint32  `json:"indices"`     // [i0,i1,i2, ...] triangles
	PartName    string    `json:"partName"`    // which scene blob this came from
	Approximate int       `json:"approximate"` // vertices left off the surface
}

// NormalFunc returns the surface normal at p, or false if undefined there.
type NormalFunc func(p v3.Vec) (v3.Vec, bool)

// OutwardNormal returns a NormalFunc pointing out of the shape's surface,
// against the direction of increasing influence.
func OutwardNormal(s *field.Shape) NormalFunc {
	return func(p v3.Vec) (v3.Vec, bool) {
		g, ok := s.Gradient(p)
		if !ok {
			return v3.Vec{}, false
		}
		return g.Neg(), true
	}
}

// FromTriangles flattens triangles into a Mesh. Per-vertex normals come
// from normal when it is non-nil and defined; otherwise the face normal
// is used.
func FromTriangles(tris []sdf.Triangle3, normal NormalFunc) *Mesh {
	m := &Mesh{
		Vertices: make([]float32, 0, len(tris)*9),
		Normals:  make([]float32, 0, len(tris)*9),
		Indices:  make([]uint32, 0, len(tris)*3),
	}

	for i, tri := range tris {
		face := faceNormal(tri)
		for j := 0; j < 3; j++ {
			v := tri[j]
			n := face
			if normal != nil {
				if vn, ok := normal(v); ok {
					n = vn
				}
			}
			m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
			m.Normals = append(m.Normals, float32(n.X), float32(n.Y), float32(n.Z))
			m.Indices = append(m.Indices, uint32(i*3+j))
		}
	}
	return m
}

// faceNormal returns the unit normal of tri, or zero if it is degenerate.
func faceNormal(tri sdf.Triangle3) v3.Vec {
	n := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))
	l := n.Length()
	if l == 0 {
		return v3.Vec{}
	}
	return n.DivScalar(l)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Triangles rebuilds the triangle list from the flat arrays.
func (m *Mesh) Triangles() []*sdf.Triangle3 {
	tris := make([]*sdf.Triangle3, 0, m.TriangleCount())
	vert := func(i uint32) v3.Vec {
		return v3.Vec{
			X: float64(m.Vertices[i*3]),
			Y: float64(m.Vertices[i*3+1]),
			Z: float64(m.Vertices[i*3+2]),
		}
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		tris = append(tris, &sdf.Triangle3{
			vert(m.Indices[i]), vert(m.Indices[i+1]), vert(m.Indices[i+2]),
		})
	}
	return tris
}

// SaveSTL writes the mesh as a binary STL file.
func (m *Mesh) SaveSTL(path string) error {
	if err := render.SaveSTL(path, m.Triangles()); err != nil {
		return fmt.Errorf("kernel: save %s: %w", path, err)
	}
	return nil
}
