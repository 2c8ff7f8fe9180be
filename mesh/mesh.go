// Package mesh holds the triangle mesh produced by surface reconstruction.
package mesh

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/capturescene/capturescene/pointcloud"
)

// Triangle is a face given as three vertex indices.
type Triangle [3]int

// Mesh is an indexed triangle mesh. Normals, when present, has one entry per vertex.
type Mesh struct {
	Vertices  []r3.Vector
	Triangles []Triangle
	Normals   []r3.Vector
}

// New validates the triangle indices and returns a mesh without normals.
func New(vertices []r3.Vector, triangles []Triangle) (*Mesh, error) {
	m := &Mesh{Vertices: vertices, Triangles: triangles}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// FromPointCloud returns a mesh with the cloud's points as vertices and no faces.
func FromPointCloud(cloud *pointcloud.PointCloud) *Mesh {
	m := &Mesh{Vertices: cloud.Points()}
	if cloud.MetaData().HasNormal {
		m.Normals = make([]r3.Vector, 0, cloud.Size())
		cloud.Iterate(func(_ int, _ r3.Vector, d pointcloud.Data) bool {
			m.Normals = append(m.Normals, d.Normal())
			return true
		})
	}
	return m
}

// Validate checks that every triangle refers to existing vertices and that
// normals match the vertex count.
func (m *Mesh) Validate() error {
	for i, t := range m.Triangles {
		for _, idx := range t {
			if idx < 0 || idx >= len(m.Vertices) {
				return errors.Errorf("triangle %d refers to vertex %d of %d", i, idx, len(m.Vertices))
			}
		}
	}
	if m.Normals != nil && len(m.Normals) != len(m.Vertices) {
		return errors.Errorf("mesh has %d normals for %d vertices", len(m.Normals), len(m.Vertices))
	}
	return nil
}

// NumVertices returns the vertex count.
func (m *Mesh) NumVertices() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

// NumTriangles returns the face count.
func (m *Mesh) NumTriangles() int {
	if m == nil {
		return 0
	}
	return len(m.Triangles)
}

// HasNormals reports whether per-vertex normals are present.
func (m *Mesh) HasNormals() bool {
	return len(m.Normals) > 0 && len(m.Normals) == len(m.Vertices)
}

// Bounds returns the corners of the axis aligned bounding box. An empty mesh
// has zero bounds.
func (m *Mesh) Bounds() (r3.Vector, r3.Vector) {
	if len(m.Vertices) == 0 {
		return r3.Vector{}, r3.Vector{}
	}
	lo := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, v := range m.Vertices {
		lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi
}

// Translate returns a copy of the mesh moved by delta.
func (m *Mesh) Translate(delta r3.Vector) *Mesh {
	out := &Mesh{
		Vertices:  make([]r3.Vector, len(m.Vertices)),
		Triangles: append([]Triangle(nil), m.Triangles...),
		Normals:   append([]r3.Vector(nil), m.Normals...),
	}
	for i, v := range m.Vertices {
		out.Vertices[i] = v.Add(delta)
	}
	return out
}

// TranslateToFirstOctant moves the mesh so its bounding box starts at the origin.
func (m *Mesh) TranslateToFirstOctant() *Mesh {
	lo, _ := m.Bounds()
	return m.Translate(lo.Mul(-1))
}

// faceNormal is the unnormalized normal of a face; its length is twice the area.
func (m *Mesh) faceNormal(t Triangle) r3.Vector {
	p0, p1, p2 := m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
	return p1.Sub(p0).Cross(p2.Sub(p0))
}

// ComputeVertexNormals returns a copy of the mesh whose normals are the area
// weighted average of the adjacent face normals. Vertices not used by any
// face get the zero vector.
func (m *Mesh) ComputeVertexNormals() *Mesh {
	normals := make([]r3.Vector, len(m.Vertices))
	for _, t := range m.Triangles {
		n := m.faceNormal(t)
		for _, idx := range t {
			normals[idx] = normals[idx].Add(n)
		}
	}
	for i, n := range normals {
		if n.Norm() > 0 {
			normals[i] = n.Normalize()
		}
	}
	return &Mesh{
		Vertices:  append([]r3.Vector(nil), m.Vertices...),
		Triangles: append([]Triangle(nil), m.Triangles...),
		Normals:   normals,
	}
}

// SurfaceArea returns the total area of all faces.
func (m *Mesh) SurfaceArea() float64 {
	var area float64
	for _, t := range m.Triangles {
		area += m.faceNormal(t).Norm() / 2
	}
	return area
}
