package mesh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// WritePLY writes the mesh as binary little endian PLY with double precision
// vertices, optional nx ny nz normals and a uint32 index list per face.
func WritePLY(m *Mesh, out io.Writer) error {
	if err := m.Validate(); err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	hasNormals := m.HasNormals()

	fmt.Fprintf(w, "ply\nformat binary_little_endian 1.0\n")
	fmt.Fprintf(w, "element vertex %d\n", len(m.Vertices))
	fmt.Fprintf(w, "property double x\nproperty double y\nproperty double z\n")
	if hasNormals {
		fmt.Fprintf(w, "property double nx\nproperty double ny\nproperty double nz\n")
	}
	fmt.Fprintf(w, "element face %d\n", len(m.Triangles))
	fmt.Fprintf(w, "property list uchar uint vertex_indices\nend_header\n")

	buf := make([]byte, 8)
	putVec := func(v r3.Vector) error {
		for _, f := range []float64{v.X, v.Y, v.Z} {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
		return nil
	}
	for i, v := range m.Vertices {
		if err := putVec(v); err != nil {
			return err
		}
		if hasNormals {
			if err := putVec(m.Normals[i]); err != nil {
				return err
			}
		}
	}
	face := make([]byte, 13)
	face[0] = 3
	for _, t := range m.Triangles {
		for j, idx := range t {
			binary.LittleEndian.PutUint32(face[1+4*j:], uint32(idx))
		}
		if _, err := w.Write(face); err != nil {
			return err
		}
	}
	return w.Flush()
}

func plyElements(in io.Reader) (vertices, faces []goply.PlyElement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("malformed PLY: %v", r)
		}
	}()
	ply := goply.New(in)
	return ply.Elements("vertex"), ply.Elements("face"), nil
}

func plyFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		i, ok := plyInt(v)
		return float64(i), ok
	}
}

func plyInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case uint8:
		return int(n), true
	case int8:
		return int(n), true
	case uint16:
		return int(n), true
	case int16:
		return int(n), true
	case uint32:
		return int(n), true
	case int32:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func plyVec(e map[string]interface{}, kx, ky, kz string) (r3.Vector, bool) {
	x, okX := plyFloat(e[kx])
	y, okY := plyFloat(e[ky])
	z, okZ := plyFloat(e[kz])
	return r3.Vector{X: x, Y: y, Z: z}, okX && okY && okZ
}

// ReadPLY reads a triangle mesh. Faces with more than three vertices are fanned
// into triangles.
func ReadPLY(in io.Reader) (*Mesh, error) {
	vertices, faces, err := plyElements(in)
	if err != nil {
		return nil, err
	}

	m := &Mesh{Vertices: make([]r3.Vector, 0, len(vertices))}
	hasNormals := len(vertices) > 0
	normals := make([]r3.Vector, 0, len(vertices))
	for i, v := range vertices {
		p, ok := plyVec(v, "x", "y", "z")
		if !ok {
			return nil, errors.Errorf("vertex %d has no numeric x y z", i)
		}
		m.Vertices = append(m.Vertices, p)
		if n, ok := plyVec(v, "nx", "ny", "nz"); ok {
			normals = append(normals, n)
		} else {
			hasNormals = false
		}
	}
	if hasNormals {
		m.Normals = normals
	}

	for i, f := range faces {
		raw, ok := f["vertex_indices"].([]interface{})
		if !ok {
			raw, ok = f["vertex_index"].([]interface{})
		}
		if !ok || len(raw) < 3 {
			return nil, errors.Errorf("face %d has no vertex index list", i)
		}
		idx := make([]int, len(raw))
		for j, r := range raw {
			if idx[j], ok = plyInt(r); !ok {
				return nil, errors.Errorf("face %d has a non-integer index %v", i, r)
			}
		}
		for j := 1; j+1 < len(idx); j++ {
			m.Triangles = append(m.Triangles, Triangle{idx[0], idx[j], idx[j+1]})
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteToPLYFile writes the mesh to fn.
func WriteToPLYFile(m *Mesh, fn string) (err error) {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WritePLY(m, f)
}

// NewFromPLYFile reads a mesh from fn.
func NewFromPLYFile(fn string) (*Mesh, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return ReadPLY(bufio.NewReader(f))
}
