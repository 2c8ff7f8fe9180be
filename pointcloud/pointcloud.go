// Package pointcloud defines an ordered point cloud and provides
// the IO, neighbour search and down-sampling used by capture and filtering.
package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PointCloud is an ordered collection of points. Point i keeps its index across
// iteration; operations that change the point set return a new cloud.
type PointCloud struct {
	points []r3.Vector
	data   []Data
	meta   MetaData
}

// New returns an empty PointCloud.
func New() *PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty PointCloud with room for size points.
func NewWithPrealloc(size int) *PointCloud {
	return &PointCloud{
		points: make([]r3.Vector, 0, size),
		data:   make([]Data, 0, size),
		meta:   NewMetaData(),
	}
}

// NewFromPoints builds a cloud of uncolored points.
func NewFromPoints(points []r3.Vector) *PointCloud {
	pc := NewWithPrealloc(len(points))
	for _, p := range points {
		pc.Append(p, NewBasicData())
	}
	return pc
}

// Size returns the number of points in the cloud.
func (pc *PointCloud) Size() int {
	if pc == nil {
		return 0
	}
	return len(pc.points)
}

// MetaData returns the bounds and attribute flags of the cloud.
func (pc *PointCloud) MetaData() MetaData {
	return pc.meta
}

// Append adds a point to the end of the cloud.
func (pc *PointCloud) Append(p r3.Vector, d Data) {
	pc.points = append(pc.points, p)
	pc.data = append(pc.data, d)
	pc.meta.Merge(p, d)
}

// At returns the i-th point and its data.
func (pc *PointCloud) At(i int) (r3.Vector, Data) {
	return pc.points[i], pc.data[i]
}

// Iterate calls fn on every point in order until fn returns false.
func (pc *PointCloud) Iterate(fn func(i int, p r3.Vector, d Data) bool) {
	for i, p := range pc.points {
		if !fn(i, p, pc.data[i]) {
			return
		}
	}
}

// Points returns a copy of the point positions.
func (pc *PointCloud) Points() []r3.Vector {
	return append([]r3.Vector(nil), pc.points...)
}

// Clone returns a deep copy of the cloud.
func (pc *PointCloud) Clone() *PointCloud {
	return &PointCloud{
		points: append([]r3.Vector(nil), pc.points...),
		data:   append([]Data(nil), pc.data...),
		meta:   pc.meta,
	}
}

// Subset returns a new cloud holding the points at the given indices, in order.
func (pc *PointCloud) Subset(indices []int) *PointCloud {
	out := NewWithPrealloc(len(indices))
	for _, i := range indices {
		out.Append(pc.points[i], pc.data[i])
	}
	return out
}

// Translate returns a copy of the cloud moved by delta.
func (pc *PointCloud) Translate(delta r3.Vector) *PointCloud {
	out := NewWithPrealloc(pc.Size())
	for i, p := range pc.points {
		out.Append(p.Add(delta), pc.data[i])
	}
	return out
}

// TranslateToFirstOctant moves the cloud so its bounding box starts at the origin.
func (pc *PointCloud) TranslateToFirstOctant() *PointCloud {
	if pc.Size() == 0 {
		return pc.Clone()
	}
	return pc.Translate(pc.meta.Min().Mul(-1))
}

// CameraFlip is the transform that turns camera coordinates (y down, z forward)
// into a y up, z toward the viewer frame.
func CameraFlip() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, -1, 0,
		0, 0, 0, 1,
	})
}

// Transform applies a 4x4 homogeneous transform to every point. Normals are
// rotated by the upper 3x3 block and re-normalized.
func (pc *PointCloud) Transform(m mat.Matrix) (*PointCloud, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return nil, errors.Errorf("transform must be 4x4, got %dx%d", r, c)
	}
	apply := func(v r3.Vector, w float64) r3.Vector {
		return r3.Vector{
			X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z + m.At(0, 3)*w,
			Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z + m.At(1, 3)*w,
			Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z + m.At(2, 3)*w,
		}
	}
	out := NewWithPrealloc(pc.Size())
	for i, p := range pc.points {
		d := pc.data[i]
		if d.HasNormal() {
			n := apply(d.Normal(), 0)
			if n.Norm() > 0 {
				n = n.Normalize()
			}
			d = d.WithNormal(n)
		}
		out.Append(apply(p, 1), d)
	}
	return out, nil
}
