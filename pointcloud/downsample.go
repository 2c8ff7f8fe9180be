package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

type voxelKey struct {
	i, j, k int64
}

type voxelAccumulator struct {
	sum     r3.Vector
	count   int
	normal  r3.Vector
	normals int
	r, g, b float64
	colors  int
}

func (acc *voxelAccumulator) add(p r3.Vector, d Data) {
	acc.sum = acc.sum.Add(p)
	acc.count++
	if d.HasNormal() {
		acc.normal = acc.normal.Add(d.Normal())
		acc.normals++
	}
	if d.HasColor() {
		c := d.Color()
		acc.r += float64(c.R)
		acc.g += float64(c.G)
		acc.b += float64(c.B)
		acc.colors++
	}
}

func (acc *voxelAccumulator) point() (r3.Vector, Data) {
	d := NewBasicData()
	if acc.normals > 0 {
		n := acc.normal.Mul(1 / float64(acc.normals))
		if norm := n.Norm(); norm > 0 {
			n = n.Mul(1 / norm)
		}
		d = d.WithNormal(n)
	}
	if acc.colors > 0 {
		k := float64(acc.colors)
		d = d.WithColor(color.NRGBA{
			R: uint8(math.Round(acc.r / k)),
			G: uint8(math.Round(acc.g / k)),
			B: uint8(math.Round(acc.b / k)),
			A: 255,
		})
	}
	return acc.sum.Mul(1 / float64(acc.count)), d
}

// VoxelDownsample replaces all points falling in the same cubic voxel of edge
// leafSize by their centroid. Voxels are aligned to the minimum corner of the
// cloud. Normals and colours of a voxel are averaged, and averaged normals are
// renormalized.
func VoxelDownsample(cloud *PointCloud, leafSize float64) (*PointCloud, error) {
	if leafSize <= 0 {
		return nil, errors.Errorf("voxel size must be positive, got %v", leafSize)
	}
	if cloud.Size() == 0 {
		return New(), nil
	}
	origin := cloud.MetaData().Min()
	voxels := map[voxelKey]*voxelAccumulator{}
	var order []voxelKey
	cloud.Iterate(func(_ int, p r3.Vector, d Data) bool {
		rel := p.Sub(origin)
		key := voxelKey{
			i: int64(math.Floor(rel.X / leafSize)),
			j: int64(math.Floor(rel.Y / leafSize)),
			k: int64(math.Floor(rel.Z / leafSize)),
		}
		acc, ok := voxels[key]
		if !ok {
			acc = &voxelAccumulator{}
			voxels[key] = acc
			order = append(order, key)
		}
		acc.add(p, d)
		return true
	})

	out := NewWithPrealloc(len(order))
	for _, key := range order {
		out.Append(voxels[key].point())
	}
	return out, nil
}

// UniformDownsample keeps every k-th point starting with the first.
func UniformDownsample(cloud *PointCloud, every int) (*PointCloud, error) {
	if every < 1 {
		return nil, errors.Errorf("every_k_points must be at least 1, got %d", every)
	}
	indices := make([]int, 0, cloud.Size()/every+1)
	for i := 0; i < cloud.Size(); i += every {
		indices = append(indices, i)
	}
	return cloud.Subset(indices), nil
}
