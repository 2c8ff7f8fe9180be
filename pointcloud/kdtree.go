package pointcloud

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// kdPoint is a tree entry that remembers where it sits in the source cloud.
// Distance is squared euclidean.
type kdPoint struct {
	p     r3.Vector
	index int
}

func (k kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	switch d {
	case 0:
		return k.p.X - q.p.X
	case 1:
		return k.p.Y - q.p.Y
	default:
		return k.p.Z - q.p.Z
	}
}

func (k kdPoint) Dims() int { return 3 }

func (k kdPoint) Distance(c kdtree.Comparable) float64 {
	return k.p.Sub(c.(kdPoint).p).Norm2()
}

type kdPoints []kdPoint

func (ps kdPoints) Index(i int) kdtree.Comparable { return ps[i] }
func (ps kdPoints) Len() int                      { return len(ps) }
func (ps kdPoints) Slice(start, end int) kdtree.Interface {
	return ps[start:end]
}

func (ps kdPoints) Pivot(d kdtree.Dim) int {
	p := kdPlane{dim: d, points: ps}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// kdPlane sorts points along a single dimension.
type kdPlane struct {
	dim    kdtree.Dim
	points kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	return p.points[i].Compare(p.points[j], p.dim) < 0
}
func (p kdPlane) Len() int      { return len(p.points) }
func (p kdPlane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	return kdPlane{dim: p.dim, points: p.points[start:end]}
}

// Neighbor is a point found by a KDTree query.
type Neighbor struct {
	Index    int
	Point    r3.Vector
	Distance float64
}

// KDTree answers nearest neighbour queries over a cloud. Indices in results
// refer to the cloud the tree was built from.
type KDTree struct {
	tree   *kdtree.Tree
	points []r3.Vector
}

// NewKDTree builds a tree over the cloud's points.
func NewKDTree(cloud *PointCloud) *KDTree {
	points := cloud.Points()
	entries := make(kdPoints, len(points))
	for i, p := range points {
		entries[i] = kdPoint{p: p, index: i}
	}
	t := &KDTree{points: points}
	if len(entries) > 0 {
		t.tree = kdtree.New(entries, false)
	}
	return t
}

// Size returns the number of points in the tree.
func (t *KDTree) Size() int {
	return len(t.points)
}

func (t *KDTree) collect(heap kdtree.Heap) []Neighbor {
	out := make([]Neighbor, 0, len(heap))
	for _, c := range heap {
		if c.Comparable == nil {
			continue
		}
		kp := c.Comparable.(kdPoint)
		out = append(out, Neighbor{Index: kp.index, Point: kp.p, Distance: math.Sqrt(c.Dist)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].Index < out[j].Index
		}
		return out[i].Distance < out[j].Distance
	})
	return out
}

// KNearest returns up to k points closest to p, nearest first. A query point
// that is part of the cloud is returned as its own nearest neighbour.
func (t *KDTree) KNearest(p r3.Vector, k int) []Neighbor {
	if t.tree == nil || k <= 0 {
		return nil
	}
	keeper := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keeper, kdPoint{p: p, index: -1})
	return t.collect(keeper.Heap)
}

// WithinRadius returns every point within radius of p, nearest first.
func (t *KDTree) WithinRadius(p r3.Vector, radius float64) []Neighbor {
	if t.tree == nil || radius < 0 {
		return nil
	}
	keeper := kdtree.NewDistKeeper(radius * radius)
	t.tree.NearestSet(keeper, kdPoint{p: p, index: -1})
	return t.collect(keeper.Heap)
}

// MeanNeighborDistances returns, for every point, the mean distance to its k
// nearest other points. Clouds with at most one point yield nil.
func (t *KDTree) MeanNeighborDistances(k int) []float64 {
	if len(t.points) < 2 || k <= 0 {
		return nil
	}
	out := make([]float64, len(t.points))
	for i, p := range t.points {
		var sum float64
		var n int
		for _, nb := range t.KNearest(p, k+1) {
			if nb.Index == i {
				continue
			}
			if n == k {
				break
			}
			sum += nb.Distance
			n++
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// NearestNeighborDistances returns, for every point, the distance to the
// closest other point.
func (t *KDTree) NearestNeighborDistances() []float64 {
	return t.MeanNeighborDistances(1)
}
