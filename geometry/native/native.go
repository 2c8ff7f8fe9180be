// Package native implements the point cloud filters in Go on top of a k-d
// tree and gonum statistics. It does not reconstruct meshes.
package native

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/capturescene/capturescene/geometry"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/pointcloud"
)

// Backend is a geometry.Geometry whose reconstructions return geometry.ErrUnsupported.
type Backend struct {
	logger logging.Logger
}

var _ geometry.Geometry = (*Backend)(nil)

// New returns a native backend.
func New(logger logging.Logger) *Backend {
	return &Backend{logger: logger}
}

// StatisticalOutlier drops points whose mean distance to their neighbors
// nearest points exceeds the cloud-wide mean by more than stdRatio standard
// deviations.
func (b *Backend) StatisticalOutlier(
	ctx context.Context, cloud *pointcloud.PointCloud, neighbors int, stdRatio float64,
) (*pointcloud.PointCloud, error) {
	if neighbors < 1 {
		return nil, errors.Errorf("nb_neighbors must be at least 1, got %d", neighbors)
	}
	if stdRatio <= 0 {
		return nil, errors.Errorf("std_ratio must be positive, got %v", stdRatio)
	}
	if cloud.Size() < 2 {
		return cloud.Clone(), nil
	}
	dists := pointcloud.NewKDTree(cloud).MeanNeighborDistances(neighbors)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mean, std := stat.MeanStdDev(dists, nil)
	limit := mean + stdRatio*std

	kept := lo.Filter(lo.Range(cloud.Size()), func(i, _ int) bool {
		return dists[i] <= limit
	})
	b.logger.Debugw("statistical outlier removal",
		"before", cloud.Size(), "after", len(kept), "mean", mean, "std", std)
	return cloud.Subset(kept), nil
}

// RadiusOutlier keeps points that have at least minPoints points, themselves
// included, within radius.
func (b *Backend) RadiusOutlier(
	ctx context.Context, cloud *pointcloud.PointCloud, minPoints int, radius float64,
) (*pointcloud.PointCloud, error) {
	if minPoints < 1 {
		return nil, errors.Errorf("nb_points must be at least 1, got %d", minPoints)
	}
	if radius <= 0 {
		return nil, errors.Errorf("radius must be positive, got %v", radius)
	}
	tree := pointcloud.NewKDTree(cloud)
	points := cloud.Points()
	kept := lo.Filter(lo.Range(cloud.Size()), func(i, _ int) bool {
		return len(tree.WithinRadius(points[i], radius)) >= minPoints
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.logger.Debugw("radius outlier removal", "before", cloud.Size(), "after", len(kept))
	return cloud.Subset(kept), nil
}

// VoxelDownsample averages the points of each voxel.
func (b *Backend) VoxelDownsample(
	_ context.Context, cloud *pointcloud.PointCloud, voxelSize float64,
) (*pointcloud.PointCloud, error) {
	return pointcloud.VoxelDownsample(cloud, voxelSize)
}

// UniformDownsample keeps every k-th point.
func (b *Backend) UniformDownsample(
	_ context.Context, cloud *pointcloud.PointCloud, every int,
) (*pointcloud.PointCloud, error) {
	return pointcloud.UniformDownsample(cloud, every)
}

// AlphaShape is not available natively.
func (b *Backend) AlphaShape(context.Context, *pointcloud.PointCloud, float64) (*mesh.Mesh, error) {
	return nil, errors.Wrap(geometry.ErrUnsupported, "alpha shape")
}

// BallPivot is not available natively.
func (b *Backend) BallPivot(context.Context, *pointcloud.PointCloud, []float64) (*mesh.Mesh, error) {
	return nil, errors.Wrap(geometry.ErrUnsupported, "ball pivoting")
}

// Poisson is not available natively.
func (b *Backend) Poisson(context.Context, *pointcloud.PointCloud, geometry.PoissonParams) (*mesh.Mesh, error) {
	return nil, errors.Wrap(geometry.ErrUnsupported, "poisson")
}
