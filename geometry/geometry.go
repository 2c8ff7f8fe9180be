// Package geometry defines the collaborators that filter point clouds and
// reconstruct meshes from them.
package geometry

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/pointcloud"
)

// ErrUnsupported is returned by backends that do not implement an operation.
var ErrUnsupported = errors.New("operation not supported by this geometry backend")

// PoissonParams are the parameters of Poisson surface reconstruction.
type PoissonParams struct {
	Depth     int     `json:"depth"`
	Width     float64 `json:"width"`
	Scale     float64 `json:"scale"`
	LinearFit bool    `json:"linear_fit"`
	Threads   int     `json:"threads"`
}

// Filterer removes or thins points of a cloud. Implementations never modify
// their input.
type Filterer interface {
	StatisticalOutlier(ctx context.Context, cloud *pointcloud.PointCloud, neighbors int, stdRatio float64) (*pointcloud.PointCloud, error)
	RadiusOutlier(ctx context.Context, cloud *pointcloud.PointCloud, minPoints int, radius float64) (*pointcloud.PointCloud, error)
	VoxelDownsample(ctx context.Context, cloud *pointcloud.PointCloud, voxelSize float64) (*pointcloud.PointCloud, error)
	UniformDownsample(ctx context.Context, cloud *pointcloud.PointCloud, every int) (*pointcloud.PointCloud, error)
}

// Reconstructor turns a cloud into a triangle mesh.
type Reconstructor interface {
	AlphaShape(ctx context.Context, cloud *pointcloud.PointCloud, alpha float64) (*mesh.Mesh, error)
	BallPivot(ctx context.Context, cloud *pointcloud.PointCloud, radii []float64) (*mesh.Mesh, error)
	Poisson(ctx context.Context, cloud *pointcloud.PointCloud, params PoissonParams) (*mesh.Mesh, error)
}

// Geometry is a complete geometry backend.
type Geometry interface {
	Filterer
	Reconstructor
}

// Split is a Geometry whose filters and reconstructions come from different backends.
type Split struct {
	Filterer
	Reconstructor
}

// BallPivotRadii derives ball pivoting radii from the mean nearest neighbour
// distance d of the cloud: r = 1.25*d/2 and radii [r, factor*r, 2*factor*r].
func BallPivotRadii(cloud *pointcloud.PointCloud, factor float64) ([]float64, error) {
	if cloud.Size() < 2 {
		return nil, errors.Errorf("ball pivoting needs at least 2 points, cloud has %d", cloud.Size())
	}
	if factor <= 0 || math.IsNaN(factor) {
		return nil, errors.Errorf("ball pivoting factor must be positive, got %v", factor)
	}
	dists := pointcloud.NewKDTree(cloud).NearestNeighborDistances()
	var sum float64
	for _, d := range dists {
		sum += d
	}
	mean := sum / float64(len(dists))
	r := 1.25 * mean / 2
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return nil, errors.Errorf("cannot derive a ball pivoting radius from mean neighbour distance %v", mean)
	}
	return []float64{r, factor * r, 2 * factor * r}, nil
}
