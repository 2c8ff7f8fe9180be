// Package open3d runs geometry operations through Open3D in a Python subprocess.
// Every call writes the input cloud to a scratch directory as binary PCD, runs
// the embedded bridge script and reads back a PCD (filters) or PLY (meshes).
package open3d

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"go.viam.com/utils/pexec"

	"github.com/capturescene/capturescene/geometry"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/pointcloud"
)

//go:embed bridge.py
var bridgeScript []byte

// DefaultPython is the interpreter used when none is configured.
const DefaultPython = "python3"

// Bridge is a geometry.Geometry backed by Open3D.
type Bridge struct {
	python  string
	timeout time.Duration
	logger  logging.Logger
}

var _ geometry.Geometry = (*Bridge)(nil)

// New returns a bridge that runs the given Python interpreter. A zero timeout
// means calls are bounded only by their context.
func New(python string, timeout time.Duration, logger logging.Logger) *Bridge {
	if python == "" {
		python = DefaultPython
	}
	return &Bridge{python: python, timeout: timeout, logger: logger}
}

// Available checks that the interpreter exists and can import open3d.
func (b *Bridge) Available(ctx context.Context) error {
	if out, err := b.exec(ctx, "-c", "import open3d"); err != nil {
		return errors.Wrapf(err, "open3d is not importable: %s", out)
	}
	return nil
}

// exec runs the interpreter once with args and returns its trimmed combined output.
func (b *Bridge) exec(ctx context.Context, args ...string) (string, error) {
	var output bytes.Buffer
	proc := pexec.NewManagedProcess(pexec.ProcessConfig{
		ID:        "open3d",
		Name:      b.python,
		Args:      args,
		OneShot:   true,
		LogWriter: &output,
	}, b.logger.AsZap())
	err := proc.Start(ctx)
	return strings.TrimSpace(output.String()), err
}

// run executes op on cloud and returns the path of the output file inside dir.
func (b *Bridge) run(
	ctx context.Context, dir, op string, cloud *pointcloud.PointCloud, params map[string]interface{}, outExt string,
) (string, error) {
	script := filepath.Join(dir, "bridge.py")
	if err := os.WriteFile(script, bridgeScript, 0o600); err != nil {
		return "", err
	}
	input := filepath.Join(dir, "input.pcd")
	if err := pointcloud.WriteToPCDFile(cloud, input); err != nil {
		return "", errors.Wrap(err, "failed to write bridge input")
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	output := filepath.Join(dir, "output"+outExt)

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	start := time.Now()
	out, runErr := b.exec(ctx, script,
		"--op", op, "--input", input, "--output", output, "--params", string(encoded))
	b.logger.Debugw("open3d bridge finished",
		"op", op, "points", cloud.Size(), "duration", time.Since(start), "output", out)
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Wrapf(ctxErr, "open3d %s interrupted", op)
		}
		return "", errors.Wrapf(runErr, "open3d %s failed: %s", op, out)
	}
	return output, nil
}

func (b *Bridge) filter(
	ctx context.Context, op string, cloud *pointcloud.PointCloud, params map[string]interface{},
) (*pointcloud.PointCloud, error) {
	dir, err := os.MkdirTemp("", "capturescene-open3d-")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(func() error { return os.RemoveAll(dir) })

	out, err := b.run(ctx, dir, op, cloud, params, ".pcd")
	if err != nil {
		return nil, err
	}
	filtered, err := pointcloud.NewFromPCDFile(out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read open3d %s output", op)
	}
	return filtered, nil
}

// reconstruct runs op and returns the mesh with vertex normals, moved into
// the first octant.
func (b *Bridge) reconstruct(
	ctx context.Context, op string, cloud *pointcloud.PointCloud, params map[string]interface{},
) (*mesh.Mesh, error) {
	dir, err := os.MkdirTemp("", "capturescene-open3d-")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(func() error { return os.RemoveAll(dir) })

	out, err := b.run(ctx, dir, op, cloud, params, ".ply")
	if err != nil {
		return nil, err
	}
	m, err := mesh.NewFromPLYFile(out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read open3d %s output", op)
	}
	return m.ComputeVertexNormals().TranslateToFirstOctant(), nil
}

// StatisticalOutlier runs remove_statistical_outlier and re-estimates normals.
func (b *Bridge) StatisticalOutlier(
	ctx context.Context, cloud *pointcloud.PointCloud, neighbors int, stdRatio float64,
) (*pointcloud.PointCloud, error) {
	return b.filter(ctx, "statistical_outlier", cloud, map[string]interface{}{
		"nb_neighbors": neighbors,
		"std_ratio":    stdRatio,
	})
}

// RadiusOutlier runs remove_radius_outlier and re-estimates normals.
func (b *Bridge) RadiusOutlier(
	ctx context.Context, cloud *pointcloud.PointCloud, minPoints int, radius float64,
) (*pointcloud.PointCloud, error) {
	return b.filter(ctx, "radius_outlier", cloud, map[string]interface{}{
		"nb_points": minPoints,
		"radius":    radius,
	})
}

// VoxelDownsample runs voxel_down_sample.
func (b *Bridge) VoxelDownsample(
	ctx context.Context, cloud *pointcloud.PointCloud, voxelSize float64,
) (*pointcloud.PointCloud, error) {
	return b.filter(ctx, "voxel_downsample", cloud, map[string]interface{}{"voxel_size": voxelSize})
}

// UniformDownsample runs uniform_down_sample.
func (b *Bridge) UniformDownsample(
	ctx context.Context, cloud *pointcloud.PointCloud, every int,
) (*pointcloud.PointCloud, error) {
	return b.filter(ctx, "uniform_downsample", cloud, map[string]interface{}{"every_k_points": every})
}

// AlphaShape reconstructs with create_from_point_cloud_alpha_shape.
func (b *Bridge) AlphaShape(ctx context.Context, cloud *pointcloud.PointCloud, alpha float64) (*mesh.Mesh, error) {
	return b.reconstruct(ctx, "alpha_shape", cloud, map[string]interface{}{"alpha": alpha})
}

// BallPivot reconstructs with create_from_point_cloud_ball_pivoting.
func (b *Bridge) BallPivot(ctx context.Context, cloud *pointcloud.PointCloud, radii []float64) (*mesh.Mesh, error) {
	return b.reconstruct(ctx, "ball_pivoting", cloud, map[string]interface{}{"radii": radii})
}

// Poisson reconstructs with create_from_point_cloud_poisson.
func (b *Bridge) Poisson(
	ctx context.Context, cloud *pointcloud.PointCloud, params geometry.PoissonParams,
) (*mesh.Mesh, error) {
	return b.reconstruct(ctx, "poisson", cloud, map[string]interface{}{
		"depth":      params.Depth,
		"width":      params.Width,
		"scale":      params.Scale,
		"linear_fit": params.LinearFit,
		"threads":    params.Threads,
	})
}
