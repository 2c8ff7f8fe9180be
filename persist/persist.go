// Package persist writes meshes and point clouds to disk, choosing the format
// from the file extension.
package persist

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/pointcloud"
)

const (
	// DefaultMeshPath is where meshes are exported when no path is given.
	DefaultMeshPath = "Camera_images_ply/output_mesh.ply"
	// DefaultPointCloudPath is where clouds are exported when no path is given.
	DefaultPointCloudPath = "output_pcd/output_pcd.pcd"
)

// Persister stores scene entities.
type Persister interface {
	WriteMesh(ctx context.Context, path string, m *mesh.Mesh) error
	WritePointCloud(ctx context.Context, path string, cloud *pointcloud.PointCloud) error
}

// Files is a Persister that writes to the local filesystem. Files are written
// next to their destination and renamed into place, so a failed export never
// leaves a truncated file behind.
type Files struct {
	logger logging.Logger
}

var _ Persister = (*Files)(nil)

// NewFiles returns a filesystem persister.
func NewFiles(logger logging.Logger) *Files {
	return &Files{logger: logger}
}

// MeshFormats and PointCloudFormats list the supported extensions.
var (
	MeshFormats       = []string{".ply"}
	PointCloudFormats = []string{".pcd", ".las", ".ply"}
)

// WriteMesh writes m as PLY.
func (f *Files) WriteMesh(ctx context.Context, path string, m *mesh.Mesh) error {
	if m == nil {
		return errors.New("no mesh to write")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ply" {
		return errors.Errorf("unsupported mesh format %q, use one of %v", ext, MeshFormats)
	}
	return f.write(ctx, path, func(tmp string) error {
		return mesh.WriteToPLYFile(m, tmp)
	}, "vertices", m.NumVertices(), "triangles", m.NumTriangles())
}

// WritePointCloud writes cloud as PCD, LAS or vertex-only PLY.
func (f *Files) WritePointCloud(ctx context.Context, path string, cloud *pointcloud.PointCloud) error {
	if cloud == nil {
		return errors.New("no point cloud to write")
	}
	var writer func(string) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pcd":
		writer = func(tmp string) error { return pointcloud.WriteToPCDFile(cloud, tmp) }
	case ".las":
		writer = func(tmp string) error { return pointcloud.WriteToLASFile(cloud, tmp) }
	case ".ply":
		writer = func(tmp string) error { return mesh.WriteToPLYFile(mesh.FromPointCloud(cloud), tmp) }
	default:
		return errors.Errorf("unsupported point cloud format %q, use one of %v", ext, PointCloudFormats)
	}
	return f.write(ctx, path, writer, "points", cloud.Size())
}

func (f *Files) write(ctx context.Context, path string, writer func(tmp string) error, keysAndValues ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".export-*"+filepath.Ext(path))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := writer(tmpName); err != nil {
		//nolint:errcheck
		os.Remove(tmpName)
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		//nolint:errcheck
		os.Remove(tmpName)
		return err
	}
	f.logger.Infow("exported", append([]interface{}{"path", path}, keysAndValues...)...)
	return nil
}
