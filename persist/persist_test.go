package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/pointcloud"
)

func TestWritePointCloud(t *testing.T) {
	dir := t.TempDir()
	files := NewFiles(logging.NewTestLogger(t))
	cloud := pointcloud.NewGrid(r3.Vector{}, 3, 1)

	for _, name := range []string{"nested/out.pcd", "out.las", "out.PLY"} {
		path := filepath.Join(dir, name)
		test.That(t, files.WritePointCloud(context.Background(), path, cloud), test.ShouldBeNil)
		_, err := os.Stat(path)
		test.That(t, err, test.ShouldBeNil)
	}

	got, err := pointcloud.NewFromPCDFile(filepath.Join(dir, "nested/out.pcd"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Size(), test.ShouldEqual, 27)

	asMesh, err := mesh.NewFromPLYFile(filepath.Join(dir, "out.PLY"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, asMesh.NumVertices(), test.ShouldEqual, 27)

	err = files.WritePointCloud(context.Background(), filepath.Join(dir, "out.xyz"), cloud)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported point cloud format")
}

func TestWriteMesh(t *testing.T) {
	dir := t.TempDir()
	files := NewFiles(logging.NewTestLogger(t))
	m, err := mesh.New([]r3.Vector{{}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}, []mesh.Triangle{{0, 1, 2}})
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(dir, "Camera_images_ply", "output_mesh.ply")
	test.That(t, files.WriteMesh(context.Background(), path, m), test.ShouldBeNil)
	got, err := mesh.NewFromPLYFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.NumTriangles(), test.ShouldEqual, 1)

	test.That(t, files.WriteMesh(context.Background(), filepath.Join(dir, "mesh.stl"), m), test.ShouldNotBeNil)
	test.That(t, files.WriteMesh(context.Background(), filepath.Join(dir, "none.ply"), nil), test.ShouldNotBeNil)

	// failed writes leave nothing behind
	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 1)
}

func TestWriteCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFiles(logging.NewTestLogger(t)).WritePointCloud(ctx, filepath.Join(dir, "a/out.pcd"), pointcloud.New())
	test.That(t, err, test.ShouldNotBeNil)
	_, err = os.Stat(filepath.Join(dir, "a"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}
