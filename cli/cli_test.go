package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/capturescene/capturescene/journal"
	"github.com/capturescene/capturescene/pointcloud"
	"github.com/capturescene/capturescene/scene"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"capturescene"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	test.That(t, os.WriteFile(path, []byte(body), 0o600), test.ShouldBeNil)
	return path
}

func TestCaptureCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, fmt.Sprintf(`{
		"camera": {"model": "fake", "attributes": {"points": 400, "outliers": 5, "seed": 2}},
		"geometry": {"filters": "native", "python": "capturescene-no-such-python"},
		"journal": {"path": %q}
	}`, filepath.Join(dir, "journal.sqlite")))
	cloudOut := filepath.Join(dir, "out", "cloud.pcd")

	out, err := runApp(t, "--config", cfgPath, "capture",
		"--filter", "statistical_outlier", "--filter", "uniform_downsample", "--cloud-out", cloudOut)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "statistical_outlier")
	test.That(t, out, test.ShouldContainSubstring, cloudOut)

	cloud, err := pointcloud.NewFromPCDFile(cloudOut)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldBeGreaterThan, 0)
	test.That(t, cloud.Size(), test.ShouldBeLessThanOrEqualTo, 405/5+1)

	j, err := journal.Open(filepath.Join(dir, "journal.sqlite"))
	test.That(t, err, test.ShouldBeNil)
	ops, err := j.List(context.Background(), journal.Query{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, j.Close(), test.ShouldBeNil)
	test.That(t, ops, test.ShouldHaveLength, 4)
	test.That(t, ops[len(ops)-1].Kind, test.ShouldEqual, scene.KindCapture)

	out, err = runApp(t, "inspect", "--journal", filepath.Join(dir, "journal.sqlite"), cloudOut)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "point cloud")
	test.That(t, out, test.ShouldContainSubstring, "uniform_downsample")
}

func TestCaptureCommandErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := runApp(t, "capture", "--filter", "median")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown filter")

	_, err = runApp(t, "capture", "--reconstruct", "marching_cubes")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown reconstruction method")

	_, err = runApp(t, "capture", "--mesh-out", filepath.Join(dir, "m.ply"))
	test.That(t, err, test.ShouldNotBeNil)

	cfgPath := writeConfig(t, dir, `{"camera": {"model": "kinect"}}`)
	_, err = runApp(t, "--config", cfgPath, "capture")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown camera model")

	// reconstruction needs an interpreter that is not there
	cfgPath = writeConfig(t, dir, `{"geometry": {"python": "capturescene-no-such-python"}}`)
	_, err = runApp(t, "--config", cfgPath, "capture", "--reconstruct", "alpha_shape")
	test.That(t, scene.IsReconstructionError(err), test.ShouldBeTrue)
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	grid := pointcloud.NewGrid(r3.Vector{X: 1}, 2, 1)
	test.That(t, pointcloud.WriteToPCDFile(grid, filepath.Join(dir, "grid.pcd")), test.ShouldBeNil)
	test.That(t, pointcloud.WriteToLASFile(grid, filepath.Join(dir, "grid.las")), test.ShouldBeNil)

	out, err := runApp(t, "inspect", filepath.Join(dir, "grid.pcd"), filepath.Join(dir, "grid.las"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "grid.pcd")
	test.That(t, out, test.ShouldContainSubstring, "grid.las")
	test.That(t, out, test.ShouldContainSubstring, "(2.000, 1.000, 1.000)")

	_, err = runApp(t, "inspect", filepath.Join(dir, "grid.xyz"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "inspect")
	test.That(t, err, test.ShouldNotBeNil)
}
