package rgbd

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/capturescene/capturescene/camera"
	"github.com/capturescene/capturescene/logging"
)

func smallIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{Width: 4, Height: 3, Fx: 2, Fy: 2, Ppx: 1.5, Ppy: 1}
}

// flatFrame is a wall 1m away with one hole and one pixel past the truncation depth.
func flatFrame() (image.Image, *image.Gray16) {
	depth := image.NewGray16(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			depth.SetGray16(x, y, color.Gray16{Y: 1000})
		}
	}
	depth.SetGray16(3, 2, color.Gray16{Y: 0})
	depth.SetGray16(0, 2, color.Gray16{Y: 9000})

	rgb := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			rgb.SetNRGBA(x, y, color.NRGBA{0, 128, 255, 255})
		}
	}
	return rgb, depth
}

func TestProject(t *testing.T) {
	cfg := Config{ColorPath: "c.png", DepthPath: "d.png", Intrinsics: smallIntrinsics()}
	test.That(t, cfg.Validate("attrs"), test.ShouldBeNil)
	test.That(t, cfg.DepthScale, test.ShouldEqual, 1000)
	test.That(t, cfg.DepthTrunc, test.ShouldEqual, 3)

	rgb, depth := flatFrame()
	cloud, err := Project(rgb, depth, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 10)

	meta := cloud.MetaData()
	test.That(t, meta.Min(), test.ShouldResemble, r3.Vector{})
	// x spans (0-1.5)/2 .. (3-1.5)/2, the wall is flat so z collapses to 0
	test.That(t, meta.MaxX, test.ShouldAlmostEqual, 1.5)
	test.That(t, meta.MaxZ, test.ShouldAlmostEqual, 0)
	test.That(t, meta.HasColor, test.ShouldBeTrue)
	test.That(t, meta.HasNormal, test.ShouldBeTrue)

	_, d := cloud.At(0)
	test.That(t, d.HasNormal(), test.ShouldBeTrue)
	// after the flip the wall faces +z
	test.That(t, d.Normal().Z, test.ShouldAlmostEqual, 1)
	_, g, _ := d.RGB255()
	test.That(t, g, test.ShouldEqual, 128)
}

func TestProjectSizeMismatch(t *testing.T) {
	cfg := Config{ColorPath: "c.png", DepthPath: "d.png"}
	test.That(t, cfg.Validate("attrs"), test.ShouldBeNil)
	test.That(t, cfg.Intrinsics.Width, test.ShouldEqual, 640)

	rgb, depth := flatFrame()
	_, err := Project(rgb, depth, cfg)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "4x3")
}

func TestRGBDCameraFromFiles(t *testing.T) {
	dir := t.TempDir()
	rgb, depth := flatFrame()
	for fn, img := range map[string]image.Image{"color.png": rgb, "depth.png": depth} {
		f, err := os.Create(filepath.Join(dir, fn))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, png.Encode(f, img), test.ShouldBeNil)
		test.That(t, f.Close(), test.ShouldBeNil)
	}

	src, err := camera.New(context.Background(), Model, camera.Attributes{
		"color_path": filepath.Join(dir, "color.png"),
		"depth_path": filepath.Join(dir, "depth.png"),
		"intrinsic_parameters": map[string]interface{}{
			"width_px": 4, "height_px": 3, "fx": 2, "fy": 2, "ppx": 1.5, "ppy": 1,
		},
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	cloud, err := src.NextPointCloud(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 10)
	test.That(t, src.Close(context.Background()), test.ShouldBeNil)

	_, err = camera.New(context.Background(), Model, camera.Attributes{"color_path": "x.png"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "depth_path")
}
