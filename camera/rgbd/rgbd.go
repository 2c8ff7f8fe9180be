// Package rgbd implements a camera that projects a color image and an aligned
// 16-bit depth image into a point cloud, the way the capture pipeline treats a
// single RGB-D frame: project with pinhole intrinsics, flip into a y up frame,
// estimate normals and move the cloud into the first octant.
package rgbd

import (
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	_ "golang.org/x/image/tiff"

	"github.com/capturescene/capturescene/camera"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/pointcloud"
)

// Model is the registered model name.
const Model = "rgbd_file"

func init() {
	camera.Register(Model, func(ctx context.Context, attrs camera.Attributes, logger logging.Logger) (camera.Source, error) {
		var cfg Config
		if err := camera.DecodeAttributes(attrs, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate("camera.attributes"); err != nil {
			return nil, err
		}
		return New(cfg, logger), nil
	})
}

// Config describes where the frame lives and how to project it.
type Config struct {
	ColorPath  string                   `json:"color_path"`
	DepthPath  string                   `json:"depth_path"`
	DepthScale float64                  `json:"depth_scale,omitempty"`
	DepthTrunc float64                  `json:"depth_trunc,omitempty"`
	Stride     int                      `json:"stride,omitempty"`
	Intrinsics *PinholeCameraIntrinsics `json:"intrinsic_parameters,omitempty"`
}

// Validate checks required fields and fills in defaults: depth in
// millimetres, truncated at 3m, PrimeSense intrinsics.
func (cfg *Config) Validate(path string) error {
	if cfg.ColorPath == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "color_path")
	}
	if cfg.DepthPath == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "depth_path")
	}
	if cfg.DepthScale < 0 || cfg.DepthTrunc < 0 || cfg.Stride < 0 {
		return utils.NewConfigValidationError(path, errors.New("depth_scale, depth_trunc and stride must not be negative"))
	}
	if cfg.DepthScale == 0 {
		cfg.DepthScale = 1000
	}
	if cfg.DepthTrunc == 0 {
		cfg.DepthTrunc = 3
	}
	if cfg.Stride == 0 {
		cfg.Stride = 1
	}
	if cfg.Intrinsics == nil {
		intr := PrimeSenseDefault()
		cfg.Intrinsics = &intr
	}
	if err := cfg.Intrinsics.CheckValid(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// Camera re-reads its image files on every frame so a producer can keep
// overwriting them.
type Camera struct {
	cfg    Config
	logger logging.Logger
}

// New returns an RGB-D file camera. cfg must have been validated.
func New(cfg Config, logger logging.Logger) *Camera {
	return &Camera{cfg: cfg, logger: logger}
}

// NextPointCloud reads and projects the current frame.
func (c *Camera) NextPointCloud(ctx context.Context) (*pointcloud.PointCloud, error) {
	colorImg, err := imaging.Open(c.cfg.ColorPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read color image")
	}
	depthImg, err := imaging.Open(c.cfg.DepthPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read depth image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cloud, err := Project(colorImg, depthImg, c.cfg)
	if err != nil {
		return nil, err
	}
	c.logger.Debugw("projected rgbd frame", "points", cloud.Size())
	return cloud, nil
}

// Close is a no-op.
func (c *Camera) Close(ctx context.Context) error {
	return nil
}

func depthAt(img image.Image, x, y int) uint16 {
	if g, ok := img.(*image.Gray16); ok {
		return g.Gray16At(x, y).Y
	}
	return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
}

// Project builds a cloud from a color image and a depth image whose pixel
// values are depth*cfg.DepthScale. The color image is resized to the depth
// image when they differ. Pixels with no depth or beyond cfg.DepthTrunc are skipped.
func Project(colorImg, depthImg image.Image, cfg Config) (*pointcloud.PointCloud, error) {
	db := depthImg.Bounds()
	w, h := db.Dx(), db.Dy()
	if w != cfg.Intrinsics.Width || h != cfg.Intrinsics.Height {
		return nil, errors.Errorf("depth image is %dx%d but intrinsics expect %dx%d",
			w, h, cfg.Intrinsics.Width, cfg.Intrinsics.Height)
	}
	var colors *image.NRGBA
	if cb := colorImg.Bounds(); cb.Dx() != w || cb.Dy() != h {
		colors = imaging.Resize(colorImg, w, h, imaging.Linear)
	} else {
		colors = imaging.Clone(colorImg)
	}

	// organized grid of projected points; index -1 marks a hole
	grid := make([]int, w*h)
	points := make([]r3.Vector, 0, w*h/(cfg.Stride*cfg.Stride))
	pixColors := make([]color.NRGBA, 0, cap(points))
	for y := 0; y < h; y += cfg.Stride {
		for x := 0; x < w; x += cfg.Stride {
			grid[y*w+x] = -1
			z := float64(depthAt(depthImg, db.Min.X+x, db.Min.Y+y)) / cfg.DepthScale
			if z <= 0 || z > cfg.DepthTrunc {
				continue
			}
			px, py, pz := cfg.Intrinsics.PixelToPoint(float64(x), float64(y), z)
			grid[y*w+x] = len(points)
			points = append(points, r3.Vector{X: px, Y: py, Z: pz})
			pixColors = append(pixColors, colors.NRGBAAt(x, y))
		}
	}
	if len(points) == 0 {
		return nil, errors.New("depth image has no valid pixels")
	}

	cloud := pointcloud.NewWithPrealloc(len(points))
	s := cfg.Stride
	for y := 0; y < h; y += s {
		for x := 0; x < w; x += s {
			i := grid[y*w+x]
			if i < 0 {
				continue
			}
			d := pointcloud.NewColoredData(pixColors[i])
			if x+s < w && y+s < h {
				right, down := grid[y*w+x+s], grid[(y+s)*w+x]
				if right >= 0 && down >= 0 {
					p := points[i]
					n := points[right].Sub(p).Cross(points[down].Sub(p))
					if n.Norm() > 0 {
						n = n.Normalize()
						// face the sensor
						if n.Dot(p) > 0 {
							n = n.Mul(-1)
						}
						d = d.WithNormal(n)
					}
				}
			}
			cloud.Append(points[i], d)
		}
	}

	flipped, err := cloud.Transform(pointcloud.CameraFlip())
	if err != nil {
		return nil, err
	}
	return flipped.TranslateToFirstOctant(), nil
}
