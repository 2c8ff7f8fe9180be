// Package fake implements a synthetic camera that produces a noisy sphere with
// a few far away outliers. Each frame is deterministic given the seed and the
// frame number.
package fake

import (
	"context"
	"image/color"
	"math"
	"math/rand"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/capturescene/capturescene/camera"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/pointcloud"
)

// Model is the registered model name.
const Model = "fake"

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

// Config describes the synthetic scene.
type Config struct {
	Points   int     `json:"points,omitempty"`
	Outliers int     `json:"outliers,omitempty"`
	Radius   float64 `json:"radius,omitempty"`
	Noise    float64 `json:"noise,omitempty"`
	Seed     int64   `json:"seed,omitempty"`
}

// Validate checks the config and fills in defaults.
func (cfg *Config) Validate(path string) error {
	if cfg.Points < 0 || cfg.Outliers < 0 || cfg.Radius < 0 || cfg.Noise < 0 {
		return utils.NewConfigValidationError(path, errors.New("points, outliers, radius and noise must not be negative"))
	}
	if cfg.Points == 0 {
		cfg.Points = 2000
	}
	if cfg.Radius == 0 {
		cfg.Radius = 0.5
	}
	return nil
}

// Camera is the synthetic source.
type Camera struct {
	cfg    Config
	logger logging.Logger

	mu     sync.Mutex
	frame  int64
	closed bool
}

// New returns a synthetic camera.
func New(cfg Config, logger logging.Logger) *Camera {
	return &Camera{cfg: cfg, logger: logger}
}

// NextPointCloud returns the next frame. Points lie on a sphere centred at
// (radius, radius, radius) so the cloud is already in the first octant, apart
// from outliers which are placed several radii away.
func (c *Camera) NextPointCloud(ctx context.Context) (*pointcloud.PointCloud, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("camera closed")
	}
	frame := c.frame
	c.frame++
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	//nolint:gosec
	rng := rand.New(rand.NewSource(c.cfg.Seed + frame))
	r := c.cfg.Radius
	center := r3.Vector{X: r, Y: r, Z: r}
	cloud := pointcloud.NewWithPrealloc(c.cfg.Points + c.cfg.Outliers)
	for i := 0; i < c.cfg.Points; i++ {
		// uniform direction on the unit sphere
		z := 2*rng.Float64() - 1
		phi := 2 * math.Pi * rng.Float64()
		s := math.Sqrt(1 - z*z)
		n := r3.Vector{X: s * math.Cos(phi), Y: s * math.Sin(phi), Z: z}
		dist := r + c.cfg.Noise*rng.NormFloat64()
		d := pointcloud.NewNormalData(n).WithColor(color.NRGBA{
			R: uint8(127 * (n.X + 1)),
			G: uint8(127 * (n.Y + 1)),
			B: uint8(127 * (n.Z + 1)),
			A: 255,
		})
		cloud.Append(center.Add(n.Mul(dist)), d)
	}
	for i := 0; i < c.cfg.Outliers; i++ {
		dir := r3.Vector{X: rng.Float64() + 0.1, Y: rng.Float64() + 0.1, Z: rng.Float64() + 0.1}.Normalize()
		p := center.Add(dir.Mul(r * (5 + 5*rng.Float64())))
		cloud.Append(p, pointcloud.NewNormalData(dir).WithColor(color.NRGBA{255, 0, 0, 255}))
	}
	c.logger.Debugw("synthesized frame", "frame", frame, "points", cloud.Size())
	return cloud, nil
}

// Close stops the camera. Further frames fail.
func (c *Camera) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
