// Package config defines the capturescene configuration file.
package config

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/capturescene/capturescene/camera"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/scene"
)

// Geometry backends selectable for filtering.
const (
	BackendNative = "native"
	BackendOpen3D = "open3d"
)

// Config is the complete configuration of a capturescene process.
type Config struct {
	ConfigFilePath string `json:"-"`

	Server   ServerConfig   `json:"server"`
	Camera   CameraConfig   `json:"camera"`
	Geometry GeometryConfig `json:"geometry"`
	Settings scene.Settings `json:"settings"`
	Logging  logging.Config `json:"logging"`
	Journal  JournalConfig  `json:"journal"`
}

// Default returns a configuration with every default filled in and a fake camera.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:            "localhost:8080",
			CaptureRatePerSec:  2,
			CaptureBurst:       1,
			LongPollTimeoutSec: 30,
		},
		Camera: CameraConfig{Model: "fake"},
		Geometry: GeometryConfig{
			Filters:    BackendNative,
			Python:     "python3",
			TimeoutSec: 300,
		},
		Settings: scene.DefaultSettings(),
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if err := c.Server.Validate("server"); err != nil {
		return err
	}
	if err := c.Camera.Validate("camera"); err != nil {
		return err
	}
	if err := c.Geometry.Validate("geometry"); err != nil {
		return err
	}
	if err := c.Settings.Validate("settings"); err != nil {
		return err
	}
	if c.Logging.Level != "" {
		if _, err := logging.LevelFromString(c.Logging.Level); err != nil {
			return utils.NewConfigValidationError("logging", err)
		}
	}
	return nil
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Address string `json:"address"`
	// CaptureRatePerSec and CaptureBurst limit manual capture requests.
	CaptureRatePerSec  float64 `json:"capture_rate_per_sec"`
	CaptureBurst       int     `json:"capture_burst"`
	LongPollTimeoutSec float64 `json:"long_poll_timeout_sec"`
	// AllowedOrigins restricts CORS; empty allows all origins.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *ServerConfig) Validate(path string) error {
	if c.Address == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "address")
	}
	if c.CaptureRatePerSec <= 0 {
		return utils.NewConfigValidationError(path, errors.New("capture_rate_per_sec must be positive"))
	}
	if c.CaptureBurst < 1 {
		return utils.NewConfigValidationError(path, errors.New("capture_burst must be at least 1"))
	}
	if c.LongPollTimeoutSec <= 0 {
		return utils.NewConfigValidationError(path, errors.New("long_poll_timeout_sec must be positive"))
	}
	return nil
}

// LongPollTimeout is the longest a scene request waits for a new version.
func (c *ServerConfig) LongPollTimeout() time.Duration {
	return time.Duration(c.LongPollTimeoutSec * float64(time.Second))
}

// CameraConfig selects and configures the point cloud source.
type CameraConfig struct {
	Model      string            `json:"model"`
	Attributes camera.Attributes `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *CameraConfig) Validate(path string) error {
	if c.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	return nil
}

// GeometryConfig selects the geometry backends.
type GeometryConfig struct {
	// Filters is either "native" or "open3d". Reconstructions always use Open3D.
	Filters    string  `json:"filters"`
	Python     string  `json:"python"`
	TimeoutSec float64 `json:"timeout_sec"`
}

// Validate ensures all parts of the config are valid.
func (c *GeometryConfig) Validate(path string) error {
	switch c.Filters {
	case BackendNative, BackendOpen3D:
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("filters must be %q or %q, got %q", BackendNative, BackendOpen3D, c.Filters))
	}
	if c.Python == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "python")
	}
	if c.TimeoutSec <= 0 {
		return utils.NewConfigValidationError(path, errors.New("timeout_sec must be positive"))
	}
	return nil
}

// Timeout bounds a single Open3D invocation.
func (c *GeometryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec * float64(time.Second))
}

// JournalConfig configures the operation journal. An empty path disables it.
type JournalConfig struct {
	Path string `json:"path,omitempty"`
}
