package cli

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/capturescene/capturescene/camera"
	// register camera models.
	_ "github.com/capturescene/capturescene/camera/register"
	"github.com/capturescene/capturescene/config"
	"github.com/capturescene/capturescene/geometry"
	"github.com/capturescene/capturescene/geometry/native"
	"github.com/capturescene/capturescene/geometry/open3d"
	"github.com/capturescene/capturescene/journal"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/persist"
	"github.com/capturescene/capturescene/scene"
)

func joinOps[T ~string](ops []T) string {
	return strings.Join(lo.Map(ops, func(op T, _ int) string { return string(op) }), ", ")
}

// loadConfig reads the --config file, or returns the defaults when none is given.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return config.Default(), nil
	}
	return config.Read(path)
}

func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, error) {
	logger, err := logging.NewLoggerFromConfig("capturescene", cfg.Logging)
	if err != nil {
		return nil, err
	}
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	logging.ReplaceGlobal(logger)
	return logger, nil
}

// newGeometry composes the configured filter backend with Open3D reconstruction.
func newGeometry(ctx context.Context, cfg config.GeometryConfig, logger logging.Logger) geometry.Geometry {
	bridge := open3d.New(cfg.Python, cfg.Timeout(), logger.Sublogger("open3d"))
	if err := bridge.Available(ctx); err != nil {
		logger.Warnw("open3d is unavailable, reconstruction will fail", "error", err)
	}
	var filters geometry.Filterer = bridge
	if cfg.Filters == config.BackendNative {
		filters = native.New(logger.Sublogger("native"))
	}
	return geometry.Split{Filterer: filters, Reconstructor: bridge}
}

// sceneRuntime is everything a command needs to drive a scene.
type sceneRuntime struct {
	cfg        *config.Config
	logger     logging.Logger
	source     camera.Source
	journal    *journal.Journal
	controller *scene.Controller
}

func newSceneRuntime(ctx context.Context, cfg *config.Config, logger logging.Logger, opts ...scene.Option) (_ *sceneRuntime, err error) {
	rt := &sceneRuntime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, rt.Close(ctx))
		}
	}()

	if !camera.IsRegistered(cfg.Camera.Model) {
		return nil, errors.Errorf("unknown camera model %q, expected one of %s",
			cfg.Camera.Model, strings.Join(camera.RegisteredModels(), ", "))
	}
	rt.source, err = camera.New(ctx, cfg.Camera.Model, cfg.Camera.Attributes, logger.Sublogger("camera"))
	if err != nil {
		return nil, err
	}

	if cfg.Journal.Path != "" {
		rt.journal, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scene.WithRecorder(rt.journal))
	}

	rt.controller = scene.NewController(
		rt.source,
		newGeometry(ctx, cfg.Geometry, logger),
		persist.NewFiles(logger.Sublogger("persist")),
		scene.NewSettingsStore(cfg.Settings),
		logger.Sublogger("scene"),
		append(opts, scene.WithDisplays(scene.LoggingDisplay{Logger: logger.Sublogger("display")}))...,
	)
	return rt, nil
}

func (rt *sceneRuntime) Close(ctx context.Context) error {
	var err error
	if rt.source != nil {
		err = multierr.Combine(err, rt.source.Close(ctx))
	}
	if rt.journal != nil {
		err = multierr.Combine(err, rt.journal.Close())
	}
	return err
}
