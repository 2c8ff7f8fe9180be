package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/capturescene/capturescene/config"
	"github.com/capturescene/capturescene/scene"
	"github.com/capturescene/capturescene/scene/autocapture"
	"github.com/capturescene/capturescene/web"
)

// ServeAction runs the HTTP API, the auto-capture scheduler and, when a
// config file is given, a watcher that applies edited settings.
func ServeAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg)
	if err != nil {
		return err
	}
	defer func() {
		//nolint:errcheck
		logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *web.Server
	notifyServer := scene.DisplayFunc(func(v scene.View) {
		if server != nil {
			server.Show(v)
		}
	})
	rt, err := newSceneRuntime(ctx, cfg, logger, scene.WithDisplays(notifyServer))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, rt.Close(context.Background()))
	}()

	scheduler, err := autocapture.New(rt.controller, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, scheduler.Close())
	}()

	options := web.Options{
		Address:         cfg.Server.Address,
		CaptureRate:     rate.Limit(cfg.Server.CaptureRatePerSec),
		CaptureBurst:    cfg.Server.CaptureBurst,
		LongPollTimeout: cfg.Server.LongPollTimeout(),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		AutoUpdater:     scheduler,
	}
	if rt.journal != nil {
		options.Journal = rt.journal
	}
	server = web.NewServer(rt.controller, options, logger.Sublogger("web"))

	// auto-capture may publish views from here on
	if err := scheduler.Follow(rt.controller.Settings()); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})
	if cfg.ConfigFilePath != "" {
		group.Go(func() error {
			return config.Watch(groupCtx, cfg.ConfigFilePath, config.DefaultDebounce, logger.Sublogger("config"),
				func(updated *config.Config) {
					if _, err := rt.controller.Settings().Replace(updated.Settings); err != nil {
						logger.Warnw("ignoring edited settings", "error", err)
					}
				})
		})
	}
	return group.Wait()
}
