// Package web provides the HTTP API to drive and observe a scene.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/atomic"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"
	"golang.org/x/time/rate"

	"github.com/capturescene/capturescene/journal"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/pointcloud"
	"github.com/capturescene/capturescene/scene"
	"github.com/capturescene/capturescene/scene/autocapture"
)

// Scene is the part of scene.Controller the server drives.
type Scene interface {
	View() scene.View
	Settings() *scene.SettingsStore
	Capture(ctx context.Context) (*pointcloud.PointCloud, error)
	Filter(ctx context.Context, op scene.FilterOp, params scene.Settings) (*pointcloud.PointCloud, error)
	Reconstruct(ctx context.Context, method scene.Method, params scene.Settings) (*scene.Reconstruction, error)
	ExportMesh(ctx context.Context, path string) (string, error)
	ExportPointCloud(ctx context.Context, path string) (string, error)
}

// AutoUpdater reports the auto-capture scheduler's state.
type AutoUpdater interface {
	State() (autocapture.State, time.Duration)
	Stats() autocapture.Stats
}

// Journal lists recorded operations.
type Journal interface {
	List(ctx context.Context, q journal.Query) ([]scene.Operation, error)
}

// Options configures a Server.
type Options struct {
	Address         string
	CaptureRate     rate.Limit
	CaptureBurst    int
	LongPollTimeout time.Duration
	// AllowedOrigins restricts cross origin requests; empty allows all.
	AllowedOrigins []string
	// AutoUpdater and Journal are optional.
	AutoUpdater AutoUpdater
	Journal     Journal
}

// Server serves the scene API. It is a scene.Display so that long-polling
// clients wake up on every published view.
type Server struct {
	scene   Scene
	options Options
	logger  logging.Logger
	limiter *rate.Limiter
	handler http.Handler

	mu      sync.Mutex
	changed chan struct{}
	version atomic.Uint64
}

var _ scene.Display = (*Server)(nil)

// NewServer returns a server for s. Register it as a display of the
// controller so long polls are notified.
func NewServer(s Scene, options Options, logger logging.Logger) *Server {
	if options.CaptureRate <= 0 {
		options.CaptureRate = 2
	}
	if options.CaptureBurst < 1 {
		options.CaptureBurst = 1
	}
	if options.LongPollTimeout <= 0 {
		options.LongPollTimeout = 30 * time.Second
	}
	srv := &Server{
		scene:   s,
		options: options,
		logger:  logger,
		limiter: rate.NewLimiter(options.CaptureRate, options.CaptureBurst),
		changed: make(chan struct{}),
	}
	srv.version.Store(s.View().Version)
	srv.handler = srv.initMux()
	return srv
}

func (srv *Server) initMux() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/api/v1/scene"), srv.handleScene)
	mux.HandleFunc(pat.Get("/api/v1/scene/pointcloud.pcd"), srv.handlePointCloudData)
	mux.HandleFunc(pat.Get("/api/v1/scene/mesh.ply"), srv.handleMeshData)
	mux.HandleFunc(pat.Post("/api/v1/capture"), srv.handleCapture)
	mux.HandleFunc(pat.Post("/api/v1/filter/:op"), srv.handleFilter)
	mux.HandleFunc(pat.Post("/api/v1/reconstruct/:method"), srv.handleReconstruct)
	mux.HandleFunc(pat.Post("/api/v1/export/:entity"), srv.handleExport)
	mux.HandleFunc(pat.Get("/api/v1/settings"), srv.handleGetSettings)
	mux.HandleFunc(pat.Put("/api/v1/settings"), srv.handlePutSettings)
	mux.HandleFunc(pat.Put("/api/v1/autoupdate"), srv.handleAutoUpdate)
	mux.HandleFunc(pat.Get("/api/v1/journal"), srv.handleJournal)

	var corsHandler *cors.Cors
	if len(srv.options.AllowedOrigins) == 0 {
		corsHandler = cors.AllowAll()
	} else {
		corsHandler = cors.New(cors.Options{
			AllowedOrigins: srv.options.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders: []string{"Content-Type"},
		})
	}
	return corsHandler.Handler(mux)
}

// Handler returns the HTTP handler of the API.
func (srv *Server) Handler() http.Handler {
	return srv.handler
}

// Show wakes up every pending long poll.
func (srv *Server) Show(v scene.View) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.version.Store(v.Version)
	close(srv.changed)
	srv.changed = make(chan struct{})
}

// waitForVersion blocks until the published version exceeds after, the
// timeout passes or ctx is done.
func (srv *Server) waitForVersion(ctx context.Context, after uint64) {
	timer := time.NewTimer(srv.options.LongPollTimeout)
	defer timer.Stop()
	for {
		srv.mu.Lock()
		if srv.version.Load() > after {
			srv.mu.Unlock()
			return
		}
		changed := srv.changed
		srv.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Run listens on the configured address and serves until ctx is done.
func (srv *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", srv.options.Address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %q", srv.options.Address)
	}
	return srv.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (srv *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Addr:              listener.Addr().String(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           srv.handler,
	}

	stopped := make(chan struct{})
	utils.PanicCapturingGo(func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			srv.logger.Errorw("error shutting down", "error", err)
		}
	})

	srv.logger.Infow("serving", "url", fmt.Sprintf("http://%s", listener.Addr().String()))
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}
