// Package scene owns the current point cloud and mesh and serializes the
// operations that capture, filter, reconstruct and export them.
package scene

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/capturescene/capturescene/camera"
	"github.com/capturescene/capturescene/geometry"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/persist"
	"github.com/capturescene/capturescene/pointcloud"
)

// FilterOp names a point cloud filter.
type FilterOp string

// The supported filters.
const (
	StatisticalOutlier FilterOp = "statistical_outlier"
	RadiusOutlier      FilterOp = "radius_outlier"
	VoxelDownsample    FilterOp = "voxel_downsample"
	UniformDownsample  FilterOp = "uniform_downsample"
)

// FilterOps lists every supported filter.
var FilterOps = []FilterOp{StatisticalOutlier, RadiusOutlier, VoxelDownsample, UniformDownsample}

// Method names a surface reconstruction algorithm.
type Method string

// The supported reconstruction methods.
const (
	AlphaShape   Method = "alpha_shape"
	BallPivoting Method = "ball_pivoting"
	Poisson      Method = "poisson"
)

// Methods lists every supported reconstruction method.
var Methods = []Method{AlphaShape, BallPivoting, Poisson}

// Reconstruction is the result of a successful Reconstruct.
type Reconstruction struct {
	Method Method
	Mesh   *mesh.Mesh
	// Radii are the derived ball pivoting radii, nil for other methods.
	Radii []float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used to timestamp views and operations.
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) {
		ctrl.clock = c
	}
}

// WithRecorder journals every operation to r.
func WithRecorder(r Recorder) Option {
	return func(ctrl *Controller) {
		ctrl.recorder = r
	}
}

// WithDisplays adds displays notified of every published View.
func WithDisplays(displays ...Display) Option {
	return func(ctrl *Controller) {
		ctrl.displays = append(ctrl.displays, displays...)
	}
}

// Controller is the scene state machine. All methods are safe for concurrent use.
type Controller struct {
	source    camera.Source
	geom      geometry.Geometry
	persister persist.Persister
	settings  *SettingsStore
	logger    logging.Logger

	clock    clock.Clock
	recorder Recorder
	displays []Display

	gate      *Gate
	publishMu sync.Mutex
	view      atomic.Pointer[View]
}

// NewController returns a controller with nothing captured.
func NewController(
	source camera.Source,
	geom geometry.Geometry,
	persister persist.Persister,
	settings *SettingsStore,
	logger logging.Logger,
	opts ...Option,
) *Controller {
	ctrl := &Controller{
		source:    source,
		geom:      geom,
		persister: persister,
		settings:  settings,
		logger:    logger,
		clock:     clock.New(),
		gate:      NewGate(),
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	ctrl.view.Store(&View{Displayed: DisplayNone, UpdatedAt: ctrl.clock.Now()})
	return ctrl
}

// Settings returns the store the controller reads parameters from.
func (c *Controller) Settings() *SettingsStore {
	return c.settings
}

// View returns the latest published snapshot.
func (c *Controller) View() View {
	return *c.view.Load()
}

// publish derives the next View from the current one. Callers hold write
// intent or, for reconstructions, read intent; publishMu orders publications.
func (c *Controller) publish(mutate func(v *View)) View {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	next := *c.view.Load()
	mutate(&next)
	next.Version++
	next.UpdatedAt = c.clock.Now()
	c.view.Store(&next)
	for _, d := range c.displays {
		d.Show(next)
	}
	return next
}

// Capture acquires a new cloud from the camera and makes it current.
func (c *Controller) Capture(ctx context.Context) (*pointcloud.PointCloud, error) {
	if err := c.gate.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Unlock()
	return c.capture(ctx)
}

// TryCapture is Capture that gives up immediately if any other operation
// holds or awaits the gate. The boolean reports whether a capture was attempted.
func (c *Controller) TryCapture(ctx context.Context) (*pointcloud.PointCloud, bool, error) {
	if !c.gate.TryLock() {
		return nil, false, nil
	}
	defer c.gate.Unlock()
	cloud, err := c.capture(ctx)
	return cloud, true, err
}

func (c *Controller) capture(ctx context.Context) (*pointcloud.PointCloud, error) {
	op := c.startOp(KindCapture, string(KindCapture))
	cloud, err := c.source.NextPointCloud(ctx)
	if err == nil && cloud == nil {
		err = errors.New("camera returned no point cloud")
	}
	if err != nil {
		err = &AcquisitionError{Err: err}
		c.finishOp(ctx, op, err)
		return nil, err
	}
	c.publish(func(v *View) {
		v.Cloud = cloud
		v.Displayed = DisplayPointCloud
	})
	op.Points = cloud.Size()
	c.finishOp(ctx, op, nil)
	return cloud, nil
}

// Filter replaces the current cloud with the result of op.
func (c *Controller) Filter(ctx context.Context, op FilterOp, params Settings) (*pointcloud.PointCloud, error) {
	if err := params.Validate("settings"); err != nil {
		return nil, &ParamsError{Err: err}
	}
	if err := c.gate.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Unlock()

	entry := c.startOp(KindFilter, string(op))
	cloud := c.View().Cloud
	if cloud == nil {
		c.finishOp(ctx, entry, ErrNoPointCloud)
		return nil, ErrNoPointCloud
	}

	var (
		filtered *pointcloud.PointCloud
		err      error
	)
	switch op {
	case StatisticalOutlier:
		filtered, err = c.geom.StatisticalOutlier(ctx, cloud, params.Neighbors, params.StdRatio)
	case RadiusOutlier:
		filtered, err = c.geom.RadiusOutlier(ctx, cloud, params.MinPoints, params.Radius)
	case VoxelDownsample:
		filtered, err = c.geom.VoxelDownsample(ctx, cloud, params.VoxelSize)
	case UniformDownsample:
		filtered, err = c.geom.UniformDownsample(ctx, cloud, params.EveryKPoints)
	default:
		err := &ParamsError{Err: errors.Errorf("unknown filter %q", op)}
		c.finishOp(ctx, entry, err)
		return nil, err
	}
	if err == nil && filtered == nil {
		err = errors.New("filter returned no point cloud")
	}
	if err != nil {
		err = &FilterError{Op: op, Err: err}
		c.finishOp(ctx, entry, err)
		return nil, err
	}

	c.publish(func(v *View) {
		v.Cloud = filtered
		v.Displayed = DisplayPointCloud
	})
	c.logger.Debugw("filtered point cloud", "op", op, "before", cloud.Size(), "after", filtered.Size())
	entry.Points = filtered.Size()
	c.finishOp(ctx, entry, nil)
	return filtered, nil
}

// Reconstruct builds a mesh from the current cloud and makes it current.
func (c *Controller) Reconstruct(ctx context.Context, method Method, params Settings) (*Reconstruction, error) {
	if err := params.Validate("settings"); err != nil {
		return nil, &ParamsError{Err: err}
	}
	if err := c.gate.RLock(ctx); err != nil {
		return nil, err
	}
	defer c.gate.RUnlock()

	entry := c.startOp(KindReconstruct, string(method))
	cloud := c.View().Cloud
	if cloud == nil {
		c.finishOp(ctx, entry, ErrNoPointCloud)
		return nil, ErrNoPointCloud
	}

	result := &Reconstruction{Method: method}
	var err error
	switch method {
	case AlphaShape:
		result.Mesh, err = c.geom.AlphaShape(ctx, cloud, params.Alpha)
	case BallPivoting:
		result.Radii, err = geometry.BallPivotRadii(cloud, params.BallPivotFactor)
		if err == nil {
			result.Mesh, err = c.geom.BallPivot(ctx, cloud, result.Radii)
		}
	case Poisson:
		result.Mesh, err = c.geom.Poisson(ctx, cloud, params.Poisson)
	default:
		err := &ParamsError{Err: errors.Errorf("unknown reconstruction method %q", method)}
		c.finishOp(ctx, entry, err)
		return nil, err
	}
	if err == nil && result.Mesh == nil {
		err = errors.New("reconstruction returned no mesh")
	}
	if err != nil {
		err = &ReconstructionError{Method: method, Err: err}
		c.finishOp(ctx, entry, err)
		return nil, err
	}

	c.publish(func(v *View) {
		v.Mesh = result.Mesh
		v.Displayed = DisplayMesh
		if method == BallPivoting {
			v.Radii = result.Radii
		}
	})
	entry.Points = cloud.Size()
	entry.Vertices = result.Mesh.NumVertices()
	entry.Triangles = result.Mesh.NumTriangles()
	c.finishOp(ctx, entry, nil)
	return result, nil
}

// ExportMesh writes the current mesh to path, or to persist.DefaultMeshPath
// when path is empty.
func (c *Controller) ExportMesh(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = persist.DefaultMeshPath
	}
	entry := c.startOp(KindExport, "mesh")
	m := c.View().Mesh
	if m == nil {
		c.finishOp(ctx, entry, ErrNoMesh)
		return "", ErrNoMesh
	}
	err := c.persister.WriteMesh(ctx, path, m)
	entry.Vertices = m.NumVertices()
	entry.Triangles = m.NumTriangles()
	c.finishOp(ctx, entry, err)
	if err != nil {
		return "", err
	}
	return path, nil
}

// ExportPointCloud writes the current cloud to path, or to
// persist.DefaultPointCloudPath when path is empty.
func (c *Controller) ExportPointCloud(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = persist.DefaultPointCloudPath
	}
	entry := c.startOp(KindExport, "point_cloud")
	cloud := c.View().Cloud
	if cloud == nil {
		c.finishOp(ctx, entry, ErrNoPointCloud)
		return "", ErrNoPointCloud
	}
	err := c.persister.WritePointCloud(ctx, path, cloud)
	entry.Points = cloud.Size()
	c.finishOp(ctx, entry, err)
	if err != nil {
		return "", err
	}
	return path, nil
}

func (c *Controller) startOp(kind OperationKind, name string) *Operation {
	return &Operation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Name:      name,
		StartedAt: c.clock.Now(),
	}
}

func (c *Controller) finishOp(ctx context.Context, op *Operation, err error) {
	op.Duration = c.clock.Since(op.StartedAt)
	if err != nil {
		op.Error = err.Error()
		c.logger.Warnw("operation failed", "kind", op.Kind, "name", op.Name, "error", err)
	}
	if c.recorder == nil {
		return
	}
	// the operation's own context may already be done
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if rerr := c.recorder.Record(recordCtx, *op); rerr != nil {
		c.logger.Errorw("failed to record operation", "kind", op.Kind, "error", rerr)
	}
}
