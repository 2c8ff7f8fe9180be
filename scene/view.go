package scene

import (
	"context"
	"time"

	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/pointcloud"
)

// Displayed names which entity of a View is rendered.
type Displayed string

// The possible displayed entities.
const (
	DisplayNone       Displayed = "none"
	DisplayPointCloud Displayed = "point_cloud"
	DisplayMesh       Displayed = "mesh"
)

// View is an immutable snapshot of the scene. Cloud and Mesh are shared with
// the controller and must not be modified.
type View struct {
	Version   uint64
	Cloud     *pointcloud.PointCloud
	Mesh      *mesh.Mesh
	Displayed Displayed
	// Radii are the ball pivoting radii of the last ball pivoting reconstruction.
	Radii     []float64
	UpdatedAt time.Time
}

// Display receives every published View. Show is called while the scene is
// being updated and must not block.
type Display interface {
	Show(v View)
}

// DisplayFunc adapts a function to a Display.
type DisplayFunc func(v View)

// Show calls f(v).
func (f DisplayFunc) Show(v View) {
	f(v)
}

// LoggingDisplay logs a line per published View.
type LoggingDisplay struct {
	Logger logging.Logger
}

// Show logs a summary of v.
func (d LoggingDisplay) Show(v View) {
	d.Logger.Infow("scene updated",
		"version", v.Version,
		"displayed", v.Displayed,
		"points", v.Cloud.Size(),
		"vertices", v.Mesh.NumVertices(),
		"triangles", v.Mesh.NumTriangles())
}

// OperationKind groups journal entries.
type OperationKind string

// The kinds of recorded operations.
const (
	KindCapture     OperationKind = "capture"
	KindFilter      OperationKind = "filter"
	KindReconstruct OperationKind = "reconstruct"
	KindExport      OperationKind = "export"
)

// Operation is a journal entry describing one controller call.
type Operation struct {
	ID        string        `json:"id"`
	Kind      OperationKind `json:"kind"`
	Name      string        `json:"name"`
	Points    int           `json:"points"`
	Vertices  int           `json:"vertices"`
	Triangles int           `json:"triangles"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Recorder persists operations.
type Recorder interface {
	Record(ctx context.Context, op Operation) error
}
