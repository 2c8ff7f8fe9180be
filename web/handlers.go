package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"goji.io/pat"

	"github.com/capturescene/capturescene/journal"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/pointcloud"
	"github.com/capturescene/capturescene/scene"
	"github.com/capturescene/capturescene/scene/autocapture"
)

type cloudStatus struct {
	Points     int       `json:"points"`
	HasColor   bool      `json:"has_color"`
	HasNormals bool      `json:"has_normals"`
	Min        []float64 `json:"min,omitempty"`
	Max        []float64 `json:"max,omitempty"`
}

type meshStatus struct {
	Vertices  int  `json:"vertices"`
	Triangles int  `json:"triangles"`
	HasNormal bool `json:"has_normals"`
}

type autoUpdateStatus struct {
	State       autocapture.State `json:"state"`
	IntervalSec float64           `json:"interval_sec,omitempty"`
	Stats       autocapture.Stats `json:"stats"`
}

type sceneStatus struct {
	Version    uint64            `json:"version"`
	Displayed  scene.Displayed   `json:"displayed"`
	UpdatedAt  time.Time         `json:"updated_at"`
	PointCloud *cloudStatus      `json:"point_cloud"`
	Mesh       *meshStatus       `json:"mesh"`
	Radii      []float64         `json:"radii,omitempty"`
	AutoUpdate *autoUpdateStatus `json:"auto_update,omitempty"`
}

func vec(v r3.Vector) []float64 {
	return []float64{v.X, v.Y, v.Z}
}

func (srv *Server) status() sceneStatus {
	v := srv.scene.View()
	st := sceneStatus{
		Version:   v.Version,
		Displayed: v.Displayed,
		UpdatedAt: v.UpdatedAt,
		Radii:     v.Radii,
	}
	if v.Cloud != nil {
		meta := v.Cloud.MetaData()
		st.PointCloud = &cloudStatus{
			Points:     v.Cloud.Size(),
			HasColor:   meta.HasColor,
			HasNormals: meta.HasNormal,
		}
		if v.Cloud.Size() > 0 {
			st.PointCloud.Min = vec(meta.Min())
			st.PointCloud.Max = vec(meta.Max())
		}
	}
	if v.Mesh != nil {
		st.Mesh = &meshStatus{
			Vertices:  v.Mesh.NumVertices(),
			Triangles: v.Mesh.NumTriangles(),
			HasNormal: v.Mesh.HasNormals(),
		}
	}
	st.AutoUpdate = srv.autoUpdateStatus()
	return st
}

func (srv *Server) autoUpdateStatus() *autoUpdateStatus {
	if srv.options.AutoUpdater == nil {
		return nil
	}
	state, interval := srv.options.AutoUpdater.State()
	return &autoUpdateStatus{
		State:       state,
		IntervalSec: interval.Seconds(),
		Stats:       srv.options.AutoUpdater.Stats(),
	}
}

func (srv *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.logger.Debugw("error writing response", "error", err)
	}
}

// statusCode maps operation errors onto HTTP statuses.
func statusCode(err error) int {
	var (
		acquisition    *scene.AcquisitionError
		reconstruction *scene.ReconstructionError
		filter         *scene.FilterError
		params         *scene.ParamsError
	)
	switch {
	case errors.Is(err, scene.ErrNoPointCloud), errors.Is(err, scene.ErrNoMesh):
		return http.StatusConflict
	case errors.As(err, &params):
		return http.StatusBadRequest
	case errors.As(err, &acquisition):
		return http.StatusServiceUnavailable
	case errors.As(err, &reconstruction), errors.As(err, &filter):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (srv *Server) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		srv.logger.Errorw("request failed", "error", err)
	}
	srv.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// decodeBody overlays the optional JSON body onto v.
func decodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &scene.ParamsError{Err: errors.Wrap(err, "malformed request body")}
	}
	return nil
}

// params returns the current settings overlaid with the request body.
func (srv *Server) params(r *http.Request) (scene.Settings, error) {
	params := srv.scene.Settings().Get()
	err := decodeBody(r, &params)
	return params, err
}

func (srv *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	if after := r.URL.Query().Get("after"); after != "" {
		version, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			srv.writeError(w, &scene.ParamsError{Err: errors.Wrap(err, "after must be a version number")})
			return
		}
		srv.waitForVersion(r.Context(), version)
	}
	srv.writeJSON(w, http.StatusOK, srv.status())
}

// handlePointCloudData serves the current point cloud as PCD.
func (srv *Server) handlePointCloudData(w http.ResponseWriter, r *http.Request) {
	cloud := srv.scene.View().Cloud
	if cloud == nil {
		srv.writeError(w, scene.ErrNoPointCloud)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="pointcloud.pcd"`)
	if err := pointcloud.ToPCD(cloud, w); err != nil {
		srv.logger.Debugw("error converting to pcd", "error", err)
	}
}

// handleMeshData serves the current mesh as PLY.
func (srv *Server) handleMeshData(w http.ResponseWriter, r *http.Request) {
	m := srv.scene.View().Mesh
	if m == nil {
		srv.writeError(w, scene.ErrNoMesh)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="mesh.ply"`)
	if err := mesh.WritePLY(m, w); err != nil {
		srv.logger.Debugw("error converting to ply", "error", err)
	}
}

func (srv *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if !srv.limiter.Allow() {
		srv.writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "capture rate exceeded"})
		return
	}
	if _, err := srv.scene.Capture(r.Context()); err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, srv.status())
}

func (srv *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	op := scene.FilterOp(pat.Param(r, "op"))
	if !lo.Contains(scene.FilterOps, op) {
		srv.writeError(w, &scene.ParamsError{Err: errors.Errorf("unknown filter %q", op)})
		return
	}
	params, err := srv.params(r)
	if err != nil {
		srv.writeError(w, err)
		return
	}
	if _, err := srv.scene.Filter(r.Context(), op, params); err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, srv.status())
}

type reconstructResponse struct {
	Method    scene.Method `json:"method"`
	Vertices  int          `json:"vertices"`
	Triangles int          `json:"triangles"`
	Radii     []float64    `json:"radii,omitempty"`
	Version   uint64       `json:"version"`
}

func (srv *Server) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	method := scene.Method(pat.Param(r, "method"))
	if !lo.Contains(scene.Methods, method) {
		srv.writeError(w, &scene.ParamsError{Err: errors.Errorf("unknown reconstruction method %q", method)})
		return
	}
	params, err := srv.params(r)
	if err != nil {
		srv.writeError(w, err)
		return
	}
	res, err := srv.scene.Reconstruct(r.Context(), method, params)
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, reconstructResponse{
		Method:    res.Method,
		Vertices:  res.Mesh.NumVertices(),
		Triangles: res.Mesh.NumTriangles(),
		Radii:     res.Radii,
		Version:   srv.scene.View().Version,
	})
}

type exportRequest struct {
	Path string `json:"path"`
}

func (srv *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(r, &req); err != nil {
		srv.writeError(w, err)
		return
	}
	var (
		path string
		err  error
	)
	switch entity := pat.Param(r, "entity"); entity {
	case "mesh":
		path, err = srv.scene.ExportMesh(r.Context(), req.Path)
	case "pointcloud":
		path, err = srv.scene.ExportPointCloud(r.Context(), req.Path)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, exportRequest{Path: path})
}

func (srv *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	srv.writeJSON(w, http.StatusOK, srv.scene.Settings().Get())
}

func (srv *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	params, err := srv.params(r)
	if err != nil {
		srv.writeError(w, err)
		return
	}
	updated, err := srv.scene.Settings().Replace(params)
	if err != nil {
		srv.writeError(w, &scene.ParamsError{Err: err})
		return
	}
	srv.writeJSON(w, http.StatusOK, updated)
}

type autoUpdateRequest struct {
	Enabled     *bool    `json:"enabled"`
	IntervalSec *float64 `json:"interval_sec"`
}

func (srv *Server) handleAutoUpdate(w http.ResponseWriter, r *http.Request) {
	var req autoUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		srv.writeError(w, err)
		return
	}
	if req.Enabled == nil {
		srv.writeError(w, &scene.ParamsError{Err: errors.New("enabled is required")})
		return
	}
	_, err := srv.scene.Settings().Update(func(s *scene.Settings) {
		s.AutoUpdate = *req.Enabled
		if req.IntervalSec != nil {
			s.AutoUpdateIntervalSec = *req.IntervalSec
		}
	})
	if err != nil {
		srv.writeError(w, &scene.ParamsError{Err: err})
		return
	}
	if st := srv.autoUpdateStatus(); st != nil {
		srv.writeJSON(w, http.StatusOK, st)
		return
	}
	srv.writeJSON(w, http.StatusOK, srv.scene.Settings().Get())
}

type journalEntry struct {
	scene.Operation
	DurationMs float64 `json:"duration_ms"`
}

func (srv *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if srv.options.Journal == nil {
		srv.writeJSON(w, http.StatusOK, []journalEntry{})
		return
	}
	q := journal.Query{Kind: scene.OperationKind(r.URL.Query().Get("kind"))}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			srv.writeError(w, &scene.ParamsError{Err: errors.Errorf("limit must be a positive integer, got %q", limit)})
			return
		}
		q.Limit = n
	}
	ops, err := srv.options.Journal.List(r.Context(), q)
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, lo.Map(ops, func(op scene.Operation, _ int) journalEntry {
		return journalEntry{Operation: op, DurationMs: float64(op.Duration) / float64(time.Millisecond)}
	}))
}
