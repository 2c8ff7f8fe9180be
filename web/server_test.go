package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/capturescene/capturescene/geometry"
	"github.com/capturescene/capturescene/geometry/native"
	"github.com/capturescene/capturescene/journal"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/persist"
	"github.com/capturescene/capturescene/pointcloud"
	"github.com/capturescene/capturescene/scene"
	"github.com/capturescene/capturescene/scene/autocapture"
)

type switchableSource struct {
	mu    sync.Mutex
	cloud *pointcloud.PointCloud
	err   error
}

func (s *switchableSource) NextPointCloud(ctx context.Context) (*pointcloud.PointCloud, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloud, s.err
}

func (s *switchableSource) Close(ctx context.Context) error {
	return nil
}

// hullReconstructor meshes the corners of the cloud's bounding box.
type hullReconstructor struct{}

func (hullReconstructor) mesh(cloud *pointcloud.PointCloud) (*mesh.Mesh, error) {
	if cloud.Size() < 3 {
		return nil, errors.New("need at least 3 points")
	}
	lo, hi := cloud.MetaData().Min(), cloud.MetaData().Max()
	return mesh.New(
		[]r3.Vector{lo, {X: hi.X, Y: lo.Y, Z: lo.Z}, {X: lo.X, Y: hi.Y, Z: lo.Z}, hi},
		[]mesh.Triangle{{0, 1, 2}, {1, 3, 2}},
	)
}

func (h hullReconstructor) AlphaShape(ctx context.Context, cloud *pointcloud.PointCloud, alpha float64) (*mesh.Mesh, error) {
	return h.mesh(cloud)
}

func (h hullReconstructor) BallPivot(ctx context.Context, cloud *pointcloud.PointCloud, radii []float64) (*mesh.Mesh, error) {
	return h.mesh(cloud)
}

func (h hullReconstructor) Poisson(ctx context.Context, cloud *pointcloud.PointCloud, params geometry.PoissonParams) (*mesh.Mesh, error) {
	return nil, geometry.ErrUnsupported
}

type fakeAutoUpdater struct{}

func (fakeAutoUpdater) State() (autocapture.State, time.Duration) {
	return autocapture.Running, 10 * time.Second
}

func (fakeAutoUpdater) Stats() autocapture.Stats {
	return autocapture.Stats{Run: 4, Skipped: 1}
}

type testServer struct {
	source  *switchableSource
	ctrl    *scene.Controller
	server  *Server
	journal *journal.Journal
	http    *httptest.Server
}

func newTestServer(t *testing.T, options Options) *testServer {
	t.Helper()
	logger := logging.NewTestLogger(t)
	j, err := journal.Open(":memory:")
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { test.That(t, j.Close(), test.ShouldBeNil) })

	ts := &testServer{
		source:  &switchableSource{cloud: pointcloud.NewGrid(r3.Vector{}, 3, 0.1)},
		journal: j,
	}
	var display scene.DisplayFunc = func(v scene.View) { ts.server.Show(v) }
	ts.ctrl = scene.NewController(
		ts.source,
		geometry.Split{Filterer: native.New(logger), Reconstructor: hullReconstructor{}},
		persist.NewFiles(logger),
		scene.NewSettingsStore(scene.DefaultSettings()),
		logger,
		scene.WithRecorder(j),
		scene.WithDisplays(display),
	)
	options.Journal = j
	ts.server = NewServer(ts.ctrl, options, logger)
	ts.http = httptest.NewServer(ts.server.Handler())
	t.Cleanup(ts.http.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.http.URL+path, strings.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, resp.Body.Close(), test.ShouldBeNil)
	}()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	return resp.StatusCode, buf.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	test.That(t, json.Unmarshal(data, &v), test.ShouldBeNil)
	return v
}

func TestEmptyScene(t *testing.T) {
	ts := newTestServer(t, Options{})

	code, body := ts.do(t, http.MethodGet, "/api/v1/scene", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	st := decode[sceneStatus](t, body)
	test.That(t, st.Version, test.ShouldEqual, uint64(0))
	test.That(t, st.Displayed, test.ShouldEqual, scene.DisplayNone)
	test.That(t, st.PointCloud, test.ShouldBeNil)
	test.That(t, st.AutoUpdate, test.ShouldBeNil)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/scene/pointcloud.pcd"},
		{http.MethodGet, "/api/v1/scene/mesh.ply"},
		{http.MethodPost, "/api/v1/filter/statistical_outlier"},
		{http.MethodPost, "/api/v1/reconstruct/alpha_shape"},
		{http.MethodPost, "/api/v1/export/mesh"},
		{http.MethodPost, "/api/v1/export/pointcloud"},
	} {
		code, body := ts.do(t, tc.method, tc.path, "")
		test.That(t, code, test.ShouldEqual, http.StatusConflict)
		test.That(t, string(body), test.ShouldContainSubstring, "error")
	}
}

func TestCaptureReconstructDownload(t *testing.T) {
	ts := newTestServer(t, Options{AutoUpdater: fakeAutoUpdater{}})

	code, body := ts.do(t, http.MethodPost, "/api/v1/capture", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	st := decode[sceneStatus](t, body)
	test.That(t, st.Version, test.ShouldEqual, uint64(1))
	test.That(t, st.Displayed, test.ShouldEqual, scene.DisplayPointCloud)
	test.That(t, st.PointCloud.Points, test.ShouldEqual, 27)
	test.That(t, st.PointCloud.Max, test.ShouldResemble, []float64{0.2, 0.2, 0.2})
	test.That(t, st.AutoUpdate.State, test.ShouldEqual, autocapture.Running)
	test.That(t, st.AutoUpdate.Stats.Run, test.ShouldEqual, uint64(4))

	code, body = ts.do(t, http.MethodGet, "/api/v1/scene/pointcloud.pcd", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	cloud, err := pointcloud.ReadPCD(bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 27)

	code, body = ts.do(t, http.MethodPost, "/api/v1/reconstruct/ball_pivoting", `{"ball_pivot_factor": 4}`)
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	res := decode[reconstructResponse](t, body)
	test.That(t, res.Triangles, test.ShouldEqual, 2)
	test.That(t, res.Radii, test.ShouldHaveLength, 3)
	test.That(t, res.Radii[1], test.ShouldAlmostEqual, 4*res.Radii[0])
	test.That(t, res.Version, test.ShouldEqual, uint64(2))
	// request bodies override settings for one call only
	test.That(t, ts.ctrl.Settings().Get().BallPivotFactor, test.ShouldEqual, 2.0)

	code, body = ts.do(t, http.MethodGet, "/api/v1/scene/mesh.ply", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	m, err := mesh.ReadPLY(bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.NumTriangles(), test.ShouldEqual, 2)

	dir := t.TempDir()
	code, body = ts.do(t, http.MethodPost, "/api/v1/export/mesh",
		`{"path": "`+filepath.ToSlash(filepath.Join(dir, "out.ply"))+`"}`)
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	test.That(t, decode[exportRequest](t, body).Path, test.ShouldEqual, filepath.Join(dir, "out.ply"))
	_, err = mesh.NewFromPLYFile(filepath.Join(dir, "out.ply"))
	test.That(t, err, test.ShouldBeNil)

	code, body = ts.do(t, http.MethodGet, "/api/v1/journal?limit=10", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	entries := decode[[]journalEntry](t, body)
	test.That(t, entries, test.ShouldHaveLength, 3)
	code, body = ts.do(t, http.MethodGet, "/api/v1/journal?kind=capture", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	test.That(t, decode[[]journalEntry](t, body), test.ShouldHaveLength, 1)
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t, Options{})
	code, _ := ts.do(t, http.MethodPost, "/api/v1/capture", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)

	for _, tc := range []struct {
		name, method, path, body string
		code                     int
	}{
		{"unsupported method", http.MethodPost, "/api/v1/reconstruct/poisson", "", http.StatusUnprocessableEntity},
		{"unknown method", http.MethodPost, "/api/v1/reconstruct/marching_cubes", "", http.StatusBadRequest},
		{"unknown filter", http.MethodPost, "/api/v1/filter/median", "", http.StatusBadRequest},
		{"bad params", http.MethodPost, "/api/v1/filter/radius_outlier", `{"radius": -1}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/filter/radius_outlier", `{"radius":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/filter/radius_outlier", `{"radios": 1}`, http.StatusBadRequest},
		{"bad version", http.MethodGet, "/api/v1/scene?after=x", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/journal?limit=0", "", http.StatusBadRequest},
		{"unknown export", http.MethodPost, "/api/v1/export/texture", "", http.StatusNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := ts.do(t, tc.method, tc.path, tc.body)
			test.That(t, code, test.ShouldEqual, tc.code)
		})
	}

	ts.source.mu.Lock()
	ts.source.err = errors.New("camera unplugged")
	ts.source.mu.Unlock()
	code, body := ts.do(t, http.MethodPost, "/api/v1/capture", "")
	test.That(t, code, test.ShouldEqual, http.StatusServiceUnavailable)
	test.That(t, string(body), test.ShouldContainSubstring, "camera unplugged")
	test.That(t, ts.ctrl.View().Version, test.ShouldEqual, uint64(1))
}

func TestStatusCode(t *testing.T) {
	test.That(t, statusCode(scene.ErrNoMesh), test.ShouldEqual, http.StatusConflict)
	test.That(t, statusCode(errors.Wrap(scene.ErrNoPointCloud, "export")), test.ShouldEqual, http.StatusConflict)
	test.That(t, statusCode(&scene.AcquisitionError{Err: errors.New("x")}), test.ShouldEqual, http.StatusServiceUnavailable)
	test.That(t, statusCode(&scene.ReconstructionError{Err: errors.New("x")}), test.ShouldEqual, http.StatusUnprocessableEntity)
	test.That(t, statusCode(&scene.FilterError{Err: errors.New("x")}), test.ShouldEqual, http.StatusUnprocessableEntity)
	test.That(t, statusCode(&scene.ParamsError{Err: errors.New("x")}), test.ShouldEqual, http.StatusBadRequest)
	test.That(t, statusCode(errors.New("boom")), test.ShouldEqual, http.StatusInternalServerError)
}

func TestCaptureRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{CaptureRate: 0.001, CaptureBurst: 1})
	code, _ := ts.do(t, http.MethodPost, "/api/v1/capture", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	code, _ = ts.do(t, http.MethodPost, "/api/v1/capture", "")
	test.That(t, code, test.ShouldEqual, http.StatusTooManyRequests)
}

func TestSettingsEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	code, body := ts.do(t, http.MethodGet, "/api/v1/settings", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	test.That(t, decode[scene.Settings](t, body), test.ShouldResemble, scene.DefaultSettings())

	code, body = ts.do(t, http.MethodPut, "/api/v1/settings", `{"alpha": 0.1, "poisson": {"depth": 7}}`)
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	updated := decode[scene.Settings](t, body)
	test.That(t, updated.Alpha, test.ShouldEqual, 0.1)
	test.That(t, updated.Poisson.Depth, test.ShouldEqual, 7)
	test.That(t, ts.ctrl.Settings().Get(), test.ShouldResemble, updated)

	code, _ = ts.do(t, http.MethodPut, "/api/v1/settings", `{"min_points": 0}`)
	test.That(t, code, test.ShouldEqual, http.StatusBadRequest)
	test.That(t, ts.ctrl.Settings().Get().MinPoints, test.ShouldEqual, 16)

	code, body = ts.do(t, http.MethodPut, "/api/v1/autoupdate", `{"enabled": true, "interval_sec": 2}`)
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	test.That(t, decode[scene.Settings](t, body).AutoUpdate, test.ShouldBeTrue)
	test.That(t, ts.ctrl.Settings().Get().Interval(), test.ShouldEqual, 2*time.Second)

	code, _ = ts.do(t, http.MethodPut, "/api/v1/autoupdate", `{}`)
	test.That(t, code, test.ShouldEqual, http.StatusBadRequest)
	code, _ = ts.do(t, http.MethodPut, "/api/v1/autoupdate", `{"enabled": true, "interval_sec": -1}`)
	test.That(t, code, test.ShouldEqual, http.StatusBadRequest)
}

func TestLongPoll(t *testing.T) {
	ts := newTestServer(t, Options{LongPollTimeout: 5 * time.Second})

	result := make(chan sceneStatus, 1)
	go func() {
		resp, err := http.Get(ts.http.URL + "/api/v1/scene?after=0")
		if err != nil {
			close(result)
			return
		}
		defer resp.Body.Close()
		var st sceneStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			close(result)
			return
		}
		result <- st
	}()

	select {
	case <-result:
		t.Fatal("long poll returned before the scene changed")
	case <-time.After(100 * time.Millisecond):
	}

	_, err := ts.ctrl.Capture(context.Background())
	test.That(t, err, test.ShouldBeNil)
	select {
	case st, ok := <-result:
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, st.Version, test.ShouldEqual, uint64(1))
		test.That(t, st.PointCloud.Points, test.ShouldEqual, 27)
	case <-time.After(5 * time.Second):
		t.Fatal("long poll never returned")
	}

	// already newer versions return at once
	code, body := ts.do(t, http.MethodGet, "/api/v1/scene?after=0", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	test.That(t, decode[sceneStatus](t, body).Version, test.ShouldEqual, uint64(1))
}

func TestLongPollTimeout(t *testing.T) {
	ts := newTestServer(t, Options{LongPollTimeout: 50 * time.Millisecond})
	code, body := ts.do(t, http.MethodGet, "/api/v1/scene?after=0", "")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	test.That(t, decode[sceneStatus](t, body).Version, test.ShouldEqual, uint64(0))
}

func TestServe(t *testing.T) {
	ts := newTestServer(t, Options{})
	listener, err := net.Listen("tcp", "localhost:0")
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ts.server.Serve(ctx, listener)
	}()

	resp, err := http.Get("http://" + listener.Addr().String() + "/api/v1/settings")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
}
