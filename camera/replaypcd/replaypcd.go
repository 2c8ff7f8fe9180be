// Package replaypcd implements a camera that plays back point cloud files from
// a directory in name order.
package replaypcd

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"github.com/capturescene/capturescene/camera"
	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/pointcloud"
)

// Model is the registered model name.
const Model = "replay_pcd"

// ErrEndOfDataset is returned once every file has been replayed and looping is off.
var ErrEndOfDataset = errors.New("reached end of dataset")

func init() {
	camera.Register(Model, func(ctx context.Context, attrs camera.Attributes, logger logging.Logger) (camera.Source, error) {
		var cfg Config
		if err := camera.DecodeAttributes(attrs, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate("camera.attributes"); err != nil {
			return nil, err
		}
		return New(cfg, logger)
	})
}

// Config describes how to configure the replay camera.
type Config struct {
	Directory string `json:"directory"`
	Loop      bool   `json:"loop,omitempty"`
}

// Validate checks that the config attributes are valid for a replay camera.
func (cfg *Config) Validate(path string) error {
	if cfg.Directory == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "directory")
	}
	return nil
}

var supportedSuffixes = []string{".pcd", ".pcd.gz", ".las"}

// pcdCamera is a camera that plays back pre-captured point cloud files.
type pcdCamera struct {
	logger logging.Logger
	files  []string
	loop   bool

	mu     sync.Mutex
	next   int
	closed bool
}

// New lists the replayable files of the directory. A directory without any
// is an error.
func New(cfg Config, logger logging.Logger) (camera.Source, error) {
	entries, err := os.ReadDir(cfg.Directory)
	if err != nil {
		return nil, err
	}
	names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		if e.IsDir() {
			return "", false
		}
		lower := strings.ToLower(e.Name())
		return filepath.Join(cfg.Directory, e.Name()), lo.SomeBy(supportedSuffixes, func(s string) bool {
			return strings.HasSuffix(lower, s)
		})
	})
	if len(names) == 0 {
		return nil, errors.Errorf("no point cloud files in %s", cfg.Directory)
	}
	sort.Strings(names)
	logger.Infow("replaying point clouds", "directory", cfg.Directory, "files", len(names), "loop", cfg.Loop)
	return &pcdCamera{logger: logger, files: names, loop: cfg.Loop}, nil
}

// NextPointCloud returns the next file's cloud.
func (replay *pcdCamera) NextPointCloud(ctx context.Context) (*pointcloud.PointCloud, error) {
	replay.mu.Lock()
	if replay.closed {
		replay.mu.Unlock()
		return nil, errors.New("session closed")
	}
	if replay.next >= len(replay.files) {
		if !replay.loop {
			replay.mu.Unlock()
			return nil, ErrEndOfDataset
		}
		replay.next = 0
	}
	fn := replay.files[replay.next]
	replay.next++
	replay.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cloud, err := readFile(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to replay %s", filepath.Base(fn))
	}
	replay.logger.Debugw("replayed point cloud", "file", fn, "points", cloud.Size())
	return cloud, nil
}

func readFile(fn string) (*pointcloud.PointCloud, error) {
	lower := strings.ToLower(fn)
	if strings.HasSuffix(lower, ".las") {
		return pointcloud.NewFromLASFile(fn)
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var r io.Reader = f
	if strings.HasSuffix(lower, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(gz.Close)
		r = gz
	}
	return pointcloud.ReadPCD(r)
}

// Close stops the replay.
func (replay *pcdCamera) Close(ctx context.Context) error {
	replay.mu.Lock()
	defer replay.mu.Unlock()
	replay.closed = true
	return nil
}
