package scene

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/capturescene/capturescene/geometry"
)

// Settings are the user adjustable parameters of every operation. Operations
// receive a copy taken at call time.
type Settings struct {
	Radius          float64                `json:"radius"`
	MinPoints       int                    `json:"min_points"`
	StdRatio        float64                `json:"std_ratio"`
	Neighbors       int                    `json:"nb_neighbors"`
	Alpha           float64                `json:"alpha"`
	BallPivotFactor float64                `json:"ball_pivot_factor"`
	Poisson         geometry.PoissonParams `json:"poisson"`
	VoxelSize       float64                `json:"voxel_size"`
	EveryKPoints    int                    `json:"every_k_points"`

	AutoUpdate            bool    `json:"auto_update"`
	AutoUpdateIntervalSec float64 `json:"auto_update_interval_sec"`
}

// DefaultSettings returns the out of the box parameters.
func DefaultSettings() Settings {
	return Settings{
		Radius:          0.05,
		MinPoints:       16,
		StdRatio:        2.0,
		Neighbors:       20,
		Alpha:           0.03,
		BallPivotFactor: 2,
		Poisson: geometry.PoissonParams{
			Depth:   9,
			Width:   0,
			Scale:   1,
			Threads: -1,
		},
		VoxelSize:             0.01,
		EveryKPoints:          5,
		AutoUpdateIntervalSec: 10,
	}
}

// Interval returns the auto-update period.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.AutoUpdateIntervalSec * float64(time.Second))
}

// Validate ensures all parts of the settings are valid.
func (s Settings) Validate(path string) error {
	positive := map[string]float64{
		"radius":                   s.Radius,
		"std_ratio":                s.StdRatio,
		"alpha":                    s.Alpha,
		"ball_pivot_factor":        s.BallPivotFactor,
		"poisson.scale":            s.Poisson.Scale,
		"voxel_size":               s.VoxelSize,
		"auto_update_interval_sec": s.AutoUpdateIntervalSec,
	}
	for _, field := range []string{
		"radius", "std_ratio", "alpha", "ball_pivot_factor", "poisson.scale", "voxel_size", "auto_update_interval_sec",
	} {
		if !(positive[field] > 0) {
			return utils.NewConfigValidationError(path, errors.Errorf("%s must be positive, got %v", field, positive[field]))
		}
	}
	if s.MinPoints < 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("min_points must be at least 1, got %d", s.MinPoints))
	}
	if s.Neighbors < 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("nb_neighbors must be at least 1, got %d", s.Neighbors))
	}
	if s.EveryKPoints < 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("every_k_points must be at least 1, got %d", s.EveryKPoints))
	}
	if s.Poisson.Depth < 1 || s.Poisson.Depth > 16 {
		return utils.NewConfigValidationError(path, errors.Errorf("poisson.depth must be within [1, 16], got %d", s.Poisson.Depth))
	}
	if s.Poisson.Width < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("poisson.width must not be negative, got %v", s.Poisson.Width))
	}
	if s.Poisson.Threads == 0 || s.Poisson.Threads < -1 {
		return utils.NewConfigValidationError(path, errors.Errorf("poisson.threads must be -1 or positive, got %d", s.Poisson.Threads))
	}
	return nil
}

// SettingsStore holds the current settings and notifies listeners of changes.
type SettingsStore struct {
	mu        sync.Mutex
	current   Settings
	listeners []func(old, updated Settings)
}

// NewSettingsStore returns a store holding initial, which must be valid.
func NewSettingsStore(initial Settings) *SettingsStore {
	return &SettingsStore{current: initial}
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnChange registers fn to be called after every successful change.
// Listeners run synchronously, in registration order, outside the store's lock.
func (s *SettingsStore) OnChange(fn func(old, updated Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Update applies mutate to a copy of the current settings and stores the
// result if it validates.
func (s *SettingsStore) Update(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	old := s.current
	updated := old
	mutate(&updated)
	if err := updated.Validate("settings"); err != nil {
		s.mu.Unlock()
		return old, err
	}
	s.current = updated
	listeners := append([]func(Settings, Settings){}, s.listeners...)
	s.mu.Unlock()

	if old != updated {
		for _, fn := range listeners {
			fn(old, updated)
		}
	}
	return updated, nil
}

// Replace stores settings wholesale if they validate.
func (s *SettingsStore) Replace(settings Settings) (Settings, error) {
	return s.Update(func(cur *Settings) { *cur = settings })
}
