// Package autocapture periodically captures new point clouds while auto-update is enabled.
package autocapture

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/pointcloud"
	"github.com/capturescene/capturescene/scene"
)

// State is the scheduler state.
type State string

// The scheduler states.
const (
	Idle    State = "idle"
	Running State = "running"
)

// Capturer is what a tick calls. It must give up rather than wait when busy.
type Capturer interface {
	TryCapture(ctx context.Context) (*pointcloud.PointCloud, bool, error)
}

// Stats counts ticks since the scheduler was created.
type Stats struct {
	Run     uint64 `json:"run"`
	Skipped uint64 `json:"skipped"`
	Failed  uint64 `json:"failed"`
}

// Scheduler runs a capture job at a fixed interval while Running.
type Scheduler struct {
	capturer  Capturer
	logger    logging.Logger
	scheduler gocron.Scheduler

	cancelCtx  context.Context
	cancelFunc context.CancelFunc

	mu         sync.Mutex
	state      State
	interval   time.Duration
	jobID      uuid.UUID
	generation uint64
	closed     bool

	run     atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

// New returns an Idle scheduler.
func New(capturer Capturer, logger logging.Logger) (*Scheduler, error) {
	logger = logger.Sublogger("autocapture")
	scheduler, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{logger: logger}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler")
	}
	scheduler.Start()

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &Scheduler{
		capturer:   capturer,
		logger:     logger,
		scheduler:  scheduler,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		state:      Idle,
	}, nil
}

// State returns the current state and, when Running, the tick interval.
func (s *Scheduler) State() (State, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.interval
}

// Stats returns the tick counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Run:     s.run.Load(),
		Skipped: s.skipped.Load(),
		Failed:  s.failed.Load(),
	}
}

// Enable starts ticking every interval. It is a no-op when already Running.
func (s *Scheduler) Enable(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enableLocked(interval)
}

func (s *Scheduler) enableLocked(interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("auto-update interval must be positive, got %v", interval)
	}
	if s.closed {
		return errors.New("scheduler closed")
	}
	if s.state == Running {
		return nil
	}

	s.generation++
	gen := s.generation
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.tick, gen),
		gocron.WithName("capture"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "failed to schedule capture")
	}
	s.jobID = job.ID()
	s.interval = interval
	s.state = Running
	s.logger.Infow("auto-update enabled", "interval", interval, "job", s.jobID)
	return nil
}

// Disable stops ticking. A tick that already started its capture finishes;
// no other tick captures after Disable returns. It is a no-op when Idle.
func (s *Scheduler) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disableLocked()
}

func (s *Scheduler) disableLocked() error {
	if s.state == Idle {
		return nil
	}
	s.state = Idle
	s.interval = 0
	s.generation++
	err := s.scheduler.RemoveJob(s.jobID)
	s.jobID = uuid.Nil
	s.logger.Info("auto-update disabled")
	if err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		return errors.Wrap(err, "failed to remove capture job")
	}
	return nil
}

// Follow applies the auto-update fields of store now and on every change.
// Each application reads the store, so listeners running out of order still
// leave the scheduler matching the latest settings.
func (s *Scheduler) Follow(store *scene.SettingsStore) error {
	store.OnChange(func(_, _ scene.Settings) {
		if err := s.apply(store); err != nil {
			s.logger.Errorw("failed to apply auto-update settings", "error", err)
		}
	})
	return s.apply(store)
}

func (s *Scheduler) apply(store *scene.SettingsStore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := store.Get()
	if !settings.AutoUpdate {
		return s.disableLocked()
	}
	if s.state == Running && s.interval != settings.Interval() {
		if err := s.disableLocked(); err != nil {
			return err
		}
	}
	return s.enableLocked(settings.Interval())
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	current := s.state == Running && s.generation == gen
	s.mu.Unlock()
	if !current {
		return
	}

	cloud, attempted, err := s.capturer.TryCapture(s.cancelCtx)
	switch {
	case !attempted:
		s.skipped.Inc()
		s.logger.Debug("scene busy, skipping auto-update tick")
	case err != nil:
		s.run.Inc()
		s.failed.Inc()
		s.logger.Warnw("auto-update capture failed", "error", err)
	default:
		s.run.Inc()
		s.logger.Debugw("auto-update captured", "points", cloud.Size())
	}
}

// Close disables the scheduler and shuts it down.
func (s *Scheduler) Close() error {
	err := s.Disable()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelFunc()
	if shutdownErr := s.scheduler.Shutdown(); shutdownErr != nil {
		return errors.Wrap(shutdownErr, "failed to shut down scheduler")
	}
	return err
}

type gocronLogger struct {
	logger logging.Logger
}

func (l gocronLogger) Debug(msg string, args ...any) {
	l.logger.Debugw(msg, args...)
}

func (l gocronLogger) Info(msg string, args ...any) {
	l.logger.Infow(msg, args...)
}

func (l gocronLogger) Warn(msg string, args ...any) {
	l.logger.Warnw(msg, args...)
}

func (l gocronLogger) Error(msg string, args ...any) {
	l.logger.Errorw(msg, args...)
}
