package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/licensesync/pkg/logger"
	"github.com/angelmondragon/licensesync/pkg/metrics"
)

const (
	defaultInterval    = 30 * time.Minute
	defaultInitialPoll = 60 * time.Second
	defaultSteadyPoll  = 120 * time.Second
)

// CycleRunner executes one full export+load cycle for the given watermark.
type CycleRunner interface {
	RunCycle(ctx context.Context, mark Watermark) error
}

// Status is a point-in-time snapshot of the loop for the ops status endpoint.
type Status struct {
	NextRunAt         time.Time  `json:"next_run_at"`
	ModifiedSince     string     `json:"modified_since"`
	CyclesRun         uint64     `json:"cycles_run"`
	LastCycleAt       *time.Time `json:"last_cycle_at,omitempty"`
	LastCycleDuration string     `json:"last_cycle_duration,omitempty"`
	LastCycleError    string     `json:"last_cycle_error,omitempty"`
}

// ServiceParams configure the sync scheduler.
type ServiceParams struct {
	Logger      *logger.Logger
	Metrics     *metrics.SyncMetrics
	Runner      CycleRunner
	Lock        Lock
	Watermark   Watermark
	Interval    time.Duration
	InitialPoll time.Duration
	SteadyPoll  time.Duration
}

// Service drives the sync loop: wait until the watermark is due, take the
// cycle lock, run one cycle, advance the watermark.
type Service struct {
	logg        *logger.Logger
	metrics     *metrics.SyncMetrics
	runner      CycleRunner
	lock        Lock
	interval    time.Duration
	initialPoll time.Duration
	steadyPoll  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	mark   Watermark
	status Status
}

// NewService builds the scheduler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("cycle runner required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	initialPoll := params.InitialPoll
	if initialPoll <= 0 {
		initialPoll = defaultInitialPoll
	}
	steadyPoll := params.SteadyPoll
	if steadyPoll <= 0 {
		steadyPoll = defaultSteadyPoll
	}
	mark := NewWatermark(params.Watermark.NextRunAt, params.Watermark.ModifiedSince)
	svc := &Service{
		logg:        params.Logger,
		metrics:     params.Metrics,
		runner:      params.Runner,
		lock:        params.Lock,
		interval:    interval,
		initialPoll: initialPoll,
		steadyPoll:  steadyPoll,
		now:         time.Now,
		sleep:       sleepContext,
		mark:        mark,
		status: Status{
			NextRunAt:     mark.NextRunAt,
			ModifiedSince: mark.ModifiedSinceParam(),
		},
	}
	svc.metrics.SetWatermark(mark.ModifiedSince)
	return svc, nil
}

// Run executes the loop until the context is canceled. Cancellation lands
// between cycles only: an in-flight cycle finishes on a detached context so
// writes are never interrupted mid-stage.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	poll := s.initialPoll
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "sync scheduler context canceled")
			return err
		}
		mark := s.watermark()
		now := s.now().UTC()
		if !mark.Due(now) {
			waitCtx := s.logg.WithFields(ctx, map[string]any{
				"next_run_at": mark.NextRunAt.Format(time.RFC3339),
				"now":         now.Format(time.RFC3339),
			})
			s.logg.Info(waitCtx, "cycle not due yet")
			if err := s.sleep(ctx, poll); err != nil {
				s.logg.Info(ctx, "sync scheduler context canceled")
				return err
			}
			continue
		}
		s.runCycle(ctx, mark)
		s.advance(mark)
		poll = s.steadyPoll
	}
}

// Status returns a snapshot of the loop state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) runCycle(ctx context.Context, mark Watermark) {
	// Detached from the loop context: shutdown waits for the cycle boundary
	// rather than interrupting writes mid-flight.
	cycleCtx := context.WithoutCancel(ctx)
	cycleCtx = s.logg.WithField(cycleCtx, "modified_since", mark.ModifiedSinceParam())

	locked, err := s.lock.Acquire(cycleCtx)
	if err != nil {
		s.metrics.IncCycleFailure()
		s.recordCycle(s.now(), 0, fmt.Errorf("lock acquire: %w", err))
		s.logg.Error(cycleCtx, "cycle lock acquire failed", err)
		return
	}
	if !locked {
		s.logg.Info(cycleCtx, "another worker holds the cycle lock; skipping this cycle")
		return
	}
	defer func() {
		if relErr := s.lock.Release(cycleCtx); relErr != nil {
			s.logg.Error(cycleCtx, "failed to release cycle lock", relErr)
		}
	}()

	cycleCtx = s.logg.WithCycle(cycleCtx, s.beginCycle())
	s.logg.Info(cycleCtx, "cycle starting")
	start := s.now()
	err = s.runner.RunCycle(cycleCtx, mark)
	duration := s.now().Sub(start)
	s.metrics.ObserveCycleDuration(duration)
	s.recordCycle(start, duration, err)
	cycleCtx = s.logg.WithField(cycleCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.metrics.IncCycleFailure()
		s.logg.Error(cycleCtx, "cycle failed", err)
		return
	}
	s.metrics.IncCycleSuccess()
	s.logg.Info(cycleCtx, "cycle completed")
}

// advance moves the watermark one interval forward. It runs after every fire,
// including failed and lock-skipped cycles: the trailing window re-covers the
// lost ground on the next run.
func (s *Service) advance(mark Watermark) {
	next := mark.Advance(s.interval)
	s.mu.Lock()
	s.mark = next
	s.status.NextRunAt = next.NextRunAt
	s.status.ModifiedSince = next.ModifiedSinceParam()
	s.mu.Unlock()
	s.metrics.SetWatermark(next.ModifiedSince)
}

func (s *Service) watermark() Watermark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mark
}

func (s *Service) beginCycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.CyclesRun++
	return s.status.CyclesRun
}

func (s *Service) recordCycle(at time.Time, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at = at.UTC()
	s.status.LastCycleAt = &at
	s.status.LastCycleDuration = duration.Round(time.Millisecond).String()
	if err != nil {
		s.status.LastCycleError = err.Error()
	} else {
		s.status.LastCycleError = ""
	}
}

// sleepContext waits for d unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
