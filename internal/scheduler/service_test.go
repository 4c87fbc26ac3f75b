package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/licensesync/pkg/logger"
)

type fakeCycleRunner struct {
	marks []Watermark
	err   error
	onRun func()
}

func (f *fakeCycleRunner) RunCycle(_ context.Context, mark Watermark) error {
	f.marks = append(f.marks, mark)
	if f.onRun != nil {
		f.onRun()
	}
	return f.err
}

type fakeLock struct {
	deny       bool
	acquireErr error
	acquires   int
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	return !f.deny, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	return nil
}

type serviceHarness struct {
	svc    *Service
	runner *fakeCycleRunner
	lock   *fakeLock
	clock  time.Time
	sleeps []time.Duration
	cancel context.CancelFunc
	ctx    context.Context
}

func newServiceHarness(t *testing.T, params ServiceParams) *serviceHarness {
	t.Helper()
	h := &serviceHarness{
		runner: &fakeCycleRunner{},
		lock:   &fakeLock{},
	}
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "scheduler-test"})
	}
	if params.Runner == nil {
		params.Runner = h.runner
	}
	if params.Lock == nil {
		params.Lock = h.lock
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	h.svc = svc
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.clock = params.Watermark.NextRunAt
	svc.now = func() time.Time { return h.clock }
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		h.clock = h.clock.Add(d)
		return ctx.Err()
	}
	return h
}

func TestServiceRunsCycleWhenDue(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newServiceHarness(t, ServiceParams{
		Watermark: NewWatermark(start, time.Time{}),
		Interval:  30 * time.Minute,
	})
	h.runner.onRun = h.cancel

	err := h.svc.Run(h.ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.runner.marks) != 1 {
		t.Fatalf("expected one cycle, got %d", len(h.runner.marks))
	}
	if !h.runner.marks[0].ModifiedSince.Equal(farPast) {
		t.Fatalf("first cycle bound: %s", h.runner.marks[0].ModifiedSince)
	}
	if h.lock.acquires != 1 || h.lock.releases != 1 {
		t.Fatalf("lock acquires=%d releases=%d", h.lock.acquires, h.lock.releases)
	}

	status := h.svc.Status()
	if !status.NextRunAt.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("watermark not advanced: %s", status.NextRunAt)
	}
	if status.ModifiedSince != "2026-03-10" {
		t.Fatalf("unexpected bound after advance: %s", status.ModifiedSince)
	}
	if status.CyclesRun != 1 {
		t.Fatalf("cycles run: %d", status.CyclesRun)
	}
	if status.LastCycleError != "" {
		t.Fatalf("unexpected cycle error: %s", status.LastCycleError)
	}
	if status.LastCycleAt == nil || !status.LastCycleAt.Equal(start) {
		t.Fatalf("unexpected last cycle time: %v", status.LastCycleAt)
	}
}

func TestServicePollsUntilDue(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newServiceHarness(t, ServiceParams{
		Watermark:   NewWatermark(start.Add(5*time.Minute), time.Time{}),
		Interval:    30 * time.Minute,
		InitialPoll: time.Minute,
	})
	h.clock = start
	h.runner.onRun = h.cancel

	if err := h.svc.Run(h.ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.sleeps) != 5 {
		t.Fatalf("expected 5 poll waits, got %d", len(h.sleeps))
	}
	for i, d := range h.sleeps {
		if d != time.Minute {
			t.Fatalf("poll wait %d was %s", i, d)
		}
	}
	if len(h.runner.marks) != 1 {
		t.Fatalf("expected one cycle, got %d", len(h.runner.marks))
	}
}

func TestServiceSwitchesToSteadyPollAfterFirstCycle(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newServiceHarness(t, ServiceParams{
		Watermark:   NewWatermark(start, time.Time{}),
		Interval:    30 * time.Minute,
		InitialPoll: time.Minute,
		SteadyPoll:  2 * time.Minute,
	})
	h.runner.onRun = func() {
		if len(h.runner.marks) == 2 {
			h.cancel()
		}
	}

	if err := h.svc.Run(h.ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.runner.marks) != 2 {
		t.Fatalf("expected two cycles, got %d", len(h.runner.marks))
	}
	// 30 minutes to the next due time at the 2-minute steady cadence.
	if len(h.sleeps) != 15 {
		t.Fatalf("expected 15 steady waits, got %d", len(h.sleeps))
	}
	for i, d := range h.sleeps {
		if d != 2*time.Minute {
			t.Fatalf("steady wait %d was %s", i, d)
		}
	}
	if got := h.runner.marks[1].ModifiedSinceParam(); got != "2026-03-10" {
		t.Fatalf("second cycle bound: %s", got)
	}
}

func TestServiceAdvancesWhenLockDenied(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newServiceHarness(t, ServiceParams{
		Watermark: NewWatermark(start, time.Time{}),
		Interval:  30 * time.Minute,
	})
	h.lock.deny = true
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.cancel()
		return ctx.Err()
	}

	if err := h.svc.Run(h.ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.runner.marks) != 0 {
		t.Fatal("cycle ran without the lock")
	}
	status := h.svc.Status()
	if !status.NextRunAt.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("watermark not advanced on skip: %s", status.NextRunAt)
	}
	if status.CyclesRun != 0 {
		t.Fatalf("skipped cycle counted as run: %d", status.CyclesRun)
	}
}

func TestServiceContinuesAfterCycleFailure(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newServiceHarness(t, ServiceParams{
		Watermark:  NewWatermark(start, time.Time{}),
		Interval:   30 * time.Minute,
		SteadyPoll: 10 * time.Minute,
	})
	h.runner.err = errors.New("export down")
	h.runner.onRun = func() {
		if len(h.runner.marks) == 2 {
			h.cancel()
		}
	}

	if err := h.svc.Run(h.ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.runner.marks) != 2 {
		t.Fatalf("loop stopped after a failed cycle: %d cycles", len(h.runner.marks))
	}
	status := h.svc.Status()
	if status.LastCycleError != "export down" {
		t.Fatalf("unexpected last cycle error: %q", status.LastCycleError)
	}
	if status.CyclesRun != 2 {
		t.Fatalf("cycles run: %d", status.CyclesRun)
	}
	if h.lock.releases != 2 {
		t.Fatalf("lock releases: %d", h.lock.releases)
	}
}

func TestServiceRecordsLockAcquireFailure(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newServiceHarness(t, ServiceParams{
		Watermark: NewWatermark(start, time.Time{}),
		Interval:  30 * time.Minute,
	})
	h.lock.acquireErr = errors.New("redis down")
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.cancel()
		return ctx.Err()
	}

	if err := h.svc.Run(h.ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.runner.marks) != 0 {
		t.Fatal("cycle ran despite the lock error")
	}
	status := h.svc.Status()
	if status.LastCycleError == "" {
		t.Fatal("lock error not surfaced in status")
	}
	if !status.NextRunAt.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("watermark not advanced after lock error: %s", status.NextRunAt)
	}
}

func TestServiceStatusBeforeFirstCycle(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	h := newServiceHarness(t, ServiceParams{
		Watermark: NewWatermark(start, since),
		Interval:  30 * time.Minute,
	})
	status := h.svc.Status()
	if !status.NextRunAt.Equal(start) {
		t.Fatalf("unexpected next run: %s", status.NextRunAt)
	}
	if status.ModifiedSince != "2026-02-01" {
		t.Fatalf("unexpected bound: %s", status.ModifiedSince)
	}
	if status.CyclesRun != 0 || status.LastCycleAt != nil {
		t.Fatal("expected a pristine status snapshot")
	}
}

func TestNewServiceValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "scheduler-test"})
	if _, err := NewService(ServiceParams{Runner: &fakeCycleRunner{}, Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected error for missing logger")
	}
	if _, err := NewService(ServiceParams{Logger: logg, Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected error for missing runner")
	}
	if _, err := NewService(ServiceParams{Logger: logg, Runner: &fakeCycleRunner{}}); err == nil {
		t.Fatal("expected error for missing lock")
	}
}
