package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/angelmondragon/licensesync/pkg/logger"
)

type fakeExporter struct {
	calls []time.Time
	paths []string
	err   error
	write bool
}

func (f *fakeExporter) Export(_ context.Context, outputPath string, modifiedSince time.Time) error {
	f.calls = append(f.calls, modifiedSince)
	f.paths = append(f.paths, outputPath)
	if f.err != nil {
		return f.err
	}
	if f.write {
		return os.WriteFile(outputPath, []byte("[]"), 0o644)
	}
	return nil
}

type fakeLoader struct {
	paths []string
	err   error
}

func (f *fakeLoader) Load(_ context.Context, inputPath string) error {
	f.paths = append(f.paths, inputPath)
	return f.err
}

func newTestRunner(t *testing.T, exporter *fakeExporter, loader *fakeLoader) (*Runner, string) {
	t.Helper()
	artifact := filepath.Join(t.TempDir(), "licenses_export.json")
	runner, err := NewRunner(RunnerParams{
		Logger:       logger.New(logger.Options{ServiceName: "runner-test"}),
		Exporter:     exporter,
		Loader:       loader,
		ArtifactPath: artifact,
		SettleDelay:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("construct runner: %v", err)
	}
	return runner, artifact
}

func TestRunnerRunsStagesInOrder(t *testing.T) {
	exporter := &fakeExporter{write: true}
	loader := &fakeLoader{}
	runner, artifact := newTestRunner(t, exporter, loader)
	var settles []time.Duration
	runner.sleep = func(_ context.Context, d time.Duration) error {
		if len(loader.paths) != 0 {
			t.Fatal("settle wait ran after the load stage")
		}
		settles = append(settles, d)
		return nil
	}

	since := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mark := NewWatermark(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), since)
	if err := runner.RunCycle(context.Background(), mark); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(exporter.calls) != 1 || !exporter.calls[0].Equal(since) {
		t.Fatalf("unexpected export calls: %v", exporter.calls)
	}
	if len(exporter.paths) != 1 || exporter.paths[0] != artifact {
		t.Fatalf("unexpected export path: %v", exporter.paths)
	}
	if len(loader.paths) != 1 || loader.paths[0] != artifact {
		t.Fatalf("unexpected load path: %v", loader.paths)
	}
	if len(settles) != 1 || settles[0] != 10*time.Second {
		t.Fatalf("unexpected settle waits: %v", settles)
	}
}

func TestRunnerRemovesPreviousArtifactFirst(t *testing.T) {
	exporter := &fakeExporter{err: errors.New("export down")}
	loader := &fakeLoader{}
	runner, artifact := newTestRunner(t, exporter, loader)
	runner.sleep = func(context.Context, time.Duration) error { return nil }
	if err := os.WriteFile(artifact, []byte(`[{"licenseId":"stale"}]`), 0o644); err != nil {
		t.Fatalf("seed stale artifact: %v", err)
	}

	err := runner.RunCycle(context.Background(), NewWatermark(time.Now(), time.Time{}))
	if err == nil {
		t.Fatal("expected cycle failure")
	}
	if _, statErr := os.Stat(artifact); !os.IsNotExist(statErr) {
		t.Fatal("stale artifact survived the cycle start")
	}
	if len(loader.paths) != 0 {
		t.Fatal("load ran after a failed export")
	}
}

func TestRunnerExportFailureSkipsLoad(t *testing.T) {
	exporter := &fakeExporter{err: errors.New("upstream 503")}
	loader := &fakeLoader{}
	runner, _ := newTestRunner(t, exporter, loader)
	settled := false
	runner.sleep = func(context.Context, time.Duration) error { settled = true; return nil }

	err := runner.RunCycle(context.Background(), NewWatermark(time.Now(), time.Time{}))
	if err == nil {
		t.Fatal("expected cycle failure")
	}
	if settled {
		t.Fatal("settle wait ran after a failed export")
	}
	if len(loader.paths) != 0 {
		t.Fatal("load ran after a failed export")
	}
}

func TestRunnerPropagatesLoadFailure(t *testing.T) {
	exporter := &fakeExporter{write: true}
	loader := &fakeLoader{err: errors.New("db down")}
	runner, _ := newTestRunner(t, exporter, loader)
	runner.sleep = func(context.Context, time.Duration) error { return nil }

	err := runner.RunCycle(context.Background(), NewWatermark(time.Now(), time.Time{}))
	if err == nil {
		t.Fatal("expected cycle failure")
	}
	if len(loader.paths) != 1 {
		t.Fatalf("expected one load attempt, got %d", len(loader.paths))
	}
}

func TestRunnerStopsWhenCanceledDuringSettle(t *testing.T) {
	exporter := &fakeExporter{write: true}
	loader := &fakeLoader{}
	runner, _ := newTestRunner(t, exporter, loader)

	ctx, cancel := context.WithCancel(context.Background())
	runner.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	err := runner.RunCycle(ctx, NewWatermark(time.Now(), time.Time{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(loader.paths) != 0 {
		t.Fatal("load ran after cancellation")
	}
}

func TestNewRunnerValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "runner-test"})
	cases := []struct {
		name   string
		params RunnerParams
	}{
		{"missing logger", RunnerParams{Exporter: &fakeExporter{}, Loader: &fakeLoader{}, ArtifactPath: "a.json"}},
		{"missing exporter", RunnerParams{Logger: logg, Loader: &fakeLoader{}, ArtifactPath: "a.json"}},
		{"missing loader", RunnerParams{Logger: logg, Exporter: &fakeExporter{}, ArtifactPath: "a.json"}},
		{"missing artifact path", RunnerParams{Logger: logg, Exporter: &fakeExporter{}, Loader: &fakeLoader{}}},
	}
	for _, tc := range cases {
		if _, err := NewRunner(tc.params); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
