package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// cycle and stage observations cover whole export/load rounds, so the
// default sub-10s buckets are too tight
var syncBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// SyncMetrics records the shape of the sync loop: whole cycles, the two
// stages inside them, per-entity record outcomes, and the watermark.
type SyncMetrics struct {
	cycleDuration prometheus.Histogram
	cycleSuccess  prometheus.Counter
	cycleFailure  prometheus.Counter

	stageDuration *prometheus.HistogramVec
	stageSuccess  *prometheus.CounterVec
	stageFailure  *prometheus.CounterVec

	recordsUpserted *prometheus.CounterVec
	recordsSkipped  *prometheus.CounterVec

	watermark prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_cycle_duration_seconds",
		Help:    "Duration of full sync cycles in seconds.",
		Buckets: syncBuckets,
	})
	cycleSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_cycle_success_total",
		Help: "Successful sync cycles.",
	})
	cycleFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_cycle_failure_total",
		Help: "Failed sync cycles.",
	})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_stage_duration_seconds",
		Help:    "Duration of sync stages in seconds.",
		Buckets: syncBuckets,
	}, []string{"stage"})
	stageSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_stage_success_total",
		Help: "Successful sync stage executions.",
	}, []string{"stage"})
	stageFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_stage_failure_total",
		Help: "Failed sync stage executions.",
	}, []string{"stage"})
	recordsUpserted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_records_upserted_total",
		Help: "Records inserted or updated per entity.",
	}, []string{"entity"})
	recordsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_records_skipped_total",
		Help: "Records skipped per entity.",
	}, []string{"entity"})
	watermark := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_watermark_modified_since",
		Help: "Current modified-since watermark as a unix timestamp.",
	})
	reg.MustRegister(
		cycleDuration, cycleSuccess, cycleFailure,
		stageDuration, stageSuccess, stageFailure,
		recordsUpserted, recordsSkipped,
		watermark,
	)
	return &SyncMetrics{
		cycleDuration:   cycleDuration,
		cycleSuccess:    cycleSuccess,
		cycleFailure:    cycleFailure,
		stageDuration:   stageDuration,
		stageSuccess:    stageSuccess,
		stageFailure:    stageFailure,
		recordsUpserted: recordsUpserted,
		recordsSkipped:  recordsSkipped,
		watermark:       watermark,
	}
}

// ObserveCycleDuration records how long a full cycle took.
func (s *SyncMetrics) ObserveCycleDuration(duration time.Duration) {
	if s == nil || s.cycleDuration == nil {
		return
	}
	s.cycleDuration.Observe(duration.Seconds())
}

// IncCycleSuccess increments the successful cycle counter.
func (s *SyncMetrics) IncCycleSuccess() {
	if s == nil || s.cycleSuccess == nil {
		return
	}
	s.cycleSuccess.Inc()
}

// IncCycleFailure increments the failed cycle counter.
func (s *SyncMetrics) IncCycleFailure() {
	if s == nil || s.cycleFailure == nil {
		return
	}
	s.cycleFailure.Inc()
}

// ObserveStageDuration records how long the named stage took.
func (s *SyncMetrics) ObserveStageDuration(stage string, duration time.Duration) {
	if s == nil || s.stageDuration == nil {
		return
	}
	s.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncStageSuccess increments the success counter for the named stage.
func (s *SyncMetrics) IncStageSuccess(stage string) {
	if s == nil || s.stageSuccess == nil {
		return
	}
	s.stageSuccess.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncStageFailure increments the failure counter for the named stage.
func (s *SyncMetrics) IncStageFailure(stage string) {
	if s == nil || s.stageFailure == nil {
		return
	}
	s.stageFailure.WithLabelValues(normalizeLabel(stage)).Inc()
}

// AddRecordsUpserted adds inserted/updated records for the named entity.
func (s *SyncMetrics) AddRecordsUpserted(entity string, n int) {
	if s == nil || s.recordsUpserted == nil || n <= 0 {
		return
	}
	s.recordsUpserted.WithLabelValues(normalizeLabel(entity)).Add(float64(n))
}

// AddRecordsSkipped adds skipped records for the named entity.
func (s *SyncMetrics) AddRecordsSkipped(entity string, n int) {
	if s == nil || s.recordsSkipped == nil || n <= 0 {
		return
	}
	s.recordsSkipped.WithLabelValues(normalizeLabel(entity)).Add(float64(n))
}

// SetWatermark reports the active modified-since watermark.
func (s *SyncMetrics) SetWatermark(modifiedSince time.Time) {
	if s == nil || s.watermark == nil {
		return
	}
	s.watermark.Set(float64(modifiedSince.Unix()))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
