package status

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink exposes stage duration and failure counts as Prometheus
// metrics, for deployments that scrape a /metrics endpoint instead of (or
// alongside) tailing a FileSink's NDJSON log.
type MetricsSink struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	sessionTotal  *prometheus.CounterVec
}

// NewMetricsSink registers its metrics with reg and returns a Sink.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	s := &MetricsSink{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessionscribe",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock time spent running to completion in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionscribe",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Count of stage completions that ended in failed or skipped status.",
		}, []string{"stage", "phase"}),
		sessionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionscribe",
			Subsystem: "pipeline",
			Name:      "sessions_total",
			Help:      "Count of sessions by terminal outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{s.stageDuration, s.stageFailures, s.sessionTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MetricsSink) SessionEvent(e SessionEvent) {
	switch e.Kind {
	case "complete":
		s.sessionTotal.WithLabelValues("complete").Inc()
	case "fail":
		s.sessionTotal.WithLabelValues("fail").Inc()
	}
}

func (s *MetricsSink) StageUpdate(u Update) {
	switch u.Phase {
	case PhaseFailed, PhaseSkipped:
		s.stageFailures.WithLabelValues(stageLabel(u.StageNumber), string(u.Phase)).Inc()
	case PhaseCompleted:
		if u.Duration > 0 {
			s.stageDuration.WithLabelValues(stageLabel(u.StageNumber)).Observe(u.Duration.Seconds())
		}
	}
}

func stageLabel(n int) string {
	names := []string{
		"", "audio_converted", "audio_chunked", "audio_transcribed",
		"transcription_merged", "speaker_diarized", "segments_classified",
		"outputs_generated", "audio_segments_exported", "knowledge_extracted",
	}
	if n < 0 || n >= len(names) {
		return "unknown"
	}
	return names[n]
}
