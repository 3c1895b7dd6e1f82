package status

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsSink_RegistersAllCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	sink, err := NewMetricsSink(reg)
	require.NoError(t, err)
	require.NotNil(t, sink)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(mfs), 0)
}

func TestNewMetricsSink_DuplicateRegistrationFails(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := NewMetricsSink(reg)
	require.NoError(t, err)

	_, err = NewMetricsSink(reg)
	assert.Error(t, err)
}

func TestMetricsSink_StageUpdateRecordsDurationOnCompletion(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	sink, err := NewMetricsSink(reg)
	require.NoError(t, err)

	sink.StageUpdate(Update{StageNumber: 1, Phase: PhaseCompleted, Duration: 3 * time.Second})

	metric := &dto.Metric{}
	require.NoError(t, sink.stageDuration.WithLabelValues("audio_converted").Write(metric))
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}

func TestMetricsSink_StageUpdateIgnoresZeroDurationOnCompletion(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	sink, err := NewMetricsSink(reg)
	require.NoError(t, err)

	sink.StageUpdate(Update{StageNumber: 1, Phase: PhaseCompleted, Duration: 0})

	metric := &dto.Metric{}
	require.NoError(t, sink.stageDuration.WithLabelValues("audio_converted").Write(metric))
	assert.Equal(t, uint64(0), metric.GetHistogram().GetSampleCount())
}

func TestMetricsSink_StageUpdateCountsFailuresAndSkips(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	sink, err := NewMetricsSink(reg)
	require.NoError(t, err)

	sink.StageUpdate(Update{StageNumber: 2, Phase: PhaseFailed})
	sink.StageUpdate(Update{StageNumber: 2, Phase: PhaseSkipped})

	metric := &dto.Metric{}
	require.NoError(t, sink.stageFailures.WithLabelValues("audio_chunked", "failed").Write(metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())

	require.NoError(t, sink.stageFailures.WithLabelValues("audio_chunked", "skipped").Write(metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestMetricsSink_SessionEventCountsOutcome(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	sink, err := NewMetricsSink(reg)
	require.NoError(t, err)

	sink.SessionEvent(SessionEvent{Kind: "complete"})
	sink.SessionEvent(SessionEvent{Kind: "fail"})
	sink.SessionEvent(SessionEvent{Kind: "start"})

	metric := &dto.Metric{}
	require.NoError(t, sink.sessionTotal.WithLabelValues("complete").Write(metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
	require.NoError(t, sink.sessionTotal.WithLabelValues("fail").Write(metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestStageLabel_OutOfRangeReturnsUnknown(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "unknown", stageLabel(-1))
	assert.Equal(t, "unknown", stageLabel(99))
	assert.Equal(t, "audio_converted", stageLabel(1))
}
