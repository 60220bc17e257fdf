package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/trustmesh/go-signals/common/loggers"
	"github.com/trustmesh/go-signals/models"
)

type fixedMonitor struct{ value int }

func (f fixedMonitor) GetValue(context.Context) (int, error) {
	return f.value, nil
}

func collect(t *testing.T, reader *sdk.ManualReader) map[string]metricdata.Metrics {
	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func TestOtelMetricService(t *testing.T) {
	ctx := context.Background()
	reader := sdk.NewManualReader()
	metricService := NewOtelMetricServiceWithReader(reader, loggers.NewTestLogger())
	defer metricService.Shutdown(ctx)

	require.NoError(t, metricService.Count(ctx, models.MetricName_RecognitionPendingEvicted, 2))
	require.NoError(t, metricService.Count(ctx, models.MetricName_RecognitionPendingEvicted, 3))
	require.NoError(t, metricService.Distribution(ctx, models.MetricName_PollBatchSize, 42))
	require.NoError(t, metricService.Gauge(ctx, models.MetricName_RecognitionPending, fixedMonitor{7}))

	byName := collect(t, reader)

	evicted, ok := byName[string(models.MetricName_RecognitionPendingEvicted)].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, evicted.DataPoints, 1)
	assert.Equal(t, int64(5), evicted.DataPoints[0].Value)

	batch, ok := byName[string(models.MetricName_PollBatchSize)].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, batch.DataPoints, 1)
	assert.Equal(t, uint64(1), batch.DataPoints[0].Count)

	pending, ok := byName[string(models.MetricName_RecognitionPending)].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, pending.DataPoints, 1)
	assert.Equal(t, int64(7), pending.DataPoints[0].Value)
}
