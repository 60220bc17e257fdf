package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/models"
)

var _ models.MetricService = &OtelMetricService{}

const exportInterval = 30 * time.Second

// OtelMetricService lazily creates one instrument per metric name and exports over OTLP/HTTP, or to
// stdout when no collector endpoint is configured.
type OtelMetricService struct {
	meterProvider *sdk.MeterProvider
	meter         metric.Meter
	logger        models.Logger
	lock          sync.Mutex
	counters      map[models.MetricName]metric.Int64Counter
	histograms    map[models.MetricName]metric.Int64Histogram
}

func NewOtelMetricService(ctx context.Context, logger models.Logger) (*OtelMetricService, error) {
	var exporter sdk.Exporter
	var err error
	if endpoint := os.Getenv(common.Env_MetricsEndpoint); len(endpoint) > 0 {
		// The exporter reads the endpoint from the environment itself.
		exporter, err = otlpmetrichttp.New(ctx)
	} else {
		exporter, err = stdoutmetric.New()
	}
	if err != nil {
		return nil, fmt.Errorf("metrics: exporter: %w", err)
	}
	return NewOtelMetricServiceWithReader(
		sdk.NewPeriodicReader(exporter, sdk.WithInterval(exportInterval)),
		logger,
	), nil
}

// NewOtelMetricServiceWithReader allows tests to plug in a manual reader.
func NewOtelMetricServiceWithReader(reader sdk.Reader, logger models.Logger) *OtelMetricService {
	meterProvider := sdk.NewMeterProvider(
		sdk.WithReader(reader),
		sdk.WithResource(resource.NewSchemaless(attribute.String("service.name", common.ServiceName))),
	)
	return &OtelMetricService{
		meterProvider: meterProvider,
		meter:         meterProvider.Meter(models.MetricsCallerName),
		logger:        logger,
		counters:      make(map[models.MetricName]metric.Int64Counter),
		histograms:    make(map[models.MetricName]metric.Int64Histogram),
	}
}

func (o *OtelMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	counter, err := o.counter(name)
	if err != nil {
		return err
	}
	counter.Add(ctx, int64(val))
	return nil
}

func (o *OtelMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	histogram, err := o.histogram(name)
	if err != nil {
		return err
	}
	histogram.Record(ctx, int64(val))
	return nil
}

// Gauge registers an observable gauge sampled from the monitor at every collection.
func (o *OtelMetricService) Gauge(ctx context.Context, name models.MetricName, monitor models.ResourceMonitor) error {
	_, err := o.meter.Int64ObservableGauge(
		string(name),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			value, err := monitor.GetValue(ctx)
			if err != nil {
				o.logger.Errorf("metrics: error observing %s: %v", name, err)
				return err
			}
			observer.Observe(int64(value))
			return nil
		}),
	)
	return err
}

func (o *OtelMetricService) Shutdown(ctx context.Context) {
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		o.logger.Errorf("metrics: error shutting down meter provider: %v", err)
	}
}

func (o *OtelMetricService) counter(name models.MetricName) (metric.Int64Counter, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if counter, found := o.counters[name]; found {
		return counter, nil
	}
	counter, err := o.meter.Int64Counter(string(name))
	if err != nil {
		return nil, fmt.Errorf("metrics: counter %s: %w", name, err)
	}
	o.counters[name] = counter
	return counter, nil
}

func (o *OtelMetricService) histogram(name models.MetricName) (metric.Int64Histogram, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if histogram, found := o.histograms[name]; found {
		return histogram, nil
	}
	histogram, err := o.meter.Int64Histogram(string(name))
	if err != nil {
		return nil, fmt.Errorf("metrics: histogram %s: %w", name, err)
	}
	o.histograms[name] = histogram
	return histogram, nil
}
