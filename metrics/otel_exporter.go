package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *promclient.Registry
	collector     Collector

	// OTel meters and instruments
	meter             metric.Meter
	cursorGauge       metric.Int64ObservableGauge
	failuresGauge     metric.Int64ObservableGauge
	backoffLevelGauge metric.Int64ObservableGauge
	stateGauge        metric.Int64ObservableGauge
	streamLengthGauge metric.Int64ObservableGauge
	recordsCounter    metric.Int64ObservableCounter
	cyclesCounter     metric.Int64ObservableCounter
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format.
// It registers on its own prometheus registry, served by Handler.
func NewOTelExporter(collector Collector) (*OTelExporter, error) {
	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"tower-poller",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		registry:      registry,
		collector:     collector,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.cursorGauge, err = oe.meter.Int64ObservableGauge(
		"tower_poller.input.cursor",
		metric.WithDescription("Last committed record id per input"),
		metric.WithInt64Callback(oe.observeCursors),
	)
	if err != nil {
		return fmt.Errorf("creating cursor gauge: %w", err)
	}

	oe.failuresGauge, err = oe.meter.Int64ObservableGauge(
		"tower_poller.input.failures",
		metric.WithDescription("Consecutive failed poll cycles per input"),
		metric.WithInt64Callback(oe.observeFailures),
	)
	if err != nil {
		return fmt.Errorf("creating failures gauge: %w", err)
	}

	oe.backoffLevelGauge, err = oe.meter.Int64ObservableGauge(
		"tower_poller.input.backoff_level",
		metric.WithDescription("Current backoff exponent per input"),
		metric.WithInt64Callback(oe.observeBackoffLevels),
	)
	if err != nil {
		return fmt.Errorf("creating backoff level gauge: %w", err)
	}

	oe.stateGauge, err = oe.meter.Int64ObservableGauge(
		"tower_poller.inputs.state",
		metric.WithDescription("Number of inputs per runner state"),
		metric.WithUnit("{inputs}"),
		metric.WithInt64Callback(oe.observeStateCounts),
	)
	if err != nil {
		return fmt.Errorf("creating state gauge: %w", err)
	}

	oe.streamLengthGauge, err = oe.meter.Int64ObservableGauge(
		"tower_poller.sink.stream.length",
		metric.WithDescription("Number of entries in each input's event stream"),
		metric.WithUnit("{entries}"),
		metric.WithInt64Callback(oe.observeStreamLengths),
	)
	if err != nil {
		return fmt.Errorf("creating stream length gauge: %w", err)
	}

	oe.recordsCounter, err = oe.meter.Int64ObservableCounter(
		"tower_poller.records.emitted",
		metric.WithDescription("Records handed to the event sink"),
		metric.WithUnit("{records}"),
		metric.WithInt64Callback(oe.observeRecords),
	)
	if err != nil {
		return fmt.Errorf("creating records counter: %w", err)
	}

	oe.cyclesCounter, err = oe.meter.Int64ObservableCounter(
		"tower_poller.cycles",
		metric.WithDescription("Completed poll cycles by outcome"),
		metric.WithUnit("{cycles}"),
		metric.WithInt64Callback(oe.observeCycles),
	)
	if err != nil {
		return fmt.Errorf("creating cycles counter: %w", err)
	}

	return nil
}

func inputAttrs(input, category string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("input", input),
		attribute.String("category", category),
	)
}

// observeCursors is a callback that reports committed cursors
func (oe *OTelExporter) observeCursors(ctx context.Context, observer metric.Int64Observer) error {
	statuses, err := oe.collector.GetInputStatuses(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		observer.Observe(st.Cursor, inputAttrs(st.Input, st.Category))
	}
	return nil
}

func (oe *OTelExporter) observeFailures(ctx context.Context, observer metric.Int64Observer) error {
	statuses, err := oe.collector.GetInputStatuses(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		observer.Observe(int64(st.Failures), inputAttrs(st.Input, st.Category))
	}
	return nil
}

func (oe *OTelExporter) observeBackoffLevels(ctx context.Context, observer metric.Int64Observer) error {
	statuses, err := oe.collector.GetInputStatuses(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		observer.Observe(int64(st.BackoffLevel), inputAttrs(st.Input, st.Category))
	}
	return nil
}

// observeStateCounts is a callback that reports inputs by runner state
func (oe *OTelExporter) observeStateCounts(ctx context.Context, observer metric.Int64Observer) error {
	counts, err := oe.collector.GetStateCounts(ctx)
	if err != nil {
		return err
	}
	for state, count := range counts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("state", state),
		))
	}
	return nil
}

func (oe *OTelExporter) observeStreamLengths(ctx context.Context, observer metric.Int64Observer) error {
	lengths, err := oe.collector.GetStreamLengths(ctx)
	if err != nil {
		return err
	}
	for input, length := range lengths {
		observer.Observe(length, metric.WithAttributes(
			attribute.String("input", input),
		))
	}
	return nil
}

func (oe *OTelExporter) observeRecords(ctx context.Context, observer metric.Int64Observer) error {
	statuses, err := oe.collector.GetInputStatuses(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		observer.Observe(st.RecordsEmitted, inputAttrs(st.Input, st.Category))
	}
	return nil
}

// observeCycles splits completed cycles into success and failure
func (oe *OTelExporter) observeCycles(ctx context.Context, observer metric.Int64Observer) error {
	statuses, err := oe.collector.GetInputStatuses(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		observer.Observe(st.Cycles-st.FailedCycles, metric.WithAttributes(
			attribute.String("input", st.Input),
			attribute.String("outcome", "success"),
		))
		observer.Observe(st.FailedCycles, metric.WithAttributes(
			attribute.String("input", st.Input),
			attribute.String("outcome", "failure"),
		))
	}
	return nil
}

// Handler serves Prometheus-formatted metrics from the exporter's registry
func (oe *OTelExporter) Handler() http.Handler {
	return promhttp.HandlerFor(oe.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
