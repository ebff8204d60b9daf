package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	fetchDuration      metric.Float64Histogram
	banksLoaded        metric.Int64Gauge
	simulationDuration metric.Float64Histogram
	validations        metric.Int64Counter
	transactions       metric.Int64Counter
}

// NewMetrics creates a new OpenTelemetry metrics recorder on the global meter provider.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates the instruments on the given meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	fetch, err := meter.Float64Histogram(
		"store_fetch_duration_seconds",
		metric.WithDescription("Time taken by one store fetch cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store_fetch_duration_seconds histogram: %w", err)
	}

	banks, err := meter.Int64Gauge(
		"store_banks_loaded",
		metric.WithDescription("Number of banks in the last committed snapshot"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store_banks_loaded gauge: %w", err)
	}

	sim, err := meter.Float64Histogram(
		"simulation_duration_seconds",
		metric.WithDescription("Time taken to simulate an action bundle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation_duration_seconds histogram: %w", err)
	}

	validations, err := meter.Int64Counter(
		"action_validations_total",
		metric.WithDescription("Total number of action checks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create action_validations_total counter: %w", err)
	}

	txs, err := meter.Int64Counter(
		"transactions_submitted_total",
		metric.WithDescription("Total number of submitted transaction bundles"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactions_submitted_total counter: %w", err)
	}

	return &Metrics{
		fetchDuration:      fetch,
		banksLoaded:        banks,
		simulationDuration: sim,
		validations:        validations,
		transactions:       txs,
	}, nil
}

// RecordFetch records the duration of a fetch cycle and, on success, the bank count.
func (m *Metrics) RecordFetch(ctx context.Context, duration time.Duration, status string, banks int) {
	m.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	if status == "success" {
		m.banksLoaded.Record(ctx, int64(banks))
	}
}

// RecordSimulation records the duration of a simulation.
func (m *Metrics) RecordSimulation(ctx context.Context, duration time.Duration, status string) {
	m.simulationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordValidation increments the validation counter.
func (m *Metrics) RecordValidation(ctx context.Context, blocked bool) {
	m.validations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("blocked", blocked)))
}

// RecordTransaction increments the submitted transactions counter.
func (m *Metrics) RecordTransaction(ctx context.Context, status string) {
	m.transactions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
