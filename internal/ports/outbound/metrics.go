// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"
)

// MetricsRecorder records application metrics without tying services to a
// telemetry implementation.
type MetricsRecorder interface {
	// RecordFetch records a store fetch cycle. status is "success", "error" or "superseded".
	RecordFetch(ctx context.Context, duration time.Duration, status string, banks int)

	// RecordSimulation records a simulation run.
	RecordSimulation(ctx context.Context, duration time.Duration, status string)

	// RecordValidation records a validator evaluation.
	RecordValidation(ctx context.Context, blocked bool)

	// RecordTransaction records a submitted bundle.
	RecordTransaction(ctx context.Context, status string)
}
