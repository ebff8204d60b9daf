// Package simulation previews the effect of a transaction bundle on a
// margin account without submitting it. Results are detached copies and are
// never written back into live state.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/stl-trade/internal/services/simulation"

// ErrNothingToSimulate is returned when there is no client, account or
// action transaction to simulate.
var ErrNothingToSimulate = errors.New("nothing to simulate")

// SimulationError reports that the sandbox could not produce a usable
// post-state. It is distinct from a simulation whose outcome is unhealthy.
type SimulationError struct {
	Reason string
	Err    error
}

func (e *SimulationError) Error() string {
	if e.Err == nil {
		return "simulation failed: " + e.Reason
	}
	return fmt.Sprintf("simulation failed: %s: %v", e.Reason, e.Err)
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}

// Config holds configuration for the Engine.
type Config struct {
	// Logger is the structured logger.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics outbound.MetricsRecorder
}

// Engine runs bundles through the protocol client's sandbox.
type Engine struct {
	logger  *slog.Logger
	metrics outbound.MetricsRecorder
}

// NewEngine creates an Engine.
func NewEngine(config Config) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:  logger.With("component", "simulation"),
		metrics: config.Metrics,
	}
}

// Simulate runs the bundle's additional transactions followed by its action
// transaction and reads back account and bank. The simulated bank is spliced
// into a copy of the client's banks and the account is decoded against it.
// Neither the client nor its maps are modified.
func (e *Engine) Simulate(ctx context.Context, client outbound.ProtocolClient, account *entity.MarginAccount, bank *entity.ExtendedBankInfo, bundle *entity.ActionBundle) (*entity.SimulationResult, error) {
	if client == nil || account == nil || bank == nil || bundle == nil || bundle.ActionTxn == nil {
		return nil, ErrNothingToSimulate
	}

	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "simulation.Simulate",
		trace.WithAttributes(
			attribute.String("account", account.Address.String()),
			attribute.String("bank", bank.Address.String()),
			attribute.Int("transactions", len(bundle.AdditionalTxns)+1),
		),
	)
	defer span.End()

	result, err := e.simulate(ctx, client, account, bank, bundle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "simulation failed")
		e.record(ctx, start, "error")
		e.logger.Warn("simulation failed", "bank", bank.Address.String(), "error", err)
		return nil, err
	}
	e.record(ctx, start, "success")
	return result, nil
}

func (e *Engine) simulate(ctx context.Context, client outbound.ProtocolClient, account *entity.MarginAccount, bank *entity.ExtendedBankInfo, bundle *entity.ActionBundle) (*entity.SimulationResult, error) {
	data, err := client.SimulateTransactions(ctx, bundle.Transactions(), []entity.Address{account.Address, bank.Address})
	if err != nil {
		return nil, &SimulationError{Reason: "sandbox execution failed", Err: err}
	}
	if len(data) < 2 || len(data[0]) == 0 || len(data[1]) == 0 {
		return nil, &SimulationError{Reason: "sandbox returned no account or bank data"}
	}

	simBank, err := client.DecodeBank(bank.Address, data[1])
	if err != nil {
		return nil, &SimulationError{Reason: "invalid bank data", Err: err}
	}
	if bank.Bank != nil {
		simBank.TokenSymbol = bank.Bank.TokenSymbol
	}
	banks := client.Banks().With(simBank)

	simAccount, err := client.DecodeAccount(account.Address, data[0])
	if err != nil {
		return nil, &SimulationError{Reason: "invalid account data", Err: err}
	}

	return &entity.SimulationResult{
		Banks:        banks,
		OraclePrices: client.OraclePrices().Clone(),
		Account:      simAccount,
	}, nil
}

func (e *Engine) record(ctx context.Context, start time.Time, status string) {
	if e.metrics != nil {
		e.metrics.RecordSimulation(ctx, time.Since(start), status)
	}
}
