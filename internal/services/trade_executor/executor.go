// Package trade_executor submits loop bundles and records their outcome.
package trade_executor

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
	"github.com/archon-research/stl-trade/internal/ports/inbound"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
	"github.com/archon-research/stl-trade/internal/services/trade_store"
)

const tracerName = "github.com/archon-research/stl-trade/internal/services/trade_executor"

// Refresher reloads on-chain state after a confirmed submission.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config holds configuration for the Executor.
type Config struct {
	// PriorityFeeMicroLamports is attached to every submitted transaction.
	PriorityFeeMicroLamports uint64

	// BroadcastType selects how transactions are broadcast, e.g. RPC or BUNDLE.
	BroadcastType string

	// Logger is the structured logger.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics outbound.MetricsRecorder
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		BroadcastType: "RPC",
		Logger:        slog.Default(),
	}
}

// Dependencies are the optional collaborators of the Executor. Failures in
// any of them after a confirmed submission are logged and do not fail it.
type Dependencies struct {
	History   outbound.TxHistoryRepository
	Events    outbound.EventSink
	Refresher Refresher
}

// LoopRequest is a validated loop on the active group.
type LoopRequest struct {
	Client outbound.ProtocolClient
	Wallet entity.Address
	Group  *entity.ActiveGroup
	Side   entity.TradeSide
	Amount float64
	Bundle *entity.ActionBundle
}

// Executor submits loop bundles.
type Executor struct {
	config Config
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(config Config, deps Dependencies) *Executor {
	defaults := ConfigDefaults()
	if config.BroadcastType == "" {
		config.BroadcastType = defaults.BroadcastType
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Executor{
		config: config,
		deps:   deps,
		logger: config.Logger.With("component", "trade-executor"),
		now:    time.Now,
	}
}

// LoopLabel is the step label shown while a loop is submitted.
func LoopLabel(group *entity.ActiveGroup, side entity.TradeSide) string {
	deposit, borrow := legs(group, side)
	return fmt.Sprintf("Executing looping %s with %s", symbol(deposit), symbol(borrow))
}

// Loop submits the bundle's additional transactions followed by its action
// transaction. On confirmation the result is saved to history, published,
// and the store is refreshed. Failures are returned as *TransactionError
// carrying the step state.
func (e *Executor) Loop(ctx context.Context, req LoopRequest) (*inbound.LoopResult, error) {
	if req.Client == nil {
		return nil, ErrClientNotReady
	}
	if req.Group == nil || req.Group.Token == nil || req.Group.Quote == nil {
		return nil, trade_store.ErrBankNotFound
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "executor.Loop",
		trace.WithAttributes(
			attribute.String("group", req.Group.Group.String()),
			attribute.String("side", string(req.Side)),
		),
	)
	defer span.End()

	steps := NewStepTracker(LoopLabel(req.Group, req.Side))
	steps.Start()

	sigs, err := e.submit(ctx, req)
	if err != nil {
		msg := ExtractErrorMessage(err)
		steps.SetFailed(msg)
		e.record(ctx, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "loop failed")
		e.logger.Error("loop failed",
			"wallet", req.Wallet.String(),
			"group", req.Group.Group.String(),
			"side", req.Side,
			"confirmed", len(sigs),
			"error", err,
		)
		return nil, &TransactionError{Message: msg, Signatures: sigs, Steps: steps.Steps(), Err: err}
	}
	steps.SetSuccessAndNext()
	e.record(ctx, "success")
	span.SetAttributes(attribute.Int("transactions", len(sigs)))

	e.logger.Info("loop confirmed",
		"wallet", req.Wallet.String(),
		"group", req.Group.Group.String(),
		"side", req.Side,
		"amount", req.Amount,
		"signatures", sigs,
	)

	record, err := entity.NewTxRecord(entity.TxKindLoop, req.Wallet, req.Group.Group,
		req.Group.Token.Address, req.Group.Quote.Address, req.Side, req.Amount, sigs, e.now().UTC())
	if err != nil {
		e.logger.Warn("failed to build history record", "error", err)
	} else {
		e.afterConfirm(ctx, record)
	}

	return &inbound.LoopResult{Signatures: sigs, Record: record, Steps: steps.Steps()}, nil
}

func (e *Executor) submit(ctx context.Context, req LoopRequest) ([]string, error) {
	bundle := req.Bundle
	if bundle == nil || (bundle.ActionTxn == nil && bundle.ActionQuote == nil) {
		return nil, ErrNoActionQuote
	}
	if bundle.ActionTxn == nil {
		return nil, ErrActionNotBuilt
	}
	return req.Client.ProcessTransactions(ctx, bundle.Transactions(), outbound.ProcessOptions{
		PriorityFeeMicroLamports: e.config.PriorityFeeMicroLamports,
		BroadcastType:            e.config.BroadcastType,
	})
}

func (e *Executor) afterConfirm(ctx context.Context, record *entity.TxRecord) {
	if e.deps.History != nil {
		if err := e.deps.History.SaveTx(ctx, record); err != nil {
			e.logger.Warn("failed to save history record", "id", record.ID, "error", err)
		}
	}
	if e.deps.Events != nil {
		event := outbound.TxEvent{
			ID:          record.ID.String(),
			Kind:        string(record.Kind),
			Wallet:      record.Wallet.String(),
			Group:       record.Group.String(),
			Signatures:  record.Signatures,
			ConfirmedAt: record.CreatedAt,
		}
		if err := e.deps.Events.Publish(ctx, event); err != nil {
			e.logger.Warn("failed to publish tx event", "id", record.ID, "error", err)
		}
	}
	if e.deps.Refresher != nil {
		err := e.deps.Refresher.Refresh(ctx)
		switch {
		case err == nil:
		case errors.Is(err, trade_store.ErrSuperseded):
			e.logger.Debug("post-loop refresh superseded")
		default:
			e.logger.Warn("failed to refresh after loop", "error", err)
		}
	}
}

func (e *Executor) record(ctx context.Context, status string) {
	if e.config.Metrics != nil {
		e.config.Metrics.RecordTransaction(ctx, status)
	}
}

// legs returns the deposited and borrowed bank for side. A long deposits the
// token and borrows the quote.
func legs(group *entity.ActiveGroup, side entity.TradeSide) (deposit, borrow *entity.ExtendedBankInfo) {
	if side == entity.TradeSideShort {
		return group.Quote, group.Token
	}
	return group.Token, group.Quote
}

func symbol(info *entity.ExtendedBankInfo) string {
	if info.Bank != nil && info.Bank.TokenSymbol != "" {
		return info.Bank.TokenSymbol
	}
	return info.Meta.Symbol
}
