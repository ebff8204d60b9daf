// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"
	"time"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

// HealthChecker defines the interface for services that can report readiness and liveness.
//
// Implementations:
//   - trade_store.Store: ready after the first successful fetch, healthy while
//     the last successful fetch is recent
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic.
	// Used by ECS/Kubernetes readiness probes during rolling deployments.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	// Used by ECS/Kubernetes liveness probes to detect stuck services.
	IsHealthy() bool
}

// StateView is a consistent read of the trade store.
type StateView struct {
	Initialized    bool
	Wallet         entity.Address
	Banks          []*entity.ExtendedBankInfo
	QuoteBanks     []*entity.ExtendedBankInfo
	ActiveGroup    *entity.ActiveGroup
	AccountSummary *entity.AccountSummary
	FetchedAt      time.Time
}

// ActionRequest describes a prospective loop on the active group.
type ActionRequest struct {
	Amount string
	Side   entity.TradeSide
	Bundle *entity.ActionBundle
}

// ActionPreview is the validator verdict combined with the simulated outcome.
type ActionPreview struct {
	Messages []entity.ActionMessage
	Stats    entity.TradeStats
	// SimulationError is set when the bundle could not be simulated. It is
	// distinct from a simulation that produced an unhealthy account.
	SimulationError string
}

// LoopResult is the outcome of submitting a loop.
type LoopResult struct {
	Signatures []string
	Record     *entity.TxRecord
	Steps      []entity.Step
}

// TradeService is the use case surface of the trading backend.
type TradeService interface {
	// State returns the current store snapshot.
	State() StateView

	// SelectBank makes bank's group the active group.
	SelectBank(ctx context.Context, bank entity.Address) error

	// CheckAction runs the validator only.
	CheckAction(ctx context.Context, req ActionRequest) []entity.ActionMessage

	// PreviewAction validates and simulates req.
	PreviewAction(ctx context.Context, req ActionRequest) (*ActionPreview, error)

	// ExecuteLoop submits req after validation.
	ExecuteLoop(ctx context.Context, req ActionRequest) (*LoopResult, error)

	// History returns the wallet's recent transactions.
	History(ctx context.Context, limit int) ([]*entity.TxRecord, error)

	// Refresh refetches all on-chain state.
	Refresh(ctx context.Context) error
}
