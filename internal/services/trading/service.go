// Package trading composes the store, validator, simulation engine and
// executor into the use cases exposed to inbound adapters.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/inbound"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
	"github.com/archon-research/stl-trade/internal/services/action_validator"
	"github.com/archon-research/stl-trade/internal/services/simulation"
	"github.com/archon-research/stl-trade/internal/services/trade_executor"
	"github.com/archon-research/stl-trade/internal/services/trade_store"
)

// Compile-time check that Service implements inbound.TradeService.
var _ inbound.TradeService = (*Service)(nil)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ErrNoHistory is returned by History when no repository is configured.
var ErrNoHistory = errors.New("transaction history is not configured")

// BlockedError is returned by ExecuteLoop when the validator blocks the loop.
type BlockedError struct {
	Messages []entity.ActionMessage
}

func (e *BlockedError) Error() string {
	var codes []string
	for _, m := range e.Messages {
		if !m.IsEnabled() {
			codes = append(codes, string(m.Code))
		}
	}
	return "action blocked: " + strings.Join(codes, ", ")
}

// Store is the subset of trade_store.Store the service needs.
type Store interface {
	Snapshot() trade_store.State
	Client() outbound.ProtocolClient
	SetActiveBank(ctx context.Context, bank entity.Address, conn outbound.Node, wallet entity.Address) error
	Refresh(ctx context.Context) error
}

// Config holds configuration for the Service.
type Config struct {
	// Wallet is the wallet the service trades for.
	Wallet entity.Address

	// Conn is the node connection shared with the store.
	Conn outbound.Node

	Logger *slog.Logger
}

// Dependencies are the collaborators of the Service. History is optional.
type Dependencies struct {
	Store     Store
	Validator *action_validator.Validator
	Engine    *simulation.Engine
	Executor  *trade_executor.Executor
	History   outbound.TxHistoryRepository
}

// Service implements inbound.TradeService.
type Service struct {
	config Config
	deps   Dependencies
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(config Config, deps Dependencies) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("store cannot be nil")
	case deps.Validator == nil:
		return nil, fmt.Errorf("validator cannot be nil")
	case deps.Engine == nil:
		return nil, fmt.Errorf("simulation engine cannot be nil")
	case deps.Executor == nil:
		return nil, fmt.Errorf("executor cannot be nil")
	case config.Conn == nil:
		return nil, fmt.Errorf("node connection cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Service{
		config: config,
		deps:   deps,
		logger: config.Logger.With("component", "trading"),
	}, nil
}

// State returns the current store snapshot.
func (s *Service) State() inbound.StateView {
	st := s.deps.Store.Snapshot()

	inBanks := make(map[entity.Address]bool, len(st.Banks))
	for _, b := range st.Banks {
		inBanks[b.Address] = true
	}
	var quotes []*entity.ExtendedBankInfo
	for _, b := range st.BanksIncludingQuote {
		if !inBanks[b.Address] {
			quotes = append(quotes, b)
		}
	}

	return inbound.StateView{
		Initialized:    st.Initialized,
		Wallet:         st.Wallet,
		Banks:          st.Banks,
		QuoteBanks:     quotes,
		ActiveGroup:    st.ActiveGroup,
		AccountSummary: st.AccountSummary,
		FetchedAt:      st.FetchedAt,
	}
}

// SelectBank makes bank's group the active group.
func (s *Service) SelectBank(ctx context.Context, bank entity.Address) error {
	return s.deps.Store.SetActiveBank(ctx, bank, s.config.Conn, s.config.Wallet)
}

// CheckAction runs the validator against the current state.
func (s *Service) CheckAction(ctx context.Context, req inbound.ActionRequest) []entity.ActionMessage {
	return s.deps.Validator.Check(ctx, s.input(s.deps.Store.Snapshot(), req))
}

// PreviewAction validates req and simulates its bundle. A bundle the sandbox
// cannot execute is reported in SimulationError rather than as an error.
func (s *Service) PreviewAction(ctx context.Context, req inbound.ActionRequest) (*inbound.ActionPreview, error) {
	st := s.deps.Store.Snapshot()
	preview := &inbound.ActionPreview{
		Messages: s.deps.Validator.Check(ctx, s.input(st, req)),
	}

	group := st.ActiveGroup
	if group == nil || group.Token == nil || group.Quote == nil {
		return preview, nil
	}

	var result *entity.SimulationResult
	if client := s.activeClient(group); client != nil {
		var err error
		result, err = s.deps.Engine.Simulate(ctx, client, client.Account(), depositBank(group, req.Side), req.Bundle)
		var simErr *simulation.SimulationError
		switch {
		case err == nil:
		case errors.Is(err, simulation.ErrNothingToSimulate):
		case errors.As(err, &simErr):
			preview.SimulationError = simErr.Error()
		default:
			return nil, fmt.Errorf("failed to simulate action: %w", err)
		}
	}

	stats, err := simulation.GenerateTradeStats(simulation.TradeStatsInput{
		Summary: st.AccountSummary,
		Token:   group.Token,
		Quote:   group.Quote,
		Result:  result,
		Bundle:  req.Bundle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build trade stats: %w", err)
	}
	preview.Stats = stats
	return preview, nil
}

// depositBank is the bank a loop on side deposits into: the token when long,
// the quote when short.
func depositBank(group *entity.ActiveGroup, side entity.TradeSide) *entity.ExtendedBankInfo {
	if side == entity.TradeSideShort {
		return group.Quote
	}
	return group.Token
}

// ExecuteLoop validates req and submits it when nothing blocks.
func (s *Service) ExecuteLoop(ctx context.Context, req inbound.ActionRequest) (*inbound.LoopResult, error) {
	st := s.deps.Store.Snapshot()
	msgs := s.deps.Validator.Check(ctx, s.input(st, req))
	if entity.AnyBlocking(msgs) {
		return nil, &BlockedError{Messages: msgs}
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(req.Amount), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", req.Amount, err)
	}

	return s.deps.Executor.Loop(ctx, trade_executor.LoopRequest{
		Client: s.activeClient(st.ActiveGroup),
		Wallet: st.Wallet,
		Group:  st.ActiveGroup,
		Side:   req.Side,
		Amount: amount,
		Bundle: req.Bundle,
	})
}

// History returns the wallet's most recent transactions. limit is clamped.
func (s *Service) History(ctx context.Context, limit int) ([]*entity.TxRecord, error) {
	if s.deps.History == nil {
		return nil, ErrNoHistory
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	return s.deps.History.ListByWallet(ctx, s.config.Wallet, limit)
}

// Refresh refetches all on-chain state.
func (s *Service) Refresh(ctx context.Context) error {
	return s.deps.Store.Refresh(ctx)
}

func (s *Service) input(st trade_store.State, req inbound.ActionRequest) action_validator.Input {
	return action_validator.Input{
		Amount:      req.Amount,
		Connected:   st.Initialized && !st.Wallet.IsZero(),
		ActiveGroup: st.ActiveGroup,
		Bundle:      req.Bundle,
		Side:        req.Side,
	}
}

// activeClient returns the store's client when it belongs to group. The
// snapshot and the client are read separately, so a selection in between
// leaves them out of step.
func (s *Service) activeClient(group *entity.ActiveGroup) outbound.ProtocolClient {
	client := s.deps.Store.Client()
	if client == nil || group == nil || client.Group() != group.Group {
		return nil
	}
	return client
}
