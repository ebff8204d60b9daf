// Package trade_store holds the fetched on-chain trading state: the banks of
// every trade group with their prices and metadata, and the active group the
// wallet is trading on together with its protocol client.
//
// Every mutation does its I/O without holding the lock and publishes its
// result with a single locked assignment. Each kind of mutation carries a
// generation number; a result whose generation has been superseded by a
// newer call is discarded instead of overwriting fresher state.
package trade_store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/inbound"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/stl-trade/internal/services/trade_store"

// Compile-time check that Store implements inbound.HealthChecker
var _ inbound.HealthChecker = (*Store)(nil)

// Config holds configuration for the Store.
type Config struct {
	// ProgramID is the lending program the clients talk to.
	ProgramID entity.Address

	// QuoteMint is the mint of the quote currency. Banks of this mint are
	// kept out of State.Banks.
	QuoteMint entity.Address

	// StaleAfter is how old the last successful fetch may get before the
	// store reports itself unhealthy.
	StaleAfter time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ConfigDefaults returns default configuration.
func ConfigDefaults() Config {
	return Config{
		StaleAfter: 5 * time.Minute,
		Logger:     slog.Default(),
	}
}

// Dependencies are the collaborators of the Store.
type Dependencies struct {
	Metadata outbound.MetadataSource
	Clients  outbound.ClientFactory

	// Metrics is optional.
	Metrics outbound.MetricsRecorder
}

// State is a consistent snapshot of the store. Its slices and the values
// they point to are never mutated after publication.
type State struct {
	Initialized bool
	Wallet      entity.Address
	Groups      []entity.Address

	// Banks excludes the quote-currency banks.
	Banks               []*entity.ExtendedBankInfo
	BanksIncludingQuote []*entity.ExtendedBankInfo

	ActiveGroup    *entity.ActiveGroup
	AccountSummary *entity.AccountSummary

	FetchedAt time.Time
}

// catalog is the static metadata of the last successful fetch.
type catalog struct {
	groups entity.TradeGroups
	tokens entity.TokenMetadataMap
	banks  entity.BankMetadataMap
}

// Store is the single authoritative cache of fetched trading state.
type Store struct {
	config   Config
	metadata outbound.MetadataSource
	clients  outbound.ClientFactory
	metrics  outbound.MetricsRecorder
	logger   *slog.Logger
	now      func() time.Time

	fetchGen  atomic.Uint64
	selectGen atomic.Uint64

	mu          sync.RWMutex
	state       State
	catalog     catalog
	client      outbound.ProtocolClient
	conn        outbound.Node
	activeBank  *entity.Address
	lastSuccess time.Time
	disposed    bool
}

// New creates a Store. Call Init before use.
func New(config Config, deps Dependencies) (*Store, error) {
	if deps.Metadata == nil {
		return nil, fmt.Errorf("metadata source is required")
	}
	if deps.Clients == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if config.ProgramID.IsZero() {
		return nil, fmt.Errorf("program ID is required")
	}

	defaults := ConfigDefaults()
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Store{
		config:   config,
		metadata: deps.Metadata,
		clients:  deps.Clients,
		metrics:  deps.Metrics,
		logger:   config.Logger.With("component", "trade-store"),
		now:      time.Now,
	}, nil
}

// Init performs the first fetch.
func (s *Store) Init(ctx context.Context, conn outbound.Node, wallet entity.Address) error {
	if err := s.FetchState(ctx, conn, wallet); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	return nil
}

// Dispose closes the active client. Every later mutation fails with ErrDisposed.
func (s *Store) Dispose() error {
	s.fetchGen.Add(1)
	s.selectGen.Add(1)

	s.mu.Lock()
	client := s.client
	s.client = nil
	s.disposed = true
	s.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Client returns the protocol client of the active group, or nil.
func (s *Store) Client() outbound.ProtocolClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// IsReady returns true once the first fetch has completed.
func (s *Store) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Initialized && !s.disposed
}

// IsHealthy returns true while the last successful fetch is recent.
func (s *Store) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.Initialized || s.disposed {
		return false
	}
	return s.now().Sub(s.lastSuccess) <= s.config.StaleAfter
}

// FetchState loads the trade groups and their banks and replaces the store
// state. A failure in any group aborts the cycle and keeps the previous state.
func (s *Store) FetchState(ctx context.Context, conn outbound.Node, wallet entity.Address) error {
	if conn == nil {
		return fmt.Errorf("node connection is required")
	}
	gen := s.fetchGen.Add(1)
	start := s.now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "store.FetchState",
		trace.WithAttributes(attribute.String("wallet", wallet.String())),
	)
	defer span.End()

	next, cat, err := s.fetch(ctx, conn, wallet)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		s.recordFetch(ctx, start, "error", 0)
		s.logger.Error("fetch failed, keeping previous state", "error", err)
		return err
	}

	var stale outbound.ProtocolClient
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if gen != s.fetchGen.Load() {
		s.mu.Unlock()
		s.recordFetch(ctx, start, "superseded", 0)
		s.logger.Debug("discarding superseded fetch", "generation", gen)
		return ErrSuperseded
	}
	if s.state.Initialized && s.state.Wallet == wallet {
		next.ActiveGroup = s.state.ActiveGroup
		next.AccountSummary = s.state.AccountSummary
	} else {
		// The active group carries the previous wallet's positions.
		s.selectGen.Add(1)
		stale, s.client, s.activeBank = s.client, nil, nil
	}
	s.state = next
	s.catalog = cat
	s.conn = conn
	s.lastSuccess = next.FetchedAt
	s.mu.Unlock()

	if stale != nil {
		if err := stale.Close(); err != nil {
			s.logger.Warn("failed to close client", "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("groups", len(next.Groups)),
		attribute.Int("banks", len(next.BanksIncludingQuote)),
	)
	s.recordFetch(ctx, start, "success", len(next.BanksIncludingQuote))
	s.logger.Info("trade state fetched",
		"groups", len(next.Groups),
		"banks", len(next.BanksIncludingQuote),
		"duration", s.now().Sub(start),
	)
	return nil
}

func (s *Store) fetch(ctx context.Context, conn outbound.Node, wallet entity.Address) (State, catalog, error) {
	groups, err := s.metadata.FetchTradeGroups(ctx)
	if err != nil {
		return State{}, catalog{}, &FetchError{Stage: "trade groups", Err: err}
	}
	if groups == nil {
		return State{}, catalog{}, &FetchError{Stage: "trade groups", Err: errors.New("no trade groups returned")}
	}
	tokens, err := s.metadata.FetchTokenMetadata(ctx)
	if err != nil {
		return State{}, catalog{}, &FetchError{Stage: "token metadata", Err: err}
	}
	bankMeta, err := s.metadata.FetchBankMetadata(ctx)
	if err != nil {
		return State{}, catalog{}, &FetchError{Stage: "bank metadata", Err: err}
	}
	cat := catalog{groups: groups, tokens: tokens, banks: bankMeta}

	perGroup := make([][]*entity.ExtendedBankInfo, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, tg := range groups {
		g.Go(func() error {
			infos, err := s.fetchGroup(gctx, conn, wallet, tg, cat)
			if err != nil {
				return &FetchError{Stage: "group " + tg.Group.String(), Err: err}
			}
			perGroup[i] = infos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return State{}, catalog{}, err
	}

	next := State{
		Initialized: true,
		Wallet:      wallet,
		Groups:      make([]entity.Address, 0, len(groups)),
		FetchedAt:   s.now(),
	}
	for i, tg := range groups {
		next.Groups = append(next.Groups, tg.Group)
		for _, info := range perGroup[i] {
			next.BanksIncludingQuote = append(next.BanksIncludingQuote, info)
			if !s.isQuote(info.Bank) {
				next.Banks = append(next.Banks, info)
			}
		}
	}
	return next, cat, nil
}

// fetchGroup builds a throwaway client for one group and derives the
// extended view of every usable bank in member order.
func (s *Store) fetchGroup(ctx context.Context, conn outbound.Node, wallet entity.Address, tg entity.TradeGroup, cat catalog) ([]*entity.ExtendedBankInfo, error) {
	client, err := s.clients.Fetch(ctx,
		outbound.ClientConfig{ProgramID: s.config.ProgramID, Group: tg.Group},
		wallet, conn,
		outbound.FetchOptions{PreloadedBankAddresses: tg.Members.Banks()},
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	banks := client.Banks()
	prices := client.OraclePrices()
	infos := make([]*entity.ExtendedBankInfo, 0, 2)
	for _, addr := range tg.Members.Banks() {
		bank, ok := banks[addr]
		if !ok {
			s.logger.Warn("bank missing from group", "group", tg.Group.String(), "bank", addr.String())
			continue
		}
		info, ok, err := s.extend(bank, prices, nil, banks, cat)
		if err != nil {
			return nil, err
		}
		if ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// extend joins bank with its price and metadata. ok is false when any of
// them is missing and the bank must be skipped.
func (s *Store) extend(bank *entity.Bank, prices entity.PriceMap, account *entity.MarginAccount, banks entity.BankMap, cat catalog) (*entity.ExtendedBankInfo, bool, error) {
	price, ok := prices[bank.Address]
	if !ok {
		s.logger.Debug("skipping bank without oracle price", "bank", bank.Address.String())
		return nil, false, nil
	}
	bm, ok := cat.banks.Lookup(bank.Address)
	if !ok {
		s.logger.Debug("skipping bank without bank metadata", "bank", bank.Address.String())
		return nil, false, nil
	}
	tm, ok := cat.tokens.Lookup(bm.TokenSymbol)
	if !ok {
		s.logger.Debug("skipping bank without token metadata", "bank", bank.Address.String(), "symbol", bm.TokenSymbol)
		return nil, false, nil
	}

	named := bank.Clone()
	named.TokenSymbol = tm.Symbol
	info, err := entity.NewExtendedBankInfo(named, price, tm, account, banks, prices)
	if err != nil {
		return nil, false, fmt.Errorf("failed to extend bank %s: %w", bank.Address, err)
	}
	return info, true, nil
}

func (s *Store) isQuote(bank *entity.Bank) bool {
	return !s.config.QuoteMint.IsZero() && bank.Mint == s.config.QuoteMint
}

// SetActiveBank makes the group owning bank the active group. It rebuilds a
// client scoped to that group, derives both legs with the wallet's
// positions and replaces the previous client.
func (s *Store) SetActiveBank(ctx context.Context, bank entity.Address, conn outbound.Node, wallet entity.Address) error {
	if conn == nil {
		return fmt.Errorf("node connection is required")
	}
	gen := s.selectGen.Add(1)

	s.mu.RLock()
	disposed := s.disposed
	cat := s.catalog
	known := findBank(s.state.BanksIncludingQuote, bank)
	s.mu.RUnlock()

	if disposed {
		return ErrDisposed
	}
	if known == nil {
		return fmt.Errorf("%s: %w", bank, ErrBankNotFound)
	}
	tg, ok := cat.groups.Lookup(known.Bank.Group)
	if !ok {
		if tg, ok = cat.groups.Find(bank); !ok {
			return fmt.Errorf("group of %s: %w", bank, ErrBankNotFound)
		}
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "store.SetActiveBank",
		trace.WithAttributes(
			attribute.String("bank", bank.String()),
			attribute.String("group", tg.Group.String()),
		),
	)
	defer span.End()

	client, active, summary, err := s.buildActive(ctx, conn, wallet, tg, cat)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set active bank")
		s.logger.Error("failed to set active bank", "bank", bank.String(), "error", err)
		return err
	}

	s.mu.Lock()
	if s.disposed || gen != s.selectGen.Load() {
		disposed := s.disposed
		s.mu.Unlock()
		client.Close()
		if disposed {
			return ErrDisposed
		}
		s.logger.Debug("discarding superseded selection", "bank", bank.String(), "generation", gen)
		return ErrSuperseded
	}
	previous := s.client
	s.client = client
	s.conn = conn
	s.activeBank = &bank
	next := s.state
	next.ActiveGroup = active
	next.AccountSummary = summary
	s.state = next
	s.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			s.logger.Warn("failed to close previous client", "error", err)
		}
	}
	s.logger.Info("active group set",
		"group", tg.Group.String(),
		"token", active.Token.Meta.Symbol,
		"quote", active.Quote.Meta.Symbol,
	)
	return nil
}

func (s *Store) buildActive(ctx context.Context, conn outbound.Node, wallet entity.Address, tg entity.TradeGroup, cat catalog) (outbound.ProtocolClient, *entity.ActiveGroup, *entity.AccountSummary, error) {
	client, err := s.clients.Fetch(ctx,
		outbound.ClientConfig{ProgramID: s.config.ProgramID, Group: tg.Group},
		wallet, conn,
		outbound.FetchOptions{PreloadedBankAddresses: tg.Members.Banks()},
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to fetch client for group %s: %w", tg.Group, err)
	}

	banks := client.Banks()
	prices := client.OraclePrices()
	account := client.Account()

	legs := make([]*entity.ExtendedBankInfo, 0, 2)
	for _, addr := range tg.Members.Banks() {
		bank, ok := banks[addr]
		if !ok {
			break
		}
		info, ok, err := s.extend(bank, prices, account, banks, cat)
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		if !ok {
			break
		}
		legs = append(legs, info)
	}
	if len(legs) != 2 {
		client.Close()
		return nil, nil, nil, fmt.Errorf("group %s is missing a usable bank: %w", tg.Group, ErrBankNotFound)
	}

	token, quote := legs[0], legs[1]
	if s.isQuote(token.Bank) && !s.isQuote(quote.Bank) {
		token, quote = quote, token
	}

	summary, err := entity.ComputeAccountSummary(account, banks, prices)
	if err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("failed to compute account summary: %w", err)
	}
	return client, &entity.ActiveGroup{Group: tg.Group, Token: token, Quote: quote}, &summary, nil
}

// Refresh re-runs FetchState with the last connection and wallet, then
// re-selects the active bank. An active bank that disappeared clears the
// active group.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	conn := s.conn
	wallet := s.state.Wallet
	var active *entity.Address
	if s.activeBank != nil {
		bank := *s.activeBank
		active = &bank
	}
	disposed := s.disposed
	s.mu.RUnlock()

	if disposed {
		return ErrDisposed
	}
	if conn == nil {
		return ErrNotInitialized
	}
	if err := s.FetchState(ctx, conn, wallet); err != nil {
		return err
	}
	if active == nil {
		return nil
	}

	err := s.SetActiveBank(ctx, *active, conn, wallet)
	if errors.Is(err, ErrBankNotFound) {
		s.logger.Warn("active bank no longer available", "bank", active.String())
		s.clearActive()
		return nil
	}
	return err
}

func (s *Store) clearActive() {
	s.selectGen.Add(1)
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.activeBank = nil
	next := s.state
	next.ActiveGroup = nil
	next.AccountSummary = nil
	s.state = next
	s.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

func (s *Store) recordFetch(ctx context.Context, start time.Time, status string, banks int) {
	if s.metrics != nil {
		s.metrics.RecordFetch(ctx, s.now().Sub(start), status, banks)
	}
}

func findBank(infos []*entity.ExtendedBankInfo, bank entity.Address) *entity.ExtendedBankInfo {
	for _, info := range infos {
		if info.Address == bank {
			return info
		}
	}
	return nil
}
