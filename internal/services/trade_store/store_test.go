package trade_store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/archon-research/stl-trade/internal/adapters/outbound/lendingprogram"
	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
	"github.com/archon-research/stl-trade/internal/testutil/market"
)

// gatedFactory delegates to the real client factory. When armed, the next
// Fetch for the target group signals entered and waits for release.
type gatedFactory struct {
	inner   outbound.ClientFactory
	target  entity.Address
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
	failFor entity.Address
}

func newGatedFactory() *gatedFactory {
	return &gatedFactory{
		inner:   lendingprogram.NewFactory(nil),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (f *gatedFactory) arm(group entity.Address) {
	f.target = group
	f.armed.Store(true)
}

func (f *gatedFactory) Fetch(ctx context.Context, cfg outbound.ClientConfig, wallet entity.Address, conn outbound.Node, opts outbound.FetchOptions) (outbound.ProtocolClient, error) {
	if cfg.Group == f.failFor {
		return nil, errors.New("node unavailable")
	}
	if cfg.Group == f.target && f.armed.CompareAndSwap(true, false) {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.inner.Fetch(ctx, cfg, wallet, conn, opts)
}

type mockMetrics struct {
	mu       sync.Mutex
	statuses []string
}

func (m *mockMetrics) RecordFetch(ctx context.Context, d time.Duration, status string, banks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}
func (m *mockMetrics) RecordSimulation(ctx context.Context, d time.Duration, status string) {}
func (m *mockMetrics) RecordValidation(ctx context.Context, blocked bool)                   {}
func (m *mockMetrics) RecordTransaction(ctx context.Context, status string)                 {}

type harness struct {
	market  *market.Market
	factory *gatedFactory
	metrics *mockMetrics
	store   *Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		market:  market.New(t),
		factory: newGatedFactory(),
		metrics: &mockMetrics{},
	}
	store, err := New(Config{ProgramID: market.ProgramID, QuoteMint: market.USDCMint}, Dependencies{
		Metadata: h.market.Metadata,
		Clients:  h.factory,
		Metrics:  h.metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.store = store
	t.Cleanup(func() { store.Dispose() })
	return h
}

// withPositions gives the wallet 10 SOL lent and 500 USDC borrowed.
func (h *harness) withPositions(t *testing.T) {
	t.Helper()
	h.market.PutAccount(t, market.Account, market.Group,
		market.Lending(market.SOLBank, 10, 9),
		market.Borrowing(market.USDCBank, 500, 6),
	)
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	if err := h.store.Init(context.Background(), h.market.Node, market.Wallet); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func addresses(infos []*entity.ExtendedBankInfo) []entity.Address {
	out := make([]entity.Address, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Address)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	m := market.New(t)
	factory := lendingprogram.NewFactory(nil)

	tests := []struct {
		name    string
		config  Config
		deps    Dependencies
		wantErr string
	}{
		{
			name:    "missing metadata",
			config:  Config{ProgramID: market.ProgramID},
			deps:    Dependencies{Clients: factory},
			wantErr: "metadata source is required",
		},
		{
			name:    "missing factory",
			config:  Config{ProgramID: market.ProgramID},
			deps:    Dependencies{Metadata: m.Metadata},
			wantErr: "client factory is required",
		},
		{
			name:    "missing program",
			deps:    Dependencies{Metadata: m.Metadata, Clients: factory},
			wantErr: "program ID is required",
		},
		{
			name:   "valid",
			config: Config{ProgramID: market.ProgramID},
			deps:   Dependencies{Metadata: m.Metadata, Clients: factory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.config, tt.deps)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store.config.StaleAfter != ConfigDefaults().StaleAfter {
				t.Errorf("expected default StaleAfter, got %v", store.config.StaleAfter)
			}
		})
	}
}

func TestFetchState_BuildsBankSets(t *testing.T) {
	h := newHarness(t)
	if h.store.IsReady() {
		t.Fatal("store should not be ready before Init")
	}
	h.init(t)

	state := h.store.Snapshot()
	if !state.Initialized {
		t.Fatal("expected initialized state")
	}
	if state.Wallet != market.Wallet {
		t.Errorf("unexpected wallet %s", state.Wallet)
	}
	if len(state.Groups) != 2 || state.Groups[0] != market.Group || state.Groups[1] != market.OtherGroup {
		t.Errorf("unexpected groups %v", state.Groups)
	}

	all := addresses(state.BanksIncludingQuote)
	wantAll := []entity.Address{market.SOLBank, market.USDCBank, market.JUPBank, market.OtherUSDC}
	if len(all) != len(wantAll) {
		t.Fatalf("expected %d banks, got %d", len(wantAll), len(all))
	}
	for i := range wantAll {
		if all[i] != wantAll[i] {
			t.Errorf("bank %d: expected %s, got %s", i, wantAll[i], all[i])
		}
	}

	trading := addresses(state.Banks)
	if len(trading) != 2 || trading[0] != market.SOLBank || trading[1] != market.JUPBank {
		t.Errorf("expected SOL and JUP trading banks, got %v", trading)
	}

	sol := state.Banks[0]
	if sol.Meta.Symbol != "SOL" || sol.Bank.TokenSymbol != "SOL" {
		t.Errorf("unexpected SOL metadata %+v / %q", sol.Meta, sol.Bank.TokenSymbol)
	}
	if sol.State.Price != 150 {
		t.Errorf("expected SOL price 150, got %v", sol.State.Price)
	}
	if sol.Position != nil {
		t.Error("bank list should not carry positions")
	}
	if state.ActiveGroup != nil {
		t.Error("no active group expected before selection")
	}
	if !h.store.IsReady() || !h.store.IsHealthy() {
		t.Error("store should be ready and healthy after Init")
	}
}

func TestFetchState_SkipsIncompleteBanks(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, m *market.Market)
		missing entity.Address
	}{
		{
			name: "no oracle price",
			mutate: func(t *testing.T, m *market.Market) {
				m.PutBank(t, market.NewBank(market.JUPBank, market.OtherGroup, market.JUPMint, market.Addr(99), 6, 50000, 0))
			},
			missing: market.JUPBank,
		},
		{
			name: "no bank metadata",
			mutate: func(t *testing.T, m *market.Market) {
				delete(m.Metadata.Banks, market.JUPBank.String())
			},
			missing: market.JUPBank,
		},
		{
			name: "no token metadata",
			mutate: func(t *testing.T, m *market.Market) {
				delete(m.Metadata.Tokens, "JUP")
			},
			missing: market.JUPBank,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.mutate(t, h.market)
			h.init(t)

			all := addresses(h.store.Snapshot().BanksIncludingQuote)
			if len(all) != 3 {
				t.Fatalf("expected 3 banks, got %d", len(all))
			}
			for _, a := range all {
				if a == tt.missing {
					t.Errorf("bank %s should have been skipped", a)
				}
			}
		})
	}
}

func TestFetchState_FailureKeepsPreviousState(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	before := h.store.Snapshot()

	h.market.Metadata.SetErr(errors.New("bucket unavailable"))
	err := h.store.FetchState(context.Background(), h.market.Node, market.Wallet)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Stage != "trade groups" {
		t.Errorf("unexpected stage %q", fetchErr.Stage)
	}

	after := h.store.Snapshot()
	if !after.FetchedAt.Equal(before.FetchedAt) || len(after.BanksIncludingQuote) != len(before.BanksIncludingQuote) {
		t.Error("failed fetch must not replace state")
	}

	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	if got := strings.Join(h.metrics.statuses, ","); got != "success,error" {
		t.Errorf("unexpected recorded statuses %q", got)
	}
}

func TestFetchState_GroupFailureAbortsCycle(t *testing.T) {
	h := newHarness(t)
	h.factory.failFor = market.OtherGroup

	err := h.store.Init(context.Background(), h.market.Node, market.Wallet)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if !strings.Contains(fetchErr.Stage, market.OtherGroup.String()) {
		t.Errorf("stage %q should name the failing group", fetchErr.Stage)
	}
	if h.store.Snapshot().Initialized {
		t.Error("store must stay uninitialized")
	}
}

func TestFetchState_SupersededResultIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.factory.arm(market.Group)

	errc := make(chan error, 1)
	go func() {
		errc <- h.store.FetchState(context.Background(), h.market.Node, market.Wallet)
	}()
	<-h.factory.entered

	h.market.PutPrice(t, market.SOLOracle, "200")
	if err := h.store.FetchState(context.Background(), h.market.Node, market.Wallet); err != nil {
		t.Fatalf("second FetchState: %v", err)
	}
	newest := h.store.Snapshot().FetchedAt

	h.market.PutPrice(t, market.SOLOracle, "100")
	close(h.factory.release)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	state := h.store.Snapshot()
	if !state.FetchedAt.Equal(newest) {
		t.Error("superseded fetch overwrote newer state")
	}
	if state.Banks[0].State.Price != 200 {
		t.Errorf("expected the newer price 200, got %v", state.Banks[0].State.Price)
	}
}

func TestSetActiveBank(t *testing.T) {
	tests := []struct {
		name string
		bank entity.Address
	}{
		{name: "token bank", bank: market.SOLBank},
		{name: "quote bank", bank: market.USDCBank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.withPositions(t)
			h.init(t)

			if err := h.store.SetActiveBank(context.Background(), tt.bank, h.market.Node, market.Wallet); err != nil {
				t.Fatalf("SetActiveBank: %v", err)
			}

			state := h.store.Snapshot()
			active := state.ActiveGroup
			if active == nil {
				t.Fatal("expected an active group")
			}
			if active.Group != market.Group || active.Token.Address != market.SOLBank || active.Quote.Address != market.USDCBank {
				t.Fatalf("unexpected active group %s token=%s quote=%s", active.Group, active.Token.Address, active.Quote.Address)
			}

			token := active.Token.Position
			if token == nil || !token.IsLending || token.Amount != 10 {
				t.Errorf("unexpected token position %+v", token)
			}
			quote := active.Quote.Position
			if quote == nil || quote.IsLending || quote.Amount != 500 {
				t.Errorf("unexpected quote position %+v", quote)
			}
			if token != nil && token.LiquidationPrice == nil {
				t.Error("expected a liquidation price on the collateral leg")
			}

			summary := state.AccountSummary
			if summary == nil {
				t.Fatal("expected an account summary")
			}
			if summary.HealthFactor <= 0 || summary.HealthFactor >= 1 {
				t.Errorf("expected health factor in (0, 1), got %v", summary.HealthFactor)
			}

			client := h.store.Client()
			if client == nil || client.Group() != market.Group {
				t.Fatal("expected a client scoped to the active group")
			}
		})
	}
}

func TestSetActiveBank_UnknownBank(t *testing.T) {
	h := newHarness(t)
	h.init(t)

	err := h.store.SetActiveBank(context.Background(), market.Addr(250), h.market.Node, market.Wallet)
	if !errors.Is(err, ErrBankNotFound) {
		t.Fatalf("expected ErrBankNotFound, got %v", err)
	}
	if h.store.Snapshot().ActiveGroup != nil || h.store.Client() != nil {
		t.Error("state must be unchanged for an unknown bank")
	}
}

func TestSetActiveBank_SwitchClosesPreviousClient(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	ctx := context.Background()

	if err := h.store.SetActiveBank(ctx, market.SOLBank, h.market.Node, market.Wallet); err != nil {
		t.Fatalf("SetActiveBank SOL: %v", err)
	}
	first := h.store.Client()

	if err := h.store.SetActiveBank(ctx, market.JUPBank, h.market.Node, market.Wallet); err != nil {
		t.Fatalf("SetActiveBank JUP: %v", err)
	}
	if _, err := first.SimulateTransactions(ctx, nil, nil); !errors.Is(err, lendingprogram.ErrClientClosed) {
		t.Errorf("expected the previous client to be closed, got %v", err)
	}

	active := h.store.Snapshot().ActiveGroup
	if active.Group != market.OtherGroup || active.Token.Meta.Symbol != "JUP" || active.Quote.Meta.Symbol != "USDC" {
		t.Errorf("unexpected active group %s %s/%s", active.Group, active.Token.Meta.Symbol, active.Quote.Meta.Symbol)
	}
	if active.Token.Position != nil {
		t.Error("wallet has no account in the JUP group")
	}
}

func TestSetActiveBank_SupersededSelectionIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	ctx := context.Background()
	h.factory.arm(market.Group)

	errc := make(chan error, 1)
	go func() {
		errc <- h.store.SetActiveBank(ctx, market.SOLBank, h.market.Node, market.Wallet)
	}()
	<-h.factory.entered

	if err := h.store.SetActiveBank(ctx, market.JUPBank, h.market.Node, market.Wallet); err != nil {
		t.Fatalf("SetActiveBank JUP: %v", err)
	}
	close(h.factory.release)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if got := h.store.Snapshot().ActiveGroup.Group; got != market.OtherGroup {
		t.Errorf("stale selection overwrote the newer one: active group %s", got)
	}
	if got := h.store.Client().Group(); got != market.OtherGroup {
		t.Errorf("unexpected client group %s", got)
	}
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.store.Refresh(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	h.withPositions(t)
	h.init(t)
	if err := h.store.SetActiveBank(ctx, market.SOLBank, h.market.Node, market.Wallet); err != nil {
		t.Fatalf("SetActiveBank: %v", err)
	}
	before := h.store.Snapshot().AccountSummary.HealthFactor

	h.market.PutPrice(t, market.SOLOracle, "100")
	if err := h.store.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	state := h.store.Snapshot()
	if state.Banks[0].State.Price != 100 {
		t.Errorf("expected refreshed bank price 100, got %v", state.Banks[0].State.Price)
	}
	if state.ActiveGroup == nil || state.ActiveGroup.Token.State.Price != 100 {
		t.Fatal("expected the active group to be re-selected with the new price")
	}
	if state.AccountSummary.HealthFactor >= before {
		t.Errorf("health should drop with the collateral price: before %v, after %v", before, state.AccountSummary.HealthFactor)
	}
}

func TestRefresh_ActiveBankRemoved(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	ctx := context.Background()
	if err := h.store.SetActiveBank(ctx, market.SOLBank, h.market.Node, market.Wallet); err != nil {
		t.Fatalf("SetActiveBank: %v", err)
	}

	delete(h.market.Metadata.Banks, market.SOLBank.String())
	if err := h.store.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if h.store.Snapshot().ActiveGroup != nil || h.store.Client() != nil {
		t.Error("expected the active group to be cleared")
	}
}

func TestFetchState_WalletChangeDropsActiveGroup(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	ctx := context.Background()
	if err := h.store.SetActiveBank(ctx, market.SOLBank, h.market.Node, market.Wallet); err != nil {
		t.Fatalf("SetActiveBank: %v", err)
	}

	if err := h.store.FetchState(ctx, h.market.Node, market.Addr(240)); err != nil {
		t.Fatalf("FetchState: %v", err)
	}
	state := h.store.Snapshot()
	if state.Wallet != market.Addr(240) {
		t.Errorf("unexpected wallet %s", state.Wallet)
	}
	if state.ActiveGroup != nil || h.store.Client() != nil {
		t.Error("the previous wallet's active group must be dropped")
	}
}

func TestIsHealthy_Staleness(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h.store.now = func() time.Time { return now }
	h.init(t)

	if !h.store.IsHealthy() {
		t.Fatal("expected healthy right after a fetch")
	}
	now = now.Add(ConfigDefaults().StaleAfter + time.Second)
	if h.store.IsHealthy() {
		t.Error("expected unhealthy once the last fetch is stale")
	}
	if !h.store.IsReady() {
		t.Error("staleness must not affect readiness")
	}
}

func TestDispose(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	ctx := context.Background()
	if err := h.store.SetActiveBank(ctx, market.SOLBank, h.market.Node, market.Wallet); err != nil {
		t.Fatalf("SetActiveBank: %v", err)
	}
	client := h.store.Client()

	if err := h.store.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if _, err := client.SimulateTransactions(ctx, nil, nil); !errors.Is(err, lendingprogram.ErrClientClosed) {
		t.Errorf("expected the client to be closed, got %v", err)
	}
	if h.store.IsReady() {
		t.Error("disposed store must not be ready")
	}
	if err := h.store.FetchState(ctx, h.market.Node, market.Wallet); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed from FetchState, got %v", err)
	}
	if err := h.store.SetActiveBank(ctx, market.SOLBank, h.market.Node, market.Wallet); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed from SetActiveBank, got %v", err)
	}
	if err := h.store.Refresh(ctx); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed from Refresh, got %v", err)
	}
}
