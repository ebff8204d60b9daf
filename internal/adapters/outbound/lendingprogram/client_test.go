package lendingprogram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/stl-trade/internal/adapters/outbound/memory"
	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/pkg/codec"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

func addr(n byte) entity.Address {
	var a entity.Address
	a[0] = n
	a[31] = 0xAA
	return a
}

var (
	program    = addr(100)
	group      = addr(101)
	otherGroup = addr(102)
	wallet     = addr(103)
	oracleOwn  = addr(104)
)

type fixture struct {
	node *memory.Node
	sol  entity.Address
	usdc entity.Address
}

func putBank(t *testing.T, node *memory.Node, address, grp, oracle entity.Address) {
	t.Helper()
	data, err := codec.EncodeBank(&entity.Bank{
		Address:             address,
		Group:               grp,
		Mint:                addr(50),
		MintDecimals:        9,
		AssetShareValue:     decimal.NewFromInt(1),
		LiabilityShareValue: decimal.NewFromInt(1),
		Config: entity.BankConfig{
			OperationalState: entity.OperationalStateOperational,
			OracleSetup:      entity.OracleSetupPythPushOracle,
			OracleKeys:       []entity.Address{oracle},
		},
	})
	if err != nil {
		t.Fatalf("encode bank: %v", err)
	}
	node.SetAccount(outbound.AccountInfo{Address: address, Owner: program, Data: data})
}

func putPrice(t *testing.T, node *memory.Node, oracle entity.Address, price int64) {
	t.Helper()
	data, err := codec.EncodePrice(oracle, entity.OraclePrice{
		Price:      decimal.NewFromInt(price),
		Confidence: decimal.RequireFromString("0.01"),
		Timestamp:  time.Unix(1700000000, 0),
	}, -8)
	if err != nil {
		t.Fatalf("encode price: %v", err)
	}
	node.SetAccount(outbound.AccountInfo{Address: oracle, Owner: oracleOwn, Data: data})
}

func putAccount(t *testing.T, node *memory.Node, address, grp, authority entity.Address) {
	t.Helper()
	data, err := codec.EncodeAccount(&entity.MarginAccount{
		Group:     grp,
		Authority: authority,
		Balances: []entity.Balance{
			{Active: true, BankAddress: addr(1), AssetShares: decimal.NewFromInt(10), LiabilityShares: decimal.Zero},
		},
	})
	if err != nil {
		t.Fatalf("encode account: %v", err)
	}
	node.SetAccount(outbound.AccountInfo{Address: address, Owner: program, Data: data})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node := memory.NewNode()
	f := &fixture{node: node, sol: addr(1), usdc: addr(2)}

	putBank(t, node, f.sol, group, addr(11))
	putBank(t, node, f.usdc, group, addr(12))
	putBank(t, node, addr(3), otherGroup, addr(13))
	putPrice(t, node, addr(11), 150)
	putPrice(t, node, addr(12), 1)

	putAccount(t, node, addr(21), group, wallet)
	putAccount(t, node, addr(22), otherGroup, wallet)
	putAccount(t, node, addr(23), group, addr(99))
	return f
}

func fetch(t *testing.T, node outbound.Node, w entity.Address, opts outbound.FetchOptions) outbound.ProtocolClient {
	t.Helper()
	c, err := NewFactory(nil).Fetch(context.Background(), outbound.ClientConfig{ProgramID: program, Group: group}, w, node, opts)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	return c
}

func TestFetch_ScansGroup(t *testing.T) {
	f := newFixture(t)
	c := fetch(t, f.node, wallet, outbound.FetchOptions{})

	if c.Group() != group {
		t.Errorf("unexpected group %s", c.Group())
	}
	banks := c.Banks()
	if len(banks) != 2 || banks[f.sol] == nil || banks[f.usdc] == nil {
		t.Fatalf("expected the group's 2 banks, got %v", banks.Addresses())
	}

	price, ok := c.OraclePriceByBank(f.sol)
	if !ok || !price.Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("unexpected SOL price %v (ok=%v)", price.Price, ok)
	}
	if len(c.OraclePrices()) != 2 {
		t.Errorf("expected 2 prices, got %d", len(c.OraclePrices()))
	}

	acc := c.Account()
	if acc == nil || acc.Address != addr(21) {
		t.Fatalf("expected account %s, got %+v", addr(21), acc)
	}
	if len(acc.ActiveBalances()) != 1 {
		t.Errorf("expected 1 active balance, got %d", len(acc.ActiveBalances()))
	}
}

func TestFetch_PreloadedBanks(t *testing.T) {
	f := newFixture(t)
	c := fetch(t, f.node, entity.Address{}, outbound.FetchOptions{
		PreloadedBankAddresses: []entity.Address{f.sol, addr(3), addr(77)},
	})

	banks := c.Banks()
	if len(banks) != 1 || banks[f.sol] == nil {
		t.Fatalf("expected only the SOL bank, got %v", banks.Addresses())
	}
	if c.Account() != nil {
		t.Error("expected no account for a zero wallet")
	}
}

func TestFetch_MissingPriceIsSkipped(t *testing.T) {
	f := newFixture(t)
	putBank(t, f.node, addr(4), group, addr(14))

	c := fetch(t, f.node, wallet, outbound.FetchOptions{})
	if len(c.Banks()) != 3 {
		t.Fatalf("expected 3 banks, got %d", len(c.Banks()))
	}
	if _, ok := c.OraclePriceByBank(addr(4)); ok {
		t.Error("expected no price for bank without oracle account")
	}
}

func TestFetch_NoAccount(t *testing.T) {
	f := newFixture(t)
	c := fetch(t, f.node, addr(98), outbound.FetchOptions{})
	if c.Account() != nil {
		t.Errorf("expected nil account, got %+v", c.Account())
	}
}

func TestFetch_Validation(t *testing.T) {
	factory := NewFactory(nil)
	ctx := context.Background()
	if _, err := factory.Fetch(ctx, outbound.ClientConfig{ProgramID: program, Group: group}, wallet, nil, outbound.FetchOptions{}); err == nil {
		t.Error("expected error for nil node")
	}
	if _, err := factory.Fetch(ctx, outbound.ClientConfig{Group: group}, wallet, memory.NewNode(), outbound.FetchOptions{}); err == nil {
		t.Error("expected error for missing program")
	}
}

func TestProcessTransactions(t *testing.T) {
	f := newFixture(t)
	c := fetch(t, f.node, wallet, outbound.FetchOptions{})
	txs := []entity.Transaction{{Label: "crank", Data: []byte{1}}, {Label: "loop", Data: []byte{2}}}

	sigs, err := c.ProcessTransactions(context.Background(), txs, outbound.ProcessOptions{})
	if err != nil {
		t.Fatalf("ProcessTransactions: %v", err)
	}
	if len(sigs) != 2 || sigs[0] != "sig-1" || sigs[1] != "sig-2" {
		t.Errorf("unexpected signatures %v", sigs)
	}
	sent := f.node.Sent()
	if len(sent) != 2 || sent[0].Label != "crank" || sent[1].Label != "loop" {
		t.Errorf("transactions not sent in order: %v", sent)
	}
}

func TestProcessTransactions_ConfirmationFailure(t *testing.T) {
	f := newFixture(t)
	c := fetch(t, f.node, wallet, outbound.FetchOptions{})

	f.node.FailNextConfirmation()
	sigs, err := c.ProcessTransactions(context.Background(), []entity.Transaction{{Label: "loop"}, {Label: "never"}}, outbound.ProcessOptions{})
	if !errors.Is(err, outbound.ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
	if len(sigs) != 0 {
		t.Errorf("expected no confirmed signatures, got %v", sigs)
	}
	if len(f.node.Sent()) != 1 {
		t.Errorf("expected submission to stop after the failure, sent %d", len(f.node.Sent()))
	}
}

func TestSimulateTransactions(t *testing.T) {
	f := newFixture(t)
	c := fetch(t, f.node, wallet, outbound.FetchOptions{})

	f.node.SetSimulator(func(txs []entity.Transaction, readBack []entity.Address) ([][]byte, error) {
		out := make([][]byte, len(readBack))
		out[0] = []byte("post")
		return out, nil
	})
	out, err := c.SimulateTransactions(context.Background(), []entity.Transaction{{Label: "loop"}}, []entity.Address{f.sol, f.usdc})
	if err != nil {
		t.Fatalf("SimulateTransactions: %v", err)
	}
	if string(out[0]) != "post" || out[1] != nil {
		t.Errorf("unexpected post-state %q", out)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.SimulateTransactions(context.Background(), nil, nil); !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}
