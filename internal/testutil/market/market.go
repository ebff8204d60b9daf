// Package market builds an encoded two-bank lending market on an in-memory
// node for service tests.
package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/stl-trade/internal/adapters/outbound/memory"
	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/pkg/codec"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Addr returns a deterministic non-zero address.
func Addr(n byte) entity.Address {
	var a entity.Address
	a[0] = n
	a[31] = 0x5A
	return a
}

// Fixed addresses of the default market.
var (
	ProgramID = Addr(200)
	Wallet    = Addr(201)
	OracleOwn = Addr(202)

	Group      = Addr(10)
	SOLBank    = Addr(11)
	USDCBank   = Addr(12)
	SOLMint    = Addr(13)
	USDCMint   = Addr(14)
	SOLOracle  = Addr(15)
	USDCOracle = Addr(16)
	Account    = Addr(17)

	OtherGroup  = Addr(20)
	JUPBank     = Addr(21)
	OtherUSDC   = Addr(22)
	JUPMint     = Addr(23)
	JUPOracle   = Addr(25)
	OtherOracle = Addr(26)
)

// NewBank returns an operational bank with typical risk weights and
// deposits of totalDeposits whole tokens.
func NewBank(address, group, mint, oracle entity.Address, decimals uint8, totalDeposits, totalBorrows int64) *entity.Bank {
	scale := decimal.New(1, int32(decimals))
	return &entity.Bank{
		Address:              address,
		Group:                group,
		Mint:                 mint,
		MintDecimals:         decimals,
		AssetShareValue:      decimal.NewFromInt(1),
		LiabilityShareValue:  decimal.NewFromInt(1),
		TotalAssetShares:     decimal.NewFromInt(totalDeposits).Mul(scale),
		TotalLiabilityShares: decimal.NewFromInt(totalBorrows).Mul(scale),
		Config: entity.BankConfig{
			AssetWeightInit:      decimal.RequireFromString("0.8"),
			AssetWeightMaint:     decimal.RequireFromString("0.9"),
			LiabilityWeightInit:  decimal.RequireFromString("1.25"),
			LiabilityWeightMaint: decimal.RequireFromString("1.1"),
			InterestRate: entity.InterestRateConfig{
				OptimalUtilizationRate: decimal.RequireFromString("0.8"),
				PlateauInterestRate:    decimal.RequireFromString("0.1"),
				MaxInterestRate:        decimal.RequireFromString("1"),
			},
			OperationalState: entity.OperationalStateOperational,
			OracleSetup:      entity.OracleSetupPythPushOracle,
			OracleKeys:       []entity.Address{oracle},
		},
	}
}

// Shares converts whole tokens into native share units at a share value of 1.
func Shares(amount float64, decimals uint8) decimal.Decimal {
	return decimal.NewFromFloat(amount).Mul(decimal.New(1, int32(decimals)))
}

// Market is a populated node plus the metadata describing it.
type Market struct {
	Node     *memory.Node
	Metadata *StaticMetadata
}

// New builds two groups: SOL/USDC and JUP/USDC. The wallet has no account.
func New(t testing.TB) *Market {
	t.Helper()
	m := &Market{
		Node: memory.NewNode(),
		Metadata: &StaticMetadata{
			Groups: entity.TradeGroups{
				{Group: Group, Members: entity.GroupMembers{Token: SOLBank, Quote: USDCBank}},
				{Group: OtherGroup, Members: entity.GroupMembers{Token: JUPBank, Quote: OtherUSDC}},
			},
			Tokens: entity.TokenMetadataMap{
				"SOL":  {Name: "Solana", Symbol: "SOL"},
				"USDC": {Name: "USD Coin", Symbol: "USDC"},
				"JUP":  {Name: "Jupiter", Symbol: "JUP"},
			},
			Banks: entity.BankMetadataMap{
				SOLBank.String():   {TokenSymbol: "SOL", TokenName: "Solana"},
				USDCBank.String():  {TokenSymbol: "USDC", TokenName: "USD Coin"},
				JUPBank.String():   {TokenSymbol: "JUP", TokenName: "Jupiter"},
				OtherUSDC.String(): {TokenSymbol: "usdc", TokenName: "USD Coin"},
			},
		},
	}

	m.PutBank(t, NewBank(SOLBank, Group, SOLMint, SOLOracle, 9, 1000, 100))
	m.PutBank(t, NewBank(USDCBank, Group, USDCMint, USDCOracle, 6, 100000, 20000))
	m.PutBank(t, NewBank(JUPBank, OtherGroup, JUPMint, JUPOracle, 6, 50000, 0))
	m.PutBank(t, NewBank(OtherUSDC, OtherGroup, USDCMint, OtherOracle, 6, 10000, 0))
	m.PutPrice(t, SOLOracle, "150")
	m.PutPrice(t, USDCOracle, "1")
	m.PutPrice(t, JUPOracle, "0.5")
	m.PutPrice(t, OtherOracle, "1")
	return m
}

// PutBank stores an encoded bank owned by the program.
func (m *Market) PutBank(t testing.TB, bank *entity.Bank) {
	t.Helper()
	data, err := codec.EncodeBank(bank)
	if err != nil {
		t.Fatalf("encode bank: %v", err)
	}
	m.Node.SetAccount(outbound.AccountInfo{Address: bank.Address, Owner: ProgramID, Data: data})
}

// PutPrice stores an encoded oracle price.
func (m *Market) PutPrice(t testing.TB, oracle entity.Address, price string) {
	t.Helper()
	data, err := EncodePrice(oracle, price)
	if err != nil {
		t.Fatalf("encode price: %v", err)
	}
	m.Node.SetAccount(outbound.AccountInfo{Address: oracle, Owner: OracleOwn, Data: data})
}

// PutAccount stores an encoded margin account for the wallet in group.
func (m *Market) PutAccount(t testing.TB, address, group entity.Address, balances ...entity.Balance) {
	t.Helper()
	data, err := EncodeAccount(group, balances...)
	if err != nil {
		t.Fatalf("encode account: %v", err)
	}
	m.Node.SetAccount(outbound.AccountInfo{Address: address, Owner: ProgramID, Data: data})
}

// EncodePrice encodes a price with a tight confidence band.
func EncodePrice(oracle entity.Address, price string) ([]byte, error) {
	return codec.EncodePrice(oracle, entity.OraclePrice{
		Price:      decimal.RequireFromString(price),
		Confidence: decimal.RequireFromString("0.0001"),
		Timestamp:  time.Unix(1700000000, 0),
	}, -8)
}

// EncodeAccount encodes a margin account owned by Wallet.
func EncodeAccount(group entity.Address, balances ...entity.Balance) ([]byte, error) {
	return codec.EncodeAccount(&entity.MarginAccount{
		Group:     group,
		Authority: Wallet,
		Balances:  balances,
	})
}

// Lending returns an active lending balance of amount whole tokens.
func Lending(bank entity.Address, amount float64, decimals uint8) entity.Balance {
	return entity.Balance{Active: true, BankAddress: bank, AssetShares: Shares(amount, decimals), LiabilityShares: decimal.Zero}
}

// Borrowing returns an active borrowing balance of amount whole tokens.
func Borrowing(bank entity.Address, amount float64, decimals uint8) entity.Balance {
	return entity.Balance{Active: true, BankAddress: bank, AssetShares: decimal.Zero, LiabilityShares: Shares(amount, decimals)}
}

// StaticMetadata serves fixed metadata documents.
type StaticMetadata struct {
	mu     sync.Mutex
	Groups entity.TradeGroups
	Tokens entity.TokenMetadataMap
	Banks  entity.BankMetadataMap
	Err    error
	calls  int
}

var _ outbound.MetadataSource = (*StaticMetadata)(nil)

// FetchTradeGroups returns Groups or Err.
func (s *StaticMetadata) FetchTradeGroups(ctx context.Context) (entity.TradeGroups, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Groups, nil
}

// FetchTokenMetadata returns Tokens.
func (s *StaticMetadata) FetchTokenMetadata(ctx context.Context) (entity.TokenMetadataMap, error) {
	return s.Tokens, nil
}

// FetchBankMetadata returns Banks.
func (s *StaticMetadata) FetchBankMetadata(ctx context.Context) (entity.BankMetadataMap, error) {
	return s.Banks, nil
}

// SetErr makes subsequent FetchTradeGroups calls fail.
func (s *StaticMetadata) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Calls returns how many times the group list was requested.
func (s *StaticMetadata) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
