package entity

import (
	"github.com/shopspring/decimal"
)

// PoorHealthRange is how close the oracle price may get to a position's
// liquidation price before the position is flagged.
const PoorHealthRange = 0.05

// BankState is the display-ready market state of a bank.
type BankState struct {
	Price              float64
	LendingRate        float64
	BorrowingRate      float64
	TotalDeposits      float64
	TotalBorrows       float64
	AvailableLiquidity float64
	UtilizationRate    float64
	Mint               Address
	MintDecimals       uint8
	OperationalState   OperationalState
	OracleProviderName string
	IsIsolated         bool
}

// Position is the connected wallet's balance in one bank. A position is
// either lending or borrowing, never both.
type Position struct {
	IsLending        bool
	Amount           float64
	USDValue         float64
	LiquidationPrice *float64
}

// ExtendedBankInfo joins a bank with its price, token metadata and the
// wallet's position. It is derived on every refresh and never persisted.
type ExtendedBankInfo struct {
	Address     Address
	Bank        *Bank
	OraclePrice OraclePrice
	Meta        TokenMetadata
	State       BankState
	Position    *Position
}

// IsActive reports whether the wallet holds a non-zero position in the bank.
func (e *ExtendedBankInfo) IsActive() bool {
	return e != nil && e.Position != nil && e.Position.Amount != 0
}

// IsPositionPoorHealth reports whether the oracle price is within
// PoorHealthRange of the position's liquidation price.
func (e *ExtendedBankInfo) IsPositionPoorHealth() bool {
	if !e.IsActive() || e.Position.LiquidationPrice == nil {
		return false
	}
	liq := *e.Position.LiquidationPrice
	if e.Position.IsLending {
		return e.State.Price < liq*(1+PoorHealthRange)
	}
	return e.State.Price > liq*(1-PoorHealthRange)
}

// NewExtendedBankInfo derives the display view of bank. account may be nil
// when no wallet is connected. banks and prices are the set the account is
// valued against.
func NewExtendedBankInfo(bank *Bank, price OraclePrice, meta TokenMetadata, account *MarginAccount, banks BankMap, prices PriceMap) (*ExtendedBankInfo, error) {
	lending, borrowing := bank.InterestRates()
	deposits := bank.TotalDeposits()
	borrows := bank.TotalBorrows()

	info := &ExtendedBankInfo{
		Address:     bank.Address,
		Bank:        bank,
		OraclePrice: price,
		Meta:        meta,
		State: BankState{
			Price:              price.Price.InexactFloat64(),
			LendingRate:        lending.InexactFloat64(),
			BorrowingRate:      borrowing.InexactFloat64(),
			TotalDeposits:      deposits.InexactFloat64(),
			TotalBorrows:       borrows.InexactFloat64(),
			AvailableLiquidity: decimal.Max(decimal.Zero, deposits.Sub(borrows)).InexactFloat64(),
			UtilizationRate:    bank.UtilizationRate().Mul(decimal.NewFromInt(100)).InexactFloat64(),
			Mint:               bank.Mint,
			MintDecimals:       bank.MintDecimals,
			OperationalState:   bank.Config.OperationalState,
			OracleProviderName: bank.Config.OracleSetup.ProviderName(),
			IsIsolated:         bank.Config.RiskTier == RiskTierIsolated,
		},
	}

	if account == nil {
		return info, nil
	}
	bal, ok := account.Balance(bank.Address)
	if !ok {
		return info, nil
	}

	assetQty, liabQty := bal.QuantityUI(bank)
	assetUSD, liabUSD := bal.USDValue(bank, price, RequirementEquity)
	pos := &Position{IsLending: bal.IsLending()}
	if pos.IsLending {
		pos.Amount = assetQty.InexactFloat64()
		pos.USDValue = assetUSD.InexactFloat64()
	} else {
		pos.Amount = liabQty.InexactFloat64()
		pos.USDValue = liabUSD.InexactFloat64()
	}

	liq, ok, err := account.ComputeLiquidationPriceForBank(banks, prices, bank.Address)
	if err != nil {
		return nil, err
	}
	if ok {
		pos.LiquidationPrice = &liq
	}
	info.Position = pos
	return info, nil
}
