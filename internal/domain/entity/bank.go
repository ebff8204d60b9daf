package entity

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// OperationalState is the admin flag that gates new actions on a bank.
type OperationalState uint8

const (
	OperationalStatePaused OperationalState = iota
	OperationalStateOperational
	OperationalStateReduceOnly
)

func (s OperationalState) String() string {
	switch s {
	case OperationalStatePaused:
		return "Paused"
	case OperationalStateOperational:
		return "Operational"
	case OperationalStateReduceOnly:
		return "ReduceOnly"
	default:
		return fmt.Sprintf("OperationalState(%d)", uint8(s))
	}
}

// OracleSetup identifies the price feed flavour backing a bank.
type OracleSetup uint8

const (
	OracleSetupNone OracleSetup = iota
	OracleSetupPythLegacy
	OracleSetupSwitchboardV2
	OracleSetupPythPushOracle
	OracleSetupSwitchboardPull
	OracleSetupStakedWithPythPush
)

func (o OracleSetup) String() string {
	switch o {
	case OracleSetupNone:
		return "None"
	case OracleSetupPythLegacy:
		return "PythLegacy"
	case OracleSetupSwitchboardV2:
		return "SwitchboardV2"
	case OracleSetupPythPushOracle:
		return "PythPushOracle"
	case OracleSetupSwitchboardPull:
		return "SwitchboardPull"
	case OracleSetupStakedWithPythPush:
		return "StakedWithPythPush"
	default:
		return fmt.Sprintf("OracleSetup(%d)", uint8(o))
	}
}

// ProviderName returns the oracle provider shown to users, or "" when unknown.
func (o OracleSetup) ProviderName() string {
	switch o {
	case OracleSetupPythLegacy, OracleSetupPythPushOracle, OracleSetupStakedWithPythPush:
		return "Pyth"
	case OracleSetupSwitchboardV2, OracleSetupSwitchboardPull:
		return "Switchboard"
	default:
		return ""
	}
}

// RiskTier of a bank. Isolated banks cannot be combined with other liabilities.
type RiskTier uint8

const (
	RiskTierCollateral RiskTier = iota
	RiskTierIsolated
)

// RequirementType selects which weights apply when valuing a balance.
type RequirementType uint8

const (
	RequirementInitial RequirementType = iota
	RequirementMaintenance
	RequirementEquity
)

// InterestRateConfig is the kinked utilization curve of a bank.
type InterestRateConfig struct {
	OptimalUtilizationRate decimal.Decimal
	PlateauInterestRate    decimal.Decimal
	MaxInterestRate        decimal.Decimal

	InsuranceFeeFixedApr decimal.Decimal
	InsuranceIrFee       decimal.Decimal
	ProtocolFixedFeeApr  decimal.Decimal
	ProtocolIrFee        decimal.Decimal
}

// BaseRate evaluates the curve at the given utilization.
func (c InterestRateConfig) BaseRate(utilization decimal.Decimal) decimal.Decimal {
	if c.OptimalUtilizationRate.IsZero() {
		return decimal.Zero
	}
	if utilization.LessThanOrEqual(c.OptimalUtilizationRate) {
		return utilization.Mul(c.PlateauInterestRate).Div(c.OptimalUtilizationRate)
	}
	remaining := decimal.NewFromInt(1).Sub(c.OptimalUtilizationRate)
	if remaining.IsZero() {
		return c.MaxInterestRate
	}
	return utilization.Sub(c.OptimalUtilizationRate).
		Div(remaining).
		Mul(c.MaxInterestRate.Sub(c.PlateauInterestRate)).
		Add(c.PlateauInterestRate)
}

// BankConfig is the risk configuration of a bank.
type BankConfig struct {
	AssetWeightInit      decimal.Decimal
	AssetWeightMaint     decimal.Decimal
	LiabilityWeightInit  decimal.Decimal
	LiabilityWeightMaint decimal.Decimal

	DepositLimit     decimal.Decimal
	BorrowLimit      decimal.Decimal
	InterestRate     InterestRateConfig
	OperationalState OperationalState

	OracleSetup  OracleSetup
	OracleKeys   []Address
	OracleMaxAge uint16

	RiskTier                 RiskTier
	TotalAssetValueInitLimit decimal.Decimal
}

// Bank is the on-chain lending market for one asset. Banks are replaced
// wholesale on refresh and must not be mutated once published.
type Bank struct {
	Address      Address
	Group        Address
	Mint         Address
	MintDecimals uint8
	TokenSymbol  string

	AssetShareValue      decimal.Decimal
	LiabilityShareValue  decimal.Decimal
	TotalAssetShares     decimal.Decimal
	TotalLiabilityShares decimal.Decimal

	LastUpdate int64
	Config     BankConfig
}

// Clone returns a deep copy of the bank.
func (b *Bank) Clone() *Bank {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Config.OracleKeys = append([]Address(nil), b.Config.OracleKeys...)
	return &clone
}

// IsPaused reports whether new actions are rejected by the bank.
func (b *Bank) IsPaused() bool {
	return b.Config.OperationalState == OperationalStatePaused
}

func (b *Bank) scale() decimal.Decimal {
	return decimal.New(1, int32(b.MintDecimals))
}

// AssetQuantity converts asset shares into native token units.
func (b *Bank) AssetQuantity(shares decimal.Decimal) decimal.Decimal {
	return shares.Mul(b.AssetShareValue)
}

// LiabilityQuantity converts liability shares into native token units.
func (b *Bank) LiabilityQuantity(shares decimal.Decimal) decimal.Decimal {
	return shares.Mul(b.LiabilityShareValue)
}

// ToUI converts a native quantity into whole-token units.
func (b *Bank) ToUI(native decimal.Decimal) decimal.Decimal {
	return native.Div(b.scale())
}

// TotalDeposits returns the bank's total deposits in token units.
func (b *Bank) TotalDeposits() decimal.Decimal {
	return b.ToUI(b.AssetQuantity(b.TotalAssetShares))
}

// TotalBorrows returns the bank's total borrows in token units.
func (b *Bank) TotalBorrows() decimal.Decimal {
	return b.ToUI(b.LiabilityQuantity(b.TotalLiabilityShares))
}

// UtilizationRate is borrows over deposits, zero for an empty bank.
func (b *Bank) UtilizationRate() decimal.Decimal {
	deposits := b.AssetQuantity(b.TotalAssetShares)
	if deposits.IsZero() {
		return decimal.Zero
	}
	return b.LiabilityQuantity(b.TotalLiabilityShares).Div(deposits)
}

// InterestRates returns the annual lending and borrowing rates at the current utilization.
func (b *Bank) InterestRates() (lending, borrowing decimal.Decimal) {
	cfg := b.Config.InterestRate
	utilization := b.UtilizationRate()
	base := cfg.BaseRate(utilization)
	one := decimal.NewFromInt(1)

	lending = base.Mul(utilization)
	borrowing = base.Mul(one.Add(cfg.ProtocolIrFee).Add(cfg.InsuranceIrFee)).
		Add(cfg.ProtocolFixedFeeApr).
		Add(cfg.InsuranceFeeFixedApr)
	return lending, borrowing
}

// AssetWeight returns the collateral weight for the requirement. The initial
// weight is discounted once the bank's collateral value exceeds its soft limit.
func (b *Bank) AssetWeight(req RequirementType, price OraclePrice) decimal.Decimal {
	switch req {
	case RequirementInitial:
		limit := b.Config.TotalAssetValueInitLimit
		if limit.IsZero() {
			return b.Config.AssetWeightInit
		}
		total := b.ToUI(b.AssetQuantity(b.TotalAssetShares)).Mul(price.PriceWithBias(PriceBiasLowest))
		if total.GreaterThan(limit) {
			return limit.Div(total).Mul(b.Config.AssetWeightInit)
		}
		return b.Config.AssetWeightInit
	case RequirementMaintenance:
		return b.Config.AssetWeightMaint
	default:
		return decimal.NewFromInt(1)
	}
}

// LiabilityWeight returns the liability weight for the requirement.
func (b *Bank) LiabilityWeight(req RequirementType) decimal.Decimal {
	switch req {
	case RequirementInitial:
		return b.Config.LiabilityWeightInit
	case RequirementMaintenance:
		return b.Config.LiabilityWeightMaint
	default:
		return decimal.NewFromInt(1)
	}
}

// AssetUSDValue values asset shares at the lowest price for the requirement.
func (b *Bank) AssetUSDValue(shares decimal.Decimal, price OraclePrice, req RequirementType) decimal.Decimal {
	qty := b.ToUI(b.AssetQuantity(shares))
	bias := PriceBiasLowest
	if req == RequirementEquity {
		bias = PriceBiasOriginal
	}
	return qty.Mul(price.PriceWithBias(bias)).Mul(b.AssetWeight(req, price))
}

// LiabilityUSDValue values liability shares at the highest price for the requirement.
func (b *Bank) LiabilityUSDValue(shares decimal.Decimal, price OraclePrice, req RequirementType) decimal.Decimal {
	qty := b.ToUI(b.LiabilityQuantity(shares))
	bias := PriceBiasHighest
	if req == RequirementEquity {
		bias = PriceBiasOriginal
	}
	return qty.Mul(price.PriceWithBias(bias)).Mul(b.LiabilityWeight(req))
}

// BankMap holds banks keyed by address.
type BankMap map[Address]*Bank

// Clone returns a copy of the map. Banks are shared since they are never mutated.
func (m BankMap) Clone() BankMap {
	out := make(BankMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// With returns a copy of the map with bank stored under its address.
func (m BankMap) With(bank *Bank) BankMap {
	out := m.Clone()
	out[bank.Address] = bank
	return out
}

// Addresses returns the keys of the map in byte order.
func (m BankMap) Addresses() []Address {
	out := make([]Address, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b Address) int { return bytes.Compare(a[:], b[:]) })
	return out
}
