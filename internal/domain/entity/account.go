package entity

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxBalances is the number of balance slots on a margin account.
const MaxBalances = 16

var (
	// ErrBankNotFound is returned when a balance refers to a bank missing from the bank set.
	ErrBankNotFound = errors.New("bank not found")
	// ErrPriceNotFound is returned when a balance refers to a bank without an oracle price.
	ErrPriceNotFound = errors.New("oracle price not found")
)

// Balance is one position slot of a margin account.
type Balance struct {
	Active          bool
	BankAddress     Address
	AssetShares     decimal.Decimal
	LiabilityShares decimal.Decimal
	LastUpdate      int64
}

// IsLending reports whether the balance is on the asset side.
func (b Balance) IsLending() bool {
	return b.LiabilityShares.IsZero()
}

// QuantityUI returns the asset and liability quantities in token units.
func (b Balance) QuantityUI(bank *Bank) (assets, liabilities decimal.Decimal) {
	return bank.ToUI(bank.AssetQuantity(b.AssetShares)), bank.ToUI(bank.LiabilityQuantity(b.LiabilityShares))
}

// USDValue returns the asset and liability values for the requirement.
func (b Balance) USDValue(bank *Bank, price OraclePrice, req RequirementType) (assets, liabilities decimal.Decimal) {
	return bank.AssetUSDValue(b.AssetShares, price, req), bank.LiabilityUSDValue(b.LiabilityShares, price, req)
}

// HealthComponents is the weighted asset and liability total of an account.
type HealthComponents struct {
	Assets      decimal.Decimal
	Liabilities decimal.Decimal
}

// MarginAccount is the user's account on the lending program.
type MarginAccount struct {
	Address   Address
	Group     Address
	Authority Address
	Balances  []Balance
}

// Clone returns a deep copy of the account.
func (a *MarginAccount) Clone() *MarginAccount {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Balances = append([]Balance(nil), a.Balances...)
	return &clone
}

// ActiveBalances returns the balances that are in use.
func (a *MarginAccount) ActiveBalances() []Balance {
	out := make([]Balance, 0, len(a.Balances))
	for _, b := range a.Balances {
		if b.Active {
			out = append(out, b)
		}
	}
	return out
}

// Balance returns the active balance for the bank, if any.
func (a *MarginAccount) Balance(bank Address) (Balance, bool) {
	for _, b := range a.Balances {
		if b.Active && b.BankAddress == bank {
			return b, true
		}
	}
	return Balance{}, false
}

// ComputeHealthComponents sums the weighted value of all active balances,
// skipping the banks listed in exclude.
func (a *MarginAccount) ComputeHealthComponents(banks BankMap, prices PriceMap, req RequirementType, exclude ...Address) (HealthComponents, error) {
	hc := HealthComponents{Assets: decimal.Zero, Liabilities: decimal.Zero}

	for _, bal := range a.ActiveBalances() {
		if containsAddress(exclude, bal.BankAddress) {
			continue
		}
		bank, ok := banks[bal.BankAddress]
		if !ok {
			return hc, fmt.Errorf("balance %s: %w", bal.BankAddress, ErrBankNotFound)
		}
		price, ok := prices[bal.BankAddress]
		if !ok {
			return hc, fmt.Errorf("balance %s: %w", bal.BankAddress, ErrPriceNotFound)
		}
		assets, liabilities := bal.USDValue(bank, price, req)
		hc.Assets = hc.Assets.Add(assets)
		hc.Liabilities = hc.Liabilities.Add(liabilities)
	}

	return hc, nil
}

// ComputeFreeCollateral returns the initial-weighted headroom, floored at zero.
func (a *MarginAccount) ComputeFreeCollateral(banks BankMap, prices PriceMap) (decimal.Decimal, error) {
	hc, err := a.ComputeHealthComponents(banks, prices, RequirementInitial)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Max(decimal.Zero, hc.Assets.Sub(hc.Liabilities)), nil
}

// ComputeLiquidationPriceForBank returns the price of the bank's asset at
// which the account's maintenance health reaches zero. ok is false when the
// account has no balance in the bank, when a lending position has nothing
// borrowed against it, or when the result is negative or not finite.
func (a *MarginAccount) ComputeLiquidationPriceForBank(banks BankMap, prices PriceMap, bankAddr Address) (price float64, ok bool, err error) {
	bal, found := a.Balance(bankAddr)
	if !found {
		return 0, false, nil
	}
	bank, found := banks[bankAddr]
	if !found {
		return 0, false, fmt.Errorf("bank %s: %w", bankAddr, ErrBankNotFound)
	}
	oracle, found := prices[bankAddr]
	if !found {
		return 0, false, fmt.Errorf("bank %s: %w", bankAddr, ErrPriceNotFound)
	}

	others, err := a.ComputeHealthComponents(banks, prices, RequirementMaintenance, bankAddr)
	if err != nil {
		return 0, false, err
	}
	assetQty, liabQty := bal.QuantityUI(bank)

	var liq decimal.Decimal
	if bal.IsLending() {
		if others.Liabilities.IsZero() {
			return 0, false, nil
		}
		denom := assetQty.Mul(bank.AssetWeight(RequirementMaintenance, oracle))
		if denom.IsZero() {
			return 0, false, nil
		}
		confidence := oracle.PriceWithBias(PriceBiasOriginal).Sub(oracle.PriceWithBias(PriceBiasLowest))
		liq = others.Liabilities.Sub(others.Assets).Div(denom).Add(confidence)
	} else {
		denom := liabQty.Mul(bank.LiabilityWeight(RequirementMaintenance))
		if denom.IsZero() {
			return 0, false, nil
		}
		confidence := oracle.PriceWithBias(PriceBiasHighest).Sub(oracle.PriceWithBias(PriceBiasOriginal))
		liq = others.Assets.Sub(others.Liabilities).Div(denom).Sub(confidence)
	}

	if liq.IsNegative() {
		return 0, false, nil
	}
	return liq.InexactFloat64(), true, nil
}

func containsAddress(list []Address, addr Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
