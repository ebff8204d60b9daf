package entity

// HealthFactorNoExposure is the health factor reported for an account with
// no weighted assets. Such an account has nothing to liquidate.
const HealthFactorNoExposure = 1.0

// ComputeHealthFactor returns (assets - liabilities) / assets, or
// HealthFactorNoExposure when assets is zero.
func ComputeHealthFactor(hc HealthComponents) float64 {
	if hc.Assets.IsZero() {
		return HealthFactorNoExposure
	}
	return hc.Assets.Sub(hc.Liabilities).Div(hc.Assets).InexactFloat64()
}

// AccountSummary aggregates an account across all of its positions.
type AccountSummary struct {
	HealthFactor float64
	// Balance is equity assets minus equity liabilities in USD.
	Balance         float64
	LendingAmount   float64
	BorrowingAmount float64

	LendingAmountWeighted   float64
	BorrowingAmountWeighted float64
	FreeCollateral          float64
}

// ComputeAccountSummary values account against banks and prices. A nil
// account yields the empty summary.
func ComputeAccountSummary(account *MarginAccount, banks BankMap, prices PriceMap) (AccountSummary, error) {
	if account == nil {
		return AccountSummary{HealthFactor: HealthFactorNoExposure}, nil
	}
	equity, err := account.ComputeHealthComponents(banks, prices, RequirementEquity)
	if err != nil {
		return AccountSummary{}, err
	}
	maint, err := account.ComputeHealthComponents(banks, prices, RequirementMaintenance)
	if err != nil {
		return AccountSummary{}, err
	}
	free, err := account.ComputeFreeCollateral(banks, prices)
	if err != nil {
		return AccountSummary{}, err
	}

	return AccountSummary{
		HealthFactor:            ComputeHealthFactor(maint),
		Balance:                 equity.Assets.Sub(equity.Liabilities).InexactFloat64(),
		LendingAmount:           equity.Assets.InexactFloat64(),
		BorrowingAmount:         equity.Liabilities.InexactFloat64(),
		LendingAmountWeighted:   maint.Assets.InexactFloat64(),
		BorrowingAmountWeighted: maint.Liabilities.InexactFloat64(),
		FreeCollateral:          free.InexactFloat64(),
	}, nil
}

// HealthTier buckets a health factor for display.
type HealthTier string

const (
	HealthTierUnknown  HealthTier = "unknown"
	HealthTierGood     HealthTier = "good"
	HealthTierWarning  HealthTier = "warning"
	HealthTierCritical HealthTier = "critical"
)

// HealthTierFor maps a health factor to its tier. A nil factor is unknown.
func HealthTierFor(hf *float64) HealthTier {
	switch {
	case hf == nil:
		return HealthTierUnknown
	case *hf >= 0.5:
		return HealthTierGood
	case *hf >= 0.25:
		return HealthTierWarning
	default:
		return HealthTierCritical
	}
}
