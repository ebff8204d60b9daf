package entity

// StatResult is the position and risk snapshot shown for a trade, either for
// the live account or for a simulated one.
type StatResult struct {
	TokenPositionAmount float64
	QuotePositionAmount float64
	HealthFactor        float64
	// LiquidationPrice is nil when there is none worth showing.
	LiquidationPrice *float64
	FreeCollateral   float64
}

// PriceImpactLevel grades a quote's price impact.
type PriceImpactLevel string

const (
	PriceImpactOK      PriceImpactLevel = "ok"
	PriceImpactWarning PriceImpactLevel = "warning"
	PriceImpactError   PriceImpactLevel = "error"
)

// TradeStats is the summary shown next to a trade form.
type TradeStats struct {
	EntryPrice float64

	CurrentLiquidationPrice   *float64
	SimulatedLiquidationPrice *float64
	ShowLiquidationComparison bool

	SlippageBps      *int
	SlippageAlert    bool
	PlatformFeeBps   *int
	PriceImpactPct   *float64
	PriceImpactLevel PriceImpactLevel

	Oracle        string
	TotalDeposits *float64
	TotalBorrows  *float64

	Current   StatResult
	Simulated *StatResult
}

// Price impact thresholds as fractions of the quoted amount. Both comparisons
// are strict.
const (
	PriceImpactWarningThreshold = 0.01
	PriceImpactErrorThreshold   = 0.05
)

// PriceImpactLevelFor grades a price impact fraction.
func PriceImpactLevelFor(pct float64) PriceImpactLevel {
	switch {
	case pct > PriceImpactErrorThreshold:
		return PriceImpactError
	case pct > PriceImpactWarningThreshold:
		return PriceImpactWarning
	default:
		return PriceImpactOK
	}
}
