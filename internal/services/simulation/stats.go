package simulation

import (
	"fmt"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

// LiquidationPriceDisplayThreshold is the price at or below which a
// liquidation price is treated as absent.
const LiquidationPriceDisplayThreshold = 0.01

// SlippageAlertBps is the slippage above which the trade stats raise an alert.
const SlippageAlertBps = 500

// SimulationStats derives the position and risk figures of a simulated
// account for the token and quote legs.
func SimulationStats(result *entity.SimulationResult, token, quote *entity.ExtendedBankInfo) (entity.StatResult, error) {
	if result == nil || result.Account == nil {
		return entity.StatResult{}, ErrNothingToSimulate
	}
	acc := result.Account

	maint, err := acc.ComputeHealthComponents(result.Banks, result.OraclePrices, entity.RequirementMaintenance)
	if err != nil {
		return entity.StatResult{}, fmt.Errorf("failed to compute simulated health: %w", err)
	}
	free, err := acc.ComputeFreeCollateral(result.Banks, result.OraclePrices)
	if err != nil {
		return entity.StatResult{}, fmt.Errorf("failed to compute simulated free collateral: %w", err)
	}
	liq, ok, err := acc.ComputeLiquidationPriceForBank(result.Banks, result.OraclePrices, token.Address)
	if err != nil {
		return entity.StatResult{}, fmt.Errorf("failed to compute simulated liquidation price: %w", err)
	}

	return entity.StatResult{
		TokenPositionAmount: positionAmount(acc, token, result.Banks),
		QuotePositionAmount: positionAmount(acc, quote, result.Banks),
		HealthFactor:        entity.ComputeHealthFactor(maint),
		LiquidationPrice:    displayLiquidationPrice(liq, ok),
		FreeCollateral:      free.InexactFloat64(),
	}, nil
}

// CurrentStats derives the same figures from the live account summary and
// the wallet's positions. A nil summary, a zero balance or a zero health
// factor reports full health.
func CurrentStats(summary *entity.AccountSummary, token, quote *entity.ExtendedBankInfo) entity.StatResult {
	stats := entity.StatResult{HealthFactor: entity.HealthFactorNoExposure}
	if summary != nil {
		if summary.Balance != 0 && summary.HealthFactor != 0 {
			stats.HealthFactor = summary.HealthFactor
		}
		stats.FreeCollateral = summary.FreeCollateral
	}
	if token.IsActive() {
		stats.TokenPositionAmount = token.Position.Amount
		if token.Position.LiquidationPrice != nil {
			stats.LiquidationPrice = displayLiquidationPrice(*token.Position.LiquidationPrice, true)
		}
	}
	if quote.IsActive() {
		stats.QuotePositionAmount = quote.Position.Amount
	}
	return stats
}

// positionAmount prefers the liability side of a balance over the asset side.
func positionAmount(acc *entity.MarginAccount, info *entity.ExtendedBankInfo, banks entity.BankMap) float64 {
	bal, ok := acc.Balance(info.Address)
	if !ok {
		return 0
	}
	bank := banks[info.Address]
	if bank == nil {
		bank = info.Bank
	}
	assets, liabilities := bal.QuantityUI(bank)
	switch {
	case liabilities.IsPositive():
		return liabilities.InexactFloat64()
	case assets.IsPositive():
		return assets.InexactFloat64()
	default:
		return 0
	}
}

func displayLiquidationPrice(price float64, ok bool) *float64 {
	if !ok || price <= LiquidationPriceDisplayThreshold {
		return nil
	}
	return &price
}

// TradeStatsInput is everything the trade summary is derived from. Result
// and Bundle are optional.
type TradeStatsInput struct {
	Summary *entity.AccountSummary
	Token   *entity.ExtendedBankInfo
	Quote   *entity.ExtendedBankInfo
	Result  *entity.SimulationResult
	Bundle  *entity.ActionBundle
}

// GenerateTradeStats builds the before/after summary shown next to a trade.
func GenerateTradeStats(in TradeStatsInput) (entity.TradeStats, error) {
	stats := entity.TradeStats{
		EntryPrice:       in.Token.State.Price,
		PriceImpactLevel: entity.PriceImpactOK,
		Oracle:           in.Token.State.OracleProviderName,
		Current:          CurrentStats(in.Summary, in.Token, in.Quote),
	}
	stats.CurrentLiquidationPrice = stats.Current.LiquidationPrice

	if in.Result != nil {
		sim, err := SimulationStats(in.Result, in.Token, in.Quote)
		if err != nil {
			return entity.TradeStats{}, err
		}
		stats.Simulated = &sim
		stats.SimulatedLiquidationPrice = sim.LiquidationPrice
	}
	stats.ShowLiquidationComparison = stats.CurrentLiquidationPrice != nil && stats.SimulatedLiquidationPrice != nil

	if in.Bundle != nil && in.Bundle.ActionQuote != nil {
		q := in.Bundle.ActionQuote
		slippage := q.SlippageBps
		impact := q.PriceImpactPct
		stats.SlippageBps = &slippage
		stats.SlippageAlert = slippage > SlippageAlertBps
		stats.PlatformFeeBps = q.PlatformFeeBps
		stats.PriceImpactPct = &impact
		stats.PriceImpactLevel = entity.PriceImpactLevelFor(impact)
	}

	if deposits := in.Token.State.TotalDeposits; deposits > 0 {
		stats.TotalDeposits = &deposits
	}
	if borrows := in.Token.State.TotalBorrows; borrows > 0 {
		stats.TotalBorrows = &borrows
	}
	return stats, nil
}
