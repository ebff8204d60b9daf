// Package action_validator decides whether a prospective loop may be
// submitted. Rules are pure functions of their input and are re-evaluated
// from scratch on every call.
package action_validator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Input is everything the rules look at.
type Input struct {
	Amount      string
	Connected   bool
	ActiveGroup *entity.ActiveGroup
	Bundle      *entity.ActionBundle
	Side        entity.TradeSide
}

// rule returns the messages it produces for in, or nil.
type rule func(in Input) []entity.ActionMessage

// domainRules run only when the required state is present. They accumulate.
var domainRules = []rule{
	pausedBanks,
	wrongPosition,
	priceImpact,
}

// CheckLoopingActionAvailable evaluates the rules in order. A missing
// precondition short-circuits into a single blocking message. When no rule
// fires the result is a single Allowed message.
func CheckLoopingActionAvailable(in Input) []entity.ActionMessage {
	if msg, ok := requiredState(in); !ok {
		return []entity.ActionMessage{msg}
	}

	var checks []entity.ActionMessage
	checks = append(checks, generalChecks(in)...)
	for _, r := range domainRules {
		checks = append(checks, r(in)...)
	}

	if len(checks) == 0 {
		return []entity.ActionMessage{entity.Allowed()}
	}
	return checks
}

func requiredState(in Input) (entity.ActionMessage, bool) {
	switch {
	case !in.Connected:
		return entity.Blocking(entity.CodeNotConnected, "Connect a wallet to trade."), false
	case in.ActiveGroup == nil || in.ActiveGroup.Token == nil || in.ActiveGroup.Quote == nil:
		return entity.Blocking(entity.CodeNoActiveGroup, "Select a market to trade."), false
	case in.Bundle == nil:
		return entity.Blocking(entity.CodeNoActionBundle, "The transaction is still being prepared."), false
	default:
		return entity.ActionMessage{}, true
	}
}

func generalChecks(in Input) []entity.ActionMessage {
	amount, err := strconv.ParseFloat(strings.TrimSpace(in.Amount), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return []entity.ActionMessage{entity.Blocking(entity.CodeInvalidAmount, "Enter an amount greater than zero.")}
	}
	return nil
}

func pausedBanks(in Input) []entity.ActionMessage {
	var out []entity.ActionMessage
	for _, leg := range []*entity.ExtendedBankInfo{in.ActiveGroup.Quote, in.ActiveGroup.Token} {
		if leg.Bank != nil && leg.Bank.IsPaused() {
			out = append(out, entity.Blocking(entity.CodeBankPaused,
				fmt.Sprintf("The %s bank is paused at this time.", symbol(leg))))
		}
	}
	return out
}

type positionSide uint8

const (
	inactive positionSide = iota
	lending
	borrowing
)

func sideOf(info *entity.ExtendedBankInfo) positionSide {
	if !info.IsActive() {
		return inactive
	}
	if info.Position.IsLending {
		return lending
	}
	return borrowing
}

// wrongPosition blocks a trade that would fight an existing position: a
// long needs the quote borrowed and the token lent, a short the reverse.
func wrongPosition(in Input) []entity.ActionMessage {
	if in.Bundle.ActionTxn == nil {
		return nil
	}
	token, quote := in.ActiveGroup.Token, in.ActiveGroup.Quote
	tokenSide, quoteSide := sideOf(token), sideOf(quote)

	var wrongSupplied, wrongBorrowed bool
	var supplied, borrowed *entity.ExtendedBankInfo
	if in.Side == entity.TradeSideLong {
		wrongSupplied, supplied = quoteSide == lending, quote
		wrongBorrowed, borrowed = tokenSide == borrowing, token
	} else {
		wrongSupplied, supplied = tokenSide == lending, token
		wrongBorrowed, borrowed = quoteSide == borrowing, quote
	}

	switch {
	case wrongSupplied && wrongBorrowed:
		return []entity.ActionMessage{entity.Blocking(entity.CodeLoopCheck, fmt.Sprintf(
			"You are lending %s and borrowing %s. Withdraw and repay both before opening a %s position.",
			symbol(supplied), symbol(borrowed), in.Side))}
	case wrongSupplied:
		return []entity.ActionMessage{entity.Blocking(entity.CodeWithdrawCheck, fmt.Sprintf(
			"You are lending %s. Withdraw it before opening a %s position.", symbol(supplied), in.Side))}
	case wrongBorrowed:
		return []entity.ActionMessage{entity.Blocking(entity.CodeRepayCheck, fmt.Sprintf(
			"You are borrowing %s. Repay it before opening a %s position.", symbol(borrowed), in.Side))}
	default:
		return nil
	}
}

func priceImpact(in Input) []entity.ActionMessage {
	if in.Bundle.ActionQuote == nil {
		return nil
	}
	pct := in.Bundle.ActionQuote.PriceImpactPct
	switch entity.PriceImpactLevelFor(pct) {
	case entity.PriceImpactError:
		return []entity.ActionMessage{entity.Blocking(entity.CodePriceImpactError, fmt.Sprintf(
			"Price impact is %.2f%%. Reduce the size of the trade.", pct*100))}
	case entity.PriceImpactWarning:
		return []entity.ActionMessage{entity.Warning(entity.CodePriceImpactWarning, fmt.Sprintf(
			"Price impact is %.2f%%. You may receive less than expected.", pct*100))}
	default:
		return nil
	}
}

func symbol(info *entity.ExtendedBankInfo) string {
	if info.Bank != nil && info.Bank.TokenSymbol != "" {
		return info.Bank.TokenSymbol
	}
	return info.Meta.Symbol
}

// Validator runs CheckLoopingActionAvailable and records the verdict.
type Validator struct {
	logger  *slog.Logger
	metrics outbound.MetricsRecorder
}

// NewValidator creates a Validator. metrics may be nil.
func NewValidator(logger *slog.Logger, metrics outbound.MetricsRecorder) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		logger:  logger.With("component", "action-validator"),
		metrics: metrics,
	}
}

// Check evaluates in.
func (v *Validator) Check(ctx context.Context, in Input) []entity.ActionMessage {
	msgs := CheckLoopingActionAvailable(in)
	blocked := entity.AnyBlocking(msgs)
	if v.metrics != nil {
		v.metrics.RecordValidation(ctx, blocked)
	}
	if blocked {
		codes := make([]string, 0, len(msgs))
		for _, m := range msgs {
			if !m.IsEnabled() {
				codes = append(codes, string(m.Code))
			}
		}
		v.logger.Debug("action blocked", "side", in.Side, "codes", codes)
	}
	return msgs
}
