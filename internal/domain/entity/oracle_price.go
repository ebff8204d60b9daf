package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBias selects which edge of the confidence band to use.
type PriceBias uint8

const (
	PriceBiasOriginal PriceBias = iota
	PriceBiasLowest
	PriceBiasHighest
)

// OraclePrice is the latest feed reading for a bank's asset.
type OraclePrice struct {
	Price      decimal.Decimal
	Confidence decimal.Decimal
	Timestamp  time.Time
}

// PriceWithBias returns the price shifted to the requested edge of the
// confidence band. The lowest price never goes below zero.
func (p OraclePrice) PriceWithBias(bias PriceBias) decimal.Decimal {
	switch bias {
	case PriceBiasLowest:
		return decimal.Max(decimal.Zero, p.Price.Sub(p.Confidence))
	case PriceBiasHighest:
		return p.Price.Add(p.Confidence)
	default:
		return p.Price
	}
}

// IsStale reports whether the reading is older than maxAge at now.
func (p OraclePrice) IsStale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 || p.Timestamp.IsZero() {
		return false
	}
	return now.Sub(p.Timestamp) > maxAge
}

// PriceMap holds oracle prices keyed by bank address.
type PriceMap map[Address]OraclePrice

// Clone returns a copy of the map.
func (m PriceMap) Clone() PriceMap {
	out := make(PriceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
