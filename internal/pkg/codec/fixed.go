package codec

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const fractionalBits = 48

var (
	fixedScale = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), fractionalBits), 0)
	twoTo128   = new(big.Int).Lsh(big.NewInt(1), 128)
	twoTo127   = new(big.Int).Lsh(big.NewInt(1), 127)
)

// WrappedI80F48 is a signed 128-bit fixed point number with 48 fractional
// bits, stored little endian.
type WrappedI80F48 struct {
	Value [16]byte
}

// Decimal converts the fixed point value to a decimal.
func (w WrappedI80F48) Decimal() decimal.Decimal {
	be := make([]byte, 16)
	for i := range w.Value {
		be[15-i] = w.Value[i]
	}
	raw := new(big.Int).SetBytes(be)
	if raw.Cmp(twoTo127) >= 0 {
		raw.Sub(raw, twoTo128)
	}
	return decimal.NewFromBigInt(raw, 0).DivRound(fixedScale, 24)
}

// FromDecimal converts d to the nearest fixed point value.
func FromDecimal(d decimal.Decimal) WrappedI80F48 {
	raw := d.Mul(fixedScale).Round(0).BigInt()
	if raw.Sign() < 0 {
		raw.Add(raw, twoTo128)
	}
	be := raw.FillBytes(make([]byte, 16))

	var w WrappedI80F48
	for i := range be {
		w.Value[15-i] = be[i]
	}
	return w
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
