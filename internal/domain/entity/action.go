package entity

import "fmt"

// TradeSide is the direction of a leveraged trade.
type TradeSide string

const (
	TradeSideLong  TradeSide = "long"
	TradeSideShort TradeSide = "short"
)

// ParseTradeSide validates s as a trade side.
func ParseTradeSide(s string) (TradeSide, error) {
	switch TradeSide(s) {
	case TradeSideLong, TradeSideShort:
		return TradeSide(s), nil
	default:
		return "", fmt.Errorf("invalid trade side %q", s)
	}
}

// Transaction is a serialized, ready-to-sign transaction.
type Transaction struct {
	Label string
	Data  []byte
}

// Quote is the swap quote a looping bundle was built from.
type Quote struct {
	InAmount       string
	OutAmount      string
	PriceImpactPct float64
	SlippageBps    int
	PlatformFeeBps *int
}

// ActionBundle is the prospective transaction set for a loop. AdditionalTxns
// run before ActionTxn, typically oracle cranks.
type ActionBundle struct {
	ActionTxn           *Transaction
	AdditionalTxns      []Transaction
	ActionQuote         *Quote
	BorrowAmount        float64
	ActualDepositAmount float64
}

// Transactions returns AdditionalTxns followed by ActionTxn.
func (b *ActionBundle) Transactions() []Transaction {
	out := make([]Transaction, 0, len(b.AdditionalTxns)+1)
	out = append(out, b.AdditionalTxns...)
	if b.ActionTxn != nil {
		out = append(out, *b.ActionTxn)
	}
	return out
}
