package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TxKind classifies a confirmed transaction.
type TxKind string

const (
	TxKindLoop          TxKind = "LOOP"
	TxKindLend          TxKind = "LEND"
	TxKindTrading       TxKind = "TRADING"
	TxKindClosePosition TxKind = "CLOSE_POSITION"
	TxKindStake         TxKind = "STAKE"
	TxKindUnstake       TxKind = "UNSTAKE"
)

// TxRecord is a confirmed transaction in a wallet's history.
type TxRecord struct {
	ID         uuid.UUID
	Kind       TxKind
	Wallet     Address
	Group      Address
	TokenBank  Address
	QuoteBank  Address
	Side       TradeSide
	Amount     float64
	Signatures []string
	CreatedAt  time.Time
}

// NewTxRecord creates a new TxRecord with validation.
func NewTxRecord(kind TxKind, wallet, group, tokenBank, quoteBank Address, side TradeSide, amount float64, signatures []string, createdAt time.Time) (*TxRecord, error) {
	r := &TxRecord{
		ID:         uuid.New(),
		Kind:       kind,
		Wallet:     wallet,
		Group:      group,
		TokenBank:  tokenBank,
		QuoteBank:  quoteBank,
		Side:       side,
		Amount:     amount,
		Signatures: signatures,
		CreatedAt:  createdAt,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// validate checks that all fields have valid values.
func (r *TxRecord) validate() error {
	switch r.Kind {
	case TxKindLoop, TxKindLend, TxKindTrading, TxKindClosePosition, TxKindStake, TxKindUnstake:
	default:
		return fmt.Errorf("unknown tx kind %q", r.Kind)
	}
	if r.Wallet.IsZero() {
		return fmt.Errorf("wallet must not be empty")
	}
	if len(r.Signatures) == 0 {
		return fmt.Errorf("signatures must not be empty")
	}
	if r.Amount < 0 {
		return fmt.Errorf("amount must be non-negative, got %v", r.Amount)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt must be set")
	}
	return nil
}
