package outbound

import (
	"context"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

// TxHistoryRepository persists confirmed transactions.
type TxHistoryRepository interface {
	// SaveTx stores a record. Saving the same ID twice is a no-op.
	SaveTx(ctx context.Context, record *entity.TxRecord) error

	// ListByWallet returns the wallet's most recent records, newest first.
	ListByWallet(ctx context.Context, wallet entity.Address, limit int) ([]*entity.TxRecord, error)
}
