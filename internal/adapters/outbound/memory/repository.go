// Package memory provides in-memory implementations of the outbound ports.
// Useful for testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that TxHistoryRepository implements outbound.TxHistoryRepository
var _ outbound.TxHistoryRepository = (*TxHistoryRepository)(nil)

// TxHistoryRepository is an in-memory implementation of the TxHistoryRepository port.
type TxHistoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*entity.TxRecord
}

// NewTxHistoryRepository creates a new in-memory repository.
func NewTxHistoryRepository() *TxHistoryRepository {
	return &TxHistoryRepository{records: make(map[uuid.UUID]*entity.TxRecord)}
}

// SaveTx stores the record. A record with a known ID is ignored.
func (r *TxHistoryRepository) SaveTx(ctx context.Context, record *entity.TxRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; ok {
		return nil
	}
	clone := *record
	clone.Signatures = append([]string(nil), record.Signatures...)
	r.records[record.ID] = &clone
	return nil
}

// ListByWallet returns the wallet's records, newest first.
func (r *TxHistoryRepository) ListByWallet(ctx context.Context, wallet entity.Address, limit int) ([]*entity.TxRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.TxRecord, 0)
	for _, rec := range r.records {
		if rec.Wallet == wallet {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
