package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that TxHistoryRepository implements outbound.TxHistoryRepository
var _ outbound.TxHistoryRepository = (*TxHistoryRepository)(nil)

// DefaultHistoryLimit caps ListByWallet when the caller passes no limit.
const DefaultHistoryLimit = 50

// TxHistoryRepository is a PostgreSQL implementation of the outbound.TxHistoryRepository port.
type TxHistoryRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTxHistoryRepository creates a new PostgreSQL transaction history repository.
func NewTxHistoryRepository(pool *pgxpool.Pool, logger *slog.Logger) (*TxHistoryRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TxHistoryRepository{
		pool:   pool,
		logger: logger.With("component", "tx-history-repository"),
	}, nil
}

// SaveTx stores a record. Uses ON CONFLICT DO NOTHING so replays are ignored.
func (r *TxHistoryRepository) SaveTx(ctx context.Context, record *entity.TxRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO tx_history (id, kind, wallet, group_pk, token_bank, quote_bank, side, amount, signatures, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		record.ID.String(), string(record.Kind), record.Wallet.String(), record.Group.String(),
		record.TokenBank.String(), record.QuoteBank.String(), string(record.Side),
		record.Amount, record.Signatures, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save tx record %s: %w", record.ID, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("tx record already stored", "id", record.ID)
	}
	return nil
}

// ListByWallet returns the wallet's most recent records, newest first.
func (r *TxHistoryRepository) ListByWallet(ctx context.Context, wallet entity.Address, limit int) ([]*entity.TxRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, wallet, group_pk, token_bank, quote_bank, side, amount, signatures, created_at
		 FROM tx_history
		 WHERE wallet = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		wallet.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tx history: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanTxRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tx history: %w", err)
	}
	return records, nil
}

func scanTxRecord(row pgx.CollectableRow) (*entity.TxRecord, error) {
	var (
		id, kind, wallet, group, tokenBank, quoteBank, side string
		rec                                                 entity.TxRecord
	)
	if err := row.Scan(&id, &kind, &wallet, &group, &tokenBank, &quoteBank, &side,
		&rec.Amount, &rec.Signatures, &rec.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", id, err)
	}
	rec.Kind = entity.TxKind(kind)
	rec.Side = entity.TradeSide(side)

	for _, f := range []struct {
		dst *entity.Address
		src string
	}{
		{&rec.Wallet, wallet},
		{&rec.Group, group},
		{&rec.TokenBank, tokenBank},
		{&rec.QuoteBank, quoteBank},
	} {
		if *f.dst, err = entity.ParseAddress(f.src); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
