package outbound

import (
	"context"
	"errors"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

// ErrTransactionFailed is returned by ConfirmTransaction when the transaction
// landed but its execution failed.
var ErrTransactionFailed = errors.New("transaction failed")

// AccountInfo is a raw on-chain account.
type AccountInfo struct {
	Address  entity.Address
	Owner    entity.Address
	Lamports uint64
	Data     []byte
}

// ProgramAccountFilter narrows GetProgramAccounts. Bytes must match the
// account data at Offset. A non-zero DataSize also filters on length.
type ProgramAccountFilter struct {
	Offset   uint64
	Bytes    []byte
	DataSize uint64
}

// Node is the connection to a chain node.
type Node interface {
	// GetMultipleAccounts returns one entry per address, nil for missing accounts.
	GetMultipleAccounts(ctx context.Context, addresses []entity.Address) ([]*AccountInfo, error)

	// GetProgramAccounts returns the accounts owned by program that match all filters.
	GetProgramAccounts(ctx context.Context, program entity.Address, filters ...ProgramAccountFilter) ([]*AccountInfo, error)

	// SimulateBundle executes txs in order against a disposable copy of chain
	// state and returns the post-state data of each readBack address, nil when
	// the sandbox returned nothing for it.
	SimulateBundle(ctx context.Context, txs []entity.Transaction, readBack []entity.Address) ([][]byte, error)

	// SendTransaction submits a signed transaction and returns its signature.
	SendTransaction(ctx context.Context, tx entity.Transaction) (string, error)

	// ConfirmTransaction blocks until the signature is confirmed or ctx is done.
	ConfirmTransaction(ctx context.Context, signature string) error
}
