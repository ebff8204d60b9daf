package outbound

import (
	"context"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

// ClientConfig identifies the program and group a client is scoped to.
type ClientConfig struct {
	ProgramID entity.Address
	Group     entity.Address
}

// FetchOptions tunes client construction.
type FetchOptions struct {
	// PreloadedBankAddresses restricts the client to these banks instead of
	// scanning every bank of the group.
	PreloadedBankAddresses []entity.Address
}

// ProcessOptions tunes transaction submission.
type ProcessOptions struct {
	PriorityFeeMicroLamports uint64
	BroadcastType            string
}

// ClientFactory builds protocol clients.
type ClientFactory interface {
	Fetch(ctx context.Context, cfg ClientConfig, wallet entity.Address, conn Node, opts FetchOptions) (ProtocolClient, error)
}

// ProtocolClient is a lending program session for one wallet and group. The
// maps it returns are owned by the client and must be treated as read-only.
type ProtocolClient interface {
	// Group returns the group the client is scoped to.
	Group() entity.Address

	// Banks returns the client's banks keyed by address.
	Banks() entity.BankMap

	// OraclePrices returns the latest prices keyed by bank address.
	OraclePrices() entity.PriceMap

	// OraclePriceByBank returns the price of a bank's asset.
	OraclePriceByBank(bank entity.Address) (entity.OraclePrice, bool)

	// Account returns the wallet's margin account in the group, or nil.
	Account() *entity.MarginAccount

	// SimulateTransactions runs txs in a sandbox and returns the post-state of addresses.
	SimulateTransactions(ctx context.Context, txs []entity.Transaction, addresses []entity.Address) ([][]byte, error)

	// ProcessTransactions submits txs in order and returns their signatures.
	ProcessTransactions(ctx context.Context, txs []entity.Transaction, opts ProcessOptions) ([]string, error)

	// DecodeBank decodes a raw bank account.
	DecodeBank(address entity.Address, data []byte) (*entity.Bank, error)

	// DecodeAccount decodes a raw margin account.
	DecodeAccount(address entity.Address, data []byte) (*entity.MarginAccount, error)

	// Close releases the session.
	Close() error
}
