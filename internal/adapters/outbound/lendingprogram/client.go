// Package lendingprogram is the protocol client for the lending program. It
// reads banks, oracle prices and the wallet's margin account through a Node
// and submits transaction bundles back through it.
package lendingprogram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/pkg/codec"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time checks
var (
	_ outbound.ClientFactory  = (*Factory)(nil)
	_ outbound.ProtocolClient = (*Client)(nil)
)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("protocol client is closed")

// Factory builds Clients.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new Factory.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger.With("component", "lending-program")}
}

// Fetch loads the group's banks, their prices and the wallet's account.
// A zero wallet skips the account lookup.
func (f *Factory) Fetch(ctx context.Context, cfg outbound.ClientConfig, wallet entity.Address, conn outbound.Node, opts outbound.FetchOptions) (outbound.ProtocolClient, error) {
	if conn == nil {
		return nil, fmt.Errorf("node connection is required")
	}
	if cfg.ProgramID.IsZero() || cfg.Group.IsZero() {
		return nil, fmt.Errorf("program and group are required")
	}

	c := &Client{
		cfg:    cfg,
		conn:   conn,
		logger: f.logger.With("group", cfg.Group.String()),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		banks, err := c.loadBanks(gctx, opts.PreloadedBankAddresses)
		if err != nil {
			return err
		}
		prices, err := c.loadPrices(gctx, banks)
		if err != nil {
			return err
		}
		c.banks, c.prices = banks, prices
		return nil
	})
	if !wallet.IsZero() {
		g.Go(func() error {
			account, err := c.loadAccount(gctx, wallet)
			if err != nil {
				return err
			}
			c.account = account
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("protocol client loaded",
		"banks", len(c.banks),
		"prices", len(c.prices),
		"hasAccount", c.account != nil,
	)
	return c, nil
}

// Client is a session for one wallet and group.
type Client struct {
	cfg     outbound.ClientConfig
	conn    outbound.Node
	banks   entity.BankMap
	prices  entity.PriceMap
	account *entity.MarginAccount
	closed  atomic.Bool
	logger  *slog.Logger
}

func (c *Client) loadBanks(ctx context.Context, preloaded []entity.Address) (entity.BankMap, error) {
	var infos []*outbound.AccountInfo
	var err error
	if len(preloaded) > 0 {
		infos, err = c.conn.GetMultipleAccounts(ctx, preloaded)
	} else {
		infos, err = c.conn.GetProgramAccounts(ctx, c.cfg.ProgramID,
			outbound.ProgramAccountFilter{Offset: 0, Bytes: codec.BankDiscriminator()},
			outbound.ProgramAccountFilter{Offset: codec.BankGroupOffset, Bytes: c.cfg.Group[:]},
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load banks: %w", err)
	}

	banks := make(entity.BankMap, len(infos))
	for i, info := range infos {
		if info == nil {
			c.logger.Warn("bank account not found", "bank", preloaded[i].String())
			continue
		}
		bank, err := codec.DecodeBank(info.Address, info.Data)
		if err != nil {
			c.logger.Warn("skipping undecodable bank", "bank", info.Address.String(), "error", err)
			continue
		}
		if bank.Group != c.cfg.Group {
			c.logger.Warn("skipping bank from another group", "bank", info.Address.String(), "bankGroup", bank.Group.String())
			continue
		}
		banks[bank.Address] = bank
	}
	return banks, nil
}

func (c *Client) loadPrices(ctx context.Context, banks entity.BankMap) (entity.PriceMap, error) {
	var oracleKeys []entity.Address
	var owners []entity.Address
	for _, addr := range banks.Addresses() {
		bank := banks[addr]
		if len(bank.Config.OracleKeys) == 0 {
			c.logger.Warn("bank has no oracle", "bank", addr.String())
			continue
		}
		oracleKeys = append(oracleKeys, bank.Config.OracleKeys[0])
		owners = append(owners, addr)
	}

	prices := make(entity.PriceMap, len(owners))
	if len(oracleKeys) == 0 {
		return prices, nil
	}

	infos, err := c.conn.GetMultipleAccounts(ctx, oracleKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to load oracle prices: %w", err)
	}
	for i, info := range infos {
		if info == nil {
			c.logger.Warn("oracle account not found", "bank", owners[i].String(), "oracle", oracleKeys[i].String())
			continue
		}
		price, err := codec.DecodePrice(info.Data)
		if err != nil {
			c.logger.Warn("skipping undecodable oracle", "bank", owners[i].String(), "error", err)
			continue
		}
		prices[owners[i]] = price
	}
	return prices, nil
}

// loadAccount returns the wallet's account in the group, the lowest address
// when the wallet owns several, or nil when it has none.
func (c *Client) loadAccount(ctx context.Context, wallet entity.Address) (*entity.MarginAccount, error) {
	infos, err := c.conn.GetProgramAccounts(ctx, c.cfg.ProgramID,
		outbound.ProgramAccountFilter{Offset: 0, Bytes: codec.AccountDiscriminator()},
		outbound.ProgramAccountFilter{Offset: codec.AccountGroupOffset, Bytes: c.cfg.Group[:]},
		outbound.ProgramAccountFilter{Offset: codec.AccountAuthorityOffset, Bytes: wallet[:]},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load margin account: %w", err)
	}
	if len(infos) == 0 {
		return nil, nil
	}

	infos = slices.DeleteFunc(slices.Clone(infos), func(i *outbound.AccountInfo) bool { return i == nil })
	slices.SortFunc(infos, func(a, b *outbound.AccountInfo) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	if len(infos) > 1 {
		c.logger.Info("wallet has several margin accounts, using the first", "wallet", wallet.String(), "count", len(infos))
	}
	for _, info := range infos {
		account, err := codec.DecodeAccount(info.Address, info.Data)
		if err != nil {
			c.logger.Warn("skipping undecodable margin account", "account", info.Address.String(), "error", err)
			continue
		}
		return account, nil
	}
	return nil, nil
}

// Group returns the group the client is scoped to.
func (c *Client) Group() entity.Address { return c.cfg.Group }

// Banks returns the client's banks keyed by address.
func (c *Client) Banks() entity.BankMap { return c.banks }

// OraclePrices returns the latest prices keyed by bank address.
func (c *Client) OraclePrices() entity.PriceMap { return c.prices }

// OraclePriceByBank returns the price of a bank's asset.
func (c *Client) OraclePriceByBank(bank entity.Address) (entity.OraclePrice, bool) {
	p, ok := c.prices[bank]
	return p, ok
}

// Account returns the wallet's margin account, or nil.
func (c *Client) Account() *entity.MarginAccount { return c.account }

// SimulateTransactions runs txs in a sandbox and returns the post-state of addresses.
func (c *Client) SimulateTransactions(ctx context.Context, txs []entity.Transaction, addresses []entity.Address) ([][]byte, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.conn.SimulateBundle(ctx, txs, addresses)
}

// ProcessTransactions sends and confirms txs one by one, in order. On
// failure it returns the signatures confirmed so far with the error.
func (c *Client) ProcessTransactions(ctx context.Context, txs []entity.Transaction, opts outbound.ProcessOptions) ([]string, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	sigs := make([]string, 0, len(txs))
	for i, tx := range txs {
		sig, err := c.conn.SendTransaction(ctx, tx)
		if err != nil {
			return sigs, fmt.Errorf("failed to send transaction %d (%s): %w", i, tx.Label, err)
		}
		if err := c.conn.ConfirmTransaction(ctx, sig); err != nil {
			return sigs, fmt.Errorf("failed to confirm transaction %d (%s): %w", i, tx.Label, err)
		}
		sigs = append(sigs, sig)
		c.logger.Info("transaction confirmed",
			"label", tx.Label,
			"signature", sig,
			"broadcast", opts.BroadcastType,
			"priorityFee", opts.PriorityFeeMicroLamports,
		)
	}
	return sigs, nil
}

// DecodeBank decodes a raw bank account.
func (c *Client) DecodeBank(address entity.Address, data []byte) (*entity.Bank, error) {
	return codec.DecodeBank(address, data)
}

// DecodeAccount decodes a raw margin account.
func (c *Client) DecodeAccount(address entity.Address, data []byte) (*entity.MarginAccount, error) {
	return codec.DecodeAccount(address, data)
}

// Close releases the session. The node connection is owned by the caller.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}
