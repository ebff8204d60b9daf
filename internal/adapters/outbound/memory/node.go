// node.go provides an in-memory chain node.
//
// Accounts are set directly by tests or local tooling. Simulation is delegated
// to a caller-supplied function since the node does not execute programs.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that Node implements outbound.Node
var _ outbound.Node = (*Node)(nil)

// ErrNoSimulator is returned by SimulateBundle when no simulator is installed.
var ErrNoSimulator = errors.New("no simulator installed")

// SimulateFunc computes post-state buffers for a bundle.
type SimulateFunc func(txs []entity.Transaction, readBack []entity.Address) ([][]byte, error)

// Node is an in-memory implementation of the Node port.
type Node struct {
	mu       sync.RWMutex
	accounts map[entity.Address]outbound.AccountInfo
	simulate SimulateFunc
	sent     []entity.Transaction
	failed   map[string]bool
	sendErr  error
	failNext bool
}

// NewNode creates an empty node.
func NewNode() *Node {
	return &Node{
		accounts: make(map[entity.Address]outbound.AccountInfo),
		failed:   make(map[string]bool),
	}
}

// SetAccount stores or replaces an account.
func (n *Node) SetAccount(info outbound.AccountInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	info.Data = append([]byte(nil), info.Data...)
	n.accounts[info.Address] = info
}

// SetSimulator installs the function used by SimulateBundle.
func (n *Node) SetSimulator(fn SimulateFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.simulate = fn
}

// SetSendError makes SendTransaction fail with err. Nil clears it.
func (n *Node) SetSendError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

// FailNextConfirmation makes the next sent transaction fail on confirmation.
func (n *Node) FailNextConfirmation() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext = true
}

// Sent returns the submitted transactions in order.
func (n *Node) Sent() []entity.Transaction {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]entity.Transaction(nil), n.sent...)
}

// GetMultipleAccounts returns the stored accounts, nil for unknown addresses.
func (n *Node) GetMultipleAccounts(ctx context.Context, addresses []entity.Address) ([]*outbound.AccountInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*outbound.AccountInfo, len(addresses))
	for i, a := range addresses {
		if info, ok := n.accounts[a]; ok {
			clone := info
			out[i] = &clone
		}
	}
	return out, nil
}

// GetProgramAccounts returns the accounts owned by program matching all filters.
func (n *Node) GetProgramAccounts(ctx context.Context, program entity.Address, filters ...outbound.ProgramAccountFilter) ([]*outbound.AccountInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*outbound.AccountInfo
	for _, info := range n.accounts {
		if info.Owner != program || !matches(info.Data, filters) {
			continue
		}
		clone := info
		out = append(out, &clone)
	}
	return out, nil
}

func matches(data []byte, filters []outbound.ProgramAccountFilter) bool {
	for _, f := range filters {
		if f.DataSize != 0 && uint64(len(data)) != f.DataSize {
			return false
		}
		if len(f.Bytes) == 0 {
			continue
		}
		end := f.Offset + uint64(len(f.Bytes))
		if end > uint64(len(data)) || !bytes.Equal(data[f.Offset:end], f.Bytes) {
			return false
		}
	}
	return true
}

// SimulateBundle delegates to the installed simulator.
func (n *Node) SimulateBundle(ctx context.Context, txs []entity.Transaction, readBack []entity.Address) ([][]byte, error) {
	n.mu.RLock()
	fn := n.simulate
	n.mu.RUnlock()
	if fn == nil {
		return nil, ErrNoSimulator
	}
	return fn(txs, readBack)
}

// SendTransaction records tx and returns a sequential signature.
func (n *Node) SendTransaction(ctx context.Context, tx entity.Transaction) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return "", n.sendErr
	}
	n.sent = append(n.sent, tx)
	sig := fmt.Sprintf("sig-%d", len(n.sent))
	if n.failNext {
		n.failed[sig] = true
		n.failNext = false
	}
	return sig, nil
}

// ConfirmTransaction reports whether the signature was sent and succeeded.
func (n *Node) ConfirmTransaction(ctx context.Context, signature string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.failed[signature] {
		return fmt.Errorf("%s: %w", signature, outbound.ErrTransactionFailed)
	}
	var idx int
	if _, err := fmt.Sscanf(signature, "sig-%d", &idx); err != nil || idx < 1 || idx > len(n.sent) {
		return fmt.Errorf("unknown signature %q", signature)
	}
	return nil
}
