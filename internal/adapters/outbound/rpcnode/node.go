// Package rpcnode implements the Node port over a Solana JSON-RPC endpoint.
//
// Transport is go-ethereum's JSON-RPC 2.0 client, which is chain agnostic.
// Every call is rate limited and retried on transport errors; JSON-RPC error
// responses are returned as they are.
package rpcnode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/pkg/retry"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that Node implements outbound.Node
var _ outbound.Node = (*Node)(nil)

// MaxAccountsPerRequest is the getMultipleAccounts upper bound.
const MaxAccountsPerRequest = 100

// ErrSimulationFailed is returned when a bundle simulation reports a failure.
var ErrSimulationFailed = errors.New("bundle simulation failed")

// Config holds configuration for the RPC node.
type Config struct {
	// URL is the JSON-RPC endpoint.
	URL string

	// Commitment is the commitment level for reads and confirmation.
	Commitment string

	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration

	// ConfirmPollInterval is how often signature status is polled.
	ConfirmPollInterval time.Duration

	// SkipPreflight disables the node's preflight simulation on send.
	SkipPreflight bool

	RateLimit rate.Limit
	RateBurst int
	Retry     retry.Config
}

// ConfigDefaults returns sensible defaults for the RPC node.
func ConfigDefaults() Config {
	return Config{
		Commitment:          "confirmed",
		RequestTimeout:      30 * time.Second,
		ConfirmPollInterval: 500 * time.Millisecond,
		RateLimit:           rate.Limit(20),
		RateBurst:           10,
		Retry:               retry.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := ConfigDefaults()
	if c.Commitment == "" {
		c.Commitment = d.Commitment
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ConfirmPollInterval <= 0 {
		c.ConfirmPollInterval = d.ConfirmPollInterval
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialBackoff == 0 {
		c.Retry = d.Retry
	}
	return c
}

// Node is a JSON-RPC implementation of the outbound.Node port.
type Node struct {
	client  *rpc.Client
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewNode dials the endpoint. HTTP endpoints are dialed lazily by the client.
func NewNode(ctx context.Context, cfg Config, logger *slog.Logger) (*Node, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rpc URL is required")
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        cfg.RateBurst * 2,
			MaxIdleConnsPerHost: cfg.RateBurst,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	client, err := rpc.DialOptions(ctx, cfg.URL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC: %w", err)
	}

	return &Node{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logger.With("component", "rpc-node"),
	}, nil
}

// Close closes the underlying client.
func (n *Node) Close() {
	n.client.Close()
}

// call performs one rate-limited, retried JSON-RPC call.
func (n *Node) call(ctx context.Context, result any, method string, args ...any) error {
	onRetry := func(attempt int, err error, backoff time.Duration) {
		n.logger.Warn("rpc call failed, retrying", "method", method, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return retry.DoVoid(ctx, n.cfg.Retry, isRetryable, onRetry, func() error {
		if err := n.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		if err := n.client.CallContext(ctx, result, method, args...); err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		return nil
	})
}

// isRetryable retries transport failures, 429 and 5xx. JSON-RPC error
// responses are deterministic and not retried.
func isRetryable(err error) bool {
	if retry.IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	return true
}

func (n *Node) readConfig() map[string]any {
	return map[string]any{
		"encoding":   encodingBase64,
		"commitment": n.cfg.Commitment,
	}
}

// GetMultipleAccounts fetches accounts in chunks of MaxAccountsPerRequest.
func (n *Node) GetMultipleAccounts(ctx context.Context, addresses []entity.Address) ([]*outbound.AccountInfo, error) {
	out := make([]*outbound.AccountInfo, 0, len(addresses))
	for start := 0; start < len(addresses); start += MaxAccountsPerRequest {
		chunk := addresses[start:min(start+MaxAccountsPerRequest, len(addresses))]
		keys := make([]string, len(chunk))
		for i, a := range chunk {
			keys[i] = a.String()
		}

		var resp contextValue[[]*accountJSON]
		if err := n.call(ctx, &resp, "getMultipleAccounts", keys, n.readConfig()); err != nil {
			return nil, err
		}
		if len(resp.Value) != len(chunk) {
			return nil, fmt.Errorf("getMultipleAccounts: expected %d accounts, got %d", len(chunk), len(resp.Value))
		}
		for i, acc := range resp.Value {
			if acc == nil {
				out = append(out, nil)
				continue
			}
			info, err := acc.decode(chunk[i])
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// GetProgramAccounts returns the program's accounts matching all filters.
func (n *Node) GetProgramAccounts(ctx context.Context, program entity.Address, filters ...outbound.ProgramAccountFilter) ([]*outbound.AccountInfo, error) {
	cfg := n.readConfig()
	if len(filters) > 0 {
		cfg["filters"] = encodeFilters(filters)
	}

	var resp []keyedAccountJSON
	if err := n.call(ctx, &resp, "getProgramAccounts", program.String(), cfg); err != nil {
		return nil, err
	}

	out := make([]*outbound.AccountInfo, 0, len(resp))
	for _, ka := range resp {
		addr, err := entity.ParseAddress(ka.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("getProgramAccounts pubkey: %w", err)
		}
		info, err := ka.Account.decode(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func encodeFilters(filters []outbound.ProgramAccountFilter) []filterJSON {
	var out []filterJSON
	for _, f := range filters {
		if f.DataSize != 0 {
			out = append(out, filterJSON{DataSize: f.DataSize})
		}
		if len(f.Bytes) > 0 {
			out = append(out, filterJSON{Memcmp: &memcmpJSON{Offset: f.Offset, Bytes: base58.Encode(f.Bytes)}})
		}
	}
	return out
}

// SimulateBundle runs txs with simulateBundle and reads readBack after the last one.
func (n *Node) SimulateBundle(ctx context.Context, txs []entity.Transaction, readBack []entity.Address) ([][]byte, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("simulateBundle: no transactions")
	}

	encoded := make([]string, len(txs))
	pre := make([]*accountsConfigJSON, len(txs))
	post := make([]*accountsConfigJSON, len(txs))
	for i, tx := range txs {
		encoded[i] = base64.StdEncoding.EncodeToString(tx.Data)
	}
	keys := make([]string, len(readBack))
	for i, a := range readBack {
		keys[i] = a.String()
	}
	post[len(txs)-1] = &accountsConfigJSON{Addresses: keys, Encoding: encodingBase64}

	var resp contextValue[bundleResultJSON]
	err := n.call(ctx, &resp, "simulateBundle",
		map[string]any{"encodedTransactions": encoded},
		map[string]any{
			"preExecutionAccountsConfigs":  pre,
			"postExecutionAccountsConfigs": post,
			"skipSigVerify":                true,
			"replaceRecentBlockhash":       true,
		})
	if err != nil {
		return nil, err
	}

	if reason := resp.Value.failure(); reason != "" {
		logs := lastLogs(resp.Value.TransactionResults)
		return nil, fmt.Errorf("%w: %s%s", ErrSimulationFailed, reason, logs)
	}

	results := resp.Value.TransactionResults
	if len(results) != len(txs) {
		return nil, fmt.Errorf("simulateBundle: expected %d results, got %d", len(txs), len(results))
	}
	accounts := results[len(results)-1].PostExecutionAccounts

	out := make([][]byte, len(readBack))
	for i := range readBack {
		if i >= len(accounts) || accounts[i] == nil {
			continue
		}
		info, err := accounts[i].decode(readBack[i])
		if err != nil {
			return nil, err
		}
		out[i] = info.Data
	}
	return out, nil
}

func lastLogs(results []bundleTxResultJSON) string {
	for i := len(results) - 1; i >= 0; i-- {
		if len(results[i].Logs) > 0 {
			return "\n" + strings.Join(results[i].Logs, "\n")
		}
	}
	return ""
}

// SendTransaction submits a signed transaction.
func (n *Node) SendTransaction(ctx context.Context, tx entity.Transaction) (string, error) {
	var sig string
	err := n.call(ctx, &sig, "sendTransaction",
		base64.StdEncoding.EncodeToString(tx.Data),
		map[string]any{
			"encoding":            encodingBase64,
			"skipPreflight":       n.cfg.SkipPreflight,
			"preflightCommitment": n.cfg.Commitment,
		})
	if err != nil {
		return "", err
	}
	n.logger.Debug("sent transaction", "label", tx.Label, "signature", sig)
	return sig, nil
}

// ConfirmTransaction polls the signature status until it reaches the configured commitment.
func (n *Node) ConfirmTransaction(ctx context.Context, signature string) error {
	ticker := time.NewTicker(n.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		var resp contextValue[[]*signatureStatusJSON]
		err := n.call(ctx, &resp, "getSignatureStatuses", []string{signature},
			map[string]any{"searchTransactionHistory": true})
		if err != nil {
			return err
		}

		if len(resp.Value) == 1 && resp.Value[0] != nil {
			status := resp.Value[0]
			if status.failed() {
				return fmt.Errorf("%s: %w: %s", signature, outbound.ErrTransactionFailed, status.Err)
			}
			if reached(status.ConfirmationStatus, n.cfg.Commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirming %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

var commitmentRank = map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}

func reached(status, target string) bool {
	got, ok := commitmentRank[status]
	return ok && got >= commitmentRank[target]
}
