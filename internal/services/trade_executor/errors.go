package trade_executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

var (
	// ErrClientNotReady is returned when there is no protocol client for the
	// active group.
	ErrClientNotReady = errors.New("protocol client not ready")

	// ErrNoActionQuote is returned when the bundle carries neither a built
	// transaction nor the quote it would be built from.
	ErrNoActionQuote = errors.New("no action quote found")

	// ErrActionNotBuilt is returned when the bundle has a quote but the loop
	// transaction was never built from it.
	ErrActionNotBuilt = errors.New("loop transaction has not been built")
)

// TransactionError is a failed submission. Message is safe to show to a
// user; Err is the underlying cause.
type TransactionError struct {
	Message    string
	Signatures []string
	Steps      []entity.Step
	Err        error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed: %s: %v", e.Message, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// known maps fragments of node and program errors to readable messages.
// Matching is case-insensitive and the first hit wins.
var known = []struct {
	fragment string
	message  string
}{
	{"insufficient funds", "Insufficient funds to complete the transaction."},
	{"insufficient lamports", "Insufficient SOL to pay for the transaction."},
	{"blockhash not found", "The transaction expired before it landed. Please try again."},
	{"block height exceeded", "The transaction expired before it landed. Please try again."},
	{"slippage", "Slippage tolerance exceeded. Try again with a higher slippage."},
	{"0x1771", "Slippage tolerance exceeded. Try again with a higher slippage."},
	{"bank paused", "The bank is paused at this time."},
	{"risk engine", "The trade would leave the account below its health requirement."},
}

// ExtractErrorMessage turns a submission error into a short message.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The transaction timed out. Check your history before retrying."
	case errors.Is(err, context.Canceled):
		return "The transaction was cancelled."
	case errors.Is(err, ErrClientNotReady):
		return "The market is still loading. Please try again."
	case errors.Is(err, ErrNoActionQuote), errors.Is(err, ErrActionNotBuilt):
		return "The transaction is still being prepared."
	}

	text := strings.ToLower(err.Error())
	for _, k := range known {
		if strings.Contains(text, k.fragment) {
			return k.message
		}
	}
	if errors.Is(err, outbound.ErrTransactionFailed) {
		return "The transaction failed on chain."
	}
	return rootMessage(err)
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
