package trade_store

import (
	"errors"
	"fmt"
)

var (
	// ErrBankNotFound is returned by SetActiveBank for a bank the store does not know.
	ErrBankNotFound = errors.New("bank not found")

	// ErrSuperseded is returned when a newer operation of the same kind started
	// while this one was in flight. Its result was discarded.
	ErrSuperseded = errors.New("superseded by a newer operation")

	// ErrDisposed is returned by every mutation after Dispose.
	ErrDisposed = errors.New("store is disposed")

	// ErrNotInitialized is returned by Refresh before Init.
	ErrNotInitialized = errors.New("store is not initialized")
)

// FetchError reports a failed fetch cycle. The store keeps its previous state.
type FetchError struct {
	// Stage names the step that failed, e.g. "trade groups" or "group <address>".
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch trade state (%s): %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
