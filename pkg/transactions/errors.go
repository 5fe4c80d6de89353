package transactions

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sigweihq/web3connect/pkg/connectors"
)

// Validation and precondition failures. None of them reach the wallet.
var (
	ErrMissingRecipient  = errors.New("receiver address is missing")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrMissingAmount     = errors.New("amount is missing")
	ErrZeroAmount        = errors.New("amount can't be 0")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrSignerUnavailable = errors.New("no signer available from the active connector")
	ErrReverted          = errors.New("transaction reverted")
)

// NativeCallError is a failure reported by the wallet or the chain
type NativeCallError struct {
	Op     string
	Reason string
	Err    error
}

func (e *NativeCallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *NativeCallError) Unwrap() error {
	return e.Err
}

// nativeCallError picks the most specific reason: revert data, then the
// wallet's message, then the error text
func nativeCallError(op string, err error) *NativeCallError {
	reason := err.Error()

	var pe *connectors.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		reason = pe.Message
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if data, ok := de.ErrorData().(string); ok && data != "" {
			reason = data
		}
	}
	return &NativeCallError{Op: op, Reason: reason, Err: err}
}
