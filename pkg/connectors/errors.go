package connectors

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrUnknownConnector   = errors.New("unknown connector")
	ErrNotSelectable      = errors.New("connector is not user-selectable")
	ErrDuplicateConnector = errors.New("connector kind already registered")
	ErrNoAccounts         = errors.New("wallet returned no accounts")
	ErrMissingProjectID   = errors.New("remote pairing project id is not configured")
	ErrNoSession          = errors.New("connector has no active session")
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// ProviderError is a wallet-side rejection with its EIP-1193 code
type ProviderError struct {
	Method  string
	Code    int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s rejected (code %d): %s", e.Method, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// providerError wraps a JSON-RPC error that carries a code; other errors pass through
func providerError(method string, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &ProviderError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error(), Err: err}
	}
	return fmt.Errorf("%s: %w", method, err)
}

// hasCode reports whether err is a ProviderError with code
func hasCode(err error, code int) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}
