package evm

import (
	"errors"
	"fmt"
)

// ErrNoEndpoints is returned when a chain has no RPC endpoint to try
var ErrNoEndpoints = errors.New("no RPC endpoints available")

// UnsupportedChainError is returned when a chain cannot be served.
// Chains without any usable RPC URL are reported the same way as unknown chains.
type UnsupportedChainError struct {
	ChainID int64
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("unsupported chain: %d", e.ChainID)
}

// RPCError represents an RPC-related error
type RPCError struct {
	Endpoint string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error on %s: %v", e.Endpoint, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// ChainMismatchError is returned when an endpoint serves a different chain than requested
type ChainMismatchError struct {
	Endpoint string
	Want     int64
	Got      int64
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("endpoint %s serves chain %d, expected %d", e.Endpoint, e.Got, e.Want)
}
