// Package activation owns the connection state and the current connector.
package activation

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/web3connect/pkg/connectors"
)

// Status is the phase of the connection
type Status int

const (
	Disconnected Status = iota
	Activating
	Connected
	ActivationFailed
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Activating:
		return "activating"
	case Connected:
		return "connected"
	case ActivationFailed:
		return "activation failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is a snapshot of the connection. Fields beyond Status are only
// meaningful in the phases that set them.
type State struct {
	Status Status

	// Connector is the adapter being activated or connected
	Connector connectors.Kind

	// TargetChain is set while Activating
	TargetChain connectors.Target

	// Set while Connected; Account is always Accounts[0]
	Account  common.Address
	Accounts []common.Address
	ChainID  int64
	Provider connectors.Provider

	// ProviderID changes whenever the read provider is replaced
	ProviderID uint64

	// Reason is set in ActivationFailed
	Reason error
}

func (s State) clone() State {
	s.Accounts = append([]common.Address(nil), s.Accounts...)
	return s
}

// ErrNotConnected is returned by operations that need a connected adapter
var ErrNotConnected = errors.New("no connected wallet")

// ActivationError is returned when an adapter fails to activate
type ActivationError struct {
	Connector connectors.Kind
	Err       error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate %s: %v", e.Connector, e.Err)
}

func (e *ActivationError) Unwrap() error {
	return e.Err
}
