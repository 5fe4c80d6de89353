package connectors

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/web3connect/pkg/chains"
)

// Kind identifies a wallet backend family
type Kind int

const (
	InjectedWallet Kind = iota + 1
	RemotePairing
	OtherInjected
	ReadOnlyRpc
)

var kindNames = map[Kind]string{
	InjectedWallet: "InjectedWallet",
	RemotePairing:  "RemotePairing",
	OtherInjected:  "OtherInjected",
	ReadOnlyRpc:    "ReadOnlyRpc",
}

// String returns the stable identity persisted as the connector preference
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, error) {
	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownConnector, s)
}

// Capabilities is decided once when an adapter is constructed.
// Consumers branch on these flags, never on the adapter's concrete type.
type Capabilities struct {
	SupportsAddChain    bool // wallet can be asked to add an unknown network
	SupportsDeactivate  bool // Deactivate tears down the native session
	SupportsClose       bool // Close must run after deactivation
	NeedsFullDescriptor bool // chain switches should carry add-chain parameters
	AcceptsRawChainID   bool // chain switches take a bare chain ID
	UserSelectable      bool // may be picked as the user's wallet
}

// Target is the chain an activation should land on. The zero value means no target.
type Target struct {
	ChainID  int64
	AddChain *chains.AddChainParameters
}

// ChainTarget targets a chain by raw ID
func ChainTarget(chainID int64) Target {
	return Target{ChainID: chainID}
}

// DescriptorTarget targets a chain with the parameters needed to add it
func DescriptorTarget(params chains.AddChainParameters) Target {
	return Target{ChainID: params.ChainID, AddChain: &params}
}

// IsZero reports whether no chain is targeted
func (t Target) IsZero() bool {
	return t.ChainID == 0 && t.AddChain == nil
}

// HasDescriptor reports whether the target carries add-chain parameters
func (t Target) HasDescriptor() bool {
	return t.AddChain != nil
}

func (t Target) String() string {
	switch {
	case t.IsZero():
		return "none"
	case t.HasDescriptor():
		return fmt.Sprintf("%d (descriptor)", t.ChainID)
	default:
		return fmt.Sprintf("%d", t.ChainID)
	}
}

// Session is the result of a successful activation
type Session struct {
	Accounts []common.Address
	ChainID  int64
}

// EventType classifies connector events
type EventType int

const (
	AccountsChanged EventType = iota + 1
	ChainChanged
	Disconnected
)

func (t EventType) String() string {
	switch t {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	case Disconnected:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is an asynchronous change reported by a wallet backend
type Event struct {
	Type     EventType
	Accounts []common.Address
	ChainID  int64
}

// EventHandler receives connector events
type EventHandler func(Event)

// Provider is the read surface of an active connection
type Provider interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Signer signs and submits on behalf of the connected account
type Signer interface {
	Address() common.Address
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	SendTransaction(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error)
}

// Connector is the uniform contract every wallet backend adapter satisfies.
// Each adapter owns its native session exclusively.
type Connector interface {
	// Kind returns the backend family
	Kind() Kind

	// Name returns a display name
	Name() string

	// Capabilities returns the flags fixed at construction
	Capabilities() Capabilities

	// Activate establishes or re-establishes a session, optionally on a target chain
	Activate(ctx context.Context, target Target) (Session, error)

	// Deactivate tears down the native session (only meaningful with SupportsDeactivate)
	Deactivate(ctx context.Context) error

	// Close releases the native client (only meaningful with SupportsClose)
	Close(ctx context.Context) error

	// ResetState drops adapter-local session state without talking to the backend
	ResetState()

	// Subscribe registers a handler for account and chain changes
	Subscribe(handler EventHandler) (unsubscribe func())

	// Provider returns the read surface, nil without a session
	Provider() Provider

	// Signer returns the signer, nil without a signing session
	Signer() Signer
}
