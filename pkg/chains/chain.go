package chains

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrUnknownChain is matched by every lookup miss in the registry
var ErrUnknownChain = errors.New("unknown chain")

// UnknownChainError is returned when a chain ID has no registry entry
type UnknownChainError struct {
	ChainID int64
}

func (e *UnknownChainError) Error() string {
	return fmt.Sprintf("unknown chain: %d", e.ChainID)
}

func (e *UnknownChainError) Is(target error) bool {
	return target == ErrUnknownChain
}

// NativeCurrency describes the gas token of a chain
type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int32  `json:"decimals" yaml:"decimals"`
}

// ChainInfo is a single chain table entry.
// Entries without NativeCurrency are minimal: wallets are expected to know
// the chain already, so no add-chain prompt can be built for them.
type ChainInfo struct {
	ChainID           int64           `yaml:"chainId"`
	Name              string          `yaml:"name"`
	URLs              []string        `yaml:"urls"`       // candidate RPC URLs, usually key-bearing
	PublicURLs        []string        `yaml:"publicUrls"` // keyless URLs handed to wallets
	NativeCurrency    *NativeCurrency `yaml:"nativeCurrency"`
	BlockExplorerURLs []string        `yaml:"blockExplorerUrls"`
}

// IsExtended reports whether the entry carries enough metadata to add the chain to a wallet
func (c ChainInfo) IsExtended() bool {
	return c.NativeCurrency != nil
}

// clone returns a deep copy so callers cannot mutate registry state
func (c ChainInfo) clone() ChainInfo {
	out := c
	out.URLs = slices.Clone(c.URLs)
	out.PublicURLs = slices.Clone(c.PublicURLs)
	out.BlockExplorerURLs = slices.Clone(c.BlockExplorerURLs)
	if c.NativeCurrency != nil {
		currency := *c.NativeCurrency
		out.NativeCurrency = &currency
	}
	return out
}

// AddChainParameters is the wallet_addEthereumChain (EIP-3085) payload
type AddChainParameters struct {
	ChainID           int64
	ChainName         string
	NativeCurrency    NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}

type addChainWire struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// MarshalJSON encodes the chain ID as a 0x-prefixed hex string, as wallets expect
func (p AddChainParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(addChainWire{
		ChainID:           hexutil.EncodeUint64(uint64(p.ChainID)),
		ChainName:         p.ChainName,
		NativeCurrency:    p.NativeCurrency,
		RPCURLs:           p.RPCURLs,
		BlockExplorerURLs: p.BlockExplorerURLs,
	})
}

// UnmarshalJSON accepts the EIP-3085 wire format
func (p *AddChainParameters) UnmarshalJSON(data []byte) error {
	var wire addChainWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	id, err := hexutil.DecodeUint64(wire.ChainID)
	if err != nil {
		return fmt.Errorf("invalid chainId %q: %w", wire.ChainID, err)
	}
	*p = AddChainParameters{
		ChainID:           int64(id),
		ChainName:         wire.ChainName,
		NativeCurrency:    wire.NativeCurrency,
		RPCURLs:           wire.RPCURLs,
		BlockExplorerURLs: wire.BlockExplorerURLs,
	}
	return nil
}

// Keys holds the RPC provider credentials used to build candidate URLs.
// Any of them may be empty.
type Keys struct {
	InfuraKey  string
	AlchemyKey string
	GroveAppID string
}
