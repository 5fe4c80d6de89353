package connectors

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sigweihq/web3connect/pkg/chains/evm"
)

var _ Provider = (*evm.RPCClient)(nil)

// Network is the read-only RPC fallback. It never signs and is never offered
// as a user wallet.
type Network struct {
	source       evm.EndpointSource
	defaultChain int64
	events       emitter
	logger       *slog.Logger

	mu     sync.Mutex
	client *evm.RPCClient
}

var _ Connector = (*Network)(nil)

// NewNetwork creates the read-only adapter over the endpoints of source
func NewNetwork(source evm.EndpointSource, defaultChain int64, logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.Default()
	}
	return &Network{
		source:       source,
		defaultChain: defaultChain,
		logger:       logger.With("connector", ReadOnlyRpc.String()),
	}
}

func (n *Network) Kind() Kind   { return ReadOnlyRpc }
func (n *Network) Name() string { return "Network" }

func (n *Network) Capabilities() Capabilities {
	return Capabilities{AcceptsRawChainID: true}
}

func (n *Network) Subscribe(handler EventHandler) func() {
	return n.events.Subscribe(handler)
}

// Activate connects to target's chain, or the default chain without a target.
// Chains without endpoints are unsupported.
func (n *Network) Activate(ctx context.Context, target Target) (Session, error) {
	chainID := target.ChainID
	if chainID == 0 {
		chainID = n.defaultChain
	}

	endpoints := n.source.Endpoints(chainID)
	if len(endpoints) == 0 {
		return Session{}, &evm.UnsupportedChainError{ChainID: chainID}
	}

	client := evm.NewRPCClient(chainID, endpoints, evm.WithLogger(n.logger))
	if err := client.VerifyChain(ctx); err != nil {
		client.Close()
		return Session{}, err
	}

	n.mu.Lock()
	previous := n.client
	n.client = client
	n.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	n.logger.Debug("network connected", "chainID", chainID, "endpoints", len(endpoints))
	return Session{ChainID: chainID}, nil
}

func (n *Network) Deactivate(context.Context) error {
	n.ResetState()
	return nil
}

func (n *Network) Close(context.Context) error {
	n.ResetState()
	return nil
}

func (n *Network) ResetState() {
	n.mu.Lock()
	client := n.client
	n.client = nil
	n.mu.Unlock()

	if client != nil {
		client.Close()
	}
}

func (n *Network) Provider() Provider {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client == nil {
		return nil
	}
	return n.client
}

// Signer is always nil, the network connector cannot sign
func (n *Network) Signer() Signer {
	return nil
}
