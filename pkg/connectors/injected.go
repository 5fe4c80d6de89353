package connectors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sigweihq/web3connect/pkg/chains/evm"
)

// Dialer opens a JSON-RPC connection to a wallet
type Dialer func(ctx context.Context) (*rpc.Client, error)

// InjectedConfig configures a wallet reachable over JSON-RPC
type InjectedConfig struct {
	Name    string
	URL     string // wallet endpoint, e.g. a local frame socket
	Dial    Dialer // overrides URL when set
	AppName string

	// Endpoints serves reads for the session chain instead of the wallet connection (OtherInjected only)
	Endpoints evm.EndpointSource

	Logger *slog.Logger
}

// Injected adapts an EIP-1193 wallet that speaks JSON-RPC
type Injected struct {
	kind Kind
	caps Capabilities
	cfg  InjectedConfig

	events emitter
	logger *slog.Logger

	mu       sync.Mutex
	client   *rpc.Client
	session  *Session
	reader   Provider
	readerID int64
	stop     func()
}

var _ Connector = (*Injected)(nil)

// NewInjected creates the primary injected wallet adapter
func NewInjected(cfg InjectedConfig) *Injected {
	if cfg.Name == "" {
		cfg.Name = "MetaMask"
	}
	return newInjected(InjectedWallet, Capabilities{
		SupportsAddChain:    true,
		NeedsFullDescriptor: true,
		UserSelectable:      true,
	}, cfg)
}

// NewOtherInjected creates the secondary injected wallet adapter.
// Unlike the primary one it can revoke its own session.
func NewOtherInjected(cfg InjectedConfig) *Injected {
	if cfg.Name == "" {
		cfg.Name = "Coinbase Wallet"
	}
	return newInjected(OtherInjected, Capabilities{
		SupportsAddChain:    true,
		SupportsDeactivate:  true,
		NeedsFullDescriptor: true,
		UserSelectable:      true,
	}, cfg)
}

func newInjected(kind Kind, caps Capabilities, cfg InjectedConfig) *Injected {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Injected{
		kind:   kind,
		caps:   caps,
		cfg:    cfg,
		logger: logger.With("connector", kind.String()),
	}
}

func (c *Injected) Kind() Kind                 { return c.kind }
func (c *Injected) Name() string               { return c.cfg.Name }
func (c *Injected) Capabilities() Capabilities { return c.caps }

func (c *Injected) Subscribe(handler EventHandler) func() {
	return c.events.Subscribe(handler)
}

// Activate requests accounts and moves the wallet to target when one is given.
// A wallet that does not know the target chain is asked to add it when the
// target carries a descriptor.
func (c *Injected) Activate(ctx context.Context, target Target) (Session, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return Session{}, err
	}

	var accounts []common.Address
	if err := client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return Session{}, providerError("eth_requestAccounts", err)
	}
	if len(accounts) == 0 {
		return Session{}, ErrNoAccounts
	}

	chainID, err := readChainID(ctx, client)
	if err != nil {
		return Session{}, err
	}

	if !target.IsZero() && target.ChainID != chainID {
		if err := c.switchChain(ctx, client, target); err != nil {
			return Session{}, err
		}
		if chainID, err = readChainID(ctx, client); err != nil {
			return Session{}, err
		}
	}

	session := Session{Accounts: accounts, ChainID: chainID}
	c.mu.Lock()
	c.session = &session
	needWatch := c.stop == nil
	c.mu.Unlock()

	if needWatch {
		c.watch(client)
	}

	c.logger.Debug("wallet activated", "chainID", chainID, "account", accounts[0].Hex())
	return copySession(session), nil
}

func (c *Injected) switchChain(ctx context.Context, client *rpc.Client, target Target) error {
	params := map[string]string{"chainId": hexutil.EncodeUint64(uint64(target.ChainID))}

	err := providerError("wallet_switchEthereumChain", client.CallContext(ctx, nil, "wallet_switchEthereumChain", params))
	if err == nil {
		return nil
	}
	if !hasCode(err, CodeUnrecognizedChain) || !target.HasDescriptor() || !c.caps.SupportsAddChain {
		return err
	}

	c.logger.Info("wallet does not know chain, requesting add", "chainID", target.ChainID)
	if err := client.CallContext(ctx, nil, "wallet_addEthereumChain", *target.AddChain); err != nil {
		return providerError("wallet_addEthereumChain", err)
	}
	return providerError("wallet_switchEthereumChain", client.CallContext(ctx, nil, "wallet_switchEthereumChain", params))
}

// Deactivate revokes the wallet permission (when supported) and drops the connection
func (c *Injected) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	var err error
	if client != nil && c.caps.SupportsDeactivate {
		revoke := map[string]interface{}{"eth_accounts": struct{}{}}
		err = providerError("wallet_revokePermissions", client.CallContext(ctx, nil, "wallet_revokePermissions", revoke))
		if err != nil {
			c.logger.Warn("failed to revoke wallet permissions", "error", err)
		}
	}

	c.teardown(true)
	return err
}

// Close drops the wallet connection
func (c *Injected) Close(context.Context) error {
	c.teardown(true)
	return nil
}

// ResetState forgets the session but keeps the connection for the next activation
func (c *Injected) ResetState() {
	c.teardown(false)
}

func (c *Injected) teardown(closeClient bool) {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.session = nil
	c.resetReaderLocked()
	var client *rpc.Client
	if closeClient {
		client = c.client
		c.client = nil
	}
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if client != nil {
		client.Close()
	}
}

// Provider reads through the configured endpoints for the session chain when
// available, otherwise through the wallet connection
func (c *Injected) Provider() Provider {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.client == nil {
		return nil
	}
	if c.reader != nil && c.readerID == c.session.ChainID {
		return c.reader
	}

	c.resetReaderLocked()
	c.readerID = c.session.ChainID
	if c.kind == OtherInjected && c.cfg.Endpoints != nil {
		if endpoints := c.cfg.Endpoints.Endpoints(c.session.ChainID); len(endpoints) > 0 {
			c.reader = evm.NewRPCClient(c.session.ChainID, endpoints, evm.WithLogger(c.logger))
			return c.reader
		}
	}
	c.reader = ethclient.NewClient(c.client)
	return c.reader
}

func (c *Injected) resetReaderLocked() {
	if rc, ok := c.reader.(*evm.RPCClient); ok {
		rc.Close()
	}
	c.reader = nil
	c.readerID = 0
}

// Signer delegates to the wallet for the first connected account
func (c *Injected) Signer() Signer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.client == nil || len(c.session.Accounts) == 0 {
		return nil
	}
	return &requestSigner{requester: c.client, account: c.session.Accounts[0]}
}

func (c *Injected) connect(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	var (
		client *rpc.Client
		err    error
	)
	switch {
	case c.cfg.Dial != nil:
		client, err = c.cfg.Dial(ctx)
	case c.cfg.URL != "":
		client, err = rpc.DialContext(ctx, c.cfg.URL)
	default:
		err = errors.New("no wallet endpoint configured")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: connect wallet: %w", c.cfg.Name, err)
	}
	c.client = client
	c.logger.Info("wallet connected", "app", c.cfg.AppName)
	return client, nil
}

// watch keeps the session in step with wallet pushes and forwards them
func (c *Injected) watch(client *rpc.Client) {
	stop := watchWallet(client, c.logger, func(event Event) {
		c.mu.Lock()
		if c.session != nil {
			switch event.Type {
			case AccountsChanged:
				c.session.Accounts = event.Accounts
			case ChainChanged:
				c.session.ChainID = event.ChainID
			}
		}
		c.mu.Unlock()
		c.events.emit(event)
	})

	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()
}

func readChainID(ctx context.Context, client Requester) (int64, error) {
	var id hexutil.Big
	if err := client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, providerError("eth_chainId", err)
	}
	return id.ToInt().Int64(), nil
}

func copySession(s Session) Session {
	return Session{Accounts: append([]common.Address(nil), s.Accounts...), ChainID: s.ChainID}
}
