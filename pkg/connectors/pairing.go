package connectors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/sigweihq/web3connect/pkg/chains/evm"
)

// AppMetadata describes the application to the remote wallet
type AppMetadata struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	URL         string   `mapstructure:"url"`
	Icons       []string `mapstructure:"icons"`
}

// PairingRequest is what a pairing client needs to propose a session
type PairingRequest struct {
	ID             string
	ProjectID      string
	RequiredChains []int64
	OptionalChains []int64
	Metadata       AppMetadata
}

// PairingSession is a live session with a remote wallet
type PairingSession interface {
	Requester
	Accounts() []common.Address
	ChainID() int64
	SwitchChain(ctx context.Context, chainID int64) error
	// Disconnect revokes the session on the wallet and releases the transport
	Disconnect(ctx context.Context) error
	// Close releases the transport without telling the wallet
	Close() error
}

// PairingClient establishes sessions with remote wallets
type PairingClient interface {
	Connect(ctx context.Context, req PairingRequest) (PairingSession, error)
}

// eventSource is implemented by sessions that push account and chain changes
type eventSource interface {
	Subscribe(handler EventHandler) func()
}

// PairingConfig configures the remote pairing adapter
type PairingConfig struct {
	ProjectID string
	Chains    []int64 // first is required, the rest optional
	Metadata  AppMetadata
	Client    PairingClient

	// Endpoints serves reads for the session chain; reads go through the session otherwise
	Endpoints evm.EndpointSource

	Logger *slog.Logger
}

// Pairing adapts a remote wallet reached through a pairing protocol.
// Chain descriptors are negotiated by the protocol, so switches take raw IDs.
type Pairing struct {
	cfg    PairingConfig
	events emitter
	logger *slog.Logger

	mu       sync.Mutex
	session  PairingSession
	unsub    func()
	reader   Provider
	readerID int64
}

var _ Connector = (*Pairing)(nil)

// NewPairing creates the remote pairing adapter. A missing project ID is
// reported when the adapter is activated, not here.
func NewPairing(cfg PairingConfig) *Pairing {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pairing{cfg: cfg, logger: logger.With("connector", RemotePairing.String())}
}

func (p *Pairing) Kind() Kind   { return RemotePairing }
func (p *Pairing) Name() string { return "WalletConnect" }

func (p *Pairing) Capabilities() Capabilities {
	return Capabilities{
		SupportsDeactivate: true,
		AcceptsRawChainID:  true,
		UserSelectable:     true,
	}
}

func (p *Pairing) Subscribe(handler EventHandler) func() {
	return p.events.Subscribe(handler)
}

// Activate pairs when there is no session yet and moves the session to target
func (p *Pairing) Activate(ctx context.Context, target Target) (Session, error) {
	if p.cfg.ProjectID == "" {
		return Session{}, ErrMissingProjectID
	}
	if p.cfg.Client == nil {
		return Session{}, errors.New("remote pairing client is not configured")
	}

	session, fresh, err := p.pair(ctx)
	if err != nil {
		return Session{}, err
	}

	result, err := p.settle(ctx, session, target)
	if err != nil && fresh {
		// a session paired by this call does not outlive it
		if derr := p.Deactivate(ctx); derr != nil {
			p.logger.Warn("failed to end unused pairing session", "error", derr)
		}
	}
	return result, err
}

func (p *Pairing) settle(ctx context.Context, session PairingSession, target Target) (Session, error) {
	if !target.IsZero() && target.ChainID != session.ChainID() {
		if err := session.SwitchChain(ctx, target.ChainID); err != nil {
			return Session{}, err
		}
	}

	accounts := session.Accounts()
	if len(accounts) == 0 {
		return Session{}, ErrNoAccounts
	}
	return copySession(Session{Accounts: accounts, ChainID: session.ChainID()}), nil
}

// pair returns the live session, proposing a new one when there is none.
// fresh reports whether the session was created by this call.
func (p *Pairing) pair(ctx context.Context) (session PairingSession, fresh bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return p.session, false, nil
	}

	req := PairingRequest{
		ID:        uuid.NewString(),
		ProjectID: p.cfg.ProjectID,
		Metadata:  p.cfg.Metadata,
	}
	if len(p.cfg.Chains) > 0 {
		req.RequiredChains = p.cfg.Chains[:1]
		req.OptionalChains = p.cfg.Chains[1:]
	}

	p.logger.Info("proposing pairing session", "requestID", req.ID, "requiredChains", req.RequiredChains)
	session, err = p.cfg.Client.Connect(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("pairing: %w", err)
	}

	p.session = session
	if source, ok := session.(eventSource); ok {
		p.unsub = source.Subscribe(p.events.emit)
	}
	return session, true, nil
}

// Deactivate ends the remote session
func (p *Pairing) Deactivate(ctx context.Context) error {
	session := p.forget()
	if session == nil {
		return nil
	}
	if err := session.Disconnect(ctx); err != nil {
		return fmt.Errorf("pairing: disconnect: %w", err)
	}
	return nil
}

func (p *Pairing) Close(ctx context.Context) error {
	return p.Deactivate(ctx)
}

// ResetState forgets the session without notifying the remote wallet
func (p *Pairing) ResetState() {
	session := p.forget()
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		p.logger.Warn("failed to release pairing session", "error", err)
	}
}

func (p *Pairing) forget() PairingSession {
	p.mu.Lock()
	defer p.mu.Unlock()

	session := p.session
	p.session = nil
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	if rc, ok := p.reader.(*evm.RPCClient); ok {
		rc.Close()
	}
	p.reader = nil
	p.readerID = 0
	return session
}

func (p *Pairing) Provider() Provider {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}
	chainID := p.session.ChainID()
	if p.reader != nil && p.readerID == chainID {
		return p.reader
	}
	if rc, ok := p.reader.(*evm.RPCClient); ok {
		rc.Close()
	}

	p.readerID = chainID
	if p.cfg.Endpoints != nil {
		if endpoints := p.cfg.Endpoints.Endpoints(chainID); len(endpoints) > 0 {
			p.reader = evm.NewRPCClient(chainID, endpoints, evm.WithLogger(p.logger))
			return p.reader
		}
	}
	p.reader = &requestProvider{requester: p.session}
	return p.reader
}

func (p *Pairing) Signer() Signer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}
	accounts := p.session.Accounts()
	if len(accounts) == 0 {
		return nil
	}
	return &requestSigner{requester: p.session, account: accounts[0]}
}

// RelayClient pairs with a wallet that exposes JSON-RPC through a relay endpoint
type RelayClient struct {
	URL    string
	Dial   func(ctx context.Context, req PairingRequest) (*rpc.Client, error) // overrides URL when set
	Logger *slog.Logger
}

var _ PairingClient = (*RelayClient)(nil)

// Connect dials the relay, requests accounts and moves the wallet onto a
// requested chain when it sits on an unrequested one
func (c *RelayClient) Connect(ctx context.Context, req PairingRequest) (PairingSession, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		client *rpc.Client
		err    error
	)
	switch {
	case c.Dial != nil:
		client, err = c.Dial(ctx, req)
	case c.URL != "":
		client, err = rpc.DialOptions(ctx, c.URL,
			rpc.WithHeader("X-Project-Id", req.ProjectID),
			rpc.WithHeader("X-Session-Id", req.ID),
			rpc.WithHeader("X-App-Name", req.Metadata.Name),
		)
	default:
		err = errors.New("no relay endpoint configured")
	}
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	s := &relaySession{client: client}
	if err := s.refresh(ctx); err != nil {
		client.Close()
		return nil, err
	}

	requested := append(slices.Clone(req.RequiredChains), req.OptionalChains...)
	if len(requested) > 0 && !slices.Contains(requested, s.ChainID()) {
		if err := s.SwitchChain(ctx, requested[0]); err != nil {
			client.Close()
			return nil, err
		}
	}

	s.stop = watchWallet(client, logger, s.handle)
	return s, nil
}

type relaySession struct {
	client    *rpc.Client
	events    emitter
	stop      func()
	closeOnce sync.Once

	mu       sync.Mutex
	accounts []common.Address
	chainID  int64
}

func (s *relaySession) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return s.client.CallContext(ctx, result, method, args...)
}

func (s *relaySession) Accounts() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.accounts)
}

func (s *relaySession) ChainID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainID
}

func (s *relaySession) Subscribe(handler EventHandler) func() {
	return s.events.Subscribe(handler)
}

func (s *relaySession) refresh(ctx context.Context) error {
	var accounts []common.Address
	if err := s.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return providerError("eth_requestAccounts", err)
	}
	chainID, err := readChainID(ctx, s.client)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.accounts = accounts
	s.chainID = chainID
	s.mu.Unlock()
	return nil
}

func (s *relaySession) SwitchChain(ctx context.Context, chainID int64) error {
	params := map[string]string{"chainId": hexutil.EncodeUint64(uint64(chainID))}
	if err := s.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params); err != nil {
		return providerError("wallet_switchEthereumChain", err)
	}
	id, err := readChainID(ctx, s.client)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.chainID = id
	s.mu.Unlock()
	return nil
}

func (s *relaySession) Disconnect(ctx context.Context) error {
	revoke := map[string]interface{}{"eth_accounts": struct{}{}}
	err := providerError("wallet_revokePermissions", s.client.CallContext(ctx, nil, "wallet_revokePermissions", revoke))
	s.Close()
	return err
}

func (s *relaySession) Close() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.client.Close()
	})
	return nil
}

func (s *relaySession) handle(event Event) {
	s.mu.Lock()
	switch event.Type {
	case AccountsChanged:
		s.accounts = event.Accounts
	case ChainChanged:
		s.chainID = event.ChainID
	}
	s.mu.Unlock()
	s.events.emit(event)
}
