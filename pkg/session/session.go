// Package session wires one connector registry, activation machine, chain
// switch coordinator, transaction submitter and balance observer together
// for the lifetime of a process.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/sigweihq/web3connect/pkg/activation"
	"github.com/sigweihq/web3connect/pkg/balance"
	"github.com/sigweihq/web3connect/pkg/chains"
	"github.com/sigweihq/web3connect/pkg/chains/evm"
	"github.com/sigweihq/web3connect/pkg/chainswitch"
	"github.com/sigweihq/web3connect/pkg/config"
	"github.com/sigweihq/web3connect/pkg/connectors"
	"github.com/sigweihq/web3connect/pkg/preference"
	"github.com/sigweihq/web3connect/pkg/transactions"
	"github.com/sigweihq/web3connect/pkg/utils"
)

type options struct {
	pairing      connectors.PairingClient
	injectedDial connectors.Dialer
	otherDial    connectors.Dialer
	store        preference.Store
	onDisconnect func()
	submitter    []transactions.Option
}

// Option configures a Session
type Option func(*options)

// WithPairingClient replaces the relay client built from the configuration
func WithPairingClient(client connectors.PairingClient) Option {
	return func(o *options) {
		o.pairing = client
	}
}

// WithInjectedDialer connects the injected wallet through dial instead of its URL
func WithInjectedDialer(dial connectors.Dialer) Option {
	return func(o *options) {
		o.injectedDial = dial
	}
}

// WithOtherInjectedDialer connects the second injected wallet through dial
func WithOtherInjectedDialer(dial connectors.Dialer) Option {
	return func(o *options) {
		o.otherDial = dial
	}
}

// WithStore replaces the configured preference store
func WithStore(store preference.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithDisconnectHook runs hook after every disconnect, e.g. to close a wallet dialog
func WithDisconnectHook(hook func()) Option {
	return func(o *options) {
		o.onDisconnect = hook
	}
}

// WithSubmitterOptions passes options to the transaction submitter
func WithSubmitterOptions(opts ...transactions.Option) Option {
	return func(o *options) {
		o.submitter = append(o.submitter, opts...)
	}
}

// Session is the entry point for applications
type Session struct {
	cfg    config.Config
	logger *slog.Logger

	env       *connectors.Environment
	registry  *connectors.Registry
	store     preference.Store
	machine   *activation.Machine
	switcher  *chainswitch.Coordinator
	submitter *transactions.Submitter
	balances  *balance.Observer

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// Balance is the native balance of the connected account
type Balance struct {
	Wei      *big.Int
	Amount   string // Wei in whole units of the native currency
	Symbol   string
	Identity balance.Identity
}

// New sets up the environment and builds every component. Nothing is
// dialled until Start or Connect.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	envCfg, err := cfg.Environment()
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	env := connectors.Setup(envCfg, logger)

	pairing := o.pairing
	if pairing == nil && cfg.Pairing.RelayURL != "" {
		if err := utils.ValidateSecureURL(cfg.Pairing.RelayURL); err != nil {
			return nil, fmt.Errorf("pairing relay: %w", err)
		}
		pairing = &connectors.RelayClient{URL: cfg.Pairing.RelayURL, Logger: logger}
	}
	registry, err := connectors.NewRegistry(env.Connectors(connectors.Wallets{
		InjectedURL:      cfg.Wallets.InjectedURL,
		InjectedDial:     o.injectedDial,
		OtherInjectedURL: cfg.Wallets.OtherInjectedURL,
		OtherDial:        o.otherDial,
		Pairing:          pairing,
	})...)
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		store, err = preference.Open(cfg.Preferences.Backend, cfg.Preferences.Path)
		if err != nil {
			return nil, fmt.Errorf("open preferences: %w", err)
		}
	}

	var machineOpts []activation.Option
	if o.onDisconnect != nil {
		machineOpts = append(machineOpts, activation.WithDisconnectHook(o.onDisconnect))
	}
	machine := activation.New(store, logger, machineOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:       cfg,
		logger:    logger,
		env:       env,
		registry:  registry,
		store:     store,
		machine:   machine,
		switcher:  chainswitch.New(env.Chains, machine, registry.Fallback(), logger),
		submitter: transactions.New(machine, env.Chains, logger, o.submitter...),
		balances:  balance.New(logger),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.unsubscribe = machine.Subscribe(func(state activation.State) {
		s.balances.Track(s.ctx, state)
	})
	return s, nil
}

// Start begins background endpoint refreshes when health checks are
// enabled, then silently reconnects the connector used last time
func (s *Session) Start(ctx context.Context) error {
	if s.env.Provider != nil && s.cfg.Chains.RefreshInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.env.Provider.Start(s.ctx, s.cfg.Chains.RefreshInterval)
		}()
	}

	if err := s.machine.Restore(ctx, s.registry.Lookup); err != nil {
		s.logger.Warn("could not restore previous connector", "error", err)
		return err
	}
	return nil
}

// Connect activates the wallet of the given kind, replacing any connected one
func (s *Session) Connect(ctx context.Context, kind connectors.Kind) error {
	conn, err := s.registry.Select(kind)
	if err != nil {
		return err
	}
	return s.machine.Activate(ctx, conn, connectors.Target{})
}

// Disconnect tears down the connected wallet and forgets it
func (s *Session) Disconnect(ctx context.Context) error {
	return s.machine.Deactivate(ctx)
}

// SwitchChain moves the connected wallet, or the read-only connection when
// no wallet is connected, to chainID. constants.SentinelDisconnect
// re-activates without a target.
func (s *Session) SwitchChain(ctx context.Context, chainID int64) error {
	return s.switcher.SwitchChain(ctx, chainID)
}

func (s *Session) SignMessage(ctx context.Context, text string) transactions.Outcome {
	return s.submitter.SignMessage(ctx, text)
}

func (s *Session) TransferNative(ctx context.Context, recipient, amount string) transactions.Outcome {
	return s.submitter.TransferNative(ctx, recipient, amount)
}

// Balance returns the last known balance of the connected account. It is
// false until the first lookup for the current account and provider completes.
func (s *Session) Balance() (Balance, bool) {
	wei, id := s.balances.Balance()
	if wei == nil {
		return Balance{}, false
	}

	chainID := s.machine.State().ChainID
	symbol, _ := s.env.Chains.NativeSymbol(chainID)
	return Balance{
		Wei:      wei,
		Amount:   evm.FormatUnits(wei, s.env.Chains.NativeDecimals(chainID)),
		Symbol:   symbol,
		Identity: id,
	}, true
}

// OnBalance sets a hook called whenever the balance is applied or cleared
func (s *Session) OnBalance(fn func(*big.Int, balance.Identity)) {
	s.balances.OnChange(fn)
}

// Reader returns the read provider of the connected wallet, or of the
// read-only connection when no wallet is connected. It is nil when neither
// is active.
func (s *Session) Reader() connectors.Provider {
	if state := s.machine.State(); state.Status == activation.Connected && state.Provider != nil {
		return state.Provider
	}
	if fallback := s.registry.Fallback(); fallback != nil {
		return fallback.Provider()
	}
	return nil
}

func (s *Session) State() activation.State {
	return s.machine.State()
}

func (s *Session) Current() connectors.Connector {
	return s.machine.Current()
}

// Subscribe registers fn for connection state changes
func (s *Session) Subscribe(fn func(activation.State)) func() {
	return s.machine.Subscribe(fn)
}

func (s *Session) Chains() *chains.Registry {
	return s.env.Chains
}

func (s *Session) Connectors() []connectors.Connector {
	return s.registry.Connectors()
}

// Close stops background work and releases every adapter's client. The
// connector preference is kept so the next Start can restore it.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.cancel()
		s.balances.Close()
		s.wg.Wait()

		for _, conn := range s.registry.Connectors() {
			if err := conn.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", conn.Kind(), err))
			}
		}
		if closer, ok := s.store.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close preferences: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
