package activation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/web3connect/pkg/connectors"
	"github.com/sigweihq/web3connect/pkg/constants"
	"github.com/sigweihq/web3connect/pkg/preference"
)

// Machine drives connector activation. Operations are serialized; adapter
// events are applied between them.
type Machine struct {
	store        preference.Store
	logger       *slog.Logger
	onDisconnect func()

	opMu sync.Mutex // held for a whole operation

	mu         sync.Mutex
	state      State
	current    connectors.Connector
	unsub      func()
	providerID uint64

	pubMu     sync.Mutex // keeps listener calls in publish order
	listeners []listener
	nextID    int
}

type listener struct {
	id int
	fn func(State)
}

// Option configures a Machine
type Option func(*Machine)

// WithDisconnectHook runs hook every time the machine disconnects, e.g. to
// close an open wallet picker
func WithDisconnectHook(hook func()) Option {
	return func(m *Machine) {
		m.onDisconnect = hook
	}
}

// New creates a machine in the Disconnected state
func New(store preference.Store, logger *slog.Logger, opts ...Option) *Machine {
	if store == nil {
		store = preference.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current snapshot
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Current returns the connected adapter, or nil
func (m *Machine) Current() connectors.Connector {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers fn for every state change. fn runs synchronously and
// must not call back into Activate, Switch or Deactivate.
func (m *Machine) Subscribe(fn func(State)) func() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.pubMu.Lock()
			defer m.pubMu.Unlock()
			m.listeners = slices.DeleteFunc(m.listeners, func(l listener) bool { return l.id == id })
		})
	}
}

// Activate makes conn the current adapter. Another current adapter is torn
// down first, so two sessions never coexist.
func (m *Machine) Activate(ctx context.Context, conn connectors.Connector, target connectors.Target) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	previous := m.current
	m.mu.Unlock()

	if previous != nil && previous != conn {
		m.logger.Info("replacing connector", "previous", previous.Kind(), "next", conn.Kind())
		if err := m.teardown(ctx, previous); err != nil {
			m.logger.Warn("teardown of previous connector failed", "connector", previous.Kind(), "error", err)
		}
	}

	m.mu.Lock()
	m.publishLocked(State{Status: Activating, Connector: conn.Kind(), TargetChain: target})

	m.logger.Info("activating connector", "connector", conn.Kind(), "target", target.String())
	session, err := conn.Activate(ctx, target)
	if err == nil && len(session.Accounts) == 0 {
		err = connectors.ErrNoAccounts
	}
	if err != nil {
		m.fail(conn, err)
		return &ActivationError{Connector: conn.Kind(), Err: err}
	}

	m.mu.Lock()
	if m.current != conn {
		m.stopEventsLocked()
		m.current = conn
		m.unsub = conn.Subscribe(m.eventHandler(conn))
	}
	m.providerID++
	m.publishLocked(State{
		Status:     Connected,
		Connector:  conn.Kind(),
		Account:    session.Accounts[0],
		Accounts:   session.Accounts,
		ChainID:    session.ChainID,
		Provider:   conn.Provider(),
		ProviderID: m.providerID,
	})

	if err := m.store.Set(ctx, constants.PreferenceKey, conn.Kind().String()); err != nil {
		m.logger.Warn("failed to persist connector preference", "error", err)
	}
	m.logger.Info("connector connected", "connector", conn.Kind(), "chainID", session.ChainID, "account", session.Accounts[0].Hex())
	return nil
}

// fail reports a failed activation, then settles on Disconnected
func (m *Machine) fail(conn connectors.Connector, err error) {
	m.logger.Warn("activation failed", "connector", conn.Kind(), "error", err)
	conn.ResetState()

	m.mu.Lock()
	if m.current == conn {
		m.stopEventsLocked()
		m.current = nil
	}
	m.publishLocked(State{Status: ActivationFailed, Connector: conn.Kind(), Reason: err})
	m.mu.Lock()
	m.publishLocked(State{Status: Disconnected})
}

// Switch re-activates the current adapter on target. It does not pass
// through Activating, and a rejected switch leaves the state untouched.
func (m *Machine) Switch(ctx context.Context, target connectors.Target) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	conn := m.current
	connected := m.state.Status == Connected
	m.mu.Unlock()

	if conn == nil || !connected {
		return ErrNotConnected
	}

	session, err := conn.Activate(ctx, target)
	if err != nil {
		return err
	}
	if len(session.Accounts) == 0 {
		return connectors.ErrNoAccounts
	}

	m.mu.Lock()
	if m.current != conn {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.providerID++
	m.publishLocked(State{
		Status:     Connected,
		Connector:  conn.Kind(),
		Account:    session.Accounts[0],
		Accounts:   session.Accounts,
		ChainID:    session.ChainID,
		Provider:   conn.Provider(),
		ProviderID: m.providerID,
	})
	m.logger.Info("chain switched", "connector", conn.Kind(), "chainID", session.ChainID)
	return nil
}

// Deactivate disconnects the current adapter. The machine ends Disconnected
// and the preference is cleared even when the adapter teardown fails; the
// teardown errors are returned.
func (m *Machine) Deactivate(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	conn := m.current
	m.mu.Unlock()

	return m.teardown(ctx, conn)
}

func (m *Machine) teardown(ctx context.Context, conn connectors.Connector) error {
	var errs []error

	m.mu.Lock()
	m.stopEventsLocked()
	m.current = nil
	m.mu.Unlock()

	if conn != nil {
		caps := conn.Capabilities()
		if caps.SupportsDeactivate {
			errs = append(errs, conn.Deactivate(ctx))
		}
		if caps.SupportsClose {
			errs = append(errs, conn.Close(ctx))
		}
		if !caps.SupportsDeactivate && !caps.SupportsClose {
			conn.ResetState()
		}
	}

	// the preference goes even when ctx is already done
	if err := m.store.Delete(context.WithoutCancel(ctx), constants.PreferenceKey); err != nil && !errors.Is(err, preference.ErrNotFound) {
		errs = append(errs, err)
	}
	if m.onDisconnect != nil {
		m.onDisconnect()
	}

	m.mu.Lock()
	m.publishLocked(State{Status: Disconnected})

	err := errors.Join(errs...)
	if conn != nil {
		m.logger.Info("connector disconnected", "connector", conn.Kind(), "error", err)
	}
	return err
}

// Restore silently re-activates the connector persisted by a previous
// session. An identity that no longer resolves is forgotten; a failed
// activation keeps it for the next start.
func (m *Machine) Restore(ctx context.Context, lookup func(string) (connectors.Connector, error)) error {
	id, err := m.store.Get(ctx, constants.PreferenceKey)
	if errors.Is(err, preference.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	conn, err := lookup(id)
	if err != nil {
		m.logger.Warn("forgetting unknown connector preference", "connector", id, "error", err)
		return m.store.Delete(ctx, constants.PreferenceKey)
	}

	m.logger.Info("restoring connector", "connector", id)
	return m.Activate(ctx, conn, connectors.Target{})
}

func (m *Machine) eventHandler(conn connectors.Connector) connectors.EventHandler {
	return func(event connectors.Event) {
		m.mu.Lock()
		if m.current != conn || m.state.Status != Connected {
			m.mu.Unlock()
			return
		}

		next := m.state.clone()
		switch event.Type {
		case connectors.AccountsChanged:
			if len(event.Accounts) == 0 {
				m.dropLocked(conn, "wallet reported no accounts")
				return
			}
			next.Accounts = append([]common.Address(nil), event.Accounts...)
			next.Account = event.Accounts[0]
		case connectors.ChainChanged:
			m.providerID++
			next.ChainID = event.ChainID
			next.Provider = conn.Provider()
			next.ProviderID = m.providerID
		case connectors.Disconnected:
			m.dropLocked(conn, "wallet disconnected")
			return
		default:
			m.mu.Unlock()
			return
		}

		m.logger.Debug("connector event", "connector", conn.Kind(), "event", event.Type)
		m.publishLocked(next)
	}
}

// dropLocked handles a session ended by the wallet itself
func (m *Machine) dropLocked(conn connectors.Connector, reason string) {
	m.stopEventsLocked()
	m.current = nil
	m.publishLocked(State{Status: Disconnected})

	m.logger.Info(reason, "connector", conn.Kind())
	conn.ResetState()
	if err := m.store.Delete(context.Background(), constants.PreferenceKey); err != nil && !errors.Is(err, preference.ErrNotFound) {
		m.logger.Warn("failed to clear connector preference", "error", err)
	}
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
}

func (m *Machine) stopEventsLocked() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// publishLocked stores s and notifies listeners in subscription order. It
// must be called with mu held and releases it.
func (m *Machine) publishLocked(s State) {
	m.state = s.clone()
	snapshot := s.clone()

	m.pubMu.Lock()
	m.mu.Unlock()
	defer m.pubMu.Unlock()

	for _, l := range m.listeners {
		l.fn(snapshot)
	}
}
