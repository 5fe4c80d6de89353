package activation

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/web3connect/pkg/connectors"
	"github.com/sigweihq/web3connect/pkg/constants"
	"github.com/sigweihq/web3connect/pkg/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeProvider struct{ chainID int64 }

func (p *fakeProvider) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (p *fakeProvider) BlockNumber(context.Context) (uint64, error) { return 0, nil }
func (p *fakeProvider) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(p.chainID), nil
}
func (p *fakeProvider) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	return nil, nil
}

// fakeConnector is a scripted adapter that records its lifecycle calls
type fakeConnector struct {
	kind connectors.Kind
	caps connectors.Capabilities

	mu            sync.Mutex
	accounts      []common.Address
	chainID       int64
	activateErr   error
	deactivateErr error
	closeErr      error
	active        bool
	calls         []string
	targets       []connectors.Target
	handlers      map[int]connectors.EventHandler
	nextHandler   int
}

func newFake(kind connectors.Kind, caps connectors.Capabilities) *fakeConnector {
	return &fakeConnector{
		kind:     kind,
		caps:     caps,
		accounts: []common.Address{alice},
		chainID:  1,
		handlers: make(map[int]connectors.EventHandler),
	}
}

func (f *fakeConnector) Kind() connectors.Kind                 { return f.kind }
func (f *fakeConnector) Name() string                          { return f.kind.String() }
func (f *fakeConnector) Capabilities() connectors.Capabilities { return f.caps }
func (f *fakeConnector) Signer() connectors.Signer             { return nil }

func (f *fakeConnector) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeConnector) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeConnector) Activate(_ context.Context, target connectors.Target) (connectors.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("activate")
	f.targets = append(f.targets, target)
	if f.activateErr != nil {
		return connectors.Session{}, f.activateErr
	}
	if !target.IsZero() {
		f.chainID = target.ChainID
	}
	f.active = true
	return connectors.Session{Accounts: append([]common.Address(nil), f.accounts...), ChainID: f.chainID}, nil
}

func (f *fakeConnector) Deactivate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("deactivate")
	f.active = false
	return f.deactivateErr
}

func (f *fakeConnector) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close")
	f.active = false
	return f.closeErr
}

func (f *fakeConnector) ResetState() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reset")
	f.active = false
}

func (f *fakeConnector) Provider() connectors.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return nil
	}
	return &fakeProvider{chainID: f.chainID}
}

func (f *fakeConnector) Subscribe(handler connectors.EventHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextHandler
	f.nextHandler++
	f.handlers[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func (f *fakeConnector) emit(event connectors.Event) {
	f.mu.Lock()
	if event.Type == connectors.ChainChanged {
		f.chainID = event.ChainID
	}
	var handlers []connectors.EventHandler
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

// recorder collects every published state
type recorder struct {
	mu     sync.Mutex
	states []State
}

func record(m *Machine) *recorder {
	r := &recorder{}
	m.Subscribe(func(s State) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, s)
	})
	return r
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.states))
	for i, s := range r.states {
		out[i] = s.Status
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = nil
}

func TestActivateConnects(t *testing.T) {
	store := preference.NewMemory()
	m := New(store, testLogger())
	rec := record(m)
	conn := newFake(connectors.InjectedWallet, connectors.Capabilities{UserSelectable: true})

	require.NoError(t, m.Activate(context.Background(), conn, connectors.ChainTarget(137)))

	assert.Equal(t, []Status{Activating, Connected}, rec.statuses())
	assert.Equal(t, connectors.ChainTarget(137), rec.states[0].TargetChain)

	state := m.State()
	assert.Equal(t, Connected, state.Status)
	assert.Equal(t, alice, state.Account)
	assert.Equal(t, int64(137), state.ChainID)
	assert.NotNil(t, state.Provider)
	assert.Equal(t, uint64(1), state.ProviderID)
	assert.Same(t, conn, m.Current())

	id, err := store.Get(context.Background(), constants.PreferenceKey)
	require.NoError(t, err)
	assert.Equal(t, "InjectedWallet", id)
}

func TestActivateFailure(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fakeConnector)
		wantErr error
	}{
		{
			name:    "adapter rejects",
			setup:   func(f *fakeConnector) { f.activateErr = errors.New("user rejected") },
			wantErr: nil,
		},
		{
			name:    "no accounts",
			setup:   func(f *fakeConnector) { f.accounts = nil },
			wantErr: connectors.ErrNoAccounts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := preference.NewMemory()
			m := New(store, testLogger())
			rec := record(m)
			conn := newFake(connectors.InjectedWallet, connectors.Capabilities{})
			tt.setup(conn)

			err := m.Activate(context.Background(), conn, connectors.Target{})

			var activationErr *ActivationError
			require.ErrorAs(t, err, &activationErr)
			assert.Equal(t, connectors.InjectedWallet, activationErr.Connector)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			assert.Equal(t, []Status{Activating, ActivationFailed, Disconnected}, rec.statuses())
			assert.Error(t, rec.states[1].Reason)
			assert.Equal(t, Disconnected, m.State().Status)
			assert.Nil(t, m.Current())
			assert.Contains(t, conn.Calls(), "reset")

			_, err = store.Get(context.Background(), constants.PreferenceKey)
			assert.ErrorIs(t, err, preference.ErrNotFound)
		})
	}
}

func TestActivateReplacesPreviousConnector(t *testing.T) {
	m := New(preference.NewMemory(), testLogger())
	first := newFake(connectors.OtherInjected, connectors.Capabilities{SupportsDeactivate: true})
	second := newFake(connectors.RemotePairing, connectors.Capabilities{SupportsDeactivate: true})

	require.NoError(t, m.Activate(context.Background(), first, connectors.Target{}))

	// the first adapter must be torn down before the second reports Connected
	var sawDualConnected bool
	m.Subscribe(func(s State) {
		if s.Status == Connected && s.Connector == connectors.RemotePairing {
			sawDualConnected = !slices.Contains(first.Calls(), "deactivate")
		}
	})
	rec := record(m)

	require.NoError(t, m.Activate(context.Background(), second, connectors.Target{}))

	assert.Equal(t, []Status{Disconnected, Activating, Connected}, rec.statuses())
	assert.False(t, sawDualConnected)
	assert.Equal(t, []string{"activate", "deactivate"}, first.Calls())
	assert.Same(t, second, m.Current())

	// events from the replaced adapter are ignored
	first.emit(connectors.Event{Type: connectors.ChainChanged, ChainID: 10})
	assert.Equal(t, int64(1), m.State().ChainID)
}

func TestActivateSameConnectorReactivatesInPlace(t *testing.T) {
	m := New(preference.NewMemory(), testLogger())
	conn := newFake(connectors.InjectedWallet, connectors.Capabilities{})
	require.NoError(t, m.Activate(context.Background(), conn, connectors.Target{}))
	rec := record(m)

	require.NoError(t, m.Activate(context.Background(), conn, connectors.Target{}))
	assert.Equal(t, []Status{Activating, Connected}, rec.statuses())
	assert.Equal(t, []string{"activate", "activate"}, conn.Calls())
	assert.Equal(t, uint64(2), m.State().ProviderID)
}

func TestSwitch(t *testing.T) {
	m := New(preference.NewMemory(), testLogger())
	conn := newFake(connectors.InjectedWallet, connectors.Capabilities{})

	assert.ErrorIs(t, m.Switch(context.Background(), connectors.ChainTarget(10)), ErrNotConnected)

	require.NoError(t, m.Activate(context.Background(), conn, connectors.Target{}))
	rec := record(m)

	require.NoError(t, m.Switch(context.Background(), connectors.ChainTarget(10)))
	assert.Equal(t, []Status{Connected}, rec.statuses())
	assert.Equal(t, int64(10), m.State().ChainID)
	assert.Equal(t, uint64(2), m.State().ProviderID)

	// a rejected switch leaves everything as it was
	rec.reset()
	conn.mu.Lock()
	conn.activateErr = errors.New("switch rejected")
	conn.mu.Unlock()
	assert.Error(t, m.Switch(context.Background(), connectors.ChainTarget(137)))
	assert.Empty(t, rec.statuses())
	assert.Equal(t, Connected, m.State().Status)
	assert.Equal(t, int64(10), m.State().ChainID)
}

func TestDeactivateTeardownByCapability(t *testing.T) {
	tests := []struct {
		name      string
		caps      connectors.Capabilities
		wantCalls []string
	}{
		{name: "reset only", caps: connectors.Capabilities{}, wantCalls: []string{"activate", "reset"}},
		{name: "deactivate", caps: connectors.Capabilities{SupportsDeactivate: true}, wantCalls: []string{"activate", "deactivate"}},
		{name: "close", caps: connectors.Capabilities{SupportsClose: true}, wantCalls: []string{"activate", "close"}},
		{name: "both", caps: connectors.Capabilities{SupportsDeactivate: true, SupportsClose: true}, wantCalls: []string{"activate", "deactivate", "close"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hookCalls := 0
			m := New(preference.NewMemory(), testLogger(), WithDisconnectHook(func() { hookCalls++ }))
			conn := newFake(connectors.InjectedWallet, tt.caps)
			require.NoError(t, m.Activate(context.Background(), conn, connectors.Target{}))

			require.NoError(t, m.Deactivate(context.Background()))
			assert.Equal(t, tt.wantCalls, conn.Calls())
			assert.Equal(t, 1, hookCalls)
			assert.Equal(t, Disconnected, m.State().Status)
		})
	}
}

func TestDeactivateAlwaysDisconnects(t *testing.T) {
	store := preference.NewMemory()
	m := New(store, testLogger())
	conn := newFake(connectors.OtherInjected, connectors.Capabilities{SupportsDeactivate: true, SupportsClose: true})
	conn.deactivateErr = errors.New("native teardown failed")
	conn.closeErr = errors.New("close failed")

	require.NoError(t, m.Activate(context.Background(), conn, connectors.Target{}))

	err := m.Deactivate(context.Background())
	assert.ErrorContains(t, err, "native teardown failed")
	assert.ErrorContains(t, err, "close failed")
	assert.Equal(t, Disconnected, m.State().Status)
	assert.Nil(t, m.Current())

	_, err = store.Get(context.Background(), constants.PreferenceKey)
	assert.ErrorIs(t, err, preference.ErrNotFound)
}

func TestDeactivateWithDoneContextClearsPreference(t *testing.T) {
	store, err := preference.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	m := New(store, testLogger())
	conn := newFake(connectors.OtherInjected, connectors.Capabilities{})
	require.NoError(t, m.Activate(context.Background(), conn, connectors.Target{}))

	id, err := store.Get(context.Background(), constants.PreferenceKey)
	require.NoError(t, err)
	require.Equal(t, "OtherInjected", id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Deactivate(ctx))
	assert.Equal(t, Disconnected, m.State().Status)

	_, err = store.Get(context.Background(), constants.PreferenceKey)
	assert.ErrorIs(t, err, preference.ErrNotFound)
}

func TestSubscribersNotifiedInSubscriptionOrder(t *testing.T) {
	m := New(preference.NewMemory(), testLogger())

	var order []int
	unsubs := make([]func(), 0, 8)
	for i := range 8 {
		unsubs = append(unsubs, m.Subscribe(func(State) { order = append(order, i) }))
	}
	unsubs[3]()

	require.NoError(t, m.Activate(context.Background(), newFake(connectors.InjectedWallet, connectors.Capabilities{}), connectors.Target{}))

	want := []int{0, 1, 2, 4, 5, 6, 7}
	assert.Equal(t, append(slices.Clone(want), want...), order)
}

func TestEvents(t *testing.T) {
	m := New(preference.NewMemory(), testLogger())
	conn := newFake(connectors.InjectedWallet, connectors.Capabilities{})
	require.NoError(t, m.Activate(context.Background(), conn, connectors.Target{}))

	conn.emit(connectors.Event{Type: connectors.AccountsChanged, Accounts: []common.Address{bob}})
	state := m.State()
	assert.Equal(t, Connected, state.Status)
	assert.Equal(t, bob, state.Account)
	assert.Equal(t, uint64(1), state.ProviderID)

	conn.emit(connectors.Event{Type: connectors.ChainChanged, ChainID: 10})
	state = m.State()
	assert.Equal(t, int64(10), state.ChainID)
	assert.Equal(t, uint64(2), state.ProviderID)

	rec := record(m)
	conn.emit(connectors.Event{Type: connectors.AccountsChanged})
	assert.Equal(t, []Status{Disconnected}, rec.statuses())
	assert.Nil(t, m.Current())

	// no longer subscribed
	conn.emit(connectors.Event{Type: connectors.ChainChanged, ChainID: 137})
	assert.Equal(t, []Status{Disconnected}, rec.statuses())
}

func TestWalletDisconnectEvent(t *testing.T) {
	store := preference.NewMemory()
	m := New(store, testLogger())
	conn := newFake(connectors.RemotePairing, connectors.Capabilities{SupportsDeactivate: true})
	require.NoError(t, m.Activate(context.Background(), conn, connectors.Target{}))

	conn.emit(connectors.Event{Type: connectors.Disconnected})
	assert.Equal(t, Disconnected, m.State().Status)

	_, err := store.Get(context.Background(), constants.PreferenceKey)
	assert.ErrorIs(t, err, preference.ErrNotFound)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	conn := newFake(connectors.InjectedWallet, connectors.Capabilities{})
	lookup := func(id string) (connectors.Connector, error) {
		if id == conn.Kind().String() {
			return conn, nil
		}
		return nil, connectors.ErrUnknownConnector
	}

	t.Run("nothing persisted", func(t *testing.T) {
		m := New(preference.NewMemory(), testLogger())
		require.NoError(t, m.Restore(ctx, lookup))
		assert.Equal(t, Disconnected, m.State().Status)
	})

	t.Run("known connector", func(t *testing.T) {
		store := preference.NewMemory()
		require.NoError(t, store.Set(ctx, constants.PreferenceKey, "InjectedWallet"))
		m := New(store, testLogger())

		require.NoError(t, m.Restore(ctx, lookup))
		assert.Equal(t, Connected, m.State().Status)
	})

	t.Run("unknown connector is forgotten", func(t *testing.T) {
		store := preference.NewMemory()
		require.NoError(t, store.Set(ctx, constants.PreferenceKey, "Ledger"))
		m := New(store, testLogger())

		require.NoError(t, m.Restore(ctx, lookup))
		_, err := store.Get(ctx, constants.PreferenceKey)
		assert.ErrorIs(t, err, preference.ErrNotFound)
	})

	t.Run("failed activation keeps preference", func(t *testing.T) {
		store := preference.NewMemory()
		require.NoError(t, store.Set(ctx, constants.PreferenceKey, "InjectedWallet"))
		failing := newFake(connectors.InjectedWallet, connectors.Capabilities{})
		failing.activateErr = errors.New("locked")
		m := New(store, testLogger())

		err := m.Restore(ctx, func(string) (connectors.Connector, error) { return failing, nil })
		assert.Error(t, err)
		id, err := store.Get(ctx, constants.PreferenceKey)
		require.NoError(t, err)
		assert.Equal(t, "InjectedWallet", id)
	})
}
