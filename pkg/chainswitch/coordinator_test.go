package chainswitch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/web3connect/pkg/activation"
	"github.com/sigweihq/web3connect/pkg/chains"
	"github.com/sigweihq/web3connect/pkg/connectors"
	"github.com/sigweihq/web3connect/pkg/constants"
	"github.com/sigweihq/web3connect/pkg/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubConnector records the targets it is activated with
type stubConnector struct {
	kind    connectors.Kind
	caps    connectors.Capabilities
	err     error
	targets []connectors.Target
}

func (s *stubConnector) Kind() connectors.Kind                 { return s.kind }
func (s *stubConnector) Name() string                          { return s.kind.String() }
func (s *stubConnector) Capabilities() connectors.Capabilities { return s.caps }
func (s *stubConnector) Deactivate(context.Context) error      { return nil }
func (s *stubConnector) Close(context.Context) error           { return nil }
func (s *stubConnector) ResetState()                           {}
func (s *stubConnector) Provider() connectors.Provider         { return nil }
func (s *stubConnector) Signer() connectors.Signer             { return nil }

func (s *stubConnector) Subscribe(connectors.EventHandler) func() { return func() {} }

func (s *stubConnector) Activate(_ context.Context, target connectors.Target) (connectors.Session, error) {
	s.targets = append(s.targets, target)
	if s.err != nil {
		return connectors.Session{}, s.err
	}
	chainID := target.ChainID
	if chainID == 0 {
		chainID = 1
	}
	return connectors.Session{Accounts: []common.Address{{0x1}}, ChainID: chainID}, nil
}

func (s *stubConnector) last() connectors.Target {
	return s.targets[len(s.targets)-1]
}

var (
	injectedCaps = connectors.Capabilities{SupportsAddChain: true, NeedsFullDescriptor: true, UserSelectable: true}
	pairingCaps  = connectors.Capabilities{AcceptsRawChainID: true, SupportsDeactivate: true, UserSelectable: true}
	networkCaps  = connectors.Capabilities{AcceptsRawChainID: true}
)

func TestTarget(t *testing.T) {
	registry := chains.NewRegistry(chains.Keys{})
	c := New(registry, activation.New(nil, testLogger()), nil, testLogger())
	polygon, ok := registry.AddChainParameters(constants.ChainPolygon)
	require.True(t, ok)

	tests := []struct {
		name    string
		caps    connectors.Capabilities
		desired int64
		want    connectors.Target
	}{
		{name: "sentinel on injected", caps: injectedCaps, desired: constants.SentinelDisconnect, want: connectors.Target{}},
		{name: "sentinel on pairing", caps: pairingCaps, desired: constants.SentinelDisconnect, want: connectors.Target{}},
		{name: "sentinel on network", caps: networkCaps, desired: constants.SentinelDisconnect, want: connectors.Target{}},
		{name: "pairing takes raw id", caps: pairingCaps, desired: constants.ChainPolygon, want: connectors.ChainTarget(constants.ChainPolygon)},
		{name: "network takes raw id", caps: networkCaps, desired: constants.ChainPolygon, want: connectors.ChainTarget(constants.ChainPolygon)},
		{name: "injected gets descriptor for extended chain", caps: injectedCaps, desired: constants.ChainPolygon, want: connectors.DescriptorTarget(polygon)},
		{name: "injected gets raw id for minimal chain", caps: injectedCaps, desired: constants.ChainLocalhost, want: connectors.ChainTarget(constants.ChainLocalhost)},
		{name: "injected gets raw id for unknown chain", caps: injectedCaps, desired: 999, want: connectors.ChainTarget(999)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Target(tt.caps, tt.desired))
		})
	}
}

func TestSwitchChainConnected(t *testing.T) {
	registry := chains.NewRegistry(chains.Keys{})
	machine := activation.New(preference.NewMemory(), testLogger())
	wallet := &stubConnector{kind: connectors.InjectedWallet, caps: injectedCaps}
	fallback := &stubConnector{kind: connectors.ReadOnlyRpc, caps: networkCaps}
	c := New(registry, machine, fallback, testLogger())

	require.NoError(t, machine.Activate(context.Background(), wallet, connectors.Target{}))

	require.NoError(t, c.SwitchChain(context.Background(), constants.ChainOptimism))
	assert.True(t, wallet.last().HasDescriptor())
	assert.Equal(t, constants.ChainOptimism, machine.State().ChainID)

	// the sentinel always re-activates without a target, whatever the current chain
	require.NoError(t, c.SwitchChain(context.Background(), constants.SentinelDisconnect))
	assert.True(t, wallet.last().IsZero())

	assert.Empty(t, fallback.targets)
}

func TestSwitchChainRejected(t *testing.T) {
	machine := activation.New(preference.NewMemory(), testLogger())
	wallet := &stubConnector{kind: connectors.RemotePairing, caps: pairingCaps}
	c := New(chains.NewRegistry(chains.Keys{}), machine, nil, testLogger())

	require.NoError(t, machine.Activate(context.Background(), wallet, connectors.Target{}))
	rejection := errors.New("user rejected the request")
	wallet.err = rejection

	err := c.SwitchChain(context.Background(), constants.ChainArbitrum)
	assert.ErrorIs(t, err, ErrUnsupportedChainSwitch)
	assert.ErrorIs(t, err, rejection)

	var switchErr *SwitchError
	require.ErrorAs(t, err, &switchErr)
	assert.Equal(t, constants.ChainArbitrum, switchErr.ChainID)
	assert.Equal(t, connectors.RemotePairing, switchErr.Connector)

	// not retried, and the connection stays where it was
	assert.Len(t, wallet.targets, 2)
	assert.Equal(t, activation.Connected, machine.State().Status)
	assert.Equal(t, int64(1), machine.State().ChainID)
}

func TestSwitchChainFallback(t *testing.T) {
	machine := activation.New(preference.NewMemory(), testLogger())
	fallback := &stubConnector{kind: connectors.ReadOnlyRpc, caps: networkCaps}
	c := New(chains.NewRegistry(chains.Keys{}), machine, fallback, testLogger())

	require.NoError(t, c.SwitchChain(context.Background(), constants.ChainPolygon))
	assert.Equal(t, connectors.ChainTarget(constants.ChainPolygon), fallback.last())

	fallback.err = errors.New("unsupported chain")
	assert.ErrorIs(t, c.SwitchChain(context.Background(), 999), ErrUnsupportedChainSwitch)
}

func TestSwitchChainWithoutConnector(t *testing.T) {
	c := New(chains.NewRegistry(chains.Keys{}), activation.New(nil, testLogger()), nil, testLogger())
	assert.ErrorIs(t, c.SwitchChain(context.Background(), 1), ErrNoConnector)
}
