package connectors

import (
	"testing"

	"github.com/sigweihq/web3connect/pkg/chains"
	"github.com/sigweihq/web3connect/pkg/chains/evm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConnectors() []Connector {
	return []Connector{
		NewNetwork(staticSource{}, 1, testLogger()),
		NewOtherInjected(InjectedConfig{Logger: testLogger()}),
		NewInjected(InjectedConfig{Logger: testLogger()}),
		NewPairing(PairingConfig{Logger: testLogger()}),
	}
}

func TestRegistryPriorityOrder(t *testing.T) {
	r, err := NewRegistry(testConnectors()...)
	require.NoError(t, err)

	var kinds []Kind
	for _, c := range r.Connectors() {
		kinds = append(kinds, c.Kind())
	}
	assert.Equal(t, []Kind{InjectedWallet, RemotePairing, OtherInjected, ReadOnlyRpc}, kinds)
	assert.Equal(t, ReadOnlyRpc, r.Fallback().Kind())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(NewInjected(InjectedConfig{}), NewInjected(InjectedConfig{}))
	assert.ErrorIs(t, err, ErrDuplicateConnector)
}

func TestRegistrySelect(t *testing.T) {
	r, err := NewRegistry(testConnectors()...)
	require.NoError(t, err)

	tests := []struct {
		name    string
		kind    Kind
		wantErr error
	}{
		{name: "injected", kind: InjectedWallet},
		{name: "pairing", kind: RemotePairing},
		{name: "other injected", kind: OtherInjected},
		{name: "read-only is not a wallet", kind: ReadOnlyRpc, wantErr: ErrNotSelectable},
		{name: "unknown", kind: Kind(42), wantErr: ErrUnknownConnector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := r.Select(tt.kind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, c.Kind())
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry(testConnectors()...)
	require.NoError(t, err)

	c, err := r.Lookup("OtherInjected")
	require.NoError(t, err)
	assert.Equal(t, OtherInjected, c.Kind())

	_, err = r.Lookup("ReadOnlyRpc")
	assert.ErrorIs(t, err, ErrNotSelectable)

	_, err = r.Lookup("Trezor")
	assert.ErrorIs(t, err, ErrUnknownConnector)
}

func TestRegistryWithoutFallback(t *testing.T) {
	r, err := NewRegistry(NewInjected(InjectedConfig{}))
	require.NoError(t, err)
	assert.Nil(t, r.Fallback())
}

func TestSetup(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		env := Setup(EnvironmentConfig{}, testLogger())
		assert.Nil(t, env.Provider)
		assert.IsType(t, &chains.Registry{}, env.Endpoints)
		assert.Equal(t, "Web3-Boilerplate", env.Metadata.Name)

		r, err := NewRegistry(env.Connectors(Wallets{})...)
		require.NoError(t, err)
		assert.Len(t, r.Connectors(), 4)
	})

	t.Run("health checked endpoints", func(t *testing.T) {
		env := Setup(EnvironmentConfig{HealthCheck: true, Keys: chains.Keys{InfuraKey: "k"}}, testLogger())
		require.NotNil(t, env.Provider)
		assert.IsType(t, &evm.EndpointProvider{}, env.Endpoints)
		assert.Contains(t, env.Endpoints.Endpoints(1), "https://mainnet.infura.io/v3/k")
	})
}
