package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/web3connect/pkg/activation"
	"github.com/sigweihq/web3connect/pkg/chains/evm/evmtest"
	"github.com/sigweihq/web3connect/pkg/chainswitch"
	"github.com/sigweihq/web3connect/pkg/config"
	"github.com/sigweihq/web3connect/pkg/connectors"
	"github.com/sigweihq/web3connect/pkg/constants"
	"github.com/sigweihq/web3connect/pkg/preference"
	"github.com/sigweihq/web3connect/pkg/transactions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recipient = "0x000000000000000000000000000000000000dEaD"

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.Config {
	return config.Config{
		Preferences: config.PreferencesConfig{Backend: preference.BackendMemory},
		Chains:      config.ChainsConfig{DefaultChain: constants.ChainMainnet},
	}
}

func newSession(t *testing.T, cfg config.Config, opts ...Option) *Session {
	t.Helper()
	s, err := New(cfg, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestConnectAndDisconnect(t *testing.T) {
	w := evmtest.NewWallet(t, 1)
	store := preference.NewMemory()
	var hooked atomic.Int32
	s := newSession(t, testConfig(),
		WithInjectedDialer(w.Dialer()),
		WithStore(store),
		WithDisconnectHook(func() { hooked.Add(1) }),
	)

	require.NoError(t, s.Connect(context.Background(), connectors.InjectedWallet))
	state := s.State()
	assert.Equal(t, activation.Connected, state.Status)
	assert.Equal(t, w.Account, state.Account)
	assert.Equal(t, constants.ChainMainnet, state.ChainID)
	assert.Equal(t, connectors.InjectedWallet, s.Current().Kind())

	id, err := store.Get(context.Background(), constants.PreferenceKey)
	require.NoError(t, err)
	assert.Equal(t, connectors.InjectedWallet.String(), id)

	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, activation.Disconnected, s.State().Status)
	assert.Nil(t, s.Current())
	assert.Equal(t, int32(1), hooked.Load())

	_, err = store.Get(context.Background(), constants.PreferenceKey)
	assert.ErrorIs(t, err, preference.ErrNotFound)
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name    string
		kind    connectors.Kind
		wantErr error
	}{
		{name: "read-only is not a wallet", kind: connectors.ReadOnlyRpc, wantErr: connectors.ErrNotSelectable},
		{name: "pairing without project id", kind: connectors.RemotePairing, wantErr: connectors.ErrMissingProjectID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, testConfig())

			err := s.Connect(context.Background(), tt.kind)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, activation.Disconnected, s.State().Status)
		})
	}
}

func TestNewRejectsInsecureRelay(t *testing.T) {
	cfg := testConfig()
	cfg.Pairing.RelayURL = "ws://relay.example.org"

	_, err := New(cfg, testLogger())
	assert.ErrorContains(t, err, "pairing relay")

	cfg.Pairing.RelayURL = "wss://relay.example.org"
	s, err := New(cfg, testLogger())
	require.NoError(t, err)
	s.Close(context.Background())
}

func TestBalance(t *testing.T) {
	w := evmtest.NewWallet(t, 1)
	w.SetBalance(w.Account, new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17)))
	s := newSession(t, testConfig(), WithInjectedDialer(w.Dialer()))

	_, ok := s.Balance()
	assert.False(t, ok)

	require.NoError(t, s.Connect(context.Background(), connectors.InjectedWallet))
	require.Eventually(t, func() bool {
		_, ok := s.Balance()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	balance, _ := s.Balance()
	assert.Equal(t, "1.5", balance.Amount)
	assert.Equal(t, "ETH", balance.Symbol)
	assert.Equal(t, w.Account, balance.Identity.Account)

	require.NoError(t, s.Disconnect(context.Background()))
	_, ok = s.Balance()
	assert.False(t, ok)
}

func TestSignAndTransfer(t *testing.T) {
	w := evmtest.NewWallet(t, 1)
	s := newSession(t, testConfig(),
		WithInjectedDialer(w.Dialer()),
		WithSubmitterOptions(transactions.WithPollInterval(time.Millisecond)),
	)

	outcome := s.SignMessage(context.Background(), "")
	assert.ErrorIs(t, outcome.Err, transactions.ErrSignerUnavailable)

	require.NoError(t, s.Connect(context.Background(), connectors.InjectedWallet))

	outcome = s.SignMessage(context.Background(), "")
	require.True(t, outcome.Success, outcome.Data)
	assert.Equal(t, constants.DefaultSignMessage, string(w.SignedMessages()[0]))

	outcome = s.TransferNative(context.Background(), recipient, "0.25")
	require.True(t, outcome.Success, outcome.Data)
	require.Len(t, w.Transfers(), 1)
	assert.Equal(t, w.Transfers()[0].Hash.Hex(), outcome.Data)
}

func TestStartRestoresPreviousConnector(t *testing.T) {
	w := evmtest.NewWallet(t, 1)
	store := preference.NewMemory()

	first := newSession(t, testConfig(), WithInjectedDialer(w.Dialer()), WithStore(store))
	require.NoError(t, first.Connect(context.Background(), connectors.InjectedWallet))
	require.NoError(t, first.Close(context.Background()))

	second := newSession(t, testConfig(), WithInjectedDialer(w.Dialer()), WithStore(store))
	require.NoError(t, second.Start(context.Background()))
	assert.Equal(t, activation.Connected, second.State().Status)
	assert.Equal(t, connectors.InjectedWallet, second.Current().Kind())
}

func TestStartForgetsUnknownPreference(t *testing.T) {
	store := preference.NewMemory()
	require.NoError(t, store.Set(context.Background(), constants.PreferenceKey, "Ledger"))

	s := newSession(t, testConfig(), WithStore(store))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, activation.Disconnected, s.State().Status)

	_, err := store.Get(context.Background(), constants.PreferenceKey)
	assert.ErrorIs(t, err, preference.ErrNotFound)
}

func TestSwitchChain(t *testing.T) {
	w := evmtest.NewWallet(t, 1)
	s := newSession(t, testConfig(), WithInjectedDialer(w.Dialer()))
	require.NoError(t, s.Connect(context.Background(), connectors.InjectedWallet))

	require.NoError(t, s.SwitchChain(context.Background(), constants.ChainPolygon))
	assert.Equal(t, constants.ChainPolygon, s.State().ChainID)
	// the wallet did not know polygon and was asked to add it
	require.Len(t, w.AddedChains(), 1)
	assert.Equal(t, constants.ChainPolygon, w.AddedChains()[0].ChainID)
}

func TestSwitchChainWithoutWalletUsesReadOnly(t *testing.T) {
	const chainID = 777
	node := evmtest.NewNode(t, chainID)
	node.SetBalance(ethcommon.HexToAddress(recipient), big.NewInt(42))

	dir := t.TempDir()
	chainFile := filepath.Join(dir, "chains.yaml")
	require.NoError(t, os.WriteFile(chainFile, []byte(fmt.Sprintf(`
chains:
  - chainId: %d
    name: Devnet
    urls: [%q]
`, chainID, node.URL)), 0o600))

	cfg := testConfig()
	cfg.Chains.File = chainFile
	s := newSession(t, cfg)
	assert.Nil(t, s.Reader())

	require.NoError(t, s.SwitchChain(context.Background(), chainID))
	assert.Equal(t, activation.Disconnected, s.State().Status)

	reader := s.Reader()
	require.NotNil(t, reader)
	got, err := reader.BalanceAt(context.Background(), ethcommon.HexToAddress(recipient), nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), got)

	assert.ErrorIs(t, s.SwitchChain(context.Background(), 999), chainswitch.ErrUnsupportedChainSwitch)
}
