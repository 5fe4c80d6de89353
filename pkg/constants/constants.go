package constants

import "time"

const (
	DelayBetweenRPCCalls     = 200              // delay in milliseconds between RPC calls
	HealthCheckTimeout       = 3 * time.Second  // timeout for a single endpoint health check
	ChainListTimeout         = 30 * time.Second // timeout for the chainlist.org download
	TLSHandshakeTimeout      = 10 * time.Second // timeout for TLS handshake
	ResponseHeaderTimeout    = 20 * time.Second // timeout for response header
	ExpectContinueTimeout    = 1 * time.Second  // timeout for expect continue
	EndpointRefreshInterval  = 6 * time.Hour    // interval between background endpoint refreshes
	ConfirmationPollInterval = 2 * time.Second  // receipt poll interval when the provider cannot push new heads
	MaxResponseBodySize      = 10 * 1024 * 1024 // maximum response body size in bytes (10MB)
)

const (
	// SentinelDisconnect asks for a re-activation with no target chain
	SentinelDisconnect int64 = -1

	// RequiredConfirmations is the block depth a transfer must reach before it is reported as successful
	RequiredConfirmations uint64 = 2

	// DefaultSignMessage is signed when the caller provides an empty message
	DefaultSignMessage = "Hello Web3!"

	// NativeDecimals is the decimal exponent of every native currency in the default chain table
	NativeDecimals int32 = 18

	// PreferenceKey stores the identity of the last activated connector
	PreferenceKey = "connectorId"
)

const (
	AppName          = "Web3-Boilerplate"
	AppDescription   = "Web3 Boilerplate"
	ChainListURL     = "https://chainlist.org/rpcs.json"
	DefaultWalletURL = "ws://127.0.0.1:1248"
)

// Environment variables read without the config prefix
const (
	EnvInfuraKey       = "INFURA_KEY"
	EnvAlchemyKey      = "ALCHEMY_KEY"
	EnvGroveAppID      = "GROVE_APPID"
	EnvPairingProject  = "WALLETCONNECT_PROJECT_ID"
	EnvConfigFile      = "WEB3CONNECT_CONFIG"
	EnvPrefix          = "WEB3CONNECT"
	DefaultConfigDir   = "web3connect"
	DefaultPrefsFile   = "preferences.json"
	DefaultPrefsDBFile = "preferences.db"
)

// Chain IDs of the default chain table
const (
	ChainMainnet         int64 = 1
	ChainSepolia         int64 = 11155111
	ChainOptimism        int64 = 10
	ChainOptimismGoerli  int64 = 420
	ChainArbitrum        int64 = 42161
	ChainArbitrumSepolia int64 = 421614
	ChainPolygon         int64 = 137
	ChainPolygonMumbai   int64 = 80001
	ChainZkSync          int64 = 324
	ChainZkSyncTestnet   int64 = 280
	ChainFantom          int64 = 250
	ChainFantomTestnet   int64 = 4002
	ChainBNB             int64 = 56
	ChainBNBTestnet      int64 = 97
	ChainLocalhost       int64 = 31337
)
