package connectors

import (
	"log/slog"

	"github.com/sigweihq/web3connect/pkg/chains"
	"github.com/sigweihq/web3connect/pkg/chains/evm"
	"github.com/sigweihq/web3connect/pkg/constants"
)

// EnvironmentConfig is everything adapters need from the outside world
type EnvironmentConfig struct {
	Keys        chains.Keys
	ProjectID   string
	Metadata    AppMetadata
	ExtraChains []chains.ChainInfo

	// DefaultChain is where the read-only connector lands without a target
	DefaultChain int64

	// HealthCheck routes reads through a health-checked endpoint provider
	HealthCheck bool
	ChainList   bool
}

// Environment is set up once, before any adapter is constructed
type Environment struct {
	Chains    *chains.Registry
	Keys      chains.Keys
	ProjectID string
	Metadata  AppMetadata

	// Endpoints is the chain registry, or Provider when health checks are enabled
	Endpoints evm.EndpointSource
	Provider  *evm.EndpointProvider

	defaultChain int64
	logger       *slog.Logger
}

// Setup builds the environment. Missing RPC keys leave public URLs in place.
func Setup(cfg EnvironmentConfig, logger *slog.Logger) *Environment {
	if logger == nil {
		logger = slog.Default()
	}

	registry := chains.NewRegistry(cfg.Keys, cfg.ExtraChains...)
	env := &Environment{
		Chains:       registry,
		Keys:         cfg.Keys,
		ProjectID:    cfg.ProjectID,
		Metadata:     cfg.Metadata,
		Endpoints:    registry,
		defaultChain: cfg.DefaultChain,
		logger:       logger,
	}
	if env.defaultChain == 0 {
		env.defaultChain = constants.ChainMainnet
	}
	if env.Metadata.Name == "" {
		env.Metadata.Name = constants.AppName
	}
	if env.Metadata.Description == "" {
		env.Metadata.Description = constants.AppDescription
	}

	if cfg.HealthCheck {
		var opts []evm.EndpointOption
		if cfg.ChainList {
			opts = append(opts, evm.WithChainList(constants.ChainListURL))
		}
		env.Provider = evm.NewEndpointProvider(registry, logger, opts...)
		env.Endpoints = env.Provider
	}

	if cfg.Keys == (chains.Keys{}) {
		logger.Warn("no RPC provider keys configured, using public endpoints")
	}
	if cfg.ProjectID == "" {
		logger.Warn("remote pairing project id not configured, pairing will be unavailable")
	}
	return env
}

// Wallets configures how the wallet adapters reach their backends
type Wallets struct {
	InjectedURL      string
	InjectedDial     Dialer
	OtherInjectedURL string
	OtherDial        Dialer
	Pairing          PairingClient
}

// Connectors constructs one adapter of every kind
func (e *Environment) Connectors(w Wallets) []Connector {
	return []Connector{
		NewInjected(InjectedConfig{
			URL:     w.InjectedURL,
			Dial:    w.InjectedDial,
			AppName: e.Metadata.Name,
			Logger:  e.logger,
		}),
		NewPairing(PairingConfig{
			ProjectID: e.ProjectID,
			Chains:    e.Chains.ChainIDs(),
			Metadata:  e.Metadata,
			Client:    w.Pairing,
			Endpoints: e.Endpoints,
			Logger:    e.logger,
		}),
		NewOtherInjected(InjectedConfig{
			URL:       w.OtherInjectedURL,
			Dial:      w.OtherDial,
			AppName:   e.Metadata.Name,
			Endpoints: e.Endpoints,
			Logger:    e.logger,
		}),
		NewNetwork(e.Endpoints, e.defaultChain, e.logger),
	}
}
