// Package chainswitch decides how a chain change is requested from the
// current connector.
package chainswitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sigweihq/web3connect/pkg/activation"
	"github.com/sigweihq/web3connect/pkg/chains"
	"github.com/sigweihq/web3connect/pkg/connectors"
	"github.com/sigweihq/web3connect/pkg/constants"
)

var (
	// ErrUnsupportedChainSwitch matches every rejected switch
	ErrUnsupportedChainSwitch = errors.New("chain switch rejected")

	// ErrNoConnector is returned when neither a wallet nor a fallback is available
	ErrNoConnector = errors.New("no connector available for chain switch")
)

// SwitchError wraps the rejection of a chain switch
type SwitchError struct {
	ChainID   int64
	Connector connectors.Kind
	Err       error
}

func (e *SwitchError) Error() string {
	return fmt.Sprintf("switch %s to chain %d: %v", e.Connector, e.ChainID, e.Err)
}

func (e *SwitchError) Unwrap() error {
	return e.Err
}

func (e *SwitchError) Is(target error) bool {
	return target == ErrUnsupportedChainSwitch
}

// Machine is the part of the activation machine the coordinator drives
type Machine interface {
	State() activation.State
	Current() connectors.Connector
	Switch(ctx context.Context, target connectors.Target) error
}

// ChainSource resolves add-chain parameters for extended chains
type ChainSource interface {
	AddChainParameters(chainID int64) (chains.AddChainParameters, bool)
}

// Coordinator routes chain switches to the connected wallet, or to the
// read-only fallback when no wallet is connected
type Coordinator struct {
	chains   ChainSource
	machine  Machine
	fallback connectors.Connector
	logger   *slog.Logger
}

func New(chains ChainSource, machine Machine, fallback connectors.Connector, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{chains: chains, machine: machine, fallback: fallback, logger: logger}
}

// Target builds the activation target for desired on an adapter with caps.
// The disconnect sentinel means no target; adapters that negotiate chains
// themselves get the raw id; everyone else gets the add-chain descriptor when
// the registry has one.
func (c *Coordinator) Target(caps connectors.Capabilities, desired int64) connectors.Target {
	if desired == constants.SentinelDisconnect {
		return connectors.Target{}
	}
	if caps.AcceptsRawChainID {
		return connectors.ChainTarget(desired)
	}
	if params, ok := c.chains.AddChainParameters(desired); ok {
		return connectors.DescriptorTarget(params)
	}
	return connectors.ChainTarget(desired)
}

// SwitchChain moves the connection to desired. Rejections are returned as
// *SwitchError and never retried.
func (c *Coordinator) SwitchChain(ctx context.Context, desired int64) error {
	conn := c.machine.Current()
	if conn != nil && c.machine.State().Status == activation.Connected {
		target := c.Target(conn.Capabilities(), desired)
		c.logger.Info("switching chain", "connector", conn.Kind(), "target", target.String())
		if err := c.machine.Switch(ctx, target); err != nil {
			return &SwitchError{ChainID: desired, Connector: conn.Kind(), Err: err}
		}
		return nil
	}

	if c.fallback == nil {
		return ErrNoConnector
	}
	target := c.Target(c.fallback.Capabilities(), desired)
	c.logger.Info("switching read-only chain", "target", target.String())
	if _, err := c.fallback.Activate(ctx, target); err != nil {
		return &SwitchError{ChainID: desired, Connector: c.fallback.Kind(), Err: err}
	}
	return nil
}
