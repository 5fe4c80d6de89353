// Package transactions signs messages and submits native transfers through
// the active connector, reporting every result as an Outcome.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sigweihq/web3connect/pkg/activation"
	"github.com/sigweihq/web3connect/pkg/chains/evm"
	"github.com/sigweihq/web3connect/pkg/connectors"
	"github.com/sigweihq/web3connect/pkg/constants"
)

// Outcome is the result of a submission. On success Data holds the signature
// or transaction hash; on failure it holds the reason and Err the cause.
type Outcome struct {
	ID      string
	Success bool
	Data    string
	Receipt *ethtypes.Receipt
	Err     error
}

// Connection is the view of the activation machine the submitter needs
type Connection interface {
	State() activation.State
	Current() connectors.Connector
}

// DecimalsSource resolves the native currency exponent of a chain
type DecimalsSource interface {
	NativeDecimals(chainID int64) int32
}

// Submitter runs submissions against the current connection
type Submitter struct {
	conn          Connection
	decimals      DecimalsSource
	logger        *slog.Logger
	confirmations uint64
	pollInterval  time.Duration
}

// Option configures a Submitter
type Option func(*Submitter)

// WithConfirmations overrides the confirmation depth of transfers
func WithConfirmations(n uint64) Option {
	return func(s *Submitter) {
		s.confirmations = n
	}
}

// WithPollInterval sets how often receipts are polled when the provider
// cannot push new heads
func WithPollInterval(d time.Duration) Option {
	return func(s *Submitter) {
		s.pollInterval = d
	}
}

func New(conn Connection, decimals DecimalsSource, logger *slog.Logger, opts ...Option) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Submitter{
		conn:          conn,
		decimals:      decimals,
		logger:        logger,
		confirmations: constants.RequiredConfirmations,
		pollInterval:  constants.ConfirmationPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignMessage signs text, or the default message when text is empty
func (s *Submitter) SignMessage(ctx context.Context, text string) Outcome {
	id := uuid.NewString()
	logger := s.logger.With("submission", id, "op", "signMessage")

	if text == "" {
		text = constants.DefaultSignMessage
	}

	signer, _, err := s.resolve()
	if err != nil {
		return failure(id, logger, err)
	}

	signature, err := signer.SignMessage(ctx, []byte(text))
	if err != nil {
		return failure(id, logger, nativeCallError("sign message", err))
	}

	logger.Info("message signed", "account", signer.Address().Hex())
	return Outcome{ID: id, Success: true, Data: hexutil.Encode(signature)}
}

// TransferNative sends amount (in whole native units, e.g. "0.5") to
// recipient and waits for the required confirmations
func (s *Submitter) TransferNative(ctx context.Context, recipient, amount string) Outcome {
	id := uuid.NewString()
	logger := s.logger.With("submission", id, "op", "transferNative")

	to, value, err := validateTransfer(recipient, amount)
	if err != nil {
		return failure(id, logger, err)
	}

	signer, state, err := s.resolve()
	if err != nil {
		return failure(id, logger, err)
	}
	if state.Provider == nil {
		return failure(id, logger, ErrSignerUnavailable)
	}

	decimals := constants.NativeDecimals
	if s.decimals != nil {
		decimals = s.decimals.NativeDecimals(state.ChainID)
	}
	wei, err := evm.ToBaseUnits(value, decimals)
	if err != nil {
		return failure(id, logger, fmt.Errorf("%w: %v", ErrInvalidAmount, err))
	}

	logger.Info("submitting transfer", "chainID", state.ChainID, "from", signer.Address().Hex(), "to", to.Hex(), "value", wei)
	hash, err := signer.SendTransaction(ctx, to, wei)
	if err != nil {
		return failure(id, logger, nativeCallError("send transaction", err))
	}

	logger.Debug("waiting for confirmations", "hash", hash.Hex(), "confirmations", s.confirmations)
	receipt, err := WaitForConfirmations(ctx, state.Provider, hash, s.confirmations, s.pollInterval)
	if err != nil {
		outcome := failure(id, logger, nativeCallError("wait for confirmations", err))
		outcome.Receipt = receipt
		return outcome
	}

	logger.Info("transfer confirmed", "hash", hash.Hex(), "block", receipt.BlockNumber)
	return Outcome{ID: id, Success: true, Data: hash.Hex(), Receipt: receipt}
}

// validateTransfer checks the inputs in order: recipient presence, address
// format, amount presence, zero, then any other bad amount
func validateTransfer(recipient, amount string) (common.Address, decimal.Decimal, error) {
	recipient = strings.TrimSpace(recipient)
	amount = strings.TrimSpace(amount)

	if recipient == "" {
		return common.Address{}, decimal.Decimal{}, ErrMissingRecipient
	}
	if !evm.IsAddress(recipient) {
		return common.Address{}, decimal.Decimal{}, ErrInvalidAddress
	}
	if amount == "" {
		return common.Address{}, decimal.Decimal{}, ErrMissingAmount
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return common.Address{}, decimal.Decimal{}, ErrInvalidAmount
	}
	if value.IsZero() {
		return common.Address{}, decimal.Decimal{}, ErrZeroAmount
	}
	if value.IsNegative() {
		return common.Address{}, decimal.Decimal{}, ErrInvalidAmount
	}
	return common.HexToAddress(recipient), value, nil
}

func (s *Submitter) resolve() (connectors.Signer, activation.State, error) {
	state := s.conn.State()
	conn := s.conn.Current()
	if conn == nil || state.Status != activation.Connected {
		return nil, state, ErrSignerUnavailable
	}
	signer := conn.Signer()
	if signer == nil {
		return nil, state, ErrSignerUnavailable
	}
	return signer, state, nil
}

func failure(id string, logger *slog.Logger, err error) Outcome {
	reason := err.Error()
	var nce *NativeCallError
	if errors.As(err, &nce) {
		reason = nce.Reason
	}
	logger.Warn("submission failed", "error", err)
	return Outcome{ID: id, Success: false, Data: reason, Err: err}
}
