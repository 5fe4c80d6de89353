package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

// TransactionBackend is the node surface KeySigner needs to publish a transfer
type TransactionBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// KeySigner signs with a local private key. It backs the in-process
// development wallet; real wallets sign on their own side of the connection.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	backend TransactionBackend
}

// NewKeySigner creates a signer for chainID. backend may be nil when only
// message signing is needed.
func NewKeySigner(key *ecdsa.PrivateKey, chainID int64, backend TransactionBackend) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		backend: backend,
	}
}

// Address returns the signer's account
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignMessage produces a personal_sign (EIP-191) signature with v in {27, 28}
func (s *KeySigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	signature, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	// Convert v from recovery id to ethereum format (27/28)
	signature[crypto.RecoveryIDOffset] += 27
	return signature, nil
}

// SendTransaction signs and publishes a plain value transfer
func (s *KeySigner) SendTransaction(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
	if s.backend == nil {
		return common.Hash{}, errors.New("key signer has no transaction backend")
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// RecoverAddress returns the account that produced a personal_sign signature over message
func RecoverAddress(message, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
