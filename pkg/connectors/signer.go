package connectors

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Requester issues JSON-RPC requests to a wallet. *rpc.Client satisfies it.
type Requester interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// requestSigner delegates signing to the wallet on the other end of a Requester
type requestSigner struct {
	requester Requester
	account   common.Address
}

var _ Signer = (*requestSigner)(nil)

func (s *requestSigner) Address() common.Address {
	return s.account
}

// SignMessage asks the wallet for a personal_sign signature
func (s *requestSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	var signature hexutil.Bytes
	if err := s.requester.CallContext(ctx, &signature, "personal_sign", hexutil.Bytes(message), s.account); err != nil {
		return nil, providerError("personal_sign", err)
	}
	return signature, nil
}

// SendTransaction asks the wallet to sign and publish a value transfer
func (s *requestSigner) SendTransaction(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
	tx := map[string]interface{}{
		"from":  s.account,
		"to":    to,
		"value": (*hexutil.Big)(value),
	}
	var hash common.Hash
	if err := s.requester.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return common.Hash{}, providerError("eth_sendTransaction", err)
	}
	return hash, nil
}
