package connectors

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// requestProvider reads chain state through a wallet connection
type requestProvider struct {
	requester Requester
}

var _ Provider = (*requestProvider)(nil)

func (p *requestProvider) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	block := "latest"
	if blockNumber != nil {
		block = hexutil.EncodeBig(blockNumber)
	}
	var balance hexutil.Big
	if err := p.requester.CallContext(ctx, &balance, "eth_getBalance", account, block); err != nil {
		return nil, providerError("eth_getBalance", err)
	}
	return balance.ToInt(), nil
}

func (p *requestProvider) BlockNumber(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := p.requester.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return 0, providerError("eth_blockNumber", err)
	}
	return uint64(head), nil
}

func (p *requestProvider) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := p.requester.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, providerError("eth_chainId", err)
	}
	return id.ToInt(), nil
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending
func (p *requestProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	var raw json.RawMessage
	if err := p.requester.CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, providerError("eth_getTransactionReceipt", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ethereum.NotFound
	}
	var receipt ethtypes.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}
