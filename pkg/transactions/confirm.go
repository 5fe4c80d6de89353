package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/web3connect/pkg/connectors"
)

// headSubscriber is implemented by providers that push new heads (ethclient over websockets)
type headSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
}

// WaitForConfirmations blocks until hash is mined with at least
// confirmations blocks on top of and including its own. It wakes on new
// heads when the provider pushes them and on a timer otherwise. There is no
// timeout beyond ctx.
func WaitForConfirmations(ctx context.Context, provider connectors.Provider, hash common.Hash, confirmations uint64, pollInterval time.Duration) (*ethtypes.Receipt, error) {
	var (
		heads  chan *ethtypes.Header
		subErr <-chan error
		tick   <-chan time.Time
	)

	// the ticker only runs while there is no head subscription
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	if hs, ok := provider.(headSubscriber); ok {
		ch := make(chan *ethtypes.Header, 16)
		sub, err := hs.SubscribeNewHead(ctx, ch)
		if err == nil {
			defer sub.Unsubscribe()
			heads = ch
			subErr = sub.Err()
		}
	}
	if heads == nil {
		tick = ticker.C
	} else {
		ticker.Stop()
	}

	for {
		receipt, err := provider.TransactionReceipt(ctx, hash)
		switch {
		case errors.Is(err, ethereum.NotFound):
			// still pending
		case err != nil:
			return nil, fmt.Errorf("get receipt %s: %w", hash.Hex(), err)
		case receipt.Status == ethtypes.ReceiptStatusFailed:
			return receipt, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
		default:
			head, err := provider.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("get block number: %w", err)
			}
			mined := receipt.BlockNumber.Uint64()
			if head >= mined && head-mined+1 >= confirmations {
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-heads:
		case <-tick:
		case <-subErr:
			// the head subscription died, fall back to polling
			heads, subErr = nil, nil
			ticker.Reset(pollInterval)
			tick = ticker.C
		}
	}
}
