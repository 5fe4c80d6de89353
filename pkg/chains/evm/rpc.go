package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/web3connect/pkg/constants"
)

// RPCClient is a read-only EVM client with failover across an endpoint list
type RPCClient struct {
	chainID   int64
	endpoints []string
	delay     time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// RPCOption configures an RPCClient
type RPCOption func(*RPCClient)

// WithLogger sets the logger used for failover diagnostics
func WithLogger(logger *slog.Logger) RPCOption {
	return func(r *RPCClient) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRetryDelay sets the base delay between endpoint attempts
func WithRetryDelay(delay time.Duration) RPCOption {
	return func(r *RPCClient) {
		r.delay = delay
	}
}

// NewRPCClient creates a new EVM RPC client
func NewRPCClient(chainID int64, endpoints []string, opts ...RPCOption) *RPCClient {
	r := &RPCClient{
		chainID:   chainID,
		endpoints: append([]string(nil), endpoints...),
		delay:     constants.DelayBetweenRPCCalls * time.Millisecond,
		logger:    slog.Default(),
		clients:   make(map[string]*ethclient.Client),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Chain returns the chain ID this client was created for
func (r *RPCClient) Chain() int64 {
	return r.chainID
}

// Endpoints returns the endpoint list in configured order
func (r *RPCClient) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

// BalanceAt returns the native balance of account at the given block (nil = latest)
func (r *RPCClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := r.do(ctx, "balance", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		balance, err = c.BalanceAt(ctx, account, blockNumber)
		return err
	})
	return balance, err
}

// BlockNumber returns the most recent block number
func (r *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := r.do(ctx, "blockNumber", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		number, err = c.BlockNumber(ctx)
		return err
	})
	return number, err
}

// ChainID returns the chain ID reported by the endpoint
func (r *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := r.do(ctx, "chainId", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		id, err = c.ChainID(ctx)
		return err
	})
	return id, err
}

// TransactionReceipt returns the receipt of a mined transaction.
// ethereum.NotFound is returned while the transaction is pending.
func (r *RPCClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	var receipt *ethtypes.Receipt
	err := r.do(ctx, "receipt", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		receipt, err = patchedTransactionReceipt(ctx, c, txHash)
		return err
	})
	return receipt, err
}

// VerifyChain checks that at least one endpoint answers and serves the expected chain
func (r *RPCClient) VerifyChain(ctx context.Context) error {
	id, err := r.ChainID(ctx)
	if err != nil {
		return err
	}
	if id.Int64() != r.chainID {
		return &ChainMismatchError{Endpoint: r.endpoints[0], Want: r.chainID, Got: id.Int64()}
	}
	return nil
}

// Close releases all dialled connections
func (r *RPCClient) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for endpoint, client := range r.clients {
		client.Close()
		delete(r.clients, endpoint)
	}
}

// do runs fn against the endpoints until one succeeds.
// Uses random start position for load balancing across RPC endpoints.
func (r *RPCClient) do(ctx context.Context, op string, fn func(context.Context, *ethclient.Client) error) error {
	if len(r.endpoints) == 0 {
		return fmt.Errorf("chain %d: %w", r.chainID, ErrNoEndpoints)
	}

	startIdx := rand.Intn(len(r.endpoints))
	var lastErr error

	for i := 0; i < len(r.endpoints); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * r.delay):
			}
		}

		// Wrap around using modulo for round-robin
		endpoint := r.endpoints[(startIdx+i)%len(r.endpoints)]

		client, err := r.client(ctx, endpoint)
		if err != nil {
			lastErr = &RPCError{Endpoint: endpoint, Err: err}
			continue
		}

		err = fn(ctx, client)
		if err == nil || errors.Is(err, ethereum.NotFound) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = &RPCError{Endpoint: endpoint, Err: err}
		r.logger.Debug("rpc call failed, trying next endpoint",
			"chainID", r.chainID,
			"endpoint", endpoint,
			"op", op,
			"error", err)
		r.drop(endpoint)
	}

	return fmt.Errorf("all RPC endpoints failed for chain %d: %w", r.chainID, lastErr)
}

func (r *RPCClient) client(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[endpoint]; ok {
		return c, nil
	}
	c, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	r.clients[endpoint] = c
	return c, nil
}

func (r *RPCClient) drop(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[endpoint]; ok {
		c.Close()
		delete(r.clients, endpoint)
	}
}

// patchedTransactionReceipt gets a transaction receipt, tolerating the
// non-standard blockTimestamp field some L2 nodes put on receipt logs
func patchedTransactionReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*ethtypes.Receipt, error) {
	var raw json.RawMessage
	err := client.Client().CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ethereum.NotFound
	}

	cleaned, err := stripBlockTimestampFromLogs(raw)
	if err != nil {
		return nil, err
	}

	var receipt ethtypes.Receipt
	if err := json.Unmarshal(cleaned, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// stripBlockTimestampFromLogs removes the blockTimestamp field from transaction logs
func stripBlockTimestampFromLogs(raw json.RawMessage) ([]byte, error) {
	var receiptMap map[string]interface{}
	if err := json.Unmarshal(raw, &receiptMap); err != nil {
		return nil, err
	}

	logs, ok := receiptMap["logs"].([]interface{})
	if ok {
		for _, log := range logs {
			logMap, ok := log.(map[string]interface{})
			if ok {
				delete(logMap, "blockTimestamp")
			}
		}
	}

	return json.Marshal(receiptMap)
}
