// Package evmtest provides in-process JSON-RPC nodes and wallets for tests.
package evmtest

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Node is a minimal EVM JSON-RPC node served over HTTP
type Node struct {
	URL string

	mu       sync.Mutex
	chainID  uint64
	head     uint64
	autoMine bool
	balances map[common.Address]*big.Int
	receipts map[common.Hash]*ethtypes.Receipt
	calls    map[string]int
}

// NewNode starts a node for chainID; it is stopped when the test ends
func NewNode(t testing.TB, chainID uint64) *Node {
	t.Helper()

	n := &Node{
		chainID:  chainID,
		head:     1,
		balances: make(map[common.Address]*big.Int),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		calls:    make(map[string]int),
	}

	server := rpc.NewServer()
	if err := server.RegisterName("eth", &nodeService{n: n}); err != nil {
		t.Fatalf("register node service: %v", err)
	}
	srv := httptest.NewServer(server)
	t.Cleanup(func() {
		srv.Close()
		server.Stop()
	})

	n.URL = srv.URL
	return n
}

// NewDeadEndpoint starts an HTTP endpoint that fails every request
func NewDeadEndpoint(t testing.TB) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "endpoint down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// SetBalance sets the native balance of an account
func (n *Node) SetBalance(account common.Address, balance *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[account] = new(big.Int).Set(balance)
}

// SetHead sets the current block number
func (n *Node) SetHead(head uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.head = head
}

// SetAutoMine makes every eth_blockNumber call advance the head by one block
func (n *Node) SetAutoMine(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.autoMine = enabled
}

// AddReceipt publishes a receipt for lookup by transaction hash
func (n *Node) AddReceipt(receipt *ethtypes.Receipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts[receipt.TxHash] = receipt
}

// Calls returns how many times an eth_ method was served
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *Node) record(method string) {
	n.calls[method]++
}

// NewReceipt builds a successful receipt mined at block
func NewReceipt(txHash common.Hash, block uint64) *ethtypes.Receipt {
	return &ethtypes.Receipt{
		Type:              ethtypes.LegacyTxType,
		Status:            ethtypes.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21000,
		GasUsed:           21000,
		Logs:              []*ethtypes.Log{},
		TxHash:            txHash,
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(block)),
		BlockNumber:       new(big.Int).SetUint64(block),
	}
}

type nodeService struct {
	n *Node
}

func (s *nodeService) ChainId() (*hexutil.Big, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("chainId")
	return (*hexutil.Big)(new(big.Int).SetUint64(s.n.chainID)), nil
}

func (s *nodeService) BlockNumber() (hexutil.Uint64, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("blockNumber")
	if s.n.autoMine {
		s.n.head++
	}
	return hexutil.Uint64(s.n.head), nil
}

func (s *nodeService) GetBalance(account common.Address, _ string) (*hexutil.Big, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("getBalance")
	balance, ok := s.n.balances[account]
	if !ok {
		balance = new(big.Int)
	}
	return (*hexutil.Big)(new(big.Int).Set(balance)), nil
}

func (s *nodeService) GetTransactionReceipt(txHash common.Hash) (*ethtypes.Receipt, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	s.n.record("getTransactionReceipt")
	return s.n.receipts[txHash], nil
}
