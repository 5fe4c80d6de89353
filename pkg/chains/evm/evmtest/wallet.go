package evmtest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sigweihq/web3connect/pkg/chains"
	"github.com/sigweihq/web3connect/pkg/chains/evm"
)

// GasPrice is what the wallet quotes for every transfer
var GasPrice = big.NewInt(1_000_000_000)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// Error is a JSON-RPC error with a code
type Error struct {
	Code    int
	Message string
	Data    any
}

func (e *Error) Error() string  { return e.Message }
func (e *Error) ErrorCode() int { return e.Code }
func (e *Error) ErrorData() any { return e.Data }

// Transfer is a value transfer received through eth_sendTransaction
type Transfer struct {
	Hash  common.Hash
	From  common.Address
	To    common.Address
	Value *big.Int
}

// Wallet is an in-process EIP-1193 style wallet reachable over JSON-RPC
type Wallet struct {
	Key     *ecdsa.PrivateKey
	Account common.Address

	server *rpc.Server

	mu          sync.Mutex
	chainID     uint64
	known       map[uint64]bool
	accounts    []common.Address
	rejectCode  int
	sendErr     error
	head        uint64
	receipts    map[common.Hash]*ethtypes.Receipt
	balances    map[common.Address]*big.Int
	transfers   []Transfer
	signed      [][]byte
	added       []chains.AddChainParameters
	calls       []string
	accountsSub *subscription
	chainSub    *subscription
}

type subscription struct {
	notifier *rpc.Notifier
	sub      *rpc.Subscription
}

// NewWallet starts a wallet on chainID that also knows the given chains.
// The server is stopped when the test ends.
func NewWallet(t testing.TB, chainID uint64, known ...uint64) *Wallet {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	w := &Wallet{
		Key:      key,
		Account:  evm.NewKeySigner(key, int64(chainID), nil).Address(),
		chainID:  chainID,
		known:    map[uint64]bool{chainID: true},
		head:     1,
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		balances: make(map[common.Address]*big.Int),
	}
	w.accounts = []common.Address{w.Account}
	for _, id := range known {
		w.known[id] = true
	}

	w.server = rpc.NewServer()
	for namespace, service := range map[string]any{
		"eth":      &walletEth{w: w},
		"wallet":   &walletNamespace{w: w},
		"personal": &walletPersonal{w: w},
	} {
		if err := w.server.RegisterName(namespace, service); err != nil {
			t.Fatalf("register %s: %v", namespace, err)
		}
	}
	t.Cleanup(w.server.Stop)
	return w
}

// Dialer returns a function connecting a new in-process client to the wallet
func (w *Wallet) Dialer() func(context.Context) (*rpc.Client, error) {
	return func(context.Context) (*rpc.Client, error) {
		return rpc.DialInProc(w.server), nil
	}
}

// SetAccounts changes what eth_requestAccounts returns
func (w *Wallet) SetAccounts(accounts ...common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = accounts
}

// Reject makes eth_requestAccounts fail with code (0 clears)
func (w *Wallet) Reject(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rejectCode = code
}

// FailSend makes eth_sendTransaction fail with err
func (w *Wallet) FailSend(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sendErr = err
}

// SetBalance sets the native balance of an account
func (w *Wallet) SetBalance(account common.Address, balance *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[account] = new(big.Int).Set(balance)
}

// ChainID returns the wallet's current chain
func (w *Wallet) ChainID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID
}

// Calls returns every method served, in order
func (w *Wallet) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

// Transfers returns the transfers received so far
func (w *Wallet) Transfers() []Transfer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Transfer(nil), w.transfers...)
}

// SignedMessages returns the raw payloads signed via personal_sign
func (w *Wallet) SignedMessages() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.signed...)
}

// AddedChains returns the wallet_addEthereumChain payloads received
func (w *Wallet) AddedChains() []chains.AddChainParameters {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]chains.AddChainParameters(nil), w.added...)
}

// EmitAccountsChanged pushes an accountsChanged notification to subscribers
func (w *Wallet) EmitAccountsChanged(accounts ...common.Address) error {
	w.mu.Lock()
	w.accounts = accounts
	sub := w.accountsSub
	w.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.notifier.Notify(sub.sub.ID, accounts)
}

// EmitChainChanged switches chain and pushes a chainChanged notification
func (w *Wallet) EmitChainChanged(chainID uint64) error {
	w.mu.Lock()
	w.chainID = chainID
	w.known[chainID] = true
	sub := w.chainSub
	w.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.notifier.Notify(sub.sub.ID, hexutil.Uint64(chainID))
}

func (w *Wallet) record(method string) {
	w.calls = append(w.calls, method)
}

// signer signs for the current chain; transactions land in the wallet's own
// ledger. It must be used with mu held.
func (w *Wallet) signer() *evm.KeySigner {
	return evm.NewKeySigner(w.Key, int64(w.chainID), &ledger{w: w})
}

// ledger is the transaction backend of the wallet. Its methods run with mu held.
type ledger struct {
	w *Wallet
}

func (l *ledger) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(l.w.transfers)), nil
}

func (l *ledger) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(GasPrice), nil
}

func (l *ledger) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	hash := tx.Hash()
	l.w.transfers = append(l.w.transfers, Transfer{Hash: hash, From: from, To: *tx.To(), Value: tx.Value()})
	l.w.receipts[hash] = NewReceipt(hash, l.w.head+1)
	return nil
}

type walletEth struct {
	w *Wallet
}

func (s *walletEth) RequestAccounts() ([]common.Address, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("eth_requestAccounts")
	if s.w.rejectCode != 0 {
		return nil, &Error{Code: s.w.rejectCode, Message: "User rejected the request."}
	}
	return append([]common.Address{}, s.w.accounts...), nil
}

func (s *walletEth) Accounts() ([]common.Address, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("eth_accounts")
	return append([]common.Address{}, s.w.accounts...), nil
}

func (s *walletEth) ChainId() (*hexutil.Big, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("eth_chainId")
	return (*hexutil.Big)(new(big.Int).SetUint64(s.w.chainID)), nil
}

// BlockNumber advances the head on every call so confirmations accumulate
func (s *walletEth) BlockNumber() (hexutil.Uint64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("eth_blockNumber")
	s.w.head++
	return hexutil.Uint64(s.w.head), nil
}

func (s *walletEth) GetBalance(account common.Address, _ string) (*hexutil.Big, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("eth_getBalance")
	balance, ok := s.w.balances[account]
	if !ok {
		balance = new(big.Int)
	}
	return (*hexutil.Big)(new(big.Int).Set(balance)), nil
}

func (s *walletEth) GetTransactionReceipt(txHash common.Hash) (*ethtypes.Receipt, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("eth_getTransactionReceipt")
	return s.w.receipts[txHash], nil
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

func (s *walletEth) SendTransaction(args sendTxArgs) (common.Hash, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("eth_sendTransaction")

	if s.w.sendErr != nil {
		return common.Hash{}, s.w.sendErr
	}
	if args.To == nil || args.Value == nil {
		return common.Hash{}, &Error{Code: -32602, Message: "missing to or value"}
	}
	if args.From != s.w.Account {
		return common.Hash{}, &Error{Code: CodeUserRejected, Message: "unknown account"}
	}

	return s.w.signer().SendTransaction(context.Background(), *args.To, new(big.Int).Set((*big.Int)(args.Value)))
}

func (s *walletEth) AccountsChanged(ctx context.Context) (*rpc.Subscription, error) {
	return s.w.subscribe(ctx, func(sub *subscription) { s.w.accountsSub = sub })
}

func (s *walletEth) ChainChanged(ctx context.Context) (*rpc.Subscription, error) {
	return s.w.subscribe(ctx, func(sub *subscription) { s.w.chainSub = sub })
}

func (w *Wallet) subscribe(ctx context.Context, store func(*subscription)) (*rpc.Subscription, error) {
	notifier, ok := rpc.NotifierFromContext(ctx)
	if !ok {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()

	w.mu.Lock()
	store(&subscription{notifier: notifier, sub: sub})
	w.mu.Unlock()
	return sub, nil
}

type switchChainArgs struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

type walletNamespace struct {
	w *Wallet
}

func (s *walletNamespace) SwitchEthereumChain(args switchChainArgs) error {
	s.w.mu.Lock()
	s.w.record("wallet_switchEthereumChain")
	target := uint64(args.ChainID)
	if !s.w.known[target] {
		s.w.mu.Unlock()
		return &Error{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	}
	s.w.mu.Unlock()

	return s.w.EmitChainChanged(target)
}

func (s *walletNamespace) AddEthereumChain(params chains.AddChainParameters) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("wallet_addEthereumChain")
	s.w.added = append(s.w.added, params)
	s.w.known[uint64(params.ChainID)] = true
	return nil
}

func (s *walletNamespace) RevokePermissions(_ map[string]any) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("wallet_revokePermissions")
	return nil
}

type walletPersonal struct {
	w *Wallet
}

func (s *walletPersonal) Sign(data hexutil.Bytes, account common.Address) (hexutil.Bytes, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record("personal_sign")

	if account != s.w.Account {
		return nil, &Error{Code: CodeUserRejected, Message: "unknown account"}
	}
	signature, err := s.w.signer().SignMessage(context.Background(), data)
	if err != nil {
		return nil, err
	}
	s.w.signed = append(s.w.signed, append([]byte(nil), data...))
	return signature, nil
}
