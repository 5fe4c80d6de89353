// Package balance keeps the native balance of the connected account current.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/web3connect/pkg/activation"
)

// ErrSuperseded is returned when the identity a lookup was started for is no
// longer current
var ErrSuperseded = errors.New("balance lookup superseded")

// Identity is the pair a balance belongs to. A new provider or a new account
// makes any earlier balance stale.
type Identity struct {
	ProviderID uint64
	Account    common.Address
}

func (i Identity) String() string {
	return fmt.Sprintf("%s@%d", i.Account.Hex(), i.ProviderID)
}

// Reader fetches balances
type Reader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Observer holds the balance for the latest identity. There is no polling;
// lookups only start when the identity changes or Refresh is called.
type Observer struct {
	logger *slog.Logger

	mu       sync.Mutex
	current  Identity
	tracking bool
	balance  *big.Int
	cancel   context.CancelFunc
	onChange func(*big.Int, Identity)
	seq      uint64

	notifyMu  sync.Mutex
	delivered uint64
	wg        sync.WaitGroup
}

func New(logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{logger: logger}
}

// OnChange sets a hook called after the balance is applied or cleared. A nil
// balance means unknown.
func (o *Observer) OnChange(fn func(balance *big.Int, id Identity)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = fn
}

// Balance returns the last applied balance and the identity it belongs to.
// The balance is nil until the first lookup for the identity completes.
func (o *Observer) Balance() (*big.Int, Identity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyInt(o.balance), o.current
}

// Refresh fetches the balance for id and applies it when id is still the
// current identity
func (o *Observer) Refresh(ctx context.Context, id Identity, reader Reader) (*big.Int, error) {
	o.mu.Lock()
	current := o.tracking && o.current == id
	o.mu.Unlock()
	if !current {
		return nil, ErrSuperseded
	}

	balance, err := reader.BalanceAt(ctx, id.Account, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance of %s: %w", id.Account.Hex(), err)
	}

	o.mu.Lock()
	if !o.tracking || o.current != id {
		o.mu.Unlock()
		o.logger.Debug("discarding stale balance", "identity", id.String())
		return nil, ErrSuperseded
	}
	o.balance = copyInt(balance)
	o.notifyLocked()
	return copyInt(balance), nil
}

// Track reacts to a connection state. A new identity starts one lookup in
// the background and cancels the one in flight; the same identity does
// nothing; anything but Connected clears the balance.
func (o *Observer) Track(ctx context.Context, state activation.State) {
	if state.Status != activation.Connected || state.Provider == nil {
		o.clear()
		return
	}

	id := Identity{ProviderID: state.ProviderID, Account: state.Account}
	o.mu.Lock()
	if o.tracking && o.current == id {
		o.mu.Unlock()
		return
	}
	if o.cancel != nil {
		o.cancel()
	}
	lookupCtx, cancel := context.WithCancel(ctx)
	o.current, o.tracking, o.balance, o.cancel = id, true, nil, cancel
	o.notifyLocked()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		if _, err := o.Refresh(lookupCtx, id, state.Provider); err != nil {
			if errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled) {
				return
			}
			o.logger.Warn("balance lookup failed", "identity", id.String(), "error", err)
		}
	}()
}

// Wait blocks until lookups started by Track have returned
func (o *Observer) Wait() {
	o.wg.Wait()
}

// Close cancels the lookup in flight and waits for it
func (o *Observer) Close() {
	o.clear()
	o.wg.Wait()
}

func (o *Observer) clear() {
	o.mu.Lock()
	if !o.tracking {
		o.mu.Unlock()
		return
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.current, o.tracking, o.balance = Identity{}, false, nil
	o.notifyLocked()
}

// notifyLocked must be called with mu held and releases it. A change that
// reaches the hook after a newer one is dropped.
func (o *Observer) notifyLocked() {
	o.seq++
	seq, fn, balance, id := o.seq, o.onChange, copyInt(o.balance), o.current
	o.mu.Unlock()

	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	if seq <= o.delivered {
		return
	}
	o.delivered = seq
	if fn != nil {
		fn(balance, id)
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
