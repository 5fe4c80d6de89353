package connectors

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// emitter fans events out to subscribers
type emitter struct {
	mu       sync.Mutex
	next     int
	handlers map[int]EventHandler
}

func (e *emitter) Subscribe(handler EventHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[int]EventHandler)
	}
	id := e.next
	e.next++
	e.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers, id)
		})
	}
}

func (e *emitter) emit(event Event) {
	e.mu.Lock()
	handlers := make([]EventHandler, 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// watchWallet subscribes to the accountsChanged and chainChanged pushes of a
// wallet connection. It returns nil when the transport has no notifications
// (plain HTTP), in which case the wallet simply produces no events.
func watchWallet(client *rpc.Client, logger *slog.Logger, handle EventHandler) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())

	accountsCh := make(chan []common.Address, 8)
	chainCh := make(chan hexutil.Uint64, 8)

	accountsSub, err := client.EthSubscribe(ctx, accountsCh, "accountsChanged")
	if err != nil {
		logger.Debug("wallet does not push account changes", "error", err)
		cancel()
		return nil
	}
	chainSub, err := client.EthSubscribe(ctx, chainCh, "chainChanged")
	if err != nil {
		logger.Debug("wallet does not push chain changes", "error", err)
		accountsSub.Unsubscribe()
		cancel()
		return nil
	}

	lost := func(err error) {
		if err != nil {
			logger.Warn("wallet connection lost", "error", err)
			handle(Event{Type: Disconnected})
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case accounts := <-accountsCh:
				handle(Event{Type: AccountsChanged, Accounts: accounts})
			case id := <-chainCh:
				handle(Event{Type: ChainChanged, ChainID: int64(id)})
			case err := <-accountsSub.Err():
				lost(err)
				return
			case err := <-chainSub.Err():
				lost(err)
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			accountsSub.Unsubscribe()
			chainSub.Unsubscribe()
			cancel()
		})
	}
}
