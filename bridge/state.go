package bridge

import (
	"sync"
	"time"

	"github.com/VanDung-dev/HieraChain-Simulator/cache"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// State is the shared simulator behind a handle's reader-writer lock.
type State struct {
	mu     sync.RWMutex
	ledger Ledger
	closed bool

	checkpoints  *cache.LRU[uint64, *engine.VerifiedCheckpoint]
	faucetAmount uint64
}

func newState(l Ledger, cacheSize int, cacheTTL time.Duration, faucetAmount uint64) *State {
	return &State{
		ledger:       l,
		checkpoints:  cache.NewLRU[uint64, *engine.VerifiedCheckpoint](cacheSize, cacheTTL),
		faucetAmount: faucetAmount,
	}
}

// Read runs fn holding the lock in shared mode.
func (s *State) Read(method string, fn func(Ledger) (Result, error)) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, newHandlerError(method, "Failed to acquire read lock", ErrStateClosed)
	}
	return run(method, s.ledger, fn)
}

// Write runs fn holding the lock exclusively for its full duration.
func (s *State) Write(method string, fn func(Ledger) (Result, error)) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, newHandlerError(method, "Failed to acquire write lock", ErrStateClosed)
	}
	return run(method, s.ledger, fn)
}

// run converts panics and plain errors into HandlerErrors before the
// caller's deferred unlock runs.
func run(method string, l Ledger, fn func(Ledger) (Result, error)) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, panicError(method, r)
		}
	}()
	res, err = fn(l)
	if err != nil {
		return nil, asHandlerError(method, err)
	}
	return res, nil
}

func (s *State) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.ledger = nil
	s.checkpoints.Purge()
}
