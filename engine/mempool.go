package engine

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// Common errors for mempool operations
var (
	ErrMempoolFull     = errors.New("mempool is full")
	ErrTxAlreadyExists = errors.New("transaction already exists")
	ErrTxNotFound      = errors.New("transaction not found")
	ErrInvalidTx       = errors.New("invalid transaction")
)

// PendingTransaction is an executed transaction waiting for a checkpoint.
type PendingTransaction struct {
	Digest      Digest              `json:"digest"`
	Sequence    uint64              `json:"sequence"`
	Transaction *Transaction        `json:"transaction"`
	Effects     *TransactionEffects `json:"effects"`
	ExecutedAt  time.Time           `json:"executed_at"`
}

// Validate checks if the pending entry has required fields.
func (p *PendingTransaction) Validate() error {
	if p.Transaction == nil {
		return errors.New("transaction is required")
	}
	if p.Effects == nil {
		return errors.New("effects are required")
	}
	if p.Effects.TransactionDigest != p.Digest {
		return errors.New("effects belong to a different transaction")
	}
	return nil
}

// executionQueue implements heap.Interface in execution order.
type executionQueue []*PendingTransaction

func (q executionQueue) Len() int { return len(q) }

func (q executionQueue) Less(i, j int) bool {
	return q[i].Sequence < q[j].Sequence
}

func (q executionQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *executionQueue) Push(x interface{}) {
	*q = append(*q, x.(*PendingTransaction))
}

func (q *executionQueue) Pop() interface{} {
	old := *q
	n := len(old)
	tx := old[n-1]
	old[n-1] = nil // avoid memory leak
	*q = old[0 : n-1]
	return tx
}

// Mempool holds executed transactions until a checkpoint certifies them.
type Mempool struct {
	pending map[Digest]*PendingTransaction
	queue   executionQueue
	maxSize int
	mu      sync.RWMutex
}

// NewMempool creates a new Mempool with the specified maximum size.
func NewMempool(maxSize int) *Mempool {
	m := &Mempool{
		pending: make(map[Digest]*PendingTransaction),
		queue:   make(executionQueue, 0),
		maxSize: maxSize,
	}
	heap.Init(&m.queue)
	return m
}

// Add adds a transaction to the mempool.
// Returns error if mempool is full or transaction already exists.
func (m *Mempool) Add(tx *PendingTransaction) error {
	if tx == nil {
		return ErrInvalidTx
	}

	if err := tx.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pending[tx.Digest]; exists {
		return ErrTxAlreadyExists
	}

	if len(m.pending) >= m.maxSize {
		return ErrMempoolFull
	}

	if tx.ExecutedAt.IsZero() {
		tx.ExecutedAt = time.Now()
	}

	m.pending[tx.Digest] = tx
	heap.Push(&m.queue, tx)

	return nil
}

// Get retrieves a transaction by digest without removing it.
func (m *Mempool) Get(digest Digest) *PendingTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending[digest]
}

// Remove removes a transaction by digest.
// Returns true if the transaction was found and removed.
func (m *Mempool) Remove(digest Digest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pending[digest]; !exists {
		return false
	}

	delete(m.pending, digest)

	newQueue := make(executionQueue, 0, len(m.queue)-1)
	for _, tx := range m.queue {
		if tx.Digest != digest {
			newQueue = append(newQueue, tx)
		}
	}
	m.queue = newQueue
	heap.Init(&m.queue)

	return true
}

// PopBatch removes and returns up to n transactions in execution order.
func (m *Mempool) PopBatch(n int) []*PendingTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || len(m.queue) == 0 {
		return nil
	}

	if n > len(m.queue) {
		n = len(m.queue)
	}

	batch := make([]*PendingTransaction, 0, n)
	for i := 0; i < n; i++ {
		tx := heap.Pop(&m.queue).(*PendingTransaction)
		delete(m.pending, tx.Digest)
		batch = append(batch, tx)
	}

	return batch
}

// Drain removes and returns every pending transaction in execution order.
func (m *Mempool) Drain() []*PendingTransaction {
	return m.PopBatch(m.Size())
}

// Peek returns up to n transactions in execution order without removing them.
func (m *Mempool) Peek(n int) []*PendingTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || len(m.queue) == 0 {
		return nil
	}

	if n > len(m.queue) {
		n = len(m.queue)
	}

	sorted := make(executionQueue, len(m.queue))
	copy(sorted, m.queue)
	heap.Init(&sorted)

	batch := make([]*PendingTransaction, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, heap.Pop(&sorted).(*PendingTransaction))
	}

	return batch
}

// Size returns the current number of transactions in the mempool.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// IsFull returns true if the mempool has reached its maximum size.
func (m *Mempool) IsFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending) >= m.maxSize
}

// Clear removes all transactions from the mempool.
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = make(map[Digest]*PendingTransaction)
	m.queue = make(executionQueue, 0)
	heap.Init(&m.queue)
}

// MempoolStats reports occupancy.
type MempoolStats struct {
	Size      int `json:"size"`
	MaxSize   int `json:"max_size"`
	Available int `json:"available"`
}

func (m *Mempool) Stats() MempoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MempoolStats{
		Size:      len(m.pending),
		MaxSize:   m.maxSize,
		Available: m.maxSize - len(m.pending),
	}
}

// Contains checks if a transaction exists in the mempool.
func (m *Mempool) Contains(digest Digest) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.pending[digest]
	return exists
}
