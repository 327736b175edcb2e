// Package fixture seeds a fresh simulator with a reproducible history.
package fixture

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// Ledger is the part of the simulator the bootstrap drives.
type Ledger interface {
	TransferTransaction(recipient engine.Address) (*engine.Transaction, error)
	ExecuteTransaction(tx *engine.Transaction) (*engine.TransactionEffects, error)
	CreateCheckpoint() *engine.VerifiedCheckpoint
	AdvanceEpoch() uint64
}

// Phase executes Transactions transfers, cuts Checkpoints checkpoints and
// optionally closes the epoch.
type Phase struct {
	Transactions int
	Checkpoints  int
	AdvanceEpoch bool
}

// DefaultPhases produces 900 checkpoints across three epochs. Cutting more
// checkpoints than a typical indexer batch keeps downstream readers paging.
func DefaultPhases() []Phase {
	return []Phase{
		{Transactions: 15, Checkpoints: 300, AdvanceEpoch: true},
		{Transactions: 10, Checkpoints: 300, AdvanceEpoch: true},
		{Transactions: 5, Checkpoints: 300},
	}
}

var logger atomic.Pointer[zap.Logger]

// Logger returns the fixture package's logger, a no-op by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger configures the fixture package's logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

// Bootstrap runs phases against ledger. Recipients are drawn from an RNG
// seeded with seed, so equal seeds give equal ledgers.
func Bootstrap(ledger Ledger, phases []Phase, seed int64) error {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x68696572)) // #nosec G404 - test data

	for i, p := range phases {
		for n := 0; n < p.Transactions; n++ {
			tx, err := ledger.TransferTransaction(randomAddress(rng))
			if err != nil {
				return fmt.Errorf("phase %d: transfer %d: %w", i, n, err)
			}
			if _, err := ledger.ExecuteTransaction(tx); err != nil {
				return fmt.Errorf("phase %d: execute %d: %w", i, n, err)
			}
		}
		var last *engine.VerifiedCheckpoint
		for n := 0; n < p.Checkpoints; n++ {
			last = ledger.CreateCheckpoint()
		}
		if p.AdvanceEpoch {
			ledger.AdvanceEpoch()
		}

		fields := []zap.Field{
			zap.Int("phase", i),
			zap.Int("transactions", p.Transactions),
			zap.Int("checkpoints", p.Checkpoints),
		}
		if last != nil {
			fields = append(fields, zap.Uint64("sequence_number", last.Data.SequenceNumber))
		}
		Logger().Info("fixture phase complete", fields...)
	}
	return nil
}

func randomAddress(rng *rand.Rand) engine.Address {
	var a engine.Address
	for off := 0; off < len(a); off += 8 {
		binary.BigEndian.PutUint64(a[off:], rng.Uint64())
	}
	return a
}
