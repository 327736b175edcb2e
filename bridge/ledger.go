package bridge

import (
	"time"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// Ledger is the capability surface handlers drive. Implementations need not
// be safe for concurrent use; State serializes writers.
type Ledger interface {
	LatestCheckpoint() (*engine.VerifiedCheckpoint, error)
	HighestVerifiedCheckpoint() (*engine.VerifiedCheckpoint, error)
	CheckpointBySequenceNumber(n uint64) (*engine.VerifiedCheckpoint, error)
	CheckpointContents(n uint64) (*engine.CheckpointContents, error)
	Checkpoints(cursor *uint64, limit int, descending bool) *engine.CheckpointPage

	ExecuteTransaction(tx *engine.Transaction) (*engine.TransactionEffects, error)
	CreateCheckpoint() *engine.VerifiedCheckpoint
	AdvanceEpoch() uint64
	AdvanceClock(d time.Duration) (uint64, error)
	RequestGas(recipient engine.Address, amount uint64) (*engine.TransactionEffects, error)

	Object(id engine.ObjectID) (*engine.Object, error)
	ObjectByKey(id engine.ObjectID, version uint64) (*engine.Object, error)
	Balance(owner engine.Address) (uint64, engine.ObjectID, error)
	Committee(epoch uint64) (*engine.Committee, error)
	Epoch() uint64
	ChainIdentifier() string
	Transaction(digest engine.Digest) (*engine.Transaction, *engine.TransactionEffects, error)
	TransactionCheckpoint(digest engine.Digest) (uint64, bool)
	Info() engine.LedgerInfo

	Subscribe(o engine.CheckpointObserver)
}

var _ Ledger = (*engine.Simulator)(nil)
