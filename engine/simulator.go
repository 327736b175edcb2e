// Package engine implements a deterministic in-process ledger simulator:
// gas coin transfers, checkpoints certified by an ed25519 committee,
// epochs and a manually advanced clock.
package engine

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// computationUnits is charged per transaction at the gas price.
	computationUnits = 1_000
	// storageUnitCost is charged per object written.
	storageUnitCost = 7_600
	// nonRefundablePercent of every storage rebate is kept by the network.
	nonRefundablePercent = 1
)

// Config parameterizes a Simulator. Two simulators built from the same
// Config and fed the same calls produce identical checkpoints.
type Config struct {
	Seed               int64
	CommitteeSize      int
	GenesisTimestampMs uint64
	FaucetBalance      uint64
	TransferAmount     uint64
	ReferenceGasPrice  uint64
	GasBudget          uint64
	MempoolSize        int
}

// DefaultConfig returns the configuration used by the default environment.
func DefaultConfig() Config {
	return Config{
		Seed:               0,
		CommitteeSize:      4,
		GenesisTimestampMs: 1_700_000_000_000,
		FaucetBalance:      1 << 62,
		TransferAmount:     1_000,
		ReferenceGasPrice:  1_000,
		GasBudget:          50_000_000,
		MempoolSize:        10_000,
	}
}

type executedTransaction struct {
	tx         *Transaction
	effects    *TransactionEffects
	checkpoint *uint64
}

// LedgerInfo summarizes the simulator state.
type LedgerInfo struct {
	ChainIdentifier          string         `json:"chain_identifier"`
	Epoch                    uint64         `json:"epoch"`
	TimestampMs              uint64         `json:"timestamp_ms"`
	LatestCheckpoint         *uint64        `json:"latest_checkpoint"`
	NetworkTotalTransactions uint64         `json:"network_total_transactions"`
	PendingTransactions      int            `json:"pending_transactions"`
	ObjectCount              int            `json:"object_count"`
	CommitteeSize            int            `json:"committee_size"`
	FaucetAddress            Address        `json:"faucet_address"`
	EpochGasCostSummary      GasCostSummary `json:"epoch_gas_cost_summary"`
}

// Simulator is the ledger state machine. It is not safe for concurrent
// mutation: callers serialize writers and may run readers concurrently
// with each other.
type Simulator struct {
	cfg Config

	epoch      uint64
	clockMs    uint64
	committees []*Committee
	chainID    string

	faucetKey ed25519.PrivateKey
	faucet    Address

	objects   *objectStore
	mempool   *Mempool
	certifier *TransactionCertifier
	executed  map[Digest]*executedTransaction
	execSeq   uint64

	checkpoints  []*VerifiedCheckpoint
	contents     []*CheckpointContents
	lastDigest   Digest
	networkTotal uint64
	rollingGas   GasCostSummary

	observers []CheckpointObserver
}

// New creates a simulator at genesis: epoch 0, no checkpoints, and a
// funded faucet account.
func New(cfg Config) *Simulator {
	if cfg.CommitteeSize <= 0 {
		cfg.CommitteeSize = 1
	}
	if cfg.MempoolSize <= 0 {
		cfg.MempoolSize = DefaultConfig().MempoolSize
	}

	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(cfg.Seed))
	faucetSeed := hashParts("Faucet::", seed[:])
	faucetKey := ed25519.NewKeyFromSeed(faucetSeed[:])

	s := &Simulator{
		cfg:       cfg,
		clockMs:   cfg.GenesisTimestampMs,
		faucetKey: faucetKey,
		faucet:    AddressFromPublicKey(faucetKey.Public().(ed25519.PublicKey)),
		objects:   newObjectStore(),
		mempool:   NewMempool(cfg.MempoolSize),
		certifier: NewTransactionCertifier(cfg.ReferenceGasPrice),
		executed:  make(map[Digest]*executedTransaction),
	}

	genesis := newCommittee(cfg.Seed, 0, cfg.CommitteeSize)
	s.committees = []*Committee{genesis}
	d := genesis.Digest()
	s.chainID = hex.EncodeToString(d[:4])

	s.objects.put(&Object{
		ObjectID:      ObjectID(hashParts("GenesisCoin::", s.faucet[:])),
		Version:       1,
		Owner:         s.faucet,
		Balance:       cfg.FaucetBalance,
		StorageRebate: storageUnitCost,
	})

	return s
}

// Subscribe registers an observer for newly certified checkpoints.
func (s *Simulator) Subscribe(o CheckpointObserver) {
	s.observers = append(s.observers, o)
}

// FaucetAddress returns the funded genesis account.
func (s *Simulator) FaucetAddress() Address { return s.faucet }

// Epoch returns the current epoch.
func (s *Simulator) Epoch() uint64 { return s.epoch }

// TimestampMs returns the simulated clock.
func (s *Simulator) TimestampMs() uint64 { return s.clockMs }

// ChainIdentifier is derived from the genesis committee.
func (s *Simulator) ChainIdentifier() string { return s.chainID }

// Mempool exposes the queue of executed, not yet checkpointed transactions.
func (s *Simulator) Mempool() *Mempool { return s.mempool }

// TransferTransaction builds a faucet-signed transfer of the configured
// amount to recipient.
func (s *Simulator) TransferTransaction(recipient Address) (*Transaction, error) {
	return s.faucetTransfer(recipient, s.cfg.TransferAmount)
}

func (s *Simulator) faucetTransfer(recipient Address, amount uint64) (*Transaction, error) {
	coin, ok := s.objects.coinOf(s.faucet)
	if !ok {
		return nil, fmt.Errorf("faucet coin: %w", ErrObjectNotFound)
	}
	return SignTransaction(TransactionData{
		Kind:       KindTransferGas,
		Sender:     s.faucet,
		Recipient:  recipient,
		Amount:     amount,
		GasPayment: coin.Ref(),
		GasBudget:  s.cfg.GasBudget,
		GasPrice:   s.cfg.ReferenceGasPrice,
	}, s.faucetKey)
}

// RequestGas sends amount from the faucet to recipient.
func (s *Simulator) RequestGas(recipient Address, amount uint64) (*TransactionEffects, error) {
	tx, err := s.faucetTransfer(recipient, amount)
	if err != nil {
		return nil, err
	}
	return s.ExecuteTransaction(tx)
}

// ExecuteTransaction validates and applies tx. The transaction joins the
// next checkpoint.
func (s *Simulator) ExecuteTransaction(tx *Transaction) (*TransactionEffects, error) {
	if tx == nil {
		return nil, errNilTransaction
	}
	digest := tx.Digest()
	if _, seen := s.executed[digest]; seen {
		return nil, fmt.Errorf("%w: %s", ErrTxAlreadyExists, digest)
	}
	if err := s.certifier.Validate(tx, s.objects).Err(); err != nil {
		return nil, err
	}
	if s.mempool.IsFull() {
		return nil, ErrMempoolFull
	}

	data := &tx.Data
	senderCoin, _ := s.objects.live(data.GasPayment.ObjectID)
	recipientCoin, recipientHasCoin := s.objects.coinOf(data.Recipient)
	if recipientHasCoin && recipientCoin.Balance > math.MaxUint64-data.Amount {
		return nil, fmt.Errorf("%w: recipient balance %d cannot take %d more",
			ErrInvalidTransaction, recipientCoin.Balance, data.Amount)
	}

	rebateBase := senderCoin.StorageRebate
	lamport := senderCoin.Version
	if recipientHasCoin {
		rebateBase += recipientCoin.StorageRebate
		if recipientCoin.Version > lamport {
			lamport = recipientCoin.Version
		}
	}
	lamport++

	nonRefundable := rebateBase * nonRefundablePercent / 100
	gas := GasCostSummary{
		ComputationCost:         data.GasPrice * computationUnits,
		ComputationCostBurned:   data.GasPrice * computationUnits,
		StorageCost:             2 * storageUnitCost,
		StorageRebate:           rebateBase - nonRefundable,
		NonRefundableStorageFee: nonRefundable,
	}
	if gas.ComputationCost+gas.StorageCost > data.GasBudget {
		return nil, fmt.Errorf("%w: cost %d exceeds budget %d",
			ErrInsufficientGas, gas.ComputationCost+gas.StorageCost, data.GasBudget)
	}
	charged := uint64(gas.NetGasUsage())

	effects := &TransactionEffects{
		TransactionDigest: digest,
		Status:            StatusSuccess,
		ExecutedEpoch:     s.epoch,
		GasUsed:           gas,
		Dependencies:      dependencies(senderCoin, recipientCoin),
	}

	sender := &Object{
		ObjectID:            senderCoin.ObjectID,
		Version:             lamport,
		Owner:               data.Sender,
		Balance:             senderCoin.Balance - data.Amount - charged,
		PreviousTransaction: digest,
		StorageRebate:       storageUnitCost,
	}
	s.objects.put(sender)
	effects.GasObject = sender.Ref()
	effects.Mutated = append(effects.Mutated, sender.Ref())

	if recipientHasCoin {
		recipient := &Object{
			ObjectID:            recipientCoin.ObjectID,
			Version:             lamport,
			Owner:               data.Recipient,
			Balance:             recipientCoin.Balance + data.Amount,
			PreviousTransaction: digest,
			StorageRebate:       storageUnitCost,
		}
		s.objects.put(recipient)
		effects.Mutated = append(effects.Mutated, recipient.Ref())
	} else {
		created := &Object{
			ObjectID:            deriveObjectID(digest, 0),
			Version:             lamport,
			Owner:               data.Recipient,
			Balance:             data.Amount,
			PreviousTransaction: digest,
			StorageRebate:       storageUnitCost,
		}
		s.objects.put(created)
		effects.Created = append(effects.Created, created.Ref())
	}

	s.execSeq++
	if err := s.mempool.Add(&PendingTransaction{
		Digest:      digest,
		Sequence:    s.execSeq,
		Transaction: tx,
		Effects:     effects,
	}); err != nil {
		return nil, fmt.Errorf("queue executed transaction: %w", err)
	}
	s.executed[digest] = &executedTransaction{tx: tx, effects: effects}

	Logger().Debug("transaction executed",
		zap.Stringer("digest", digest),
		zap.Stringer("sender", data.Sender),
		zap.Stringer("recipient", data.Recipient),
		zap.Uint64("amount", data.Amount))

	return effects, nil
}

func dependencies(objs ...*Object) []Digest {
	deps := make([]Digest, 0, len(objs))
	seen := make(map[Digest]bool, len(objs))
	for _, o := range objs {
		if o == nil || o.PreviousTransaction == (Digest{}) || seen[o.PreviousTransaction] {
			continue
		}
		seen[o.PreviousTransaction] = true
		deps = append(deps, o.PreviousTransaction)
	}
	return deps
}

// CreateCheckpoint certifies every pending transaction in a new
// checkpoint. An empty mempool yields an empty checkpoint.
func (s *Simulator) CreateCheckpoint() *VerifiedCheckpoint {
	batch := s.mempool.Drain()

	contents := &CheckpointContents{Transactions: make([]ExecutionDigests, 0, len(batch))}
	for _, p := range batch {
		contents.Transactions = append(contents.Transactions, ExecutionDigests{
			Transaction: p.Digest,
			Effects:     p.Effects.Digest(),
		})
		s.rollingGas.add(p.Effects.GasUsed)
	}
	s.networkTotal += uint64(len(batch))

	seq := uint64(len(s.checkpoints))
	summary := CheckpointSummary{
		Epoch:                      s.epoch,
		SequenceNumber:             seq,
		NetworkTotalTransactions:   s.networkTotal,
		ContentDigest:              contents.digest(),
		EpochRollingGasCostSummary: s.rollingGas,
		TimestampMs:                s.clockMs,
		CheckpointCommitments:      []CheckpointCommitment{},
		VersionSpecificData:        []byte{},
	}
	if seq > 0 {
		prev := s.lastDigest
		summary.PreviousDigest = &prev
	}

	digest := summary.Digest()
	s.lastDigest = digest
	committee := s.currentCommittee()
	sig, signers := committee.sign(digest[:])
	cp := &VerifiedCheckpoint{
		Data: summary,
		AuthSignature: AuthoritySignature{
			Epoch:      committee.Epoch,
			Signature:  sig,
			SignersMap: signers,
		},
	}

	s.checkpoints = append(s.checkpoints, cp)
	s.contents = append(s.contents, contents)
	for _, p := range batch {
		if e, ok := s.executed[p.Digest]; ok {
			n := seq
			e.checkpoint = &n
		}
	}

	for _, o := range s.observers {
		o.OnCheckpoint(cp, contents)
	}

	Logger().Debug("checkpoint created",
		zap.Uint64("sequence_number", seq),
		zap.Uint64("epoch", s.epoch),
		zap.Int("transactions", len(batch)))

	return cp
}

// AdvanceEpoch moves to the next epoch with a freshly derived committee.
// It does not cut a checkpoint.
func (s *Simulator) AdvanceEpoch() uint64 {
	s.epoch++
	s.committees = append(s.committees, newCommittee(s.cfg.Seed, s.epoch, s.cfg.CommitteeSize))
	s.rollingGas = GasCostSummary{}

	Logger().Info("epoch advanced", zap.Uint64("epoch", s.epoch))
	return s.epoch
}

// AdvanceClock moves the simulated clock forward by d, truncated to
// milliseconds.
func (s *Simulator) AdvanceClock(d time.Duration) (uint64, error) {
	if d < 0 {
		return s.clockMs, fmt.Errorf("%w: %s", ErrInvalidDuration, d)
	}
	ms := uint64(d.Milliseconds())
	if s.clockMs > math.MaxUint64-ms {
		return s.clockMs, fmt.Errorf("%w: clock %d ms cannot advance by %d ms", ErrInvalidDuration, s.clockMs, ms)
	}
	s.clockMs += ms
	return s.clockMs, nil
}

func (s *Simulator) currentCommittee() *Committee {
	return s.committees[len(s.committees)-1]
}

// LatestCheckpoint returns the most recently created checkpoint.
func (s *Simulator) LatestCheckpoint() (*VerifiedCheckpoint, error) {
	if len(s.checkpoints) == 0 {
		return nil, fmt.Errorf("%w: no checkpoint has been created", ErrCheckpointNotFound)
	}
	return s.checkpoints[len(s.checkpoints)-1], nil
}

// HighestVerifiedCheckpoint is the latest checkpoint; every checkpoint is
// certified at creation.
func (s *Simulator) HighestVerifiedCheckpoint() (*VerifiedCheckpoint, error) {
	return s.LatestCheckpoint()
}

// CheckpointBySequenceNumber returns checkpoint n.
func (s *Simulator) CheckpointBySequenceNumber(n uint64) (*VerifiedCheckpoint, error) {
	if n >= uint64(len(s.checkpoints)) {
		return nil, fmt.Errorf("%w: sequence number %d", ErrCheckpointNotFound, n)
	}
	return s.checkpoints[n], nil
}

// CheckpointContents returns the transactions certified by checkpoint n.
func (s *Simulator) CheckpointContents(n uint64) (*CheckpointContents, error) {
	if n >= uint64(len(s.contents)) {
		return nil, fmt.Errorf("%w: sequence number %d", ErrCheckpointNotFound, n)
	}
	return s.contents[n], nil
}

// Checkpoints returns one page of checkpoints after cursor (exclusive).
// A nil cursor starts from the first checkpoint, or the latest when
// descending. limit is clamped to [1, MaxPageSize].
func (s *Simulator) Checkpoints(cursor *uint64, limit int, descending bool) *CheckpointPage {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	total := uint64(len(s.checkpoints))
	page := &CheckpointPage{Data: make([]*VerifiedCheckpoint, 0, limit)}

	if !descending {
		start := uint64(0)
		if cursor != nil {
			start = *cursor + 1
		}
		for i := start; i < total && len(page.Data) < limit; i++ {
			page.Data = append(page.Data, s.checkpoints[i])
		}
		if n := len(page.Data); n > 0 {
			last := page.Data[n-1].Data.SequenceNumber
			page.HasNextPage = last+1 < total
		}
	} else {
		if total == 0 || (cursor != nil && *cursor == 0) {
			return page
		}
		start := total - 1
		if cursor != nil {
			start = min(*cursor-1, total-1)
		}
		for i := int64(start); i >= 0 && len(page.Data) < limit; i-- {
			page.Data = append(page.Data, s.checkpoints[i])
		}
		if n := len(page.Data); n > 0 {
			page.HasNextPage = page.Data[n-1].Data.SequenceNumber > 0
		}
	}

	if page.HasNextPage {
		next := page.Data[len(page.Data)-1].Data.SequenceNumber
		page.NextCursor = &next
	}
	return page
}

// Object returns the latest version of id.
func (s *Simulator) Object(id ObjectID) (*Object, error) {
	o, ok := s.objects.live(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return o, nil
}

// ObjectByKey returns id at exactly version.
func (s *Simulator) ObjectByKey(id ObjectID, version uint64) (*Object, error) {
	o, ok := s.objects.at(id, version)
	if !ok {
		return nil, fmt.Errorf("%w: %s at version %d", ErrObjectNotFound, id, version)
	}
	return o, nil
}

// Balance returns the owner's gas coin balance and the coin's ID.
func (s *Simulator) Balance(owner Address) (uint64, ObjectID, error) {
	coin, ok := s.objects.coinOf(owner)
	if !ok {
		return 0, ObjectID{}, fmt.Errorf("%w: no gas coin owned by %s", ErrObjectNotFound, owner)
	}
	return coin.Balance, coin.ObjectID, nil
}

// Committee returns the committee of epoch.
func (s *Simulator) Committee(epoch uint64) (*Committee, error) {
	if epoch >= uint64(len(s.committees)) {
		return nil, fmt.Errorf("%w: epoch %d", ErrCommitteeNotFound, epoch)
	}
	return s.committees[epoch], nil
}

// Transaction returns an executed transaction and its effects.
func (s *Simulator) Transaction(digest Digest) (*Transaction, *TransactionEffects, error) {
	e, ok := s.executed[digest]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, digest)
	}
	return e.tx, e.effects, nil
}

// TransactionCheckpoint returns the checkpoint that certified digest, if any.
func (s *Simulator) TransactionCheckpoint(digest Digest) (uint64, bool) {
	e, ok := s.executed[digest]
	if !ok || e.checkpoint == nil {
		return 0, false
	}
	return *e.checkpoint, true
}

// Info summarizes the ledger.
func (s *Simulator) Info() LedgerInfo {
	info := LedgerInfo{
		ChainIdentifier:          s.chainID,
		Epoch:                    s.epoch,
		TimestampMs:              s.clockMs,
		NetworkTotalTransactions: s.networkTotal,
		PendingTransactions:      s.mempool.Size(),
		ObjectCount:              s.objects.count(),
		CommitteeSize:            len(s.currentCommittee().Members),
		FaucetAddress:            s.faucet,
		EpochGasCostSummary:      s.rollingGas,
	}
	if n := len(s.checkpoints); n > 0 {
		latest := uint64(n - 1)
		info.LatestCheckpoint = &latest
	}
	return info
}
