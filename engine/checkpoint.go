package engine

import (
	"encoding/binary"

	json "github.com/goccy/go-json"
)

// CheckpointCommitment is reserved for state commitments; the simulator
// never produces any.
type CheckpointCommitment struct {
	Kind   string `json:"kind"`
	Digest Digest `json:"digest"`
}

// EndOfEpochData describes the committee handoff at an epoch boundary.
type EndOfEpochData struct {
	NextEpochCommittee []*Authority `json:"next_epoch_committee"`
}

// CheckpointSummary is the signed header of a checkpoint.
type CheckpointSummary struct {
	Epoch                      uint64                 `json:"epoch"`
	SequenceNumber             uint64                 `json:"sequence_number"`
	NetworkTotalTransactions   uint64                 `json:"network_total_transactions"`
	ContentDigest              Digest                 `json:"content_digest"`
	PreviousDigest             *Digest                `json:"previous_digest"`
	EpochRollingGasCostSummary GasCostSummary         `json:"epoch_rolling_gas_cost_summary"`
	TimestampMs                uint64                 `json:"timestamp_ms"`
	CheckpointCommitments      []CheckpointCommitment `json:"checkpoint_commitments"`
	EndOfEpochData             *EndOfEpochData        `json:"end_of_epoch_data"`
	VersionSpecificData        []byte                 `json:"version_specific_data"`
}

// Digest hashes the canonical JSON encoding of the summary.
func (s *CheckpointSummary) Digest() Digest {
	b, err := json.Marshal(s)
	if err != nil {
		// every field is a plain value; encoding cannot fail
		panic(err)
	}
	return hashParts("CheckpointSummary::", b)
}

// AuthoritySignature aggregates the committee's signatures over a summary digest.
type AuthoritySignature struct {
	Epoch      uint64   `json:"epoch"`
	Signature  []byte   `json:"signature"`
	SignersMap []uint32 `json:"signers_map"`
}

// VerifiedCheckpoint is a summary together with its quorum certificate.
type VerifiedCheckpoint struct {
	Data          CheckpointSummary  `json:"data"`
	AuthSignature AuthoritySignature `json:"auth_signature"`
}

// SequenceNumber is shorthand for Data.SequenceNumber.
func (c *VerifiedCheckpoint) SequenceNumber() uint64 { return c.Data.SequenceNumber }

// CheckpointContents lists the executed transactions a checkpoint certifies.
type CheckpointContents struct {
	Transactions []ExecutionDigests `json:"transactions"`
}

// ExecutionDigests pairs a transaction with its effects.
type ExecutionDigests struct {
	Transaction Digest `json:"transaction"`
	Effects     Digest `json:"effects"`
}

func (c *CheckpointContents) digest() Digest {
	parts := make([][]byte, 0, 2*len(c.Transactions)+1)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(c.Transactions)))
	parts = append(parts, n[:])
	for i := range c.Transactions {
		parts = append(parts, c.Transactions[i].Transaction[:], c.Transactions[i].Effects[:])
	}
	return hashParts("CheckpointContents::", parts...)
}

// CheckpointPage is one page of a checkpoint listing.
type CheckpointPage struct {
	Data        []*VerifiedCheckpoint `json:"data"`
	NextCursor  *uint64               `json:"next_cursor"`
	HasNextPage bool                  `json:"has_next_page"`
}

// MaxPageSize caps how many checkpoints one page can carry.
const MaxPageSize = 100

// CheckpointObserver is notified after each checkpoint is certified.
// Observers run while the ledger is being mutated and must not call back
// into it.
type CheckpointObserver interface {
	OnCheckpoint(cp *VerifiedCheckpoint, contents *CheckpointContents)
}

// CheckpointObserverFunc adapts a function to CheckpointObserver.
type CheckpointObserverFunc func(cp *VerifiedCheckpoint, contents *CheckpointContents)

func (f CheckpointObserverFunc) OnCheckpoint(cp *VerifiedCheckpoint, contents *CheckpointContents) {
	f(cp, contents)
}
