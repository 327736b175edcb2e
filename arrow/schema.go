package arrow

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Column indexes of CheckpointSchema.
const (
	colSequenceNumber = iota
	colEpoch
	colTimestampMs
	colNetworkTotalTransactions
	colDigest
	colContentDigest
	colPreviousDigest
	colComputationCost
	colStorageCost
	colStorageRebate
	colNonRefundableStorageFee
	colSigners
	colTransactions
	numColumns
)

// CheckpointSchema returns the Arrow schema for one checkpoint per row.
//
// Fields:
//   - sequence_number, epoch, timestamp_ms, network_total_transactions: uint64
//   - digest, content_digest: hex string
//   - previous_digest: hex string, null for the first checkpoint
//   - computation_cost, storage_cost, storage_rebate,
//     non_refundable_storage_fee: uint64 rolling gas for the epoch
//   - signers: list<uint32> committee indexes that signed
//   - transactions: list<string> transaction digests in execution order
func CheckpointSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "sequence_number", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "epoch", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "network_total_transactions", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "digest", Type: arrow.BinaryTypes.String},
			{Name: "content_digest", Type: arrow.BinaryTypes.String},
			{Name: "previous_digest", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "computation_cost", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "storage_cost", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "storage_rebate", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "non_refundable_storage_fee", Type: arrow.PrimitiveTypes.Uint64},
			{Name: "signers", Type: arrow.ListOf(arrow.PrimitiveTypes.Uint32)},
			{Name: "transactions", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		},
		nil,
	)
}
