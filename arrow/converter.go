package arrow

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// CheckpointRow is the flattened, columnar view of a checkpoint.
type CheckpointRow struct {
	SequenceNumber           uint64   `json:"sequence_number"`
	Epoch                    uint64   `json:"epoch"`
	TimestampMs              uint64   `json:"timestamp_ms"`
	NetworkTotalTransactions uint64   `json:"network_total_transactions"`
	Digest                   string   `json:"digest"`
	ContentDigest            string   `json:"content_digest"`
	PreviousDigest           string   `json:"previous_digest,omitempty"`
	ComputationCost          uint64   `json:"computation_cost"`
	StorageCost              uint64   `json:"storage_cost"`
	StorageRebate            uint64   `json:"storage_rebate"`
	NonRefundableStorageFee  uint64   `json:"non_refundable_storage_fee"`
	Signers                  []uint32 `json:"signers"`
	Transactions             []string `json:"transactions"`
}

// RowFromCheckpoint flattens cp. contents may be nil.
func RowFromCheckpoint(cp *engine.VerifiedCheckpoint, contents *engine.CheckpointContents) CheckpointRow {
	gas := cp.Data.EpochRollingGasCostSummary
	row := CheckpointRow{
		SequenceNumber:           cp.Data.SequenceNumber,
		Epoch:                    cp.Data.Epoch,
		TimestampMs:              cp.Data.TimestampMs,
		NetworkTotalTransactions: cp.Data.NetworkTotalTransactions,
		Digest:                   cp.Data.Digest().String(),
		ContentDigest:            cp.Data.ContentDigest.String(),
		ComputationCost:          gas.ComputationCost,
		StorageCost:              gas.StorageCost,
		StorageRebate:            gas.StorageRebate,
		NonRefundableStorageFee:  gas.NonRefundableStorageFee,
		Signers:                  append([]uint32(nil), cp.AuthSignature.SignersMap...),
	}
	if cp.Data.PreviousDigest != nil {
		row.PreviousDigest = cp.Data.PreviousDigest.String()
	}
	if contents != nil {
		row.Transactions = make([]string, 0, len(contents.Transactions))
		for _, t := range contents.Transactions {
			row.Transactions = append(row.Transactions, t.Transaction.String())
		}
	}
	return row
}

// Converter builds and reads checkpoint record batches.
type Converter struct {
	allocator memory.Allocator
	schema    *arrow.Schema
}

// NewConverter creates a Converter with the default memory allocator.
func NewConverter() *Converter {
	return &Converter{
		allocator: memory.DefaultAllocator,
		schema:    CheckpointSchema(),
	}
}

// Schema returns the schema records are built with.
func (c *Converter) Schema() *arrow.Schema { return c.schema }

// RowsToRecord converts rows to a single record batch. The caller owns the
// returned record and must Release it.
func (c *Converter) RowsToRecord(rows []CheckpointRow) (arrow.Record, error) {
	if len(rows) == 0 {
		return nil, errors.New("empty checkpoint rows")
	}

	builder := array.NewRecordBuilder(c.allocator, c.schema)
	defer builder.Release()

	u64 := func(i int) *array.Uint64Builder { return builder.Field(i).(*array.Uint64Builder) }
	str := func(i int) *array.StringBuilder { return builder.Field(i).(*array.StringBuilder) }

	signers := builder.Field(colSigners).(*array.ListBuilder)
	signerValues := signers.ValueBuilder().(*array.Uint32Builder)
	txs := builder.Field(colTransactions).(*array.ListBuilder)
	txValues := txs.ValueBuilder().(*array.StringBuilder)

	for _, r := range rows {
		u64(colSequenceNumber).Append(r.SequenceNumber)
		u64(colEpoch).Append(r.Epoch)
		u64(colTimestampMs).Append(r.TimestampMs)
		u64(colNetworkTotalTransactions).Append(r.NetworkTotalTransactions)
		str(colDigest).Append(r.Digest)
		str(colContentDigest).Append(r.ContentDigest)
		if r.PreviousDigest != "" {
			str(colPreviousDigest).Append(r.PreviousDigest)
		} else {
			str(colPreviousDigest).AppendNull()
		}
		u64(colComputationCost).Append(r.ComputationCost)
		u64(colStorageCost).Append(r.StorageCost)
		u64(colStorageRebate).Append(r.StorageRebate)
		u64(colNonRefundableStorageFee).Append(r.NonRefundableStorageFee)

		signers.Append(true)
		for _, s := range r.Signers {
			signerValues.Append(s)
		}
		txs.Append(true)
		for _, d := range r.Transactions {
			txValues.Append(d)
		}
	}

	return builder.NewRecord(), nil
}

// RecordToRows reads a record built with CheckpointSchema.
func (c *Converter) RecordToRows(record arrow.Record) ([]CheckpointRow, error) {
	if record == nil || record.NumRows() == 0 {
		return nil, nil
	}
	if err := ValidateSchema(record, c.schema); err != nil {
		return nil, err
	}

	u64 := make(map[int]*array.Uint64)
	for _, i := range []int{colSequenceNumber, colEpoch, colTimestampMs, colNetworkTotalTransactions,
		colComputationCost, colStorageCost, colStorageRebate, colNonRefundableStorageFee} {
		col, ok := record.Column(i).(*array.Uint64)
		if !ok {
			return nil, fmt.Errorf("column %d (%s) is not a Uint64 array", i, c.schema.Field(i).Name)
		}
		u64[i] = col
	}
	str := make(map[int]*array.String)
	for _, i := range []int{colDigest, colContentDigest, colPreviousDigest} {
		col, ok := record.Column(i).(*array.String)
		if !ok {
			return nil, fmt.Errorf("column %d (%s) is not a String array", i, c.schema.Field(i).Name)
		}
		str[i] = col
	}
	signers, ok := record.Column(colSigners).(*array.List)
	if !ok {
		return nil, errors.New("column signers is not a List array")
	}
	signerValues, ok := signers.ListValues().(*array.Uint32)
	if !ok {
		return nil, errors.New("signers values are not a Uint32 array")
	}
	txs, ok := record.Column(colTransactions).(*array.List)
	if !ok {
		return nil, errors.New("column transactions is not a List array")
	}
	txValues, ok := txs.ListValues().(*array.String)
	if !ok {
		return nil, errors.New("transactions values are not a String array")
	}

	rows := make([]CheckpointRow, record.NumRows())
	for i := range rows {
		r := CheckpointRow{
			SequenceNumber:           u64[colSequenceNumber].Value(i),
			Epoch:                    u64[colEpoch].Value(i),
			TimestampMs:              u64[colTimestampMs].Value(i),
			NetworkTotalTransactions: u64[colNetworkTotalTransactions].Value(i),
			Digest:                   str[colDigest].Value(i),
			ContentDigest:            str[colContentDigest].Value(i),
			ComputationCost:          u64[colComputationCost].Value(i),
			StorageCost:              u64[colStorageCost].Value(i),
			StorageRebate:            u64[colStorageRebate].Value(i),
			NonRefundableStorageFee:  u64[colNonRefundableStorageFee].Value(i),
		}
		if !str[colPreviousDigest].IsNull(i) {
			r.PreviousDigest = str[colPreviousDigest].Value(i)
		}

		start, end := signers.ValueOffsets(i)
		r.Signers = make([]uint32, 0, end-start)
		for j := start; j < end; j++ {
			r.Signers = append(r.Signers, signerValues.Value(int(j)))
		}
		start, end = txs.ValueOffsets(i)
		r.Transactions = make([]string, 0, end-start)
		for j := start; j < end; j++ {
			r.Transactions = append(r.Transactions, txValues.Value(int(j)))
		}
		rows[i] = r
	}
	return rows, nil
}

// ValidateSchema checks if a record matches the expected schema.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		a, e := actual.Field(i), expected.Field(i)
		if a.Name != e.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s", i, a.Name, e.Name)
		}
		if !arrow.TypeEqual(a.Type, e.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s", a.Name, a.Type, e.Type)
		}
	}

	return nil
}
