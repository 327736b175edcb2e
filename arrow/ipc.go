package arrow

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// StreamFormat names the encoding produced by Encode.
const StreamFormat = "arrow-ipc-stream"

// DefaultBatchSize is the number of rows per record batch.
const DefaultBatchSize = 100

// IPCCodec writes checkpoint rows as an Arrow IPC stream, split into record
// batches of at most batchSize rows.
type IPCCodec struct {
	converter *Converter
	batchSize int
}

// NewIPCCodec creates a codec. A non-positive batchSize uses DefaultBatchSize.
func NewIPCCodec(batchSize int) *IPCCodec {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &IPCCodec{converter: NewConverter(), batchSize: batchSize}
}

// Encode serializes rows. An empty input still yields a stream carrying the
// schema.
func (c *IPCCodec) Encode(rows []CheckpointRow) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(c.converter.Schema()))

	for start := 0; start < len(rows); start += c.batchSize {
		end := min(start+c.batchSize, len(rows))
		record, err := c.converter.RowsToRecord(rows[start:end])
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		err = w.Write(record)
		record.Release()
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to write record batch at row %d: %w", start, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads every batch of an Encode stream back into rows.
func (c *IPCCodec) Decode(data []byte) ([]CheckpointRow, error) {
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer r.Release()

	var rows []CheckpointRow
	for r.Next() {
		batch, err := c.converter.RecordToRows(r.Record())
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// EncodeCheckpoints encodes rows with the default batch size.
func EncodeCheckpoints(rows []CheckpointRow) ([]byte, error) {
	return NewIPCCodec(DefaultBatchSize).Encode(rows)
}

// DecodeCheckpoints decodes an EncodeCheckpoints stream.
func DecodeCheckpoints(data []byte) ([]CheckpointRow, error) {
	return NewIPCCodec(DefaultBatchSize).Decode(data)
}
