package arrow

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

func TestCheckpointSchema(t *testing.T) {
	schema := CheckpointSchema()

	if schema.NumFields() != numColumns {
		t.Fatalf("Expected %d fields, got %d", numColumns, schema.NumFields())
	}

	expected := []struct {
		name     string
		nullable bool
	}{
		{"sequence_number", false},
		{"epoch", false},
		{"timestamp_ms", false},
		{"network_total_transactions", false},
		{"digest", false},
		{"content_digest", false},
		{"previous_digest", true},
	}
	for i, e := range expected {
		f := schema.Field(i)
		if f.Name != e.name {
			t.Errorf("Field %d: expected name %s, got %s", i, e.name, f.Name)
		}
		if f.Nullable != e.nullable {
			t.Errorf("Field %s: expected nullable=%v, got %v", e.name, e.nullable, f.Nullable)
		}
	}

	if schema.Field(colSigners).Type.ID() != arrow.LIST {
		t.Errorf("Expected 'signers' to be List type, got %s", schema.Field(colSigners).Type.ID())
	}
}

func ledgerRows(t *testing.T, n int) []CheckpointRow {
	t.Helper()
	sim := engine.New(engine.DefaultConfig())
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			tx, err := sim.TransferTransaction(engine.Address{byte(i + 1)})
			if err != nil {
				t.Fatalf("transfer: %v", err)
			}
			if _, err := sim.ExecuteTransaction(tx); err != nil {
				t.Fatalf("execute: %v", err)
			}
		}
		sim.CreateCheckpoint()
	}

	rows := make([]CheckpointRow, 0, n)
	for i := 0; i < n; i++ {
		cp, err := sim.CheckpointBySequenceNumber(uint64(i))
		if err != nil {
			t.Fatalf("checkpoint %d: %v", i, err)
		}
		contents, err := sim.CheckpointContents(uint64(i))
		if err != nil {
			t.Fatalf("contents %d: %v", i, err)
		}
		rows = append(rows, RowFromCheckpoint(cp, contents))
	}
	return rows
}

func TestRowFromCheckpoint(t *testing.T) {
	rows := ledgerRows(t, 2)

	if rows[0].PreviousDigest != "" {
		t.Errorf("first checkpoint should have no previous digest, got %s", rows[0].PreviousDigest)
	}
	if rows[1].PreviousDigest != rows[0].Digest {
		t.Errorf("previous digest mismatch: %s != %s", rows[1].PreviousDigest, rows[0].Digest)
	}
	if len(rows[0].Transactions) != 1 {
		t.Errorf("expected 1 transaction in checkpoint 0, got %d", len(rows[0].Transactions))
	}
	if len(rows[0].Signers) != engine.DefaultConfig().CommitteeSize {
		t.Errorf("expected every member to sign, got %v", rows[0].Signers)
	}
}

func TestConverterRoundTrip(t *testing.T) {
	rows := ledgerRows(t, 5)
	c := NewConverter()

	record, err := c.RowsToRecord(rows)
	if err != nil {
		t.Fatalf("RowsToRecord failed: %v", err)
	}
	defer record.Release()

	if record.NumRows() != 5 {
		t.Errorf("Expected 5 rows, got %d", record.NumRows())
	}
	if err := ValidateSchema(record, CheckpointSchema()); err != nil {
		t.Errorf("ValidateSchema failed: %v", err)
	}

	back, err := c.RecordToRows(record)
	if err != nil {
		t.Fatalf("RecordToRows failed: %v", err)
	}
	for i := range rows {
		if back[i].Digest != rows[i].Digest || back[i].PreviousDigest != rows[i].PreviousDigest {
			t.Errorf("row %d digests differ after round trip", i)
		}
		if len(back[i].Transactions) != len(rows[i].Transactions) {
			t.Errorf("row %d: expected %d transactions, got %d", i, len(rows[i].Transactions), len(back[i].Transactions))
		}
	}
}

func TestConverterEmpty(t *testing.T) {
	if _, err := NewConverter().RowsToRecord(nil); err == nil {
		t.Error("Expected error for empty rows")
	}
}

func TestIPCRoundTripMultipleBatches(t *testing.T) {
	rows := ledgerRows(t, 7)
	codec := NewIPCCodec(3)

	data, err := codec.Encode(rows)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Expected non-empty IPC data")
	}

	back, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(back) != len(rows) {
		t.Fatalf("Expected %d rows, got %d", len(rows), len(back))
	}
	for i := range rows {
		if back[i].SequenceNumber != uint64(i) {
			t.Errorf("row %d: sequence number %d", i, back[i].SequenceNumber)
		}
		if back[i].ContentDigest != rows[i].ContentDigest {
			t.Errorf("row %d: content digest mismatch", i)
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := DecodeCheckpoints([]byte("not arrow")); err == nil {
		t.Error("Expected error decoding garbage")
	}
}
