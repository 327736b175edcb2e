package engine

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewSimulatorGenesis(t *testing.T) {
	sim := New(DefaultConfig())

	if sim.Epoch() != 0 {
		t.Errorf("Expected epoch 0, got %d", sim.Epoch())
	}
	if _, err := sim.LatestCheckpoint(); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Expected ErrCheckpointNotFound on empty ledger, got %v", err)
	}
	balance, _, err := sim.Balance(sim.FaucetAddress())
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != DefaultConfig().FaucetBalance {
		t.Errorf("Expected faucet balance %d, got %d", DefaultConfig().FaucetBalance, balance)
	}
	if len(sim.ChainIdentifier()) != 8 {
		t.Errorf("Expected 8-char chain identifier, got %q", sim.ChainIdentifier())
	}
}

func TestSimulatorDeterministic(t *testing.T) {
	run := func() *VerifiedCheckpoint {
		sim := New(DefaultConfig())
		for i := byte(1); i <= 3; i++ {
			tx, _ := sim.TransferTransaction(testAddress(i))
			if _, err := sim.ExecuteTransaction(tx); err != nil {
				t.Fatalf("ExecuteTransaction failed: %v", err)
			}
		}
		return sim.CreateCheckpoint()
	}

	a, b := run(), run()
	if a.Data.Digest() != b.Data.Digest() {
		t.Error("Same config and calls should produce identical checkpoints")
	}
}

func TestSimulatorTransfer(t *testing.T) {
	sim := New(DefaultConfig())
	recipient := testAddress(1)

	tx, err := sim.TransferTransaction(recipient)
	if err != nil {
		t.Fatalf("TransferTransaction failed: %v", err)
	}
	effects, err := sim.ExecuteTransaction(tx)
	if err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}

	if effects.Status != StatusSuccess {
		t.Errorf("Expected success, got %s", effects.Status)
	}
	if len(effects.Created) != 1 {
		t.Fatalf("Expected 1 created object, got %d", len(effects.Created))
	}

	balance, coinID, err := sim.Balance(recipient)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != DefaultConfig().TransferAmount {
		t.Errorf("Expected balance %d, got %d", DefaultConfig().TransferAmount, balance)
	}
	if coinID != effects.Created[0].ObjectID {
		t.Error("Recipient coin should be the created object")
	}

	// A second transfer mutates the existing coin
	tx, _ = sim.TransferTransaction(recipient)
	effects, err = sim.ExecuteTransaction(tx)
	if err != nil {
		t.Fatalf("Second ExecuteTransaction failed: %v", err)
	}
	if len(effects.Created) != 0 || len(effects.Mutated) != 2 {
		t.Errorf("Expected 0 created and 2 mutated, got %d and %d", len(effects.Created), len(effects.Mutated))
	}
	balance, _, _ = sim.Balance(recipient)
	if balance != 2*DefaultConfig().TransferAmount {
		t.Errorf("Expected balance %d, got %d", 2*DefaultConfig().TransferAmount, balance)
	}
}

func TestSimulatorFaucetPaysGas(t *testing.T) {
	sim := New(DefaultConfig())
	before, _, _ := sim.Balance(sim.FaucetAddress())

	effects, err := sim.RequestGas(testAddress(1), 500)
	if err != nil {
		t.Fatalf("RequestGas failed: %v", err)
	}

	after, _, _ := sim.Balance(sim.FaucetAddress())
	want := before - 500 - uint64(effects.GasUsed.NetGasUsage())
	if after != want {
		t.Errorf("Expected faucet balance %d, got %d", want, after)
	}
}

func TestSimulatorReplayRejected(t *testing.T) {
	sim := New(DefaultConfig())

	tx, _ := sim.TransferTransaction(testAddress(1))
	if _, err := sim.ExecuteTransaction(tx); err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}
	if _, err := sim.ExecuteTransaction(tx); !errors.Is(err, ErrTxAlreadyExists) {
		t.Errorf("Expected ErrTxAlreadyExists on replay, got %v", err)
	}
}

func TestSimulatorObjectVersions(t *testing.T) {
	sim := New(DefaultConfig())
	_, coinID, _ := sim.Balance(sim.FaucetAddress())

	genesis, err := sim.Object(coinID)
	if err != nil {
		t.Fatalf("Object failed: %v", err)
	}

	if _, err := sim.RequestGas(testAddress(1), 10); err != nil {
		t.Fatalf("RequestGas failed: %v", err)
	}

	latest, _ := sim.Object(coinID)
	if latest.Version != genesis.Version+1 {
		t.Errorf("Expected version %d, got %d", genesis.Version+1, latest.Version)
	}

	old, err := sim.ObjectByKey(coinID, genesis.Version)
	if err != nil {
		t.Fatalf("ObjectByKey failed: %v", err)
	}
	if old.Balance != genesis.Balance {
		t.Error("Old version should keep its balance")
	}

	if _, err := sim.ObjectByKey(coinID, 99); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound, got %v", err)
	}
}

func TestSimulatorCheckpointChain(t *testing.T) {
	sim := New(DefaultConfig())

	tx, _ := sim.TransferTransaction(testAddress(1))
	effects, _ := sim.ExecuteTransaction(tx)

	first := sim.CreateCheckpoint()
	if first.SequenceNumber() != 0 {
		t.Errorf("Expected first sequence 0, got %d", first.SequenceNumber())
	}
	if first.Data.PreviousDigest != nil {
		t.Error("First checkpoint should have no previous digest")
	}
	if first.Data.NetworkTotalTransactions != 1 {
		t.Errorf("Expected 1 network transaction, got %d", first.Data.NetworkTotalTransactions)
	}
	if first.Data.EpochRollingGasCostSummary != effects.GasUsed {
		t.Error("Rolling gas should equal the only transaction's gas")
	}

	second := sim.CreateCheckpoint()
	if second.Data.PreviousDigest == nil || *second.Data.PreviousDigest != first.Data.Digest() {
		t.Error("Second checkpoint should link to the first")
	}
	if second.Data.NetworkTotalTransactions != 1 {
		t.Error("Empty checkpoint should not change the transaction total")
	}

	seq, ok := sim.TransactionCheckpoint(tx.Digest())
	if !ok || seq != 0 {
		t.Errorf("Expected transaction in checkpoint 0, got %d (%v)", seq, ok)
	}

	contents, err := sim.CheckpointContents(0)
	if err != nil || len(contents.Transactions) != 1 {
		t.Fatalf("Unexpected contents: %v", err)
	}
}

func TestSimulatorCheckpointSignature(t *testing.T) {
	sim := New(DefaultConfig())
	cp := sim.CreateCheckpoint()

	committee, err := sim.Committee(cp.AuthSignature.Epoch)
	if err != nil {
		t.Fatalf("Committee failed: %v", err)
	}
	digest := cp.Data.Digest()
	if err := committee.Verify(digest[:], cp.AuthSignature); err != nil {
		t.Errorf("Checkpoint signature should verify: %v", err)
	}

	tampered := cp.AuthSignature
	tampered.Signature = append([]byte(nil), cp.AuthSignature.Signature...)
	tampered.Signature[0] ^= 0xff
	if err := committee.Verify(digest[:], tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for tampered signature, got %v", err)
	}
}

func TestSimulatorAdvanceEpoch(t *testing.T) {
	sim := New(DefaultConfig())
	_, _ = sim.RequestGas(testAddress(1), 10)
	sim.CreateCheckpoint()

	if epoch := sim.AdvanceEpoch(); epoch != 1 {
		t.Errorf("Expected epoch 1, got %d", epoch)
	}

	cp := sim.CreateCheckpoint()
	if cp.Data.Epoch != 1 || cp.AuthSignature.Epoch != 1 {
		t.Errorf("Expected checkpoint in epoch 1, got %d/%d", cp.Data.Epoch, cp.AuthSignature.Epoch)
	}
	if cp.Data.EpochRollingGasCostSummary != (GasCostSummary{}) {
		t.Error("Rolling gas should reset at the epoch boundary")
	}

	c0, _ := sim.Committee(0)
	c1, _ := sim.Committee(1)
	if c0.Digest() == c1.Digest() {
		t.Error("Committee should rotate between epochs")
	}
	if _, err := sim.Committee(2); !errors.Is(err, ErrCommitteeNotFound) {
		t.Errorf("Expected ErrCommitteeNotFound, got %v", err)
	}
}

func TestSimulatorAdvanceClock(t *testing.T) {
	sim := New(DefaultConfig())
	start := sim.TimestampMs()

	now, err := sim.AdvanceClock(5 * time.Second)
	if err != nil {
		t.Fatalf("AdvanceClock failed: %v", err)
	}
	if now != start+5000 {
		t.Errorf("Expected %d, got %d", start+5000, now)
	}
	if cp := sim.CreateCheckpoint(); cp.Data.TimestampMs != now {
		t.Errorf("Checkpoint should carry the clock, got %d", cp.Data.TimestampMs)
	}

	if _, err := sim.AdvanceClock(-time.Second); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("Expected ErrInvalidDuration, got %v", err)
	}
}

func TestSimulatorAdvanceClockOverflow(t *testing.T) {
	sim := New(DefaultConfig())
	start := sim.TimestampMs()

	max := time.Duration(math.MaxInt64)
	for {
		now, err := sim.AdvanceClock(max)
		if err != nil {
			if !errors.Is(err, ErrInvalidDuration) {
				t.Fatalf("Expected ErrInvalidDuration, got %v", err)
			}
			if now != sim.TimestampMs() {
				t.Errorf("Failed advance should report the unchanged clock")
			}
			break
		}
		if now <= start {
			t.Fatalf("Clock wrapped: %d after %d", now, start)
		}
		start = now
	}
}

func TestSimulatorCheckpointPages(t *testing.T) {
	sim := New(DefaultConfig())
	for i := 0; i < 250; i++ {
		sim.CreateCheckpoint()
	}

	var cursor *uint64
	var seen []uint64
	for {
		page := sim.Checkpoints(cursor, 0, false)
		for _, cp := range page.Data {
			seen = append(seen, cp.SequenceNumber())
		}
		if !page.HasNextPage {
			if page.NextCursor != nil {
				t.Error("Last page should have no cursor")
			}
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 250 {
		t.Fatalf("Expected 250 checkpoints across pages, got %d", len(seen))
	}
	for i, seq := range seen {
		if seq != uint64(i) {
			t.Fatalf("Position %d: expected %d, got %d", i, i, seq)
		}
	}

	page := sim.Checkpoints(nil, 3, true)
	if len(page.Data) != 3 || page.Data[0].SequenceNumber() != 249 {
		t.Fatalf("Unexpected descending page")
	}
	page = sim.Checkpoints(page.NextCursor, 3, true)
	if page.Data[0].SequenceNumber() != 246 {
		t.Errorf("Expected 246, got %d", page.Data[0].SequenceNumber())
	}

	zero := uint64(0)
	if page := sim.Checkpoints(&zero, 10, true); len(page.Data) != 0 || page.HasNextPage {
		t.Error("Nothing precedes checkpoint 0")
	}
}

func TestSimulatorObserver(t *testing.T) {
	sim := New(DefaultConfig())

	var got []uint64
	sim.Subscribe(CheckpointObserverFunc(func(cp *VerifiedCheckpoint, _ *CheckpointContents) {
		got = append(got, cp.SequenceNumber())
	}))

	sim.CreateCheckpoint()
	sim.CreateCheckpoint()

	if len(got) != 2 || got[1] != 1 {
		t.Errorf("Observer saw %v", got)
	}
}

func TestTransactionWireRoundTrip(t *testing.T) {
	sim := New(DefaultConfig())
	tx, _ := sim.TransferTransaction(testAddress(1))

	txBytes, sigs, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeTransaction(txBytes, sigs)
	if err != nil {
		t.Fatalf("DecodeTransaction failed: %v", err)
	}
	if decoded.Digest() != tx.Digest() {
		t.Error("Digest should survive the wire form")
	}
	if _, err := sim.ExecuteTransaction(decoded); err != nil {
		t.Errorf("Decoded transaction should execute: %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	a := testAddress(1)

	parsed, err := ParseAddress(a.String())
	if err != nil || parsed != a {
		t.Errorf("Round trip failed: %v", err)
	}
	if _, err := ParseAddress(a.String()[2:]); err != nil {
		t.Errorf("Unprefixed hex should parse: %v", err)
	}
	if _, err := ParseAddress("0x1234"); !errors.Is(err, ErrInvalidHex) {
		t.Errorf("Expected ErrInvalidHex, got %v", err)
	}
}
