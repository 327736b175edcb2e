package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// Checkpoint loads the stored checkpoint with sequence number seq.
func (s *Store) Checkpoint(ctx context.Context, seq uint64) (*engine.VerifiedCheckpoint, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM checkpoints WHERE sequence_number = ?`, int64(seq),
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %d: %w", seq, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint %d: %w", seq, err)
	}

	var cp engine.VerifiedCheckpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %d: %w", seq, err)
	}
	return &cp, nil
}

// LatestSequenceNumber returns the highest stored sequence number.
func (s *Store) LatestSequenceNumber(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence_number) FROM checkpoints`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query latest checkpoint: %w", err)
	}
	if !seq.Valid {
		return 0, fmt.Errorf("latest checkpoint: %w", ErrNotFound)
	}
	return uint64(seq.Int64), nil
}

// Count returns the number of stored checkpoints.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}

// CheckpointOfTransaction returns the checkpoint that certified digest.
func (s *Store) CheckpointOfTransaction(ctx context.Context, digest engine.Digest) (uint64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT sequence_number FROM checkpoint_transactions WHERE tx_digest = ?`, digest.String(),
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("transaction %s: %w", digest, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query transaction %s: %w", digest, err)
	}
	return uint64(seq), nil
}

// Transactions lists the transaction digests of checkpoint seq in order.
func (s *Store) Transactions(ctx context.Context, seq uint64) ([]engine.Digest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_digest FROM checkpoint_transactions WHERE sequence_number = ? ORDER BY position`, int64(seq))
	if err != nil {
		return nil, fmt.Errorf("query transactions of %d: %w", seq, err)
	}
	defer rows.Close()

	var out []engine.Digest
	for rows.Next() {
		var hexDigest string
		if err := rows.Scan(&hexDigest); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		d, err := engine.ParseDigest(hexDigest)
		if err != nil {
			return nil, fmt.Errorf("parse transaction digest: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
