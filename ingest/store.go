package ingest

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync/atomic"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Simulator/engine"
	"github.com/VanDung-dev/HieraChain-Simulator/monitoring"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("not found")

var logger atomic.Pointer[zap.Logger]

// Logger returns the ingest package's logger, a no-op by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger configures the ingest package's logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

// Store is a SQLite checkpoint sink.
type Store struct {
	db      *sql.DB
	metrics *monitoring.Metrics
	failed  atomic.Uint64
}

// Open creates or opens the database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps :memory:
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SetMetrics records ingested checkpoints on m.
func (s *Store) SetMetrics(m *monitoring.Metrics) { s.metrics = m }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Failed reports how many checkpoints could not be written.
func (s *Store) Failed() uint64 { return s.failed.Load() }

// OnCheckpoint writes cp and its contents. Failures are logged and counted;
// they never interrupt the simulator.
func (s *Store) OnCheckpoint(cp *engine.VerifiedCheckpoint, contents *engine.CheckpointContents) {
	if err := s.Write(context.Background(), cp, contents); err != nil {
		s.failed.Add(1)
		Logger().Error("failed to ingest checkpoint",
			zap.Uint64("sequence_number", cp.Data.SequenceNumber),
			zap.Error(err))
		return
	}
	s.metrics.RecordIngest()
}

// Write stores one checkpoint in a single transaction. Writing the same
// sequence number twice is an error.
func (s *Store) Write(ctx context.Context, cp *engine.VerifiedCheckpoint, contents *engine.CheckpointContents) error {
	blob, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var prev sql.NullString
	if cp.Data.PreviousDigest != nil {
		prev = sql.NullString{String: cp.Data.PreviousDigest.String(), Valid: true}
	}
	digest := cp.Data.Digest()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (sequence_number, epoch, digest, previous_digest, timestamp_ms, network_total_transactions, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(cp.Data.SequenceNumber), int64(cp.Data.Epoch), digest.String(), prev,
		int64(cp.Data.TimestampMs), int64(cp.Data.NetworkTotalTransactions), blob,
	); err != nil {
		return fmt.Errorf("insert checkpoint %d: %w", cp.Data.SequenceNumber, err)
	}

	if contents != nil {
		for i, t := range contents.Transactions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO checkpoint_transactions (sequence_number, position, tx_digest, effects_digest)
				VALUES (?, ?, ?, ?)`,
				int64(cp.Data.SequenceNumber), i, t.Transaction.String(), t.Effects.String(),
			); err != nil {
				return fmt.Errorf("insert transaction %d of checkpoint %d: %w", i, cp.Data.SequenceNumber, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
