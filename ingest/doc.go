// Package ingest persists certified checkpoints to SQLite so indexers can
// read the simulated chain without going through the bridge.
//
// A Store is a checkpoint observer: subscribe it to the simulator and every
// new checkpoint is written in its own transaction.
package ingest
