// Package arrow exports certified checkpoints as Apache Arrow record
// batches. This package implements:
// - The checkpoint schema shared with columnar consumers
// - Checkpoint to Arrow conversion and back
// - Arrow IPC stream encoding for bulk export
package arrow
