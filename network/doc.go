// Package network publishes certified checkpoints over ZeroMQ.
//
// This package implements:
//   - Publisher: PUB socket fed by the simulator's checkpoint observers
//   - Subscriber: SUB socket that decodes the feed and drops replays
package network
