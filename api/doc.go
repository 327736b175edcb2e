// Package api serves a simulator handle to remote callers.
//
// This package implements:
//   - Control plane: chi router over checkpoint, clock and epoch methods
//   - Faucet: gas requests in the FixedAmountRequest shape
//   - FrameServer: length-prefixed request envelopes over TCP, with an
//     optional token handshake
package api
