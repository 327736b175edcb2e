// Package bridge exposes a ledger simulator through a JSON request/response
// protocol suitable for a C ABI boundary.
//
// A Handle owns one simulator behind a reader-writer lock. Execute takes an
// encoded request envelope, resolves its method in the process-wide
// dispatch registry, runs the handler under the lock mode it declares and
// returns an encoded response envelope:
//
//	request:  {"method": "getLatestCheckpoint", "args": {}}
//	response: {"success": true, "data": {...}, "error_message": null}
//
// Execute never panics and never returns nil. The cgo exports live in
// cmd/libsimulator.
package bridge
